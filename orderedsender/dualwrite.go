package orderedsender

import (
	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/translate"
)

// ClientSend delivers one ordered result to the connected client. A
// returned error (send-on-closed-connection, for example) is logged and
// never propagated — delivery failure must not prevent persistence.
type ClientSend func(result translate.Result) error

// Persist durably records one ordered result. Invoked unconditionally,
// even when ClientSend fails, in its own isolated transaction (spec.md
// §4.7, §4.9).
type Persist func(result translate.Result) error

// DualWrite composes a client-delivery attempt and an unconditional
// persistence write into a single Sink: the client path runs first and its
// failure is swallowed (logged), then persistence always runs.
func DualWrite(client ClientSend, persist Persist) Sink {
	return func(result translate.Result) {
		if err := client(result); err != nil {
			logger.Warn("ordered sender: client delivery failed", "error", err,
				"segment_id", result.SegmentID, "sentence_index", result.SentenceIndex)
		}
		if err := persist(result); err != nil {
			logger.Error("ordered sender: persistence write failed", "error", err,
				"segment_id", result.SegmentID, "sentence_index", result.SentenceIndex)
		}
	}
}
