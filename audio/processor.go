package audio

import (
	"sync"
	"time"

	"github.com/voxstream/transcribe-core/audiobuf"
	"github.com/voxstream/transcribe-core/transcript"
)

// nowFunc is overridable in tests that need deterministic elapsed-time
// reporting without real sleeps.
var nowFunc = time.Now

// OnTranscript is invoked once per transcript fragment a Processor
// produces. Callback panics are recovered and logged; a panicking callback
// never crashes the processing goroutine (spec.md §5).
type OnTranscript func(transcript.Event)

// OnError is invoked when a Processor hits a recoverable error that the
// client should be notified of but that does not itself stop the session.
type OnError func(message string)

// Processor is the common lifecycle every AudioProcessor strategy
// implements (spec.md §3 BaseAudioProcessor). Regardless of strategy,
// every byte handed to ProcessAudio is guaranteed to be recoverable from
// Stop's returned audio, even if the strategy's own transcription never
// sees it.
type Processor interface {
	// Start resets internal state and begins processing.
	Start() error

	// ProcessAudio consumes one raw audio chunk already unconditionally
	// appended to the processor's internal audio log before any
	// strategy-specific handling runs.
	ProcessAudio(chunk []byte) error

	// Stop ends processing and returns the header chunk (first frame seen,
	// typically a WebM/Opus container header) and the full concatenated
	// audio log, for persistence.
	Stop() (header, full []byte, err error)

	// IsActive reports whether Start has run and Stop has not.
	IsActive() bool
}

// base implements the audio-caching and lifecycle bookkeeping every
// strategy shares, mirroring BaseAudioProcessor's guarantee that audio is
// saved before any strategy-specific processing sees it.
type base struct {
	config Config

	onTranscript OnTranscript
	onError      OnError

	mu        sync.RWMutex
	buf       *audiobuf.Buffer
	active    bool
	startedAt time.Time
}

func newBase(config Config, onTranscript OnTranscript, onError OnError) base {
	return base{
		config:       config,
		onTranscript: onTranscript,
		onError:      onError,
		buf:          audiobuf.New(),
	}
}

func (b *base) markStarted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
	b.startedAt = nowFunc()
	b.buf = audiobuf.New()
}

func (b *base) markStopped() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
}

// IsActive reports whether the processor has been started and not yet
// stopped.
func (b *base) IsActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// elapsed returns time since Start, or zero if not active.
func (b *base) elapsed() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.active || b.startedAt.IsZero() {
		return 0
	}
	return nowFunc().Sub(b.startedAt)
}

// saveChunk unconditionally records chunk in the audio log, establishing
// the header frame from the first chunk seen. The strategy-specific
// ProcessAudio must call this before doing anything else.
func (b *base) saveChunk(chunk []byte) {
	b.buf.Append(chunk)
}

// chunkCount returns the number of chunks saved so far.
func (b *base) chunkCount() int {
	return b.buf.Count()
}

// header returns the first chunk saved, or nil.
func (b *base) header() []byte {
	return b.buf.Header()
}

// chunksFrom returns the concatenation of every chunk from index i onward,
// with the header frame prepended if it isn't already there.
func (b *base) chunksFrom(i int) ([]byte, error) {
	return b.buf.SnapshotFrom(i)
}

// stopPayload returns the header chunk and the full recorded audio, for
// Stop's return value.
func (b *base) stopPayload() (header, full []byte) {
	return b.buf.Header(), b.buf.FullPayload()
}

// emitTranscript invokes onTranscript, recovering and swallowing any panic
// (spec.md §5: callback panics never propagate into processing code).
func (b *base) emitTranscript(ev transcript.Event) {
	if b.onTranscript == nil {
		return
	}
	defer func() { recover() }()
	b.onTranscript(ev)
}

// emitError invokes onError, recovering and swallowing any panic.
func (b *base) emitError(message string) {
	if b.onError == nil {
		return
	}
	defer func() { recover() }()
	b.onError(message)
}
