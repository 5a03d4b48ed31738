// Package persistence is the durable store for a Recording's audio bytes,
// transcript, and per-target-language translation (spec.md §4.9, §6.4).
package persistence

import "time"

// Recording is the top-level row a session's audio, transcript, and
// translations are all attached to.
type Recording struct {
	ID               string
	UserID           string
	FolderID         string
	Title            string
	S3Key            string
	DurationSeconds  float64
	SourceLang       string
	TargetLang       string
	Status           string
	SourceType       string
	AudioOID         *uint32
	AudioBlobID      string
	AudioSize        int64
	AudioFormat      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TranscriptSegment is one fragment appended to a Transcript's segment
// list (spec.md §6.4).
type TranscriptSegment struct {
	Text    string
	Start   float64
	End     float64
	IsFinal bool
	Speaker string
}

// Transcript is the recording's source-language transcript: exactly one
// per recording_id.
type Transcript struct {
	ID          string
	RecordingID string
	Segments    []TranscriptSegment
	FullText    string
	Language    string
}

// TranslationSegment is one segment of a target-language translation.
// SegmentID is empty for a "phantom" placeholder segment created by the
// UI or a prior sync before any translation has arrived for it (spec.md
// §4.9).
type TranslationSegment struct {
	SegmentID string
	Text      string
	Start     float64
	End       float64
	IsFinal   bool
}

// Translation is one recording's translation into TargetLang; a recording
// may have more than one Translation row, one per target language it has
// been translated into.
type Translation struct {
	ID          string
	RecordingID string
	TargetLang  string
	Segments    []TranslationSegment
	FullText    string
	LLMModel    string
}

// TranslationUpdate is the input to UpdateTranslation: one translated
// segment's worth of new text, keyed by the segment it belongs to (if
// known).
type TranslationUpdate struct {
	SegmentID string // empty if not yet assigned (matches a phantom segment)
	Text      string
	IsFinal   bool
}
