package persistence

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Adapter is the single entry point services use to persist audio bytes,
// transcripts, and translations. It composes an AudioStore (bytes) with a
// RecordingStore (rows) and owns the append/idempotency rules spec.md
// §4.9 requires of transcript and translation updates.
//
// Every translation update runs in an isolated transaction internal to the
// RecordingStore implementation — Adapter never threads a caller's
// transaction through, so a translation that finishes after its triggering
// request has already returned still commits cleanly.
type Adapter struct {
	audio AudioStore
	rows  RecordingStore

	// mu serializes GetOrCreate-then-Save read-modify-write sequences per
	// adapter instance. A real RecordingStore backend additionally applies
	// its own row-level locking (spec.md §4.9); this mutex only protects
	// against concurrent callers racing within a single process.
	mu sync.Mutex
}

// NewAdapter builds an Adapter over the given AudioStore and RecordingStore.
func NewAdapter(audio AudioStore, rows RecordingStore) *Adapter {
	return &Adapter{audio: audio, rows: rows}
}

// SaveAudio stores data and returns its identifier.
func (a *Adapter) SaveAudio(ctx context.Context, data []byte) (oid *uint32, blobID string, err error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyAudio
	}
	return a.audio.SaveAudio(ctx, data)
}

// ReadAudio reads length bytes of stored audio starting at offset.
func (a *Adapter) ReadAudio(ctx context.Context, oid *uint32, blobID string, offset, length int64) ([]byte, error) {
	if oid == nil && blobID == "" {
		return nil, ErrNoAudioIdentifier
	}
	return a.audio.ReadAudio(ctx, oid, blobID, offset, length)
}

// StreamAudioChunks streams stored audio in chunkSize pieces.
func (a *Adapter) StreamAudioChunks(ctx context.Context, oid *uint32, blobID string, chunkSize int) (<-chan AudioChunk, error) {
	if oid == nil && blobID == "" {
		return nil, ErrNoAudioIdentifier
	}
	return a.audio.StreamAudioChunks(ctx, oid, blobID, chunkSize)
}

// GetAudioSize returns the size in bytes of stored audio.
func (a *Adapter) GetAudioSize(ctx context.Context, oid *uint32, blobID string) (int64, error) {
	if oid == nil && blobID == "" {
		return 0, ErrNoAudioIdentifier
	}
	return a.audio.GetAudioSize(ctx, oid, blobID)
}

// DeleteAudio removes stored audio.
func (a *Adapter) DeleteAudio(ctx context.Context, oid *uint32, blobID string) (bool, error) {
	if oid == nil && blobID == "" {
		return false, ErrNoAudioIdentifier
	}
	return a.audio.DeleteAudio(ctx, oid, blobID)
}

// UpdateRecordingAudio updates a Recording's audio identifier/size/format
// (and duration, if known) after AudioSaver finishes transcoding.
func (a *Adapter) UpdateRecordingAudio(ctx context.Context, recordingID string, oid *uint32, blobID string, size int64, format string, durationSeconds float64) error {
	return a.rows.UpdateRecordingAudio(ctx, recordingID, oid, blobID, size, format, durationSeconds)
}

// AppendTranscript locates (or creates) the Transcript row for recordingID
// and appends seg to it, recomputing full_text. The operation is
// idempotent in the sense that repeated calls only ever append — it never
// rewrites or drops previously appended segments.
func (a *Adapter) AppendTranscript(ctx context.Context, recordingID string, seg TranscriptSegment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, err := a.rows.GetOrCreateTranscript(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("get or create transcript: %w", err)
	}
	t.Segments = append(t.Segments, seg)
	t.FullText = joinTranscriptText(t.Segments)
	return a.rows.SaveTranscript(ctx, t)
}

// UpdateTranslation applies upd to the Translation row for
// (recordingID, targetLang), following the phantom-segment-adoption rule
// from spec.md §4.9:
//
//   - if upd.SegmentID matches an existing segment, upd.Text is appended to
//     that segment's text (space-joined) and is_final is updated — each
//     OrderedSender-delivered sentence translation accumulates onto the
//     segment rather than replacing it;
//   - else if the last segment has no segment_id (a "phantom" placeholder
//     created before any translation arrived for it), that segment is
//     adopted: its segment_id is set from upd, upd.Text is appended to its
//     (empty) text, and is_final is set from upd;
//   - else a new segment is appended.
func (a *Adapter) UpdateTranslation(ctx context.Context, recordingID, targetLang string, upd TranslationUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tr, err := a.rows.GetOrCreateTranslation(ctx, recordingID, targetLang)
	if err != nil {
		return fmt.Errorf("get or create translation: %w", err)
	}

	if upd.SegmentID != "" {
		if idx := findSegmentIndex(tr.Segments, upd.SegmentID); idx >= 0 {
			tr.Segments[idx].Text = appendSegmentText(tr.Segments[idx].Text, upd.Text)
			tr.Segments[idx].IsFinal = upd.IsFinal
			tr.FullText = joinTranslationText(tr.Segments)
			return a.rows.SaveTranslation(ctx, tr)
		}
	}

	if n := len(tr.Segments); n > 0 && tr.Segments[n-1].SegmentID == "" {
		last := &tr.Segments[n-1]
		last.SegmentID = upd.SegmentID
		last.Text = appendSegmentText(last.Text, upd.Text)
		last.IsFinal = upd.IsFinal
		tr.FullText = joinTranslationText(tr.Segments)
		return a.rows.SaveTranslation(ctx, tr)
	}

	tr.Segments = append(tr.Segments, TranslationSegment{
		SegmentID: upd.SegmentID,
		Text:      upd.Text,
		IsFinal:   upd.IsFinal,
	})
	tr.FullText = joinTranslationText(tr.Segments)
	return a.rows.SaveTranslation(ctx, tr)
}

// appendSegmentText appends next to existing, space-joined, matching
// original_source's `(target_segment.get("text","") + " " + result.text).strip()`.
func appendSegmentText(existing, next string) string {
	return strings.TrimSpace(existing + " " + next)
}

func findSegmentIndex(segs []TranslationSegment, segmentID string) int {
	for i, s := range segs {
		if s.SegmentID == segmentID {
			return i
		}
	}
	return -1
}

func joinTranscriptText(segs []TranscriptSegment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

func joinTranslationText(segs []TranslationSegment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}
