package persistence

import "context"

// AudioChunk is one chunk yielded by StreamAudioChunks, or a terminal
// error.
type AudioChunk struct {
	Data []byte
	Err  error
}

// AudioStore is the audio-bytes storage abstraction spec.md §4.9 requires
// two backends behind: a large-object backend (integer OID,
// `persistence/pglo`) and a blob backend (UUID, `persistence/blobstore`).
// Exactly one of oid/blobID is populated for any given recording.
type AudioStore interface {
	// SaveAudio stores data and returns its identifier: an OID for a
	// large-object backend, a blob ID for a blob backend. The other return
	// value is always empty/nil.
	SaveAudio(ctx context.Context, data []byte) (oid *uint32, blobID string, err error)

	// ReadAudio reads length bytes starting at offset. length < 0 reads to
	// the end.
	ReadAudio(ctx context.Context, oid *uint32, blobID string, offset, length int64) ([]byte, error)

	// StreamAudioChunks streams the audio in chunkSize pieces on the
	// returned channel, closing it when done; a non-nil AudioChunk.Err is
	// always the final value sent before close.
	StreamAudioChunks(ctx context.Context, oid *uint32, blobID string, chunkSize int) (<-chan AudioChunk, error)

	// GetAudioSize returns the total size in bytes.
	GetAudioSize(ctx context.Context, oid *uint32, blobID string) (int64, error)

	// DeleteAudio removes the stored audio, reporting whether anything was
	// deleted.
	DeleteAudio(ctx context.Context, oid *uint32, blobID string) (bool, error)
}

// RecordingStore is the metadata/row-level persistence abstraction backing
// Adapter: Recording, Transcript, and Translation rows. Each method is
// expected to run in its own isolated transaction internally — the
// Adapter never threads a caller-supplied transaction through, because
// translation updates outlive the request that triggered them (spec.md
// §4.9: "MUST NOT inherit the per-message request transaction").
type RecordingStore interface {
	// GetOrCreateTranscript returns the Transcript row for recordingID,
	// creating an empty one if none exists yet.
	GetOrCreateTranscript(ctx context.Context, recordingID string) (*Transcript, error)

	// SaveTranscript persists t, keyed by t.RecordingID.
	SaveTranscript(ctx context.Context, t *Transcript) error

	// GetOrCreateTranslation returns the Translation row for
	// (recordingID, targetLang), creating an empty one if none exists yet.
	// Implementations apply row-level locking equivalent to their backing
	// store's capabilities (spec.md §4.9).
	GetOrCreateTranslation(ctx context.Context, recordingID, targetLang string) (*Translation, error)

	// SaveTranslation persists tr, keyed by (tr.RecordingID, tr.TargetLang).
	SaveTranslation(ctx context.Context, tr *Translation) error

	// UpdateRecordingAudio updates a Recording's audio identifier, size,
	// format, and (if > 0) duration fields after AudioSaver finishes.
	UpdateRecordingAudio(ctx context.Context, recordingID string, oid *uint32, blobID string, size int64, format string, durationSeconds float64) error
}
