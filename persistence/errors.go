package persistence

import "errors"

// Sentinel errors for persistence operations.
var (
	// ErrRecordingNotFound is returned when an operation references a
	// recording_id with no backing Recording row.
	ErrRecordingNotFound = errors.New("recording not found")

	// ErrAudioNotFound is returned when neither oid nor blob_id resolves to
	// stored audio.
	ErrAudioNotFound = errors.New("audio not found")

	// ErrNoAudioIdentifier is returned when a read/stream/size/delete call
	// supplies neither an oid nor a blob_id.
	ErrNoAudioIdentifier = errors.New("either oid or blob_id must be provided")

	// ErrEmptyAudio is returned when SaveAudio is called with no bytes.
	ErrEmptyAudio = errors.New("audio data is empty")
)
