// Package memory provides an in-process AudioStore and RecordingStore,
// used in tests and as a local-development backend where no database is
// configured.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/voxstream/transcribe-core/persistence"
)

// AudioStore is an in-memory persistence.AudioStore keyed by blob ID; it
// never allocates OIDs, so every save returns a UUID blobID.
type AudioStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewAudioStore builds an empty in-memory AudioStore.
func NewAudioStore() *AudioStore {
	return &AudioStore{data: make(map[string][]byte)}
}

func (s *AudioStore) SaveAudio(ctx context.Context, data []byte) (*uint32, string, error) {
	id := uuid.NewString()
	buf := append([]byte(nil), data...)

	s.mu.Lock()
	s.data[id] = buf
	s.mu.Unlock()
	return nil, id, nil
}

func (s *AudioStore) ReadAudio(ctx context.Context, oid *uint32, blobID string, offset, length int64) ([]byte, error) {
	s.mu.RLock()
	buf, ok := s.data[blobID]
	s.mu.RUnlock()
	if !ok {
		return nil, persistence.ErrAudioNotFound
	}
	if offset < 0 || offset > int64(len(buf)) {
		offset = int64(len(buf))
	}
	end := int64(len(buf))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return append([]byte(nil), buf[offset:end]...), nil
}

func (s *AudioStore) StreamAudioChunks(ctx context.Context, oid *uint32, blobID string, chunkSize int) (<-chan persistence.AudioChunk, error) {
	s.mu.RLock()
	buf, ok := s.data[blobID]
	s.mu.RUnlock()
	if !ok {
		return nil, persistence.ErrAudioNotFound
	}
	if chunkSize <= 0 {
		chunkSize = len(buf)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}

	out := make(chan persistence.AudioChunk)
	go func() {
		defer close(out)
		for off := 0; off < len(buf); off += chunkSize {
			end := off + chunkSize
			if end > len(buf) {
				end = len(buf)
			}
			select {
			case out <- persistence.AudioChunk{Data: append([]byte(nil), buf[off:end]...)}:
			case <-ctx.Done():
				out <- persistence.AudioChunk{Err: ctx.Err()}
				return
			}
		}
	}()
	return out, nil
}

func (s *AudioStore) GetAudioSize(ctx context.Context, oid *uint32, blobID string) (int64, error) {
	s.mu.RLock()
	buf, ok := s.data[blobID]
	s.mu.RUnlock()
	if !ok {
		return 0, persistence.ErrAudioNotFound
	}
	return int64(len(buf)), nil
}

func (s *AudioStore) DeleteAudio(ctx context.Context, oid *uint32, blobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[blobID]; !ok {
		return false, nil
	}
	delete(s.data, blobID)
	return true, nil
}

// RecordingStore is an in-memory persistence.RecordingStore. It applies no
// real transaction isolation — mutex-guarded read-modify-write is
// sufficient for a single process.
type RecordingStore struct {
	mu           sync.Mutex
	recordings   map[string]*persistence.Recording
	transcripts  map[string]*persistence.Transcript
	translations map[string]*persistence.Translation // key: recordingID + "\x00" + targetLang
}

// NewRecordingStore builds an empty in-memory RecordingStore.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{
		recordings:   make(map[string]*persistence.Recording),
		transcripts:  make(map[string]*persistence.Transcript),
		translations: make(map[string]*persistence.Translation),
	}
}

func translationKey(recordingID, targetLang string) string {
	return recordingID + "\x00" + targetLang
}

func (s *RecordingStore) GetOrCreateTranscript(ctx context.Context, recordingID string) (*persistence.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.transcripts[recordingID]; ok {
		return cloneTranscript(t), nil
	}
	t := &persistence.Transcript{ID: uuid.NewString(), RecordingID: recordingID}
	s.transcripts[recordingID] = t
	return cloneTranscript(t), nil
}

func (s *RecordingStore) SaveTranscript(ctx context.Context, t *persistence.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[t.RecordingID] = cloneTranscript(t)
	return nil
}

func (s *RecordingStore) GetOrCreateTranslation(ctx context.Context, recordingID, targetLang string) (*persistence.Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := translationKey(recordingID, targetLang)
	if tr, ok := s.translations[key]; ok {
		return cloneTranslation(tr), nil
	}
	tr := &persistence.Translation{ID: uuid.NewString(), RecordingID: recordingID, TargetLang: targetLang}
	s.translations[key] = tr
	return cloneTranslation(tr), nil
}

func (s *RecordingStore) SaveTranslation(ctx context.Context, tr *persistence.Translation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.translations[translationKey(tr.RecordingID, tr.TargetLang)] = cloneTranslation(tr)
	return nil
}

func (s *RecordingStore) UpdateRecordingAudio(ctx context.Context, recordingID string, oid *uint32, blobID string, size int64, format string, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[recordingID]
	if !ok {
		rec = &persistence.Recording{ID: recordingID}
		s.recordings[recordingID] = rec
	}
	rec.AudioOID = oid
	rec.AudioBlobID = blobID
	rec.AudioSize = size
	rec.AudioFormat = format
	if durationSeconds > 0 {
		rec.DurationSeconds = durationSeconds
	}
	return nil
}

// Recording returns a copy of the stored Recording row for id, for use in
// tests that need to assert on UpdateRecordingAudio's effect (the
// RecordingStore interface itself is write-only for audio fields, since
// no SPEC_FULL.md component reads a Recording row back through it).
func (s *RecordingStore) Recording(id string) (*persistence.Recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[id]
	if !ok {
		return nil, false
	}
	out := *rec
	return &out, true
}

func cloneTranscript(t *persistence.Transcript) *persistence.Transcript {
	out := *t
	out.Segments = append([]persistence.TranscriptSegment(nil), t.Segments...)
	return &out
}

func cloneTranslation(t *persistence.Translation) *persistence.Translation {
	out := *t
	out.Segments = append([]persistence.TranslationSegment(nil), t.Segments...)
	return &out
}
