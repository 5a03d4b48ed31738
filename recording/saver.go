// Package recording transcodes a stopped audio processor's captured bytes
// into a durable, voice-optimized format and persists them (spec.md
// §4.10). It is the bridge between an audio.Processor's Stop() output and
// persistence.Adapter's audio-bytes store.
package recording

import (
	"context"
	"time"

	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/media"
	"github.com/voxstream/transcribe-core/metrics/prometheus"
	"github.com/voxstream/transcribe-core/persistence"
	"github.com/voxstream/transcribe-core/stt"
)

// defaultTranscodeTimeout bounds each transcode stage (source -> canonical
// WAV, WAV -> voice-optimized codec). A stage that exceeds it falls back
// to the raw, untranscoded payload rather than failing the save outright.
const defaultTranscodeTimeout = 60 * time.Second

// finalBitRate is the target bitrate for the voice-optimized output codec.
const finalBitRate = "48k"

// Result reports what Save actually persisted.
type Result struct {
	Success  bool
	Size     int64
	Format   string
	Duration float64
	Error    string
}

// Converter is the transcoding dependency Saver needs: convert data from
// one MIME type to another. media.AudioConverter satisfies this directly;
// tests supply a fake.
type Converter interface {
	ConvertAudio(ctx context.Context, data []byte, fromMIME, toMIME string) (*media.AudioConvertResult, error)
}

// Saver transcodes captured audio to a compact, voice-optimized format and
// persists it via a persistence.Adapter.
type Saver struct {
	store            *persistence.Adapter
	converter        Converter
	transcodeTimeout time.Duration
	sourceMIME       string
	finalMIME        string
}

// Option configures a Saver.
type Option func(*Saver)

// WithTranscodeTimeout overrides the per-stage transcode timeout.
func WithTranscodeTimeout(d time.Duration) Option {
	return func(s *Saver) { s.transcodeTimeout = d }
}

// WithSourceMIME overrides the MIME type of the raw captured audio passed
// to Save (default audio/webm, matching the browser MediaRecorder output
// the captured chunks originate from).
func WithSourceMIME(mime string) Option {
	return func(s *Saver) { s.sourceMIME = mime }
}

// NewSaver builds a Saver that transcodes through converter and persists
// results via store.
func NewSaver(store *persistence.Adapter, converter Converter, opts ...Option) *Saver {
	s := &Saver{
		store:            store,
		converter:        converter,
		transcodeTimeout: defaultTranscodeTimeout,
		sourceMIME:       media.MIMETypeAudioWebM,
		finalMIME:        media.MIMETypeAudioOGG,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoppedAudio is the (header, full payload) pair an audio.Processor.Stop()
// returns.
type StoppedAudio struct {
	Header []byte
	Full   []byte
}

// Save transcodes audio to a canonical 16kHz mono WAV, recompresses it to
// the voice-optimized output codec, persists the result, and updates the
// Recording row. If either transcode stage fails or times out, it falls
// back to persisting the raw payload under its original format rather than
// losing the recording.
func (s *Saver) Save(ctx context.Context, audio StoppedAudio, recordingID string) Result {
	full := audio.Full
	if len(full) == 0 {
		prometheus.RecordRecordingSave(prometheus.StatusError)
		return Result{Success: false, Error: "no audio data"}
	}
	if len(audio.Header) > 0 && !hasPrefix(full, audio.Header) {
		full = append(append([]byte(nil), audio.Header...), full...)
	}

	wav, final, format := s.convert(ctx, full)
	if len(final) == 0 {
		prometheus.RecordRecordingSave(prometheus.StatusError)
		return Result{Success: false, Error: "audio conversion failed"}
	}

	oid, blobID, err := s.store.SaveAudio(ctx, final)
	if err != nil {
		logger.Error("recording: save audio failed", "recording_id", recordingID, "error", err)
		prometheus.RecordRecordingSave(prometheus.StatusError)
		return Result{Success: false, Error: err.Error()}
	}

	duration := stt.WAVDuration(wav)

	if err := s.store.UpdateRecordingAudio(ctx, recordingID, oid, blobID, int64(len(final)), format, duration); err != nil {
		logger.Error("recording: update recording row failed", "recording_id", recordingID, "error", err)
		prometheus.RecordRecordingSave(prometheus.StatusError)
		return Result{Success: false, Error: err.Error()}
	}

	logger.Info("recording: saved audio", "recording_id", recordingID, "size", len(final), "format", format)
	prometheus.RecordRecordingSave(prometheus.StatusSuccess)
	return Result{Success: true, Size: int64(len(final)), Format: format, Duration: duration}
}

// convert runs the two-stage transcode (source -> WAV -> voice-optimized
// codec), falling back to the raw payload under its source format if
// either stage fails or times out. wav is the intermediate canonical WAV,
// used afterward for duration probing; it may be nil if conversion failed.
func (s *Saver) convert(ctx context.Context, raw []byte) (wav, final []byte, format string) {
	wavResult, err := s.convertWithTimeout(ctx, raw, s.sourceMIME, media.MIMETypeAudioWAV)
	if err != nil {
		logger.Warn("recording: transcode to wav failed, saving raw", "error", err)
		return nil, raw, media.MIMETypeToAudioFormat(s.sourceMIME)
	}

	finalResult, err := s.convertWithTimeout(ctx, wavResult.Data, media.MIMETypeAudioWAV, s.finalMIME)
	if err != nil {
		logger.Warn("recording: transcode to voice codec failed, saving wav", "error", err)
		return wavResult.Data, wavResult.Data, media.MIMETypeToAudioFormat(media.MIMETypeAudioWAV)
	}

	return wavResult.Data, finalResult.Data, media.MIMETypeToAudioFormat(s.finalMIME)
}

func (s *Saver) convertWithTimeout(ctx context.Context, data []byte, fromMIME, toMIME string) (*media.AudioConvertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.transcodeTimeout)
	defer cancel()
	return s.converter.ConvertAudio(ctx, data, fromMIME, toMIME)
}

func hasPrefix(full, header []byte) bool {
	if len(header) > len(full) {
		return false
	}
	for i := range header {
		if full[i] != header[i] {
			return false
		}
	}
	return true
}
