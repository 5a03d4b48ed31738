package audio

import (
	"context"

	"github.com/voxstream/transcribe-core/media"
)

// Transcoder converts a browser-recorded audio container to the mono
// 16kHz WAV format stt.Service and vad.Service expect. Implementations may
// shell out to ffmpeg (the production path) or be a test double.
type Transcoder interface {
	ToWAV(ctx context.Context, data []byte) ([]byte, error)
}

// ffmpegTranscoder adapts media.AudioConverter, forcing 16kHz mono WAV
// output regardless of source container (spec.md §4.2, §4.11: both VAD and
// the STT providers in this package expect mono 16kHz PCM).
type ffmpegTranscoder struct {
	converter *media.AudioConverter
	fromMIME  string
}

// NewFFmpegTranscoder returns a Transcoder that shells out to ffmpeg via
// media.AudioConverter, converting from fromMIME (typically
// "audio/webm") to mono 16kHz WAV.
func NewFFmpegTranscoder(fromMIME string) Transcoder {
	cfg := media.DefaultAudioConverterConfig()
	cfg.SampleRate = 16000
	cfg.Channels = 1
	return &ffmpegTranscoder{
		converter: media.NewAudioConverter(cfg),
		fromMIME:  fromMIME,
	}
}

func (t *ffmpegTranscoder) ToWAV(ctx context.Context, data []byte) ([]byte, error) {
	result, err := t.converter.ConvertAudio(ctx, data, t.fromMIME, media.MIMETypeAudioWAV)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
