package recording

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxstream/transcribe-core/media"
	"github.com/voxstream/transcribe-core/persistence"
	"github.com/voxstream/transcribe-core/persistence/memory"
	"github.com/voxstream/transcribe-core/stt"
)

// fakeConverter is a test double for Converter that returns scripted
// results or errors per (fromMIME, toMIME) pair, never shelling to ffmpeg.
type fakeConverter struct {
	results map[string][]byte
	errs    map[string]error
	delay   time.Duration
}

func newFakeConverter() *fakeConverter {
	return &fakeConverter{results: make(map[string][]byte), errs: make(map[string]error)}
}

func convKey(from, to string) string { return from + "->" + to }

func (c *fakeConverter) ConvertAudio(ctx context.Context, data []byte, fromMIME, toMIME string) (*media.AudioConvertResult, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	key := convKey(fromMIME, toMIME)
	if err, ok := c.errs[key]; ok {
		return nil, err
	}
	if out, ok := c.results[key]; ok {
		return &media.AudioConvertResult{Data: out, Format: media.MIMETypeToAudioFormat(toMIME), MIMEType: toMIME}, nil
	}
	return &media.AudioConvertResult{Data: data, Format: media.MIMETypeToAudioFormat(toMIME), MIMEType: toMIME}, nil
}

func newTestAdapter() *persistence.Adapter {
	return persistence.NewAdapter(memory.NewAudioStore(), memory.NewRecordingStore())
}

func testWAV(seconds float64) []byte {
	samples := int(seconds * 16000)
	return stt.WrapPCMAsWAV(make([]byte, samples*2), 16000, 1, 16)
}

func TestSaverSavesFullPipelineSuccessfully(t *testing.T) {
	ctx := context.Background()
	conv := newFakeConverter()
	wav := testWAV(2)
	opus := []byte("fake-opus-bytes")
	conv.results[convKey(media.MIMETypeAudioWebM, media.MIMETypeAudioWAV)] = wav
	conv.results[convKey(media.MIMETypeAudioWAV, media.MIMETypeAudioOGG)] = opus

	store := newTestAdapter()
	saver := NewSaver(store, conv)

	res := saver.Save(ctx, StoppedAudio{Full: []byte("raw-webm-bytes")}, "rec-1")
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Format != media.MIMETypeToAudioFormat(media.MIMETypeAudioOGG) {
		t.Errorf("Format = %q, want %q", res.Format, media.MIMETypeToAudioFormat(media.MIMETypeAudioOGG))
	}
	if res.Size != int64(len(opus)) {
		t.Errorf("Size = %d, want %d", res.Size, len(opus))
	}
	if res.Duration < 1.9 || res.Duration > 2.1 {
		t.Errorf("Duration = %v, want ~2s", res.Duration)
	}
}

func TestSaverRejectsEmptyAudio(t *testing.T) {
	saver := NewSaver(newTestAdapter(), newFakeConverter())
	res := saver.Save(context.Background(), StoppedAudio{}, "rec-1")
	if res.Success {
		t.Fatal("expected failure for empty audio")
	}
	if res.Error == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestSaverPrependsHeaderIfMissing(t *testing.T) {
	ctx := context.Background()
	conv := newFakeConverter()
	var seen []byte
	conv.results[convKey(media.MIMETypeAudioWebM, media.MIMETypeAudioWAV)] = testWAV(1)
	// Capture what ConvertAudio is called with via a wrapping converter,
	// only on the first (source -> wav) stage.
	capture := &capturingConverter{inner: conv, onConvert: func(fromMIME string, data []byte) {
		if fromMIME == media.MIMETypeAudioWebM {
			seen = data
		}
	}}

	saver := NewSaver(newTestAdapter(), capture)
	header := []byte("HDR")
	body := []byte("BODY")
	saver.Save(ctx, StoppedAudio{Header: header, Full: body}, "rec-1")

	want := append(append([]byte(nil), header...), body...)
	if string(seen) != string(want) {
		t.Errorf("converter saw %q, want header-prefixed %q", seen, want)
	}
}

type capturingConverter struct {
	inner     Converter
	onConvert func(fromMIME string, data []byte)
}

func (c *capturingConverter) ConvertAudio(ctx context.Context, data []byte, fromMIME, toMIME string) (*media.AudioConvertResult, error) {
	c.onConvert(fromMIME, data)
	return c.inner.ConvertAudio(ctx, data, fromMIME, toMIME)
}

func TestSaverFallsBackToRawOnWAVConversionFailure(t *testing.T) {
	ctx := context.Background()
	conv := newFakeConverter()
	conv.errs[convKey(media.MIMETypeAudioWebM, media.MIMETypeAudioWAV)] = errors.New("ffmpeg exploded")

	saver := NewSaver(newTestAdapter(), conv)
	raw := []byte("raw-webm-bytes")
	res := saver.Save(ctx, StoppedAudio{Full: raw}, "rec-1")

	if !res.Success {
		t.Fatalf("expected fallback success, got error %q", res.Error)
	}
	if res.Size != int64(len(raw)) {
		t.Errorf("Size = %d, want raw size %d", res.Size, len(raw))
	}
	if res.Format != media.MIMETypeToAudioFormat(media.MIMETypeAudioWebM) {
		t.Errorf("Format = %q, want source format", res.Format)
	}
}

func TestSaverFallsBackToWAVOnFinalCodecFailure(t *testing.T) {
	ctx := context.Background()
	conv := newFakeConverter()
	wav := testWAV(1)
	conv.results[convKey(media.MIMETypeAudioWebM, media.MIMETypeAudioWAV)] = wav
	conv.errs[convKey(media.MIMETypeAudioWAV, media.MIMETypeAudioOGG)] = errors.New("opus encoder missing")

	saver := NewSaver(newTestAdapter(), conv)
	res := saver.Save(ctx, StoppedAudio{Full: []byte("raw")}, "rec-1")

	if !res.Success {
		t.Fatalf("expected fallback success, got error %q", res.Error)
	}
	if res.Size != int64(len(wav)) {
		t.Errorf("Size = %d, want wav size %d", res.Size, len(wav))
	}
	if res.Format != media.MIMETypeToAudioFormat(media.MIMETypeAudioWAV) {
		t.Errorf("Format = %q, want wav format", res.Format)
	}
}

func TestSaverTimesOutSlowConversion(t *testing.T) {
	ctx := context.Background()
	conv := newFakeConverter()
	conv.delay = 50 * time.Millisecond

	saver := NewSaver(newTestAdapter(), conv, WithTranscodeTimeout(5*time.Millisecond))
	res := saver.Save(ctx, StoppedAudio{Full: []byte("raw")}, "rec-1")

	if !res.Success {
		t.Fatalf("expected timeout fallback to still succeed, got error %q", res.Error)
	}
	if res.Format != media.MIMETypeToAudioFormat(media.MIMETypeAudioWebM) {
		t.Errorf("Format = %q, want source format on timeout fallback", res.Format)
	}
}

func TestSaverUpdatesRecordingRow(t *testing.T) {
	ctx := context.Background()
	rows := memory.NewRecordingStore()
	store := persistence.NewAdapter(memory.NewAudioStore(), rows)

	conv := newFakeConverter()
	wav := testWAV(3)
	conv.results[convKey(media.MIMETypeAudioWebM, media.MIMETypeAudioWAV)] = wav

	saver := NewSaver(store, conv)
	res := saver.Save(ctx, StoppedAudio{Full: []byte("raw")}, "rec-42")
	if !res.Success {
		t.Fatalf("Save failed: %v", res.Error)
	}

	rec, ok := rows.Recording("rec-42")
	if !ok {
		t.Fatal("expected a Recording row to have been created")
	}
	if rec.AudioSize != res.Size || rec.AudioFormat != res.Format {
		t.Errorf("Recording row = %+v, want size %d format %q", rec, res.Size, res.Format)
	}
	if rec.DurationSeconds < 2.9 || rec.DurationSeconds > 3.1 {
		t.Errorf("Recording.DurationSeconds = %v, want ~3s", rec.DurationSeconds)
	}
}
