package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxstream/transcribe-core/stt"
	"github.com/voxstream/transcribe-core/transcript"
	"github.com/voxstream/transcribe-core/vad"
)

// fakeVADModel implements vad.Model with a constant probability, so tests
// can force either the silence-gated or forced-flush path deterministically.
type fakeVADModel struct {
	prob float32
}

func (m *fakeVADModel) Predict(input, state []float32, sampleRate int) (float32, []float32, error) {
	next := append([]float32(nil), state...)
	return m.prob, next, nil
}

// fakeTranscoder ignores its input and returns a fixed WAV payload built
// from silence or tone samples, isolating elastic-window control flow from
// real ffmpeg/container parsing.
type fakeTranscoder struct {
	wav []byte
}

func (t *fakeTranscoder) ToWAV(ctx context.Context, data []byte) ([]byte, error) {
	return t.wav, nil
}

func wavOf(samples []byte) []byte {
	return stt.WrapPCMAsWAV(samples, 16000, 1, 16)
}

func toneSamples(n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(10000)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

type fakeSTT struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (f *fakeSTT) Name() string { return "fake" }
func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, config stt.TranscriptionConfig) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.text, nil
}
func (f *fakeSTT) SupportedFormats() []string { return []string{"wav"} }
func (f *fakeSTT) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestProcessor(t *testing.T, sttSvc *fakeSTT, speechProb float32) (*SimulatedProcessor, chan transcript.Event) {
	t.Helper()
	vadSvc := vad.NewService(&fakeVADModel{prob: speechProb})
	transcoder := &fakeTranscoder{wav: wavOf(toneSamples(16000))}
	events := make(chan transcript.Event, 16)
	cfg := DefaultConfig()
	cfg.BufferDuration = 3.0 // min_chunks = 6, max_chunks = 12
	p := NewSimulatedProcessor(cfg, sttSvc, vadSvc, transcoder, func(ev transcript.Event) {
		events <- ev
	}, nil)
	return p, events
}

func TestSimulatedProcessorAccumulatesBelowMinChunksWithoutSending(t *testing.T) {
	sttSvc := &fakeSTT{text: "hello there, this is a real sentence."}
	p, _ := newTestProcessor(t, sttSvc, 0.9)
	p.Start()

	for i := 0; i < p.minChunks-1; i++ {
		p.ProcessAudio([]byte("chunk"))
	}

	_, _, _ = p.Stop()
	if sttSvc.callCount() != 1 {
		// Stop() always flushes the remainder exactly once.
		t.Fatalf("expected exactly one flush from Stop, got %d calls", sttSvc.callCount())
	}
}

func TestSimulatedProcessorForcesSendAtMaxChunks(t *testing.T) {
	sttSvc := &fakeSTT{text: "hello there, this is a real sentence."}
	p, events := newTestProcessor(t, sttSvc, 0.9)
	p.Start()

	for i := 0; i < p.maxChunks; i++ {
		p.ProcessAudio([]byte("chunk"))
	}

	select {
	case ev := <-events:
		if !ev.IsFinal {
			t.Error("expected a final transcript event")
		}
		if ev.TranscriptID == "" {
			t.Error("expected a non-empty TranscriptID on a final transcript event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transcript event")
	}

	if sttSvc.callCount() < 1 {
		t.Error("expected at least one STT call once max window is reached")
	}
}

func TestSimulatedProcessorSilenceGateFlushesBeforeMaxChunks(t *testing.T) {
	sttSvc := &fakeSTT{text: "hello there, this is a real sentence."}
	p, _ := newTestProcessor(t, sttSvc, 0.0) // always reports silence
	p.Start()

	for i := 0; i < p.minChunks+1; i++ {
		p.ProcessAudio([]byte("chunk"))
	}

	deadline := time.Now().Add(time.Second)
	for sttSvc.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sttSvc.callCount() == 0 {
		t.Error("expected VAD-gated silence to trigger an early flush")
	}
}

func TestSimulatedProcessorFiltersHallucinatedText(t *testing.T) {
	sttSvc := &fakeSTT{text: "okay"}
	p, events := newTestProcessor(t, sttSvc, 0.9)
	p.Start()

	for i := 0; i < p.maxChunks; i++ {
		p.ProcessAudio([]byte("chunk"))
	}

	_, _, _ = p.Stop()
	select {
	case ev := <-events:
		t.Fatalf("expected no transcript event for a hallucination, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSimulatedProcessorStopReturnsRecordedAudio(t *testing.T) {
	sttSvc := &fakeSTT{text: "hello there, this is a real sentence."}
	p, _ := newTestProcessor(t, sttSvc, 0.9)
	p.Start()

	p.ProcessAudio([]byte("header"))
	p.ProcessAudio([]byte("more"))

	header, full, err := p.Stop()
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if string(header) != "header" {
		t.Errorf("header = %q, want %q", header, "header")
	}
	if string(full) != "headermore" {
		t.Errorf("full = %q, want %q", full, "headermore")
	}
}

func TestSimulatedProcessorIgnoresAudioAfterStop(t *testing.T) {
	sttSvc := &fakeSTT{text: "hello there, this is a real sentence."}
	p, _ := newTestProcessor(t, sttSvc, 0.9)
	p.Start()
	p.Stop()

	if err := p.ProcessAudio([]byte("late")); err != nil {
		t.Fatalf("ProcessAudio after Stop returned error: %v", err)
	}
	if p.IsActive() {
		t.Error("expected processor to be inactive after Stop")
	}
}
