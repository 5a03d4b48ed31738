package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/voxstream/transcribe-core/audio"
	"github.com/voxstream/transcribe-core/media"
	"github.com/voxstream/transcribe-core/persistence"
	"github.com/voxstream/transcribe-core/persistence/memory"
	"github.com/voxstream/transcribe-core/recording"
	"github.com/voxstream/transcribe-core/registry"
	"github.com/voxstream/transcribe-core/transcript"
	"github.com/voxstream/transcribe-core/wsproto"
)

// fakeProcessor is a test double for audio.Processor that lets a test feed
// transcript events directly and inspect Start/Stop calls, never touching
// ffmpeg or a real streaming ASR connection.
type fakeProcessor struct {
	mu           sync.Mutex
	started      bool
	stopped      bool
	header, full []byte
	stopErr      error
	onTranscript audio.OnTranscript
	onError      audio.OnError
	paused       bool
	onAutoStop   func()
}

func (p *fakeProcessor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *fakeProcessor) ProcessAudio(chunk []byte) error {
	p.mu.Lock()
	p.full = append(p.full, chunk...)
	p.mu.Unlock()
	return nil
}

func (p *fakeProcessor) Stop() ([]byte, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return p.header, p.full, p.stopErr
}

func (p *fakeProcessor) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.stopped
}

func (p *fakeProcessor) Pause(onAutoStop func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.onAutoStop = onAutoStop
}

func (p *fakeProcessor) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *fakeProcessor) emit(ev transcript.Event) { p.onTranscript(ev) }

// fakeTranslator returns "<TRANSLATED:text>" for every call, tracking the
// calls it received.
type fakeTranslator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTranslator) Translate(ctx context.Context, sourceLang, targetLang, lastContext, text string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	return "[" + text + "]", nil
}

var errNotImplemented = &testErr{"not implemented"}

type testErr struct{ s string }

func (e *testErr) Error() string { return e.s }

// fakeSaverConverter always fails, exercising recording.Saver's
// raw-payload fallback so tests don't depend on ffmpeg.
type fakeSaverConverter struct{}

func (fakeSaverConverter) ConvertAudio(ctx context.Context, data []byte, fromMIME, toMIME string) (*media.AudioConvertResult, error) {
	return nil, errNotImplemented
}

func newTestDeps(t *testing.T, translator *fakeTranslator, newProcessor func(bool, audio.Config, audio.OnTranscript, audio.OnError) audio.Processor) (Deps, *memory.RecordingStore) {
	t.Helper()
	rows := memory.NewRecordingStore()
	store := persistence.NewAdapter(memory.NewAudioStore(), rows)
	saver := recording.NewSaver(store, fakeSaverConverter{})
	return Deps{
		Translator:   translator,
		Store:        store,
		Saver:        saver,
		NewProcessor: newProcessor,
	}, rows
}

func collectEvents() (Sender, func() []map[string]any) {
	var mu sync.Mutex
	var events []map[string]any
	sender := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		mu.Lock()
		events = append(events, m)
		mu.Unlock()
		return nil
	}
	return sender, func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]any(nil), events...)
	}
}

func eventsOfType(events []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, e := range events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func trueStreamingConfig() registry.EffectiveConfig {
	return registry.EffectiveConfig{
		STT: registry.ProviderConfig{Provider: "deepgram", Model: "nova-3"},
		Recording: registry.RecordingConfig{
			SegmentSoftThreshold: 3,
			SegmentHardThreshold: 6,
			RPMLimit:             100,
		},
	}
}

func TestSessionStartSendsStatusAndStartsProcessor(t *testing.T) {
	var proc *fakeProcessor
	newProc := func(useTrueStreaming bool, cfg audio.Config, onT audio.OnTranscript, onE audio.OnError) audio.Processor {
		proc = &fakeProcessor{onTranscript: onT, onError: onE}
		return proc
	}
	deps, _ := newTestDeps(t, &fakeTranslator{}, newProc)
	sender, getEvents := collectEvents()
	sess := New(sender, trueStreamingConfig(), deps)

	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionStart, RecordingID: "rec-1"})

	if proc == nil || !proc.started {
		t.Fatal("expected processor to be constructed and started")
	}
	statuses := eventsOfType(getEvents(), string(wsproto.EventStatus))
	if len(statuses) != 1 {
		t.Fatalf("expected one status event, got %d", len(statuses))
	}
}

func TestSessionTrueStreamingSplitsSentencesAndOrdersTranslations(t *testing.T) {
	var proc *fakeProcessor
	newProc := func(useTrueStreaming bool, cfg audio.Config, onT audio.OnTranscript, onE audio.OnError) audio.Processor {
		proc = &fakeProcessor{onTranscript: onT, onError: onE}
		return proc
	}
	translator := &fakeTranslator{}
	deps, rows := newTestDeps(t, translator, newProc)
	sender, getEvents := collectEvents()
	sess := New(sender, trueStreamingConfig(), deps)

	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionStart, RecordingID: "rec-1", TargetLang: "zh"})

	proc.emit(transcript.Event{Text: "Hello world.", IsFinal: true, TranscriptID: "t1"})
	proc.emit(transcript.Event{Text: "Second sentence.", IsFinal: true, TranscriptID: "t2"})

	sess.stop(context.Background())

	v2 := eventsOfType(getEvents(), string(wsproto.EventTranslationV2))
	if len(v2) != 2 {
		t.Fatalf("expected 2 translation_v2 events, got %d: %+v", len(v2), v2)
	}
	if v2[0]["sentence_index"].(float64) != 0 || v2[1]["sentence_index"].(float64) != 1 {
		t.Errorf("expected sentence indices 0 then 1 in order, got %v then %v", v2[0]["sentence_index"], v2[1]["sentence_index"])
	}

	if _, ok := rows.Recording("rec-1"); !ok {
		t.Error("expected a Recording row to exist for rec-1")
	}
}

func TestSessionSimulatedFlowTranslatesWholeFragment(t *testing.T) {
	var proc *fakeProcessor
	newProc := func(useTrueStreaming bool, cfg audio.Config, onT audio.OnTranscript, onE audio.OnError) audio.Processor {
		proc = &fakeProcessor{onTranscript: onT, onError: onE}
		return proc
	}
	translator := &fakeTranslator{}
	deps, _ := newTestDeps(t, translator, newProc)
	sender, getEvents := collectEvents()

	cfg := registry.EffectiveConfig{
		STT:       registry.ProviderConfig{Provider: "groq", Model: "whisper-large-v3-turbo"},
		Recording: registry.RecordingConfig{RPMLimit: 100},
	}
	sess := New(sender, cfg, deps)
	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionStart, RecordingID: "rec-2"})

	proc.emit(transcript.Event{Text: "batched result", IsFinal: true, TranscriptID: "t1"})

	sess.stop(context.Background())

	legacy := eventsOfType(getEvents(), string(wsproto.EventTranslation))
	if len(legacy) != 1 {
		t.Fatalf("expected 1 legacy translation event, got %d", len(legacy))
	}
	if legacy[0]["text"] != "[batched result]" {
		t.Errorf("text = %v, want translated text", legacy[0]["text"])
	}
}

func TestSessionStopSavesAudioAndEmitsAudioSaved(t *testing.T) {
	var proc *fakeProcessor
	newProc := func(useTrueStreaming bool, cfg audio.Config, onT audio.OnTranscript, onE audio.OnError) audio.Processor {
		proc = &fakeProcessor{onTranscript: onT, onError: onE, header: []byte("HDR"), full: []byte("HDRbody")}
		return proc
	}
	deps, rows := newTestDeps(t, &fakeTranslator{}, newProc)
	sender, getEvents := collectEvents()
	sess := New(sender, trueStreamingConfig(), deps)

	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionStart, RecordingID: "rec-3"})
	sess.stop(context.Background())

	saved := eventsOfType(getEvents(), string(wsproto.EventAudioSaved))
	if len(saved) != 1 {
		t.Fatalf("expected one audio_saved event, got %d", len(saved))
	}
	if _, ok := rows.Recording("rec-3"); !ok {
		t.Error("expected a Recording row for rec-3")
	}
	if !proc.stopped {
		t.Error("expected processor.Stop to have been called")
	}
}

func TestSessionPingRepliesPong(t *testing.T) {
	deps, _ := newTestDeps(t, &fakeTranslator{}, nil)
	sender, getEvents := collectEvents()
	sess := New(sender, trueStreamingConfig(), deps)

	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionPing})

	if len(eventsOfType(getEvents(), string(wsproto.EventPong))) != 1 {
		t.Fatal("expected one pong event")
	}
}

func TestSessionPauseResumeForwardedWhenSupported(t *testing.T) {
	var proc *fakeProcessor
	newProc := func(useTrueStreaming bool, cfg audio.Config, onT audio.OnTranscript, onE audio.OnError) audio.Processor {
		proc = &fakeProcessor{onTranscript: onT, onError: onE}
		return proc
	}
	deps, _ := newTestDeps(t, &fakeTranslator{}, newProc)
	sender, _ := collectEvents()
	sess := New(sender, trueStreamingConfig(), deps)
	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionStart, RecordingID: "rec-4"})

	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionPause})
	if !proc.paused {
		t.Fatal("expected processor to be paused")
	}
	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionResume})
	if proc.paused {
		t.Fatal("expected processor to be resumed")
	}
}

func TestSessionCloseSavesUnstoppedRecording(t *testing.T) {
	var proc *fakeProcessor
	newProc := func(useTrueStreaming bool, cfg audio.Config, onT audio.OnTranscript, onE audio.OnError) audio.Processor {
		proc = &fakeProcessor{onTranscript: onT, onError: onE, full: []byte("abc")}
		return proc
	}
	deps, rows := newTestDeps(t, &fakeTranslator{}, newProc)
	sender, _ := collectEvents()
	sess := New(sender, trueStreamingConfig(), deps)
	sess.HandleControl(context.Background(), wsproto.ControlMessage{Action: wsproto.ActionStart, RecordingID: "rec-5"})

	sess.Close(context.Background())

	if !proc.stopped {
		t.Fatal("expected Close to stop the in-progress recording")
	}
	if _, ok := rows.Recording("rec-5"); !ok {
		t.Error("expected audio to have been saved on Close")
	}
}
