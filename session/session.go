// Package session wires together a single client's transcription
// connection: the audio.Processor strategy, sentence/segment splitting,
// translation dispatch, ordered delivery, and persistence (spec.md §4.8).
// A Session owns no state beyond one connection's lifetime — nothing here
// is shared across sessions (spec.md §5).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/voxstream/transcribe-core/audio"
	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/orderedsender"
	"github.com/voxstream/transcribe-core/persistence"
	"github.com/voxstream/transcribe-core/recording"
	"github.com/voxstream/transcribe-core/registry"
	"github.com/voxstream/transcribe-core/segment"
	"github.com/voxstream/transcribe-core/sentence"
	"github.com/voxstream/transcribe-core/stt"
	"github.com/voxstream/transcribe-core/translate"
	"github.com/voxstream/transcribe-core/vad"
	"github.com/voxstream/transcribe-core/wsproto"
)

// backgroundDrainTimeout bounds how long Stop waits for in-flight
// translations to finish before giving up on ordered delivery (spec.md
// §5: "Background translation drain on stop: 60s").
const backgroundDrainTimeout = 60 * time.Second

const (
	defaultSourceLang = "en"
	defaultTargetLang = "zh"
)

// Sender delivers one JSON-serializable server event to the connected
// client. Implementations typically wrap a websocket connection; tests
// supply a fake that records events.
type Sender func(event any) error

// Deps are the process-wide collaborators a Session needs but does not
// own the lifecycle of — STT/VAD services and the persistence layer are
// shared across every session on the process (spec.md §4.11, §4.9).
type Deps struct {
	VADService *vad.Service
	Transcoder audio.Transcoder
	Translator translate.Translator
	Store      *persistence.Adapter
	Saver      *recording.Saver

	// NewSTTService builds the stt.Service a SimulatedProcessor strategy
	// uses, given the session's resolved STT provider config. Every
	// OpenAI-API-compatible provider (openai, groq, siliconflow — per
	// original_source's STTService, all three go through the same
	// AsyncOpenAI client with a provider-specific base URL) is served by
	// one client construction per session rather than a single shared
	// instance, so each session's own base URL/API key is honored.
	// Production callers leave this nil; tests needing a fake STT
	// implementation go through NewProcessor instead, which bypasses this
	// entirely.
	NewSTTService func(cfg registry.ProviderConfig) stt.Service

	// NewProcessor overrides processor construction, mainly for tests that
	// need a fake audio.Processor instead of one that shells to ffmpeg or
	// dials a real streaming ASR endpoint. Production callers leave this
	// nil and get the real SimulatedProcessor/TrueStreamingProcessor pair.
	NewProcessor func(useTrueStreaming bool, cfg audio.Config, onTranscript audio.OnTranscript, onError audio.OnError) audio.Processor
}

// pausable is implemented only by audio.Processor strategies that support
// pausing (currently TrueStreamingProcessor). Session forwards pause/resume
// control messages "if supported" (spec.md §4.8) via this optional
// interface rather than widening the Processor interface itself.
type pausable interface {
	Pause(onAutoStop func())
	Resume()
}

// Session is the per-connection coordinator. All exported methods are
// safe for concurrent use: control messages and audio chunks normally
// arrive from one reader goroutine, but the processor strategies invoke
// onTranscript/onError from their own internal goroutines.
type Session struct {
	sender Sender
	cfg    registry.EffectiveConfig
	deps   Deps

	mu               sync.Mutex
	recording        bool
	audioSaved       bool
	recordingID      string
	sourceLang       string
	targetLang       string
	useTrueStreaming bool
	processor        audio.Processor
	dispatcher       *translate.Dispatcher

	// transcriptMu serializes access to sentenceBuilder, segmentSupervisor,
	// and senders. These types are themselves not concurrency-safe by
	// design (segment.Supervisor's doc comment: "the Session serializes
	// calls through its single transcript-handling goroutine") — the
	// processor's onTranscript callback and Stop's flush both reach them,
	// so one mutex covers both paths.
	transcriptMu      sync.Mutex
	sentenceBuilder   *sentence.Builder
	segmentSupervisor *segment.Supervisor
	senders           map[string]*orderedsender.Sender
}

// New returns a Session that delivers events via sender and acts under
// the resolved cfg and shared deps. No processor is started until a
// "start" control message arrives.
func New(sender Sender, cfg registry.EffectiveConfig, deps Deps) *Session {
	return &Session{
		sender: sender,
		cfg:    cfg,
		deps:   deps,
	}
}

// HandleControl dispatches one client control frame (spec.md §6.1).
func (s *Session) HandleControl(ctx context.Context, msg wsproto.ControlMessage) {
	switch msg.Action {
	case wsproto.ActionStart:
		s.start(ctx, msg)
	case wsproto.ActionStop:
		s.stop(ctx)
	case wsproto.ActionPing:
		s.emit(wsproto.NewPongEvent())
	case wsproto.ActionPause:
		s.pause()
	case wsproto.ActionResume:
		s.resume()
	default:
		s.emit(wsproto.NewErrorEvent("unknown action: " + string(msg.Action)))
	}
}

// HandleAudio forwards one raw binary frame to the active processor, if
// recording is in progress. Frames received before "start" or after
// "stop" are silently dropped (spec.md §6.1).
func (s *Session) HandleAudio(chunk []byte) error {
	s.mu.Lock()
	recording := s.recording
	proc := s.processor
	s.mu.Unlock()

	if !recording || proc == nil {
		return nil
	}
	return proc.ProcessAudio(chunk)
}

// Close flushes and saves any in-progress recording. Called when the
// underlying connection is disconnecting, so the audio captured so far
// is never lost even without an explicit "stop" (spec.md: original
// ws_v2.py's finally block).
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	recording := s.recording
	s.mu.Unlock()
	if recording {
		s.stop(ctx)
	}
}

func (s *Session) emit(event any) {
	if err := s.sender(event); err != nil {
		logger.Warn("session: failed to deliver event to client", "error", err)
	}
}

func (s *Session) pause() {
	s.mu.Lock()
	proc := s.processor
	s.mu.Unlock()

	p, ok := proc.(pausable)
	if !ok {
		return
	}
	p.Pause(func() {
		logger.Info("session: pause watchdog auto-stop fired")
		go s.stop(context.Background())
	})
}

func (s *Session) resume() {
	s.mu.Lock()
	proc := s.processor
	s.mu.Unlock()

	if p, ok := proc.(pausable); ok {
		p.Resume()
	}
}
