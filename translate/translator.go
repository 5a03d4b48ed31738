package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxstream/transcribe-core/metrics/prometheus"
	"github.com/voxstream/transcribe-core/providers"
	"github.com/voxstream/transcribe-core/types"
)

// Translator produces a target-language translation of one sentence, given
// the preceding sentence's text as context. Implementations must respect
// ctx's deadline; the Dispatcher applies its own 15s-default timeout on top
// of whatever ctx it is given.
type Translator interface {
	Translate(ctx context.Context, sourceLang, targetLang, lastContext, text string) (string, error)
}

// ProviderTranslator adapts a providers.Provider chat completion client
// into a Translator, grounded on the teacher's providers.Provider interface
// (runtime/providers/provider.go) — the same abstraction the teacher uses
// for general chat is reused here for the narrower translation task rather
// than introducing a second LLM client abstraction.
type ProviderTranslator struct {
	Provider     providers.Provider
	ProviderName string
	Model        string
}

// NewProviderTranslator returns a Translator backed by an llm provider.
// providerName and model are carried only as Prometheus labels (spec.md's
// ambient observability stack); they play no part in the translation call
// itself.
func NewProviderTranslator(p providers.Provider, providerName, model string) *ProviderTranslator {
	return &ProviderTranslator{Provider: p, ProviderName: providerName, Model: model}
}

// Translate issues a single chat completion asking the provider to
// translate text from sourceLang to targetLang, optionally primed with the
// previous sentence as context to keep terminology consistent across a
// segment.
func (t *ProviderTranslator) Translate(ctx context.Context, sourceLang, targetLang, lastContext, text string) (string, error) {
	system := fmt.Sprintf(
		"You are a real-time speech translation engine. Translate the user's message from %s to %s. "+
			"Reply with only the translation, no commentary.", sourceLang, targetLang,
	)
	if lastContext != "" {
		system += fmt.Sprintf(" Prior sentence, for terminology continuity only (do not translate it again): %q.", lastContext)
	}

	start := time.Now()
	resp, err := t.Provider.Chat(ctx, providers.ChatRequest{
		System: system,
		Messages: []types.Message{
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   512,
	})
	elapsed := time.Since(start).Seconds()

	status := prometheus.StatusSuccess
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = prometheus.StatusThrottled
	case err != nil:
		status = prometheus.StatusError
	}
	prometheus.RecordTranslationRequest(t.ProviderName, t.Model, status, elapsed)

	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
