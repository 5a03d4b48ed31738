package registry

import "strings"

// Strategy is the audio-processing strategy an (provider, model) pair maps
// to, per spec.md §6.3 and §4.9 (design notes: "Model via a sum type with an
// interface trait, not by dynamic inheritance").
type Strategy string

const (
	// StrategyTrueStreaming forwards audio continuously to an external
	// streaming ASR (spec.md §4.3).
	StrategyTrueStreaming Strategy = "true-streaming"

	// StrategySimulatedStreaming accumulates audio and runs batch ASR after
	// VAD gating (spec.md §4.2).
	StrategySimulatedStreaming Strategy = "simulated-streaming"
)

// modelStrategy maps a lower-cased model name to its streaming strategy.
// Grounded on original_source/backend/app/core/stt_model_registry.py's
// MODEL_STREAMING_TYPE table.
var modelStrategy = map[string]Strategy{
	"nova-2":                    StrategyTrueStreaming,
	"nova-2-general":            StrategyTrueStreaming,
	"nova-2-meeting":            StrategyTrueStreaming,
	"nova-2-phonecall":          StrategyTrueStreaming,
	"nova-2-finance":            StrategyTrueStreaming,
	"nova-2-conversationalai":   StrategyTrueStreaming,
	"nova-2-voicemail":          StrategyTrueStreaming,
	"nova-2-video":              StrategyTrueStreaming,
	"nova-2-medical":            StrategyTrueStreaming,
	"nova-2-drivethru":          StrategyTrueStreaming,
	"nova-2-automotive":         StrategyTrueStreaming,
	"nova-3":                    StrategyTrueStreaming,
	"flux-1-nova":               StrategyTrueStreaming,
	"whisper-large":             StrategySimulatedStreaming,
	"whisper-medium":            StrategySimulatedStreaming,
	"whisper-small":             StrategySimulatedStreaming,
	"whisper-base":              StrategySimulatedStreaming,
	"whisper-tiny":              StrategySimulatedStreaming,
	"whisper-large-v3-turbo":    StrategySimulatedStreaming,
	"whisper-large-v3":          StrategySimulatedStreaming,
	"distil-whisper-large-v3-en": StrategySimulatedStreaming,
	"whisper-1":                 StrategySimulatedStreaming,
	"sensevoice":                 StrategySimulatedStreaming,
	"sensevoice-small":           StrategySimulatedStreaming,
}

// providerDefaultStrategy is the fallback used when a model is absent from
// modelStrategy, keyed by lower-cased provider name.
var providerDefaultStrategy = map[string]Strategy{
	"deepgram":    StrategyTrueStreaming,
	"groq":        StrategySimulatedStreaming,
	"openai":      StrategySimulatedStreaming,
	"siliconflow": StrategySimulatedStreaming,
}

// StrategyFor returns the strategy for (provider, model), falling back to
// the provider's default and finally to simulated-streaming when neither is
// known. The Session never inspects provider names directly to choose a
// strategy (spec.md §6.3); it calls this function exclusively.
func StrategyFor(provider, model string) Strategy {
	if s, ok := modelStrategy[strings.ToLower(model)]; ok {
		return s
	}
	if s, ok := providerDefaultStrategy[strings.ToLower(provider)]; ok {
		return s
	}
	return StrategySimulatedStreaming
}

// IsTrueStreaming reports whether (provider, model) resolves to the
// true-streaming strategy.
func IsTrueStreaming(provider, model string) bool {
	return StrategyFor(provider, model) == StrategyTrueStreaming
}
