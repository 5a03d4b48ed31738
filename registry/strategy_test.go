package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyForKnownModel(t *testing.T) {
	assert.Equal(t, StrategyTrueStreaming, StrategyFor("deepgram", "nova-3"))
	assert.Equal(t, StrategySimulatedStreaming, StrategyFor("openai", "whisper-1"))
}

func TestStrategyForIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, StrategyTrueStreaming, StrategyFor("Deepgram", "Nova-3"))
}

func TestStrategyForUnknownModelFallsBackToProviderDefault(t *testing.T) {
	assert.Equal(t, StrategyTrueStreaming, StrategyFor("deepgram", "some-future-model"))
	assert.Equal(t, StrategySimulatedStreaming, StrategyFor("groq", "some-future-model"))
}

func TestStrategyForUnknownProviderDefaultsToSimulated(t *testing.T) {
	assert.Equal(t, StrategySimulatedStreaming, StrategyFor("acme-stt", "acme-model"))
}

func TestIsTrueStreaming(t *testing.T) {
	assert.True(t, IsTrueStreaming("deepgram", "nova-2-medical"))
	assert.False(t, IsTrueStreaming("groq", "whisper-large-v3"))
}
