// Package providers implements multi-LLM provider support with unified interfaces.
//
// This package provides a common abstraction for chat-based LLM providers including
// OpenAI, Anthropic Claude, and Google Gemini. It handles:
//   - Chat completion requests with streaming support
//   - Cost tracking and token usage calculation
//   - Rate limiting and error handling
//
// All providers implement the Provider interface for basic chat.
package providers

import (
	"context"
	"time"

	"github.com/voxstream/transcribe-core/credentials"
	"github.com/voxstream/transcribe-core/types"
)

// Credential is the authentication mechanism a provider client applies to its
// outgoing HTTP requests, resolved by credentials.Resolve per spec.md §6.2's
// explicit-key / credential_env / provider-default-env chain.
type Credential = credentials.Credential

// ChatRequest represents a request to a chat provider
type ChatRequest struct {
	System      string                 `json:"system"`
	Messages    []types.Message        `json:"messages"`
	Temperature float32                `json:"temperature"`
	TopP        float32                `json:"top_p"`
	MaxTokens   int                    `json:"max_tokens"`
	Seed        *int                   `json:"seed,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"` // Optional metadata for provider-specific context
}

// ChatResponse represents a response from a chat provider
type ChatResponse struct {
	Content    string          `json:"content"`
	CostInfo   *types.CostInfo `json:"cost_info,omitempty"` // Cost breakdown for this response (includes token counts)
	Latency    time.Duration   `json:"latency"`
	Raw        []byte          `json:"raw,omitempty"`
	RawRequest interface{}     `json:"raw_request,omitempty"` // Raw API request (for debugging)
}

// Pricing defines cost per 1K tokens for input and output
type Pricing struct {
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// ProviderDefaults holds default parameters for providers
type ProviderDefaults struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
	Pricing     Pricing
}

// Provider interface defines the contract for chat providers
type Provider interface {
	ID() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// Streaming support
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
	SupportsStreaming() bool

	ShouldIncludeRawOutput() bool
	Close() error // Close cleans up provider resources (e.g., HTTP connections)

	// CalculateCost calculates cost breakdown for given token counts
	CalculateCost(inputTokens, outputTokens, cachedTokens int) types.CostInfo
}
