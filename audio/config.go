// Package audio implements the two AudioProcessor strategies (spec.md
// §4.2, §4.3): SimulatedProcessor, which buffers audio and polls a batch
// STT provider under VAD gating, and TrueStreamingProcessor, which
// passes audio through to a streaming upstream ASR connection in real
// time.
package audio

// Config configures an AudioProcessor strategy. Fields are shared across
// both strategies; a field only one strategy reads is documented as such
// (spec.md §3 ProcessorConfig).
type Config struct {
	Provider   string
	Model      string
	SourceLang string
	TargetLang string
	APIKey     string
	APIBaseURL string

	// SimulatedProcessor only.
	SilenceThreshold float64 // 0-100 scale
	BufferDuration   float64 // seconds

	// TrueStreamingProcessor only.
	Diarization    bool
	SmartFormat    bool
	InterimResults bool
}

// DefaultConfig returns a Config with the defaults spec.md §3 documents.
func DefaultConfig() Config {
	return Config{
		SourceLang:       "en",
		TargetLang:       "zh",
		SilenceThreshold: 30.0,
		BufferDuration:   6.0,
		SmartFormat:      true,
		InterimResults:   true,
	}
}
