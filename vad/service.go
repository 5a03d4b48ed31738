// Package vad provides process-wide voice-activity detection: a streaming
// speech-probability interface for gating simulated-processor flush
// decisions, and a batch speech-extraction utility for trimming silence out
// of recorded audio before it is transcoded (spec.md §4.11).
package vad

import (
	"os"
	"sync"
)

// DefaultSampleRate is the sample rate the Session's audio pipeline runs
// at; streaming probability and extraction both default to it.
const DefaultSampleRate = 16000

// Service is a process-wide singleton wrapping a Model. Streaming calls
// maintain a persistent state tensor and context buffer per Service
// instance so that successive 32ms windows from the same session don't see
// a discontinuity at window boundaries (spec.md §4.11). Batch extraction
// always starts from a fresh local state, independent of streaming state.
type Service struct {
	model Model

	mu      sync.Mutex
	state   []float32
	context []float32
}

var (
	singleton     *Service
	singletonOnce sync.Once
	singletonErr  error
	modelPathEnv  = "VAD_MODEL_PATH"
)

// Get returns the process-wide VAD singleton, loading the ONNX model named
// by the VAD_MODEL_PATH environment variable on first use.
func Get() (*Service, error) {
	singletonOnce.Do(func() {
		path := envOrDefault(modelPathEnv, "models/silero_vad.onnx")
		model, err := NewONNXModel(path)
		if err != nil {
			singletonErr = err
			return
		}
		singleton = NewService(model)
	})
	return singleton, singletonErr
}

// NewService constructs a Service around an explicit Model, bypassing the
// process-wide singleton. Used in tests and anywhere a caller wants an
// isolated instance.
func NewService(model Model) *Service {
	return &Service{
		model:   model,
		state:   zeroState(),
		context: nil,
	}
}

// ResetStates clears the streaming state tensor and context buffer,
// returning the Service to its just-constructed state. Called at the start
// of every simulated-processor session to clear context from prior
// sessions (spec.md §5 shared-resource policy).
func (s *Service) ResetStates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = zeroState()
	s.context = nil
}

// GetSpeechProbability returns the speech probability of the last window of
// wavBytes, maintaining streaming state and context across calls on this
// Service instance (spec.md §4.11).
func (s *Service) GetSpeechProbability(wavBytes []byte, sampleRate int) (float64, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	samples, _, err := decodeWAV(wavBytes)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, nil
	}

	window := lastWindow(samples, windowSamplesFor(sampleRate))

	s.mu.Lock()
	defer s.mu.Unlock()

	ctxSize := contextSizeFor(sampleRate)
	if len(s.context) != ctxSize {
		s.context = make([]float32, ctxSize)
	}

	input := make([]float32, 0, ctxSize+len(window))
	input = append(input, s.context...)
	input = append(input, window...)

	prob, nextState, err := s.model.Predict(input, s.state, sampleRate)
	if err != nil {
		return 0, err
	}
	s.state = nextState
	s.context = append([]float32(nil), window[len(window)-ctxSize:]...)

	return float64(prob), nil
}

// speechSpan is a contiguous range of speech, in sample indices.
type speechSpan struct {
	start, end int
}

// getSpeechTimestamps runs a fresh local Silero pass over samples and
// returns contiguous speech spans using min-speech/min-silence hysteresis,
// mirroring the original service's window-by-window accumulation.
func (s *Service) getSpeechTimestamps(samples []float32, sampleRate int, threshold float64, minSpeechMs, minSilenceMs int) ([]speechSpan, error) {
	windowSize := windowSamplesFor(sampleRate)
	ctxSize := contextSizeFor(sampleRate)
	windowMs := float64(windowSize) * 1000 / float64(sampleRate)

	minSpeechWindows := max(1, int(float64(minSpeechMs)/windowMs))
	minSilenceWindows := max(1, int(float64(minSilenceMs)/windowMs))

	state := zeroState()
	context := make([]float32, ctxSize)

	var spans []speechSpan
	inSpeech := false
	speechStart := 0
	speechCount, silenceCount := 0, 0

	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		var chunk []float32
		if end <= len(samples) {
			chunk = samples[i:end]
		} else {
			chunk = make([]float32, windowSize)
			copy(chunk, samples[i:])
		}

		input := make([]float32, 0, ctxSize+windowSize)
		input = append(input, context...)
		input = append(input, chunk...)

		prob, nextState, err := s.model.Predict(input, state, sampleRate)
		if err != nil {
			return nil, err
		}
		state = nextState
		context = append([]float32(nil), chunk[len(chunk)-ctxSize:]...)

		isSpeech := float64(prob) > threshold
		idx := i / windowSize

		if !inSpeech {
			if isSpeech {
				speechCount++
				if speechCount >= minSpeechWindows {
					inSpeech = true
					speechStart = (idx - speechCount + 1) * windowSize
					speechCount = 0
				}
			} else {
				speechCount = 0
			}
		} else {
			if isSpeech {
				silenceCount = 0
			} else {
				silenceCount++
				if silenceCount >= minSilenceWindows {
					spans = append(spans, speechSpan{start: speechStart, end: (idx - silenceCount + 1) * windowSize})
					inSpeech = false
					silenceCount = 0
				}
			}
		}
	}

	if inSpeech {
		spans = append(spans, speechSpan{start: speechStart, end: len(samples)})
	}

	return spans, nil
}

// ExtractSpeechAudio returns the speech-only portions of wavBytes
// concatenated together, and their total duration in seconds. Uses a fresh
// local model state independent of any concurrent streaming calls. Returns
// (nil, 0) if no speech is detected (spec.md §4.11).
func (s *Service) ExtractSpeechAudio(wavBytes []byte, sampleRate int, threshold float64, minSpeechMs, minSilenceMs int) ([]byte, float64, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	samples, fileRate, err := decodeWAV(wavBytes)
	if err != nil {
		return nil, 0, err
	}
	if len(samples) == 0 {
		return nil, 0, nil
	}
	if fileRate != 0 {
		sampleRate = fileRate
	}

	spans, err := s.getSpeechTimestamps(samples, sampleRate, threshold, minSpeechMs, minSilenceMs)
	if err != nil {
		return nil, 0, err
	}
	if len(spans) == 0 {
		return nil, 0, nil
	}

	var extracted []float32
	for _, sp := range spans {
		start, end := sp.start, sp.end
		if start > len(samples) {
			start = len(samples)
		}
		if end > len(samples) {
			end = len(samples)
		}
		if end > start {
			extracted = append(extracted, samples[start:end]...)
		}
	}
	if len(extracted) == 0 {
		return nil, 0, nil
	}

	duration := float64(len(extracted)) / float64(sampleRate)
	return encodeWAV(extracted, sampleRate), duration, nil
}

func lastWindow(samples []float32, n int) []float32 {
	if len(samples) >= n {
		return samples[len(samples)-n:]
	}
	padded := make([]float32, n)
	copy(padded[n-len(samples):], samples)
	return padded
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
