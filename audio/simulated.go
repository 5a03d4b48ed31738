package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/stt"
	"github.com/voxstream/transcribe-core/transcript"
	"github.com/voxstream/transcribe-core/vad"
)

// asrTimeout bounds a single batch-STT call (spec.md §5).
const asrTimeout = 30 * time.Second

// transcodeTimeout bounds the webm->wav conversion that precedes both the
// silence check and the full transcription batch.
const transcodeTimeout = 10 * time.Second

// silenceCheckTimeout bounds the lightweight mid-window silence probe,
// tighter than the full-batch path since it only looks at ~1s of audio.
const silenceCheckTimeout = 3 * time.Second

// minSpeechDuration is the shortest VAD-extracted speech span worth
// sending to the STT provider; shorter spans are almost always noise
// (spec.md §4.2).
const minSpeechDuration = 0.3 // seconds

// SimulatedProcessor buffers audio chunks and periodically flushes an
// elastic window to a batch STT provider, using VAD to pick flush points
// that land on silence rather than mid-word (spec.md §4.2). Intended for
// providers with no streaming API (Groq, OpenAI Whisper).
type SimulatedProcessor struct {
	base

	sttService stt.Service
	vadService *vad.Service
	transcoder Transcoder

	minChunks int
	maxChunks int

	mu         sync.Mutex
	lastIndex  int
	pendingWG  sync.WaitGroup
	stopDrain  time.Duration
}

// NewSimulatedProcessor returns a SimulatedProcessor. vadService may be
// shared process-wide (vad.Get()); this processor resets its streaming
// state on Start so a prior session's context never leaks into this one.
func NewSimulatedProcessor(config Config, sttService stt.Service, vadService *vad.Service, transcoder Transcoder, onTranscript OnTranscript, onError OnError) *SimulatedProcessor {
	bufferDuration := config.BufferDuration
	if bufferDuration < 3.0 {
		bufferDuration = 3.0
	}
	minChunks := int(bufferDuration * 2)
	if minChunks < 4 {
		minChunks = 4
	}

	return &SimulatedProcessor{
		base:       newBase(config, onTranscript, onError),
		sttService: sttService,
		vadService: vadService,
		transcoder: transcoder,
		minChunks:  minChunks,
		maxChunks:  minChunks * 2,
		stopDrain:  asrTimeout,
	}
}

// Start resets elastic-window and VAD state.
func (p *SimulatedProcessor) Start() error {
	p.markStarted()
	p.mu.Lock()
	p.lastIndex = 0
	p.mu.Unlock()
	if p.vadService != nil {
		p.vadService.ResetStates()
	}
	return nil
}

// ProcessAudio saves chunk unconditionally, then applies the elastic
// window policy: accumulate below minChunks, VAD-probe for a silence-gated
// flush between minChunks and maxChunks, and force a flush at maxChunks
// (spec.md §4.2).
func (p *SimulatedProcessor) ProcessAudio(chunk []byte) error {
	if !p.IsActive() {
		return nil
	}
	p.saveChunk(chunk)

	total := p.chunkCount()
	p.mu.Lock()
	newChunks := total - p.lastIndex
	p.mu.Unlock()

	shouldSend := false
	reason := ""

	switch {
	case newChunks < p.minChunks:
		// still accumulating
	case newChunks < p.maxChunks:
		shouldSend, reason = p.checkSilence()
	}

	if newChunks >= p.maxChunks {
		shouldSend = true
		reason = fmt.Sprintf("max window reached (%d >= %d)", newChunks, p.maxChunks)
	}

	if shouldSend {
		logger.Debug("simulated processor: flush triggered", "reason", reason, "new_chunks", newChunks)
		p.sendForTranscription()
	}
	return nil
}

// checkSilence converts the last ~1s of buffered audio to WAV and asks VAD
// whether it is below the configured speech threshold.
func (p *SimulatedProcessor) checkSilence() (bool, string) {
	total := p.chunkCount()
	from := total - 2
	if from < 0 {
		from = 0
	}
	recent, err := p.chunksFrom(from)
	if err != nil || len(recent) == 0 {
		return false, ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), silenceCheckTimeout)
	defer cancel()

	wav, err := p.transcoder.ToWAV(ctx, recent)
	if err != nil || len(wav) == 0 {
		logger.Warn("simulated processor: silence-check transcode failed", "error", err)
		return false, ""
	}

	prob, err := p.vadService.GetSpeechProbability(wav, vad.DefaultSampleRate)
	if err != nil {
		logger.Warn("simulated processor: VAD probability check failed", "error", err)
		return false, ""
	}

	threshold := clamp01(p.config.SilenceThreshold / 100.0)
	if prob < threshold {
		return true, fmt.Sprintf("silence detected (prob=%.2f < threshold=%.2f)", prob, threshold)
	}
	return false, ""
}

// sendForTranscription snapshots every chunk not yet sent, advances
// lastIndex before the background task starts (so a concurrent flush never
// double-sends), and hands the batch to processAudioBatch on its own
// goroutine.
func (p *SimulatedProcessor) sendForTranscription() {
	total := p.chunkCount()
	p.mu.Lock()
	from := p.lastIndex
	if from >= total {
		p.mu.Unlock()
		return
	}
	p.lastIndex = total
	p.mu.Unlock()

	audioData, err := p.chunksFrom(from)
	if err != nil || len(audioData) == 0 {
		return
	}
	elapsed := p.elapsed().Seconds()

	p.pendingWG.Add(1)
	go func() {
		defer p.pendingWG.Done()
		p.processAudioBatch(audioData, elapsed)
	}()
}

// processAudioBatch transcodes, VAD-trims, transcribes, filters, and emits
// one batch of audio as a final transcript (spec.md §4.2). Runs entirely
// on a background goroutine spawned by sendForTranscription.
func (p *SimulatedProcessor) processAudioBatch(audioData []byte, elapsedTime float64) {
	ctx, cancel := context.WithTimeout(context.Background(), transcodeTimeout)
	defer cancel()

	wavData, err := p.transcoder.ToWAV(ctx, audioData)
	if err != nil || len(wavData) == 0 {
		logger.Warn("simulated processor: batch transcode failed", "error", err)
		return
	}

	threshold := clamp01(p.config.SilenceThreshold / 100.0)
	speechAudio, speechDuration, err := p.vadService.ExtractSpeechAudio(wavData, vad.DefaultSampleRate, threshold, 250, 100)
	if err != nil {
		logger.Warn("simulated processor: VAD extraction failed", "error", err)
		return
	}
	logger.Info("simulated processor: VAD extracted speech", "elapsed", elapsedTime, "speech_duration", speechDuration)

	if len(speechAudio) == 0 || speechDuration <= minSpeechDuration {
		return
	}

	sttCtx, sttCancel := context.WithTimeout(context.Background(), asrTimeout)
	defer sttCancel()

	cfg := stt.DefaultTranscriptionConfig()
	cfg.Format = stt.FormatWAV
	cfg.SampleRate = vad.DefaultSampleRate
	cfg.Language = p.config.SourceLang

	text, err := p.sttService.Transcribe(sttCtx, speechAudio, cfg)
	if err != nil {
		logger.Error("simulated processor: transcription failed", "error", err)
		p.emitError("transcription failed")
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !isValidText(text) {
		logger.Debug("simulated processor: filtered hallucination", "text", text)
		return
	}

	p.emitTranscript(transcript.Event{
		Text:         text,
		IsFinal:      true,
		Start:        elapsedTime,
		End:          elapsedTime + speechDuration,
		Confidence:   1.0,
		TranscriptID: uuid.New().String(),
	})
}

// Stop flushes any unsent trailing audio, waits (bounded by stopDrain) for
// every in-flight batch to finish, and returns the recorded audio for
// persistence.
func (p *SimulatedProcessor) Stop() ([]byte, []byte, error) {
	p.markStopped()

	total := p.chunkCount()
	p.mu.Lock()
	remaining := total - p.lastIndex
	p.mu.Unlock()
	if remaining > 0 {
		p.sendForTranscription()
	}

	done := make(chan struct{})
	go func() {
		p.pendingWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.stopDrain):
		logger.Warn("simulated processor: timed out waiting for pending transcription batches")
	}

	header, full := p.stopPayload()
	return header, full, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
