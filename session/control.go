package session

import (
	"context"

	"github.com/voxstream/transcribe-core/audio"
	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/metrics/prometheus"
	"github.com/voxstream/transcribe-core/orderedsender"
	"github.com/voxstream/transcribe-core/persistence"
	"github.com/voxstream/transcribe-core/recording"
	"github.com/voxstream/transcribe-core/registry"
	"github.com/voxstream/transcribe-core/segment"
	"github.com/voxstream/transcribe-core/sentence"
	"github.com/voxstream/transcribe-core/stt"
	"github.com/voxstream/transcribe-core/transcript"
	"github.com/voxstream/transcribe-core/translate"
	"github.com/voxstream/transcribe-core/wsproto"
)

// start builds the strategy-appropriate pipeline for this connection and
// begins processing (spec.md §4.8, §6.3: the strategy is chosen exclusively
// via registry.StrategyFor, never by inspecting the provider name here).
func (s *Session) start(ctx context.Context, msg wsproto.ControlMessage) {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return
	}

	sourceLang := msg.SourceLang
	if sourceLang == "" {
		sourceLang = defaultSourceLang
	}
	targetLang := msg.TargetLang
	if targetLang == "" {
		targetLang = defaultTargetLang
	}

	silenceThreshold := s.cfg.Recording.SilenceThreshold
	if msg.SilenceThreshold != nil {
		silenceThreshold = float64(*msg.SilenceThreshold)
	}

	strategy := registry.StrategyFor(s.cfg.STT.Provider, s.cfg.STT.Model)
	useTrueStreaming := strategy == registry.StrategyTrueStreaming

	procConfig := audio.Config{
		Provider:         s.cfg.STT.Provider,
		Model:            s.cfg.STT.Model,
		SourceLang:       sourceLang,
		TargetLang:       targetLang,
		APIKey:           s.cfg.STT.APIKey,
		APIBaseURL:       s.cfg.STT.BaseURL,
		SilenceThreshold: silenceThreshold,
		BufferDuration:   s.cfg.Recording.AudioBufferDuration,
		Diarization:      msg.Diarization,
		SmartFormat:      true,
		InterimResults:   true,
	}

	onTranscript := s.makeOnTranscript()
	onError := func(message string) { s.emit(wsproto.NewErrorEvent(message)) }

	var sentenceBuilder *sentence.Builder
	var segmentSupervisor *segment.Supervisor
	if useTrueStreaming {
		sentenceBuilder = sentence.New()
		segmentSupervisor = segment.New(s.cfg.Recording.SegmentSoftThreshold, s.cfg.Recording.SegmentHardThreshold)
	}
	proc := s.newProcessor(useTrueStreaming, procConfig, onTranscript, onError)

	dispatcher := translate.New(s.deps.Translator, translate.Config{
		SourceLang: sourceLang,
		TargetLang: targetLang,
		RPMLimit:   s.cfg.Recording.RPMLimit,
	})

	s.recordingID = msg.RecordingID
	s.sourceLang = sourceLang
	s.targetLang = targetLang
	s.useTrueStreaming = useTrueStreaming
	s.processor = proc
	s.dispatcher = dispatcher
	s.audioSaved = false

	s.transcriptMu.Lock()
	s.sentenceBuilder = sentenceBuilder
	s.segmentSupervisor = segmentSupervisor
	s.senders = make(map[string]*orderedsender.Sender)
	s.transcriptMu.Unlock()

	s.mu.Unlock()

	if err := proc.Start(); err != nil {
		logger.Error("session: processor start failed", "error", err, "provider", procConfig.Provider)
		s.emit(wsproto.NewErrorEvent("failed to start recording: " + err.Error()))
		return
	}

	s.emit(wsproto.NewStatusEvent("Recording started (" + procConfig.Provider + ")"))
}

// newProcessor constructs the strategy-appropriate audio.Processor,
// deferring to deps.NewProcessor when the caller supplied one (tests).
// Mirrors original_source's ProcessorFactory.create, minus the provider
// dispatch it did internally — that dispatch now lives in
// registry.StrategyFor.
func (s *Session) newProcessor(useTrueStreaming bool, cfg audio.Config, onTranscript audio.OnTranscript, onError audio.OnError) audio.Processor {
	if s.deps.NewProcessor != nil {
		return s.deps.NewProcessor(useTrueStreaming, cfg, onTranscript, onError)
	}
	if useTrueStreaming {
		return audio.NewTrueStreamingProcessor(cfg, onTranscript, onError)
	}
	sttService := s.sttServiceFor(s.cfg.STT)
	return audio.NewSimulatedProcessor(cfg, sttService, s.deps.VADService, s.deps.Transcoder, onTranscript, onError)
}

// sttServiceFor builds the stt.Service a SimulatedProcessor strategy needs
// from the session's resolved provider config, deferring to
// deps.NewSTTService when the caller supplied one. Defaults to the
// OpenAI-API-compatible client, which covers openai/groq/siliconflow alike.
func (s *Session) sttServiceFor(cfg registry.ProviderConfig) stt.Service {
	if s.deps.NewSTTService != nil {
		return s.deps.NewSTTService(cfg)
	}
	return stt.NewOpenAI(cfg.APIKey, stt.WithOpenAIBaseURL(cfg.BaseURL), stt.WithOpenAIModel(cfg.Model))
}

// makeOnTranscript returns the audio.OnTranscript callback wired into
// whichever processor start constructs. Every invocation is independent of
// the goroutine that produced it (spec.md §5: processor callbacks run on
// the processor's own goroutines).
func (s *Session) makeOnTranscript() audio.OnTranscript {
	return func(ev transcript.Event) {
		s.mu.Lock()
		recordingID := s.recordingID
		targetLang := s.targetLang
		useTrueStreaming := s.useTrueStreaming
		dispatcher := s.dispatcher
		s.mu.Unlock()

		// The current segment id must be read before AddTranscript runs,
		// since AddTranscript may split and rotate it (spec.md §4.8).
		currentSegID := ""
		if useTrueStreaming {
			s.transcriptMu.Lock()
			if s.segmentSupervisor != nil {
				currentSegID = s.segmentSupervisor.CurrentSegmentID()
			}
			s.transcriptMu.Unlock()
		}

		s.emit(wsproto.TranscriptEvent{
			Type:         wsproto.EventTranscript,
			Text:         ev.Text,
			IsFinal:      ev.IsFinal,
			Speaker:      ev.Speaker,
			StartTime:    ev.Start,
			EndTime:      ev.End,
			TranscriptID: ev.TranscriptID,
			SegmentID:    currentSegID,
		})

		if ev.IsFinal && recordingID != "" {
			seg := persistence.TranscriptSegment{Text: ev.Text, Start: ev.Start, End: ev.End, IsFinal: true, Speaker: ev.Speaker}
			if err := s.deps.Store.AppendTranscript(context.Background(), recordingID, seg); err != nil {
				logger.Error("session: append transcript failed", "recording_id", recordingID, "error", err)
			}
		}

		if !ev.IsFinal {
			return
		}

		if useTrueStreaming {
			s.handleFinalTrueStreaming(ev, currentSegID)
			return
		}
		s.handleFinalSimulated(ev, dispatcher, recordingID, targetLang)
	}
}

// handleFinalTrueStreaming feeds one finalized fragment into the
// SentenceBuilder and SegmentSupervisor and dispatches whatever falls out
// (spec.md §4.4, §4.5, §4.8).
func (s *Session) handleFinalTrueStreaming(ev transcript.Event, currentSegID string) {
	s.transcriptMu.Lock()
	if s.sentenceBuilder == nil || s.segmentSupervisor == nil {
		s.transcriptMu.Unlock()
		return
	}
	sentences := s.sentenceBuilder.AddFinal(ev.Text, currentSegID)
	segEvents := s.segmentSupervisor.AddTranscript(ev.Text, ev.Start, ev.End)

	var flushed []sentence.Sentence
	var closed []segment.Event
	for _, se := range segEvents {
		if se.Kind == segment.EventClosed {
			flushed = append(flushed, s.sentenceBuilder.ResetForNewSegment(s.segmentSupervisor.CurrentSegmentID())...)
			closed = append(closed, se)
			prometheus.RecordSegmentFinalized("threshold")
		}
	}
	s.transcriptMu.Unlock()

	for _, sent := range sentences {
		s.dispatchSentence(sent)
	}
	for _, sent := range flushed {
		s.dispatchSentence(sent)
	}
	for _, ce := range closed {
		s.emit(wsproto.SegmentCompleteEvent{
			Type:      wsproto.EventSegmentComplete,
			SegmentID: ce.SegmentID,
			Text:      ce.Text,
			Start:     ce.Start,
			End:       ce.End,
		})
	}
}

// handleFinalSimulated implements the legacy simulated-streaming path:
// the whole finalized fragment is translated as one blob and sent back
// tagged with its transcript id, with no sentence splitting or ordered
// delivery needed since SimulatedProcessor only ever finalizes one
// fragment at a time (spec.md §4.8).
func (s *Session) handleFinalSimulated(ev transcript.Event, dispatcher *translate.Dispatcher, recordingID, targetLang string) {
	if dispatcher == nil {
		return
	}
	dispatcher.TranslateBlob(context.Background(), ev.Text, func(res translate.Result) {
		s.emit(wsproto.TranslationEvent{
			Type:         wsproto.EventTranslation,
			Text:         res.Text,
			IsFinal:      res.IsFinal,
			TranscriptID: ev.TranscriptID,
		})
		if recordingID == "" {
			return
		}
		upd := persistence.TranslationUpdate{Text: res.Text, IsFinal: res.IsFinal}
		if err := s.deps.Store.UpdateTranslation(context.Background(), recordingID, targetLang, upd); err != nil {
			logger.Error("session: update translation failed", "recording_id", recordingID, "error", err)
		}
	})
}

// dispatchSentence sends one sentence through the Dispatcher, ordering its
// result for delivery+persistence by the segment it belongs to (spec.md
// §4.6, §4.7).
func (s *Session) dispatchSentence(sent sentence.Sentence) {
	s.mu.Lock()
	dispatcher := s.dispatcher
	recordingID := s.recordingID
	targetLang := s.targetLang
	s.mu.Unlock()

	if dispatcher == nil {
		return
	}
	sender := s.senderFor(sent.SegmentID, recordingID, targetLang)
	dispatcher.TranslateSentence(context.Background(), sent, sender.OnTranslationComplete)
}

// senderFor returns (creating if necessary) the orderedsender.Sender that
// owns in-order delivery+persistence for segID.
func (s *Session) senderFor(segID, recordingID, targetLang string) *orderedsender.Sender {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	if sender, ok := s.senders[segID]; ok {
		return sender
	}

	clientSend := func(res translate.Result) error {
		return s.sender(wsproto.TranslationV2Event{
			Type:          wsproto.EventTranslationV2,
			Text:          res.Text,
			SegmentID:     res.SegmentID,
			SentenceIndex: res.SentenceIndex,
			IsFinal:       res.IsFinal,
			Error:         res.Error,
		})
	}
	persist := func(res translate.Result) error {
		if recordingID == "" {
			return nil
		}
		upd := persistence.TranslationUpdate{SegmentID: res.SegmentID, Text: res.Text, IsFinal: res.IsFinal}
		return s.deps.Store.UpdateTranslation(context.Background(), recordingID, targetLang, upd)
	}

	sender := orderedsender.New(orderedsender.DualWrite(clientSend, persist))
	s.senders[segID] = sender
	return sender
}

// stop flushes any pending sentence/segment state, waits (bounded) for
// outstanding translations, persists the captured audio, and tears down
// the processor (spec.md §4.8, §5, §4.10).
func (s *Session) stop(ctx context.Context) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return
	}
	s.recording = false
	proc := s.processor
	dispatcher := s.dispatcher
	recordingID := s.recordingID
	useTrueStreaming := s.useTrueStreaming
	audioSaved := s.audioSaved
	s.mu.Unlock()

	if useTrueStreaming {
		s.transcriptMu.Lock()
		var flushed []sentence.Sentence
		var closed *segment.Event
		if s.sentenceBuilder != nil {
			flushed = s.sentenceBuilder.Flush()
		}
		if s.segmentSupervisor != nil {
			closed = s.segmentSupervisor.ForceClose()
		}
		s.transcriptMu.Unlock()

		for _, sent := range flushed {
			s.dispatchSentence(sent)
		}
		if closed != nil {
			prometheus.RecordSegmentFinalized("stop")
			s.emit(wsproto.SegmentCompleteEvent{
				Type:      wsproto.EventSegmentComplete,
				SegmentID: closed.SegmentID,
				Text:      closed.Text,
				Start:     closed.Start,
				End:       closed.End,
			})
		}
	}

	if dispatcher != nil {
		waitCtx, cancel := context.WithTimeout(ctx, backgroundDrainTimeout)
		if err := dispatcher.Wait(waitCtx); err != nil {
			logger.Warn("session: timed out draining background translations", "recording_id", recordingID, "error", err)
		}
		cancel()
	}

	if proc != nil {
		s.saveAudio(ctx, proc, recordingID, audioSaved)
	}

	s.mu.Lock()
	s.processor = nil
	s.dispatcher = nil
	s.mu.Unlock()

	s.emit(wsproto.NewStatusEvent("Recording stopped"))
}

func (s *Session) saveAudio(ctx context.Context, proc audio.Processor, recordingID string, alreadySaved bool) {
	header, full, err := proc.Stop()
	if err != nil {
		logger.Error("session: processor stop failed", "error", err)
		return
	}
	if recordingID == "" || alreadySaved {
		return
	}

	result := s.deps.Saver.Save(ctx, recording.StoppedAudio{Header: header, Full: full}, recordingID)
	if !result.Success {
		s.emit(wsproto.NewErrorEvent("audio save failed: " + result.Error))
		return
	}

	s.mu.Lock()
	s.audioSaved = true
	s.mu.Unlock()

	s.emit(wsproto.AudioSavedEvent{
		Type:        wsproto.EventAudioSaved,
		RecordingID: recordingID,
		AudioSize:   result.Size,
	})
}
