// Package wsproto defines the JSON wire types exchanged over the client
// control channel (spec.md §6.1). Binary frames (raw audio) are not typed
// here; they are passed through to AudioProcessor.process_audio unparsed.
package wsproto

// ClientAction is the recognized value of a client-to-server control
// message's "action" field.
type ClientAction string

// Client actions (spec.md §6.1).
const (
	ActionStart  ClientAction = "start"
	ActionStop   ClientAction = "stop"
	ActionPing   ClientAction = "ping"
	ActionPause  ClientAction = "pause"
	ActionResume ClientAction = "resume"
)

// ControlMessage is a client-to-server text frame.
type ControlMessage struct {
	Action ClientAction `json:"action"`

	// Fields valid only when Action == ActionStart.
	RecordingID      string `json:"recording_id,omitempty"`
	SourceLang       string `json:"source_lang,omitempty"`
	TargetLang       string `json:"target_lang,omitempty"`
	SilenceThreshold *int   `json:"silence_threshold,omitempty"`
	Diarization      bool   `json:"diarization,omitempty"`
}

// ServerEventType is the "type" field of a server-to-client text frame.
type ServerEventType string

// Server event types (spec.md §6.1).
const (
	EventStatus          ServerEventType = "status"
	EventError           ServerEventType = "error"
	EventPong            ServerEventType = "pong"
	EventTranscript      ServerEventType = "transcript"
	EventTranslation     ServerEventType = "translation"
	EventTranslationV2   ServerEventType = "translation_v2"
	EventSegmentComplete ServerEventType = "segment_complete"
	EventAudioSaved      ServerEventType = "audio_saved"
)

// StatusEvent reports a human-readable session status.
type StatusEvent struct {
	Type    ServerEventType `json:"type"`
	Message string          `json:"message"`
}

// NewStatusEvent builds a StatusEvent.
func NewStatusEvent(message string) StatusEvent {
	return StatusEvent{Type: EventStatus, Message: message}
}

// ErrorEvent reports a recoverable error; the session remains open.
type ErrorEvent struct {
	Type    ServerEventType `json:"type"`
	Message string          `json:"message"`
}

// NewErrorEvent builds an ErrorEvent.
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

// PongEvent answers a ping control message.
type PongEvent struct {
	Type ServerEventType `json:"type"`
}

// NewPongEvent builds a PongEvent.
func NewPongEvent() PongEvent {
	return PongEvent{Type: EventPong}
}

// TranscriptEvent mirrors data.TranscriptEvent on the wire.
type TranscriptEvent struct {
	Type         ServerEventType `json:"type"`
	Text         string          `json:"text"`
	IsFinal      bool            `json:"is_final"`
	Speaker      string          `json:"speaker,omitempty"`
	StartTime    float64         `json:"start_time,omitempty"`
	EndTime      float64         `json:"end_time,omitempty"`
	TranscriptID string          `json:"transcript_id,omitempty"`
	SegmentID    string          `json:"segment_id,omitempty"`
}

// TranslationEvent is the legacy/simulated-path translation notification.
type TranslationEvent struct {
	Type         ServerEventType `json:"type"`
	Text         string          `json:"text"`
	IsFinal      bool            `json:"is_final"`
	TranscriptID string          `json:"transcript_id,omitempty"`
}

// TranslationV2Event is the streaming-path, per-sentence translation
// notification delivered in strict sentence order by the OrderedSender.
type TranslationV2Event struct {
	Type          ServerEventType `json:"type"`
	Text          string          `json:"text"`
	SegmentID     string          `json:"segment_id"`
	SentenceIndex int             `json:"sentence_index"`
	IsFinal       bool            `json:"is_final"`
	Error         bool            `json:"error,omitempty"`
}

// SegmentCompleteEvent announces that a UI card has closed.
type SegmentCompleteEvent struct {
	Type      ServerEventType `json:"type"`
	SegmentID string          `json:"segment_id"`
	Text      string          `json:"text"`
	Start     float64         `json:"start"`
	End       float64         `json:"end"`
}

// AudioSavedEvent announces that AudioSaver completed.
type AudioSavedEvent struct {
	Type        ServerEventType `json:"type"`
	RecordingID string          `json:"recording_id"`
	AudioSize   int64           `json:"audio_size"`
}
