package audio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/transcript"
)

// silenceGateRMS is the RMS threshold below which a 16-bit PCM chunk is
// treated as absolute silence and rationed rather than forwarded
// upstream. 16-bit PCM ranges -32768..32767; this is a deliberately low
// bar that only catches true dead air, not soft speech (spec.md §4.3).
const silenceGateRMS = 100.0

// silenceKeepaliveEvery forwards one chunk out of every N consecutive
// silent chunks, to keep the upstream connection's own VAD/utterance
// tracking alive during a long pause.
const silenceKeepaliveEvery = 10

// zombieConnectionTimeout closes the upstream connection if no
// above-threshold audio has been seen for this long (spec.md §5).
const zombieConnectionTimeout = 300 * time.Second

// pauseKeepaliveInterval is how often a KeepAlive control frame is sent to
// the upstream connection while paused.
const pauseKeepaliveInterval = 5 * time.Second

// pauseWatchdogTimeout auto-stops the processor if it stays paused this
// long (spec.md §5).
const pauseWatchdogTimeout = 600 * time.Second

// stopDrainDelay is how long Stop waits after sending the upstream close
// signal, to give trailing results a chance to arrive.
const stopDrainDelay = 500 * time.Millisecond

// sleepFunc is overridable in tests to avoid real waits in keepalive/
// watchdog loops.
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upstream is the streaming ASR connection TrueStreamingProcessor drives.
// Production implementations wrap a gorilla/websocket.Conn dialed to a
// Deepgram-shaped endpoint; tests inject an in-memory double.
type Upstream interface {
	SendAudio(chunk []byte) error
	SendControl(v any) error
	Read() (message []byte, err error)
	Close() error
}

// wsUpstream adapts *websocket.Conn to Upstream, serializing writes as
// gorilla/websocket requires for concurrent callers (spec.md's upstream
// connection is written to from ProcessAudio and the keepalive goroutine
// concurrently).
type wsUpstream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func dialUpstream(ctx context.Context, rawURL, apiKey string) (Upstream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 45 * time.Second}
	header := http.Header{}
	header.Set("Authorization", "Token "+apiKey)

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("upstream dial failed: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return &wsUpstream{conn: conn}, nil
}

func (u *wsUpstream) SendAudio(chunk []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return u.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

func (u *wsUpstream) SendControl(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return u.conn.WriteMessage(websocket.TextMessage, data)
}

func (u *wsUpstream) Read() ([]byte, error) {
	_, data, err := u.conn.ReadMessage()
	return data, err
}

func (u *wsUpstream) Close() error {
	return u.conn.Close()
}

// TrueStreamingProcessor passes audio through in real time to a streaming
// upstream ASR connection (Deepgram-shaped), relaying interim and final
// results as they arrive instead of batching (spec.md §4.3). Intended for
// providers with a native streaming API.
type TrueStreamingProcessor struct {
	base

	dial func(ctx context.Context) (Upstream, error)

	mu              sync.Mutex
	upstream        Upstream
	listenerDone    chan struct{}
	silenceStreak   int
	lastSpeechAt    time.Time
	paused          bool
	pauseStartedAt  time.Time
	keepaliveCancel context.CancelFunc
	keepaliveDone   chan struct{}
	onAutoStop      func()
}

// NewTrueStreamingProcessor returns a TrueStreamingProcessor that dials
// upstream using apiBaseURL (or the Deepgram default when empty) on
// Start.
func NewTrueStreamingProcessor(config Config, onTranscript OnTranscript, onError OnError) *TrueStreamingProcessor {
	p := &TrueStreamingProcessor{
		base: newBase(config, onTranscript, onError),
	}
	p.dial = func(ctx context.Context) (Upstream, error) {
		return dialUpstream(ctx, buildUpstreamURL(config), config.APIKey)
	}
	return p
}

// buildUpstreamURL builds a Deepgram-shaped streaming endpoint URL from
// config, selecting the v2 endpoint for "flux"-prefixed models (spec.md
// §4.3).
func buildUpstreamURL(config Config) string {
	isFlux := strings.HasPrefix(config.Model, "flux")

	base := config.APIBaseURL
	if base == "" {
		if isFlux {
			base = "wss://api.deepgram.com/v2/listen"
		} else {
			base = "wss://api.deepgram.com/v1/listen"
		}
	}

	q := url.Values{}
	q.Set("model", config.Model)
	q.Set("language", config.SourceLang)
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(config.InterimResults))
	if config.Diarization && !isFlux {
		q.Set("diarize", "true")
	}
	if config.SmartFormat {
		q.Set("smart_format", "true")
	}
	return base + "?" + q.Encode()
}

// Start dials the upstream connection and begins listening for results.
func (p *TrueStreamingProcessor) Start() error {
	p.markStarted()

	p.mu.Lock()
	p.silenceStreak = 0
	p.lastSpeechAt = nowFunc()
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	upstream, err := p.dial(ctx)
	if err != nil {
		logger.Error("true streaming processor: upstream connect failed", "error", err)
		p.emitError("upstream connection failed")
		return nil
	}

	p.mu.Lock()
	p.upstream = upstream
	p.listenerDone = make(chan struct{})
	done := p.listenerDone
	p.mu.Unlock()

	go p.listen(done)
	return nil
}

// ProcessAudio forwards chunk upstream, applying a lightweight RMS
// silence gate: dead-silent chunks are rationed to one in
// silenceKeepaliveEvery to save bandwidth, and prolonged silence trips the
// zombie-connection watchdog (spec.md §4.3, §5).
func (p *TrueStreamingProcessor) ProcessAudio(chunk []byte) error {
	if !p.IsActive() {
		return nil
	}
	p.saveChunk(chunk)

	p.mu.Lock()
	upstream := p.upstream
	p.mu.Unlock()
	if upstream == nil {
		return nil
	}

	if isSilentPCM(chunk) {
		p.mu.Lock()
		p.silenceStreak++
		streak := p.silenceStreak
		idle := nowFunc().Sub(p.lastSpeechAt)
		p.mu.Unlock()

		if idle > zombieConnectionTimeout {
			logger.Warn("true streaming processor: zombie connection detected, stopping")
			p.emitError("connection closed after prolonged silence")
			p.Stop()
			return nil
		}
		if streak%silenceKeepaliveEvery != 0 {
			return nil
		}
	} else {
		p.mu.Lock()
		p.silenceStreak = 0
		p.lastSpeechAt = nowFunc()
		p.mu.Unlock()
	}

	if err := upstream.SendAudio(chunk); err != nil {
		logger.Error("true streaming processor: send to upstream failed", "error", err)
	}
	return nil
}

// isSilentPCM treats chunk as little-endian 16-bit PCM and reports whether
// its RMS falls below silenceGateRMS. A chunk that doesn't decode cleanly
// as 16-bit PCM (odd length) is never treated as silence.
func isSilentPCM(chunk []byte) bool {
	if len(chunk) < 2 || len(chunk)%2 != 0 {
		return false
	}
	n := len(chunk) / 2
	var sumSquares float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(chunk[i*2:]))
		sumSquares += float64(s) * float64(s)
	}
	rms := sqrt(sumSquares / float64(n))
	return rms < silenceGateRMS
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// listen reads result messages from upstream until it closes or the
// processor stops.
func (p *TrueStreamingProcessor) listen(done chan struct{}) {
	defer close(done)
	for {
		if !p.IsActive() {
			return
		}
		p.mu.Lock()
		upstream := p.upstream
		p.mu.Unlock()
		if upstream == nil {
			return
		}

		msg, err := upstream.Read()
		if err != nil {
			if p.IsActive() {
				logger.Error("true streaming processor: upstream listener error", "error", err)
				p.emitError("upstream connection dropped")
			}
			return
		}

		var payload deepgramMessage
		if err := json.Unmarshal(msg, &payload); err != nil {
			logger.Warn("true streaming processor: invalid upstream message", "error", err)
			continue
		}
		p.handleMessage(payload)
	}
}

// deepgramMessage is the subset of a Deepgram-shaped streaming result
// this processor reads.
type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Speaker *int `json:"speaker"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func (p *TrueStreamingProcessor) handleMessage(payload deepgramMessage) {
	if payload.Type != "Results" && payload.Type != "" {
		return
	}
	if len(payload.Channel.Alternatives) == 0 {
		return
	}
	alt := payload.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return
	}

	var speaker string
	if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		speaker = fmt.Sprintf("Speaker %d", *alt.Words[0].Speaker)
	}

	var transcriptID string
	if payload.IsFinal {
		transcriptID = uuid.New().String()
	}

	p.emitTranscript(transcript.Event{
		Text:         text,
		IsFinal:      payload.IsFinal,
		Speaker:      speaker,
		Start:        payload.Start,
		End:          payload.Start + payload.Duration,
		Confidence:   alt.Confidence,
		TranscriptID: transcriptID,
	})
}

// Pause stops forwarding audio upstream conceptually (the caller simply
// stops calling ProcessAudio) and starts a KeepAlive loop so the upstream
// connection survives the gap. onAutoStop, if non-nil, is invoked if the
// pause exceeds pauseWatchdogTimeout.
func (p *TrueStreamingProcessor) Pause(onAutoStop func()) {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.pauseStartedAt = nowFunc()
	p.onAutoStop = onAutoStop
	upstream := p.upstream
	ctx, cancel := context.WithCancel(context.Background())
	p.keepaliveCancel = cancel
	p.keepaliveDone = make(chan struct{})
	done := p.keepaliveDone
	p.mu.Unlock()

	if upstream != nil {
		go p.keepaliveLoop(ctx, done)
	}
}

// Resume stops the KeepAlive loop and resumes normal forwarding.
func (p *TrueStreamingProcessor) Resume() {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = false
	cancel := p.keepaliveCancel
	done := p.keepaliveDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (p *TrueStreamingProcessor) keepaliveLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		p.mu.Lock()
		elapsed := nowFunc().Sub(p.pauseStartedAt)
		upstream := p.upstream
		onAutoStop := p.onAutoStop
		p.mu.Unlock()

		if elapsed > pauseWatchdogTimeout {
			logger.Warn("true streaming processor: pause watchdog fired, auto-stopping")
			p.emitError("recording auto-stopped after a 10 minute pause")
			if onAutoStop != nil {
				onAutoStop()
			}
			return
		}

		if upstream != nil {
			if err := upstream.SendControl(map[string]string{"type": "KeepAlive"}); err != nil {
				logger.Warn("true streaming processor: keepalive send failed", "error", err)
				return
			}
		}

		if err := sleepFunc(ctx, pauseKeepaliveInterval); err != nil {
			return
		}
	}
}

// Stop sends the upstream close sequence, waits briefly for trailing
// results, and cancels the listener (spec.md §4.3, §5).
func (p *TrueStreamingProcessor) Stop() ([]byte, []byte, error) {
	p.markStopped()

	p.mu.Lock()
	if p.keepaliveCancel != nil {
		p.keepaliveCancel()
	}
	upstream := p.upstream
	listenerDone := p.listenerDone
	p.upstream = nil
	p.mu.Unlock()

	if upstream != nil {
		if err := upstream.SendControl(map[string]string{"type": "CloseStream"}); err != nil {
			logger.Warn("true streaming processor: close signal failed", "error", err)
		}
		sleepFunc(context.Background(), stopDrainDelay)
		upstream.Close()
	}
	if listenerDone != nil {
		select {
		case <-listenerDone:
		case <-time.After(stopDrainDelay * 4):
		}
	}

	header, full := p.stopPayload()
	return header, full, nil
}
