package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxstream/transcribe-core/auth"
	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/metrics/prometheus"
	"github.com/voxstream/transcribe-core/registry"
	"github.com/voxstream/transcribe-core/session"
	"github.com/voxstream/transcribe-core/wsproto"
)

// defaultReadHeaderTimeout prevents Slowloris attacks, mirroring the
// teacher's own a2a.Server (runtime/a2a/server.go).
const defaultReadHeaderTimeout = 10 * time.Second

// closeCodeInvalidToken is the websocket close code spec.md §6.1/§7
// assigns to an authentication failure on the control channel.
const closeCodeInvalidToken = 4001

// closeWriteWait bounds how long writing the rejection close frame may
// block before the connection is torn down regardless.
const closeWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the transcription core's HTTP/WebSocket entrypoint. It
// verifies the bearer token on each connection, resolves the caller's
// effective configuration, and hands the connection off to a fresh
// session.Session — mirrors the teacher's a2a.Server shape
// (runtime/a2a/server.go's NewServer/Handler/ListenAndServe/Shutdown) and
// hubenschmidt-asr-llm-tts's gateway/internal/ws.Handler for the
// upgrade-then-read-loop structure.
type Server struct {
	cfg      Config
	verifier *auth.Verifier
	deps     session.Deps
	httpSrv  *http.Server
	metrics  *prometheus.Exporter
}

// NewServer builds a Server ready to ListenAndServe. Session and provider
// call metrics (spec.md's ambient observability stack) are exposed on the
// same HTTP server at /metrics.
func NewServer(cfg Config, verifier *auth.Verifier, deps session.Deps) *Server {
	return &Server{cfg: cfg, verifier: verifier, deps: deps, metrics: prometheus.NewExporter(cfg.ListenAddr)}
}

// Handler returns the http.Handler exposing the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/transcribe/{token}", s.handleTranscribe)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe starts the HTTP server on cfg.ListenAddr.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight HTTP/websocket upgrade requests.
// In-progress sessions finish their own stop/close sequence independently
// (spec.md §5's 60s background-drain bound already caps that).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleTranscribe upgrades the connection, then verifies the bearer token
// carried in the URL (spec.md §6.1: "the channel URL path carries an
// opaque bearer token"). An invalid token closes the socket with code 4001
// before any session state is created (spec.md §7) — the upgrade happens
// first only because gorilla/websocket has no way to hand a client-visible
// close code to a request it never upgraded.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("server: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	userID, err := s.verifier.VerifyToken(r.PathValue("token"))
	if err != nil {
		logger.Warn("server: rejecting connection with invalid token")
		closeMsg := websocket.FormatCloseMessage(closeCodeInvalidToken, "invalid token")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(closeWriteWait))
		return
	}

	user := s.cfg.userConfig(userID)
	effective := registry.Resolve(user, s.cfg.Admin)

	prometheus.SessionStarted()
	defer prometheus.SessionEnded()

	sess := session.New(newSender(conn), effective, s.deps)
	s.runConnection(conn, sess)
}

// runConnection reads frames until the client disconnects, dispatching
// text frames as control messages and binary frames as raw audio (spec.md
// §6.1). Mirrors hubenschmidt-asr-llm-tts's gateway/internal/ws.Handler
// read loop shape.
func (s *Server) runConnection(conn *websocket.Conn, sess *session.Session) {
	ctx := context.Background()
	defer sess.Close(ctx)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("server: connection closed", "error", err)
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var msg wsproto.ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warn("server: malformed control message", "error", err)
				continue
			}
			sess.HandleControl(ctx, msg)
		case websocket.BinaryMessage:
			if err := sess.HandleAudio(data); err != nil {
				logger.Error("server: process audio failed", "error", err)
			}
		}
	}
}

// newSender adapts a *websocket.Conn into a session.Sender, serializing
// writes with a mutex since Session may emit from more than one goroutine
// (the processor's own onTranscript/onError callbacks run independently of
// the connection's read loop).
func newSender(conn *websocket.Conn) session.Sender {
	var mu sync.Mutex
	return func(event any) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		mu.Lock()
		defer mu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, data)
	}
}
