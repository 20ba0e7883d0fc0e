package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
	"github.com/GriffinCanCode/monkey-alert/internal/metrics"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator"
	"github.com/GriffinCanCode/monkey-alert/internal/orchestrator/history"
	"github.com/GriffinCanCode/monkey-alert/internal/settings"
	"github.com/GriffinCanCode/monkey-alert/internal/trace"
)

// Controller is the session surface the server exposes.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	UpdateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error)
	Status() orchestrator.Status
	History(seconds int) []history.Event
	Events() <-chan history.Event
}

// ClientMessage is a command received over the WebSocket.
type ClientMessage struct {
	Type      string   `json:"type"`
	TraceID   string   `json:"trace_id,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Frequency *float64 `json:"frequency,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Muted     *bool    `json:"muted,omitempty"`
}

func (m ClientMessage) patch() settings.Patch {
	return settings.Patch{Threshold: m.Threshold, Frequency: m.Frequency, Volume: m.Volume, Muted: m.Muted}
}

type StatusMessage struct {
	Type    string              `json:"type"`
	TraceID string              `json:"trace_id,omitempty"`
	Status  orchestrator.Status `json:"status"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// client is one WebSocket connection. Events reach it through send, which
// a single writer drains so they arrive in the order they were emitted.
type client struct {
	limiter rateLimiter
	send    chan history.Event
}

func newClient() *client {
	return &client{send: make(chan history.Event, SendQueueSize)}
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl    Controller
	metrics *metrics.Metrics
	mu      sync.RWMutex
	conns   map[*websocket.Conn]*client
}

// New creates a server and starts broadcasting controller events.
func New(ctrl Controller, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		ctrl:    ctrl,
		metrics: m,
		conns:   make(map[*websocket.Conn]*client),
	}
	go s.broadcastEvents()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/settings", s.handleSettings)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// httpStatus maps an error code to a response status.
func httpStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeSessionActive:
		return http.StatusConflict
	case apperrors.CodeInvalidArgument, apperrors.CodeConfigInvalid:
		return http.StatusBadRequest
	case apperrors.CodeModelLoadFailed, apperrors.CodeCameraUnavailable,
		apperrors.CodeAudioUnavailable, apperrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	tc, _ := trace.FromContext(r.Context())
	writeJSON(w, httpStatus(err), ErrorMessage{
		Type:    "error",
		Code:    apperrors.CodeOf(err).String(),
		Message: err.Error(),
		TraceID: tc.TraceID,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var p settings.Patch
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, r, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "decode settings"))
		return
	}

	updated, err := s.ctrl.UpdateSettings(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	seconds := 0
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > MaxHistorySeconds {
			writeError(w, r, apperrors.Newf(apperrors.CodeInvalidArgument, "seconds must be an integer in [0, %d]", MaxHistorySeconds))
			return
		}
		seconds = n
	}

	events := s.ctrl.History(seconds)
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	cl := newClient()
	s.mu.Lock()
	s.conns[conn] = cl
	s.mu.Unlock()
	s.metrics.WSConnections.Add(1)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.metrics.WSConnections.Add(-1)
	}()

	baseCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)
	go s.writeEvents(baseCtx, conn, cl)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !cl.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{
				Type:    "error",
				Code:    "RATE_LIMITED",
				Message: "rate limit exceeded",
			})
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{
				Type:    "error",
				Code:    apperrors.CodeInvalidArgument.String(),
				Message: "malformed message",
			})
			continue
		}

		ctx := trace.FromMessage(baseCtx, msg.TraceID)
		s.handleCommand(ctx, conn, msg)
	}
}

func (s *Server) handleCommand(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	ctx, span := trace.StartSpan(ctx, "ws_"+msg.Type)
	defer span.End()

	var err error
	switch msg.Type {
	case "start":
		err = s.ctrl.Start(ctx)
	case "stop":
		err = s.ctrl.Stop(ctx)
	case "settings":
		_, err = s.ctrl.UpdateSettings(ctx, msg.patch())
	case "status":
	default:
		err = apperrors.Newf(apperrors.CodeInvalidArgument, "unknown message type %q", msg.Type)
	}

	tc, _ := trace.FromContext(ctx)
	if err != nil {
		span.Fail(err)
		_ = wsjson.Write(ctx, conn, ErrorMessage{
			Type:    "error",
			Code:    apperrors.CodeOf(err).String(),
			Message: err.Error(),
			TraceID: tc.TraceID,
		})
		return
	}
	_ = wsjson.Write(ctx, conn, StatusMessage{Type: "status", TraceID: tc.TraceID, Status: s.ctrl.Status()})
}

// broadcastEvents fans controller events out to every connection.
func (s *Server) broadcastEvents() {
	for evt := range s.ctrl.Events() {
		s.broadcast(evt)
	}
}

// broadcast queues evt for every connection. A client whose queue is full
// misses the event rather than stalling the others.
func (s *Server) broadcast(evt history.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cl := range s.conns {
		select {
		case cl.send <- evt:
		default:
			slog.Debug("websocket client lagging, event dropped", "type", evt.Kind)
		}
	}
}

// writeEvents sends queued events to conn in order until ctx ends or a
// write fails.
func (s *Server) writeEvents(ctx context.Context, conn *websocket.Conn, cl *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-cl.send:
			wctx, cancel := context.WithTimeout(ctx, BroadcastWriteTimeout)
			err := wsjson.Write(wctx, conn, evt)
			cancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket event write failed", "error", err)
				return
			}
		}
	}
}
