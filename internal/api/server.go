// Package api serves the compliance pipeline over HTTP and WebSocket.
//
// Endpoints:
//
//	POST /api/scan            - analyse a text {"text":"..."}
//	POST /api/chat            - analyse a chat message and record it in its session
//	GET  /api/sessions        - session summaries, sorted by id
//	GET  /api/sessions/{id}   - one session with its messages and violations
//	GET  /api/violations      - recent journal entries (?limit=n)
//	GET  /ws/chat             - WebSocket, one ChatRequest in, one ChatResponse out
//	GET  /health              - liveness
//	GET  /status              - uptime and runtime settings
//	GET  /stats               - JSON metrics snapshot
//	GET  /metrics             - Prometheus exposition
//
// When a token is configured, /api and /ws routes require it as a bearer
// token.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/net/netutil"

	"pii-compliance-agent/internal/config"
	"pii-compliance-agent/internal/logger"
	"pii-compliance-agent/internal/pipeline"
	"pii-compliance-agent/internal/session"
)

// Version is reported by /health.
const Version = "1.0.0"

const (
	defaultViolationLimit = 50
	maxViolationLimit     = 1000
	shutdownTimeout       = 5 * time.Second
)

// Server is the API server.
type Server struct {
	cfg       *config.Config
	pipeline  *pipeline.Pipeline
	log       *logger.Logger
	startTime time.Time
	token     string // bearer token; empty = no auth
	newID     func() string
	upgrader  websocket.Upgrader
}

// New creates an API server over p.
func New(cfg *config.Config, p *pipeline.Pipeline, l *logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		pipeline:  p,
		log:       l,
		startTime: time.Now(),
		token:     cfg.APIToken,
		newID:     uuid.NewString,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are API consumers, not browsers; auth is the bearer token.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if s.token != "" {
		l.Info("auth", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/scan", s.authMiddleware(http.HandlerFunc(s.handleScan)))
	mux.Handle("POST /api/chat", s.authMiddleware(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /api/sessions", s.authMiddleware(http.HandlerFunc(s.handleSessions)))
	mux.Handle("GET /api/sessions/{id}", s.authMiddleware(http.HandlerFunc(s.handleSession)))
	mux.Handle("GET /api/violations", s.authMiddleware(http.HandlerFunc(s.handleViolations)))
	if s.cfg.EnableWebSocket {
		mux.Handle("GET /ws/chat", s.authMiddleware(http.HandlerFunc(s.handleWebSocket)))
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", s.pipeline.Metrics().Handler())
	return s.instrument(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("auth", "unauthorized request from %s to %s", r.RemoteAddr, r.URL.Path)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument counts every request by matched route pattern and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.pipeline.Metrics().RecordRequest(route, rec.status)
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !s.decode(w, r, &req) {
		return
	}
	start := time.Now()
	result := s.pipeline.Run(req.Text)
	resp := newScanResponse(result, time.Since(start))
	s.log.Infof("scan", "%d PII item(s), score %.2f, %dms", len(result.Detections), result.Score, resp.ProcessingTime)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.chat(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var errMissingUser = errors.New("invalid request: user_id is required")

// chat runs one chat message through the pipeline. It backs both the HTTP
// and WebSocket chat endpoints.
func (s *Server) chat(req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return ChatResponse{}, errMissingUser
	}
	msg := session.ChatMessage{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		CreatedAt: time.Now(),
		Content:   req.Content,
		IsUser:    req.IsUser == nil || *req.IsUser,
	}
	if msg.SessionID == "" {
		msg.SessionID = s.newID()
	}
	if msg.MessageID == "" {
		msg.MessageID = s.newID()
	}

	start := time.Now()
	result, out := s.pipeline.RunForSession(msg)
	resp := ChatResponse{
		ScanResponse:     newScanResponse(result, time.Since(start)),
		SessionID:        msg.SessionID,
		MessageID:        msg.MessageID,
		SessionRiskLevel: out.RiskLevel,
		Violation:        out.Violation,
	}
	s.log.Infof("chat", "session %s: %d PII item(s), risk %s", msg.SessionID, len(result.Detections), out.RiskLevel)
	return resp, nil
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sums := s.pipeline.Store().List()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sums,
		"count":    len(sums),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.pipeline.Store().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	limit := defaultViolationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxViolationLimit)
	}
	entries, err := s.pipeline.Journal().Recent(limit)
	if err != nil {
		s.log.Errorf("violations", "journal read: %v", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"violations": entries,
		"count":      len(entries),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pii-compliance-agent",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status    string `json:"status"`
		Uptime    string `json:"uptime"`
		Sessions  int    `json:"sessions"`
		Auth      bool   `json:"auth"`
		WebSocket bool   `json:"websocket"`
		Journal   string `json:"journal"`
	}
	journal := s.cfg.JournalPath
	if journal == "" {
		journal = "memory"
	}
	writeJSON(w, http.StatusOK, response{
		Status:    "running",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Sessions:  s.pipeline.Store().Len(),
		Auth:      s.token != "",
		WebSocket: s.cfg.EnableWebSocket,
		Journal:   journal,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Metrics().Snapshot())
}

// decode reads a size-limited JSON body into v, writing the error response
// itself when it fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] JSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. Cleartext HTTP/2 (h2c) is accepted alongside HTTP/1.1, and
// at most MaxConns connections are served at once when MaxConns > 0.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}
	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		MaxReadFrameSize:     1 << 20, // 1 MiB
		IdleTimeout:          90 * time.Second,
	}
	srv := &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), h2s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("shutdown", "forced: %v", err)
		}
	}()

	s.log.Infof("listen", "serving on %s", ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		s.log.Info("shutdown", "server stopped")
		return nil
	}
	return err
}
