package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsIdleWait  = 5 * time.Minute
)

// handleWebSocket upgrades to a WebSocket and answers each inbound
// ChatRequest frame with a ChatResponse frame. Invalid frames get an error
// frame; the connection stays open until the client closes it or idles out.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Warnf("ws_upgrade", "%s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close() //nolint:errcheck // best-effort close

	conn.SetReadLimit(s.cfg.MaxBodyBytes)
	s.log.Debugf("ws_open", "client %s", r.RemoteAddr)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("ws_close", "client %s: %v", r.RemoteAddr, err)
			}
			return
		}

		var frame any
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			frame = errorResponse{Error: "invalid JSON frame"}
		} else if resp, err := s.chat(req); err != nil {
			frame = errorResponse{Error: err.Error()}
		} else {
			frame = resp
		}
		if !s.writeFrame(conn, frame) {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(v); err != nil {
		s.log.Debugf("ws_write", "%v", err)
		return false
	}
	return true
}

// statusRecorder captures the response status for instrumentation while
// still allowing the WebSocket upgrade to hijack the connection.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
