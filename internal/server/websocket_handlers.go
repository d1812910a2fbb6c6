package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/medscan/internal/capture"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, you should check against allowed origins
		return true
	},
}

// StreamRequest is a client message on the session stream. Frames may
// also arrive as raw binary messages carrying just the image bytes.
type StreamRequest struct {
	Type  string `json:"type"`            // "frame", "confirm", "decline", "stop"
	Image []byte `json:"image,omitempty"` // base64 in JSON
}

// StreamResponse is a server message on the session stream.
type StreamResponse struct {
	Type    string           `json:"type"` // "session" or "error"
	Session *SessionResponse `json:"session,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// sessionStreamHandler upgrades to WebSocket and feeds streamed frames
// into the capture session. After every frame the client receives the
// session snapshot, so it always knows whether to keep streaming, ask
// the user to confirm manually, or stop.
func (s *Server) sessionStreamHandler(w http.ResponseWriter, r *http.Request, ss *serverSession) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("Session stream established", "session_id", ss.sess.ID, "remote_addr", r.RemoteAddr)

	s.handleStreamConnection(r, conn, ss)
}

// handleStreamConnection processes messages from a session stream.
func (s *Server) handleStreamConnection(r *http.Request, conn *websocket.Conn, ss *serverSession) {
	// Read deadline prevents hanging connections; pongs extend it.
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	// Initial snapshot so late-joining clients learn the current state.
	s.sendStreamResponse(conn, ss.snapshot())

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("Session stream error", "session_id", ss.sess.ID, "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		var done bool
		switch messageType {
		case websocket.BinaryMessage:
			done = s.handleStreamFrame(r, conn, ss, data)
		case websocket.TextMessage:
			done = s.handleStreamMessage(r, conn, ss, data)
		}
		if done {
			return
		}
	}
}

// handleStreamMessage processes a JSON control message. It reports true
// once the session can make no further progress on this stream.
func (s *Server) handleStreamMessage(r *http.Request, conn *websocket.Conn, ss *serverSession, data []byte) bool {
	var req StreamRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendStreamError(conn, "Failed to parse request: "+err.Error())
		return false
	}

	switch req.Type {
	case "frame":
		return s.handleStreamFrame(r, conn, ss, req.Image)
	case "confirm", "decline":
		var ev capture.Event = capture.EventDecline{}
		if req.Type == "confirm" {
			ev = capture.EventConfirm{}
		}
		ss.mu.Lock()
		effects := ss.sess.Apply(ev, time.Now())
		s.noteFinalStateLocked(ss)
		ss.mu.Unlock()
		for _, eff := range effects {
			if e, ok := eff.(capture.EffectEmitRecord); ok {
				s.emitRecord(r.Context(), ss, e)
			}
		}
		s.sendStreamResponse(conn, ss.snapshot())
		return true
	case "stop":
		ss.mu.Lock()
		ss.sess.Apply(capture.EventStop{}, time.Now())
		s.noteFinalStateLocked(ss)
		ss.mu.Unlock()
		s.sendStreamResponse(conn, ss.snapshot())
		return true
	default:
		s.sendStreamError(conn, "Unsupported request type: "+req.Type)
		return false
	}
}

// handleStreamFrame runs one frame through the pipeline and sends the
// resulting snapshot. It reports true when the session has left the
// frame-accepting states.
func (s *Server) handleStreamFrame(r *http.Request, conn *websocket.Conn, ss *serverSession, image []byte) bool {
	if len(image) == 0 {
		s.sendStreamError(conn, "No image data provided")
		return false
	}

	snap := s.processFrame(r.Context(), ss, image)
	s.sendStreamResponse(conn, snap)

	switch snap.State {
	case capture.StateCapturing, capture.StateValidating, capture.StateRetryPending:
		return false
	default:
		return true
	}
}

// sendStreamResponse sends a session snapshot over the stream.
func (s *Server) sendStreamResponse(conn *websocket.Conn, snap SessionResponse) {
	s.writeStream(conn, StreamResponse{Type: "session", Session: &snap})
}

// sendStreamError sends an error message over the stream.
func (s *Server) sendStreamError(conn *websocket.Conn, message string) {
	s.writeStream(conn, StreamResponse{Type: "error", Error: message})
}

func (s *Server) writeStream(conn *websocket.Conn, resp StreamResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to marshal stream response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send stream message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
