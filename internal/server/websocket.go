package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/auth"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Dev-friendly, secure via proxy in prod
}

type wsRequest struct {
	Message   string `json:"message"`
	Persona   string `json:"persona,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type wsResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Intent    string `json:"intent"`
}

// handleWS serves a persistent chat connection. Each client frame is
// one turn; each server frame is the finished response.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	userID := ""
	if userCtx, err := auth.GetUserContext(r.Context()); err == nil {
		userID = userCtx.UserID
	}

	conn.SetReadLimit(8192)
	conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	sessionID := r.URL.Query().Get("session_id")
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			continue
		}
		if req.SessionID != "" {
			sessionID = req.SessionID
		}

		sess, err := s.sessions.GetOrCreateSession(r.Context(), sessionID, userID, req.Persona)
		if err != nil {
			s.logger.Error("Session resolution failed", zap.Error(err))
			return
		}
		sessionID = sess.ID

		persona := sess.Persona
		if req.Persona != "" {
			persona = string(personas.Normalize(req.Persona))
			if persona != sess.Persona {
				if err := s.sessions.SetPersona(r.Context(), sess.ID, persona); err != nil {
					s.logger.Warn("Persona update failed",
						zap.String("session_id", sess.ID), zap.Error(err))
				}
			}
		}

		result := s.engine.RunTurn(r.Context(), req.Message, persona, sessionID)
		if err := s.sessions.AddExchange(r.Context(), sessionID, req.Message, result.Response, result.Intent); err != nil {
			s.logger.Warn("History append failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}

		conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err := conn.WriteJSON(wsResponse{
			Response:  result.Response,
			SessionID: sessionID,
			Intent:    result.Intent,
		}); err != nil {
			return
		}
	}
}
