package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/auth"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
)

type chatRequest struct {
	Message   string `json:"message"`
	Persona   string `json:"persona"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Persona   string `json:"persona"`
	Intent    string `json:"intent"`
}

// handleChat runs one turn: resolve the session, execute the engine,
// append the exchange to history.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	userID := ""
	if userCtx, err := auth.GetUserContext(r.Context()); err == nil {
		userID = userCtx.UserID
	}

	sess, err := s.sessions.GetOrCreateSession(r.Context(), req.SessionID, userID, req.Persona)
	if err != nil {
		s.logger.Error("Session resolution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	// An explicit persona on the request overrides the stored one.
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

	result := s.engine.RunTurn(r.Context(), req.Message, persona, sess.ID)

	if err := s.sessions.AddExchange(r.Context(), sess.ID, req.Message, result.Response, result.Intent); err != nil {
		s.logger.Warn("History append failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  result.Response,
		SessionID: sess.ID,
		Persona:   persona,
		Intent:    result.Intent,
	})
}

type personaSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Intro string `json:"intro"`
}

// handlePersonas lists the available mentor personas.
func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	out := make([]personaSummary, 0, len(personas.All()))
	for _, id := range personas.All() {
		p := personas.Get(id)
		out = append(out, personaSummary{ID: string(p.ID), Name: p.Name, Intro: p.Intro})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"personas": out})
}

// handlePersonaIntro serves GET /api/personas/{id}/intro.
func (s *Server) handlePersonaIntro(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/personas/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "intro" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	p := personas.Get(personas.Normalize(parts[0]))
	writeJSON(w, http.StatusOK, map[string]string{
		"persona": string(p.ID),
		"intro":   p.Intro,
	})
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

// handleSessionReset deletes a session so the next turn starts clean.
func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := s.sessions.DeleteSession(r.Context(), req.SessionID); err != nil {
		s.logger.Error("Session delete failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": req.SessionID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
