// Package server exposes the chat engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/auth"
	"github.com/heroes-chatbot/orchestrator/internal/config"
	"github.com/heroes-chatbot/orchestrator/internal/orchestration"
	"github.com/heroes-chatbot/orchestrator/internal/session"
)

// ChatEngine runs one conversational turn to completion.
type ChatEngine interface {
	RunTurn(ctx context.Context, userMessage, personaID, sessionID string) orchestration.Result
}

// Server hosts the chat API.
type Server struct {
	engine   ChatEngine
	sessions *session.Manager
	authMW   *auth.Middleware
	logger   *zap.Logger

	httpServer *http.Server
}

// NewServer wires the chat API. authCfg controls whether bearer tokens
// are required on /api and /ws routes.
func NewServer(engine ChatEngine, sessions *session.Manager, authCfg config.AuthConfig, logger *zap.Logger) *Server {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		logger:   logger,
	}
	if authCfg.Enabled {
		jwtManager := auth.NewJWTManager(authCfg.JWTSecret, 24*time.Hour)
		s.authMW = auth.NewMiddleware(jwtManager, authCfg.SkipAuth)
	}
	return s
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/personas", s.handlePersonas)
	mux.HandleFunc("/api/personas/", s.handlePersonaIntro)
	mux.HandleFunc("/api/sessions/reset", s.handleSessionReset)
	mux.HandleFunc("/ws/chat", s.handleWS)

	var handler http.Handler = mux
	if s.authMW != nil {
		handler = s.authMW.HTTPMiddleware(mux)
	}
	return handler
}

// Start serves the API on the given port until Shutdown is called.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("Chat API listening", zap.Int("port", port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("chat API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
