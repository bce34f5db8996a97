package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
	"github.com/heroes-chatbot/orchestrator/internal/config"
	"github.com/heroes-chatbot/orchestrator/internal/orchestration"
	"github.com/heroes-chatbot/orchestrator/internal/session"
)

type stubEngine struct {
	response string
	intent   string
	calls    []string
}

func (s *stubEngine) RunTurn(_ context.Context, userMessage, personaID, sessionID string) orchestration.Result {
	s.calls = append(s.calls, userMessage)
	return orchestration.Result{Response: s.response, Intent: s.intent, Steps: 3}
}

func testServer(t *testing.T, engine ChatEngine, authCfg config.AuthConfig) (*Server, *session.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
	sessions := session.NewManagerWithClient(wrapper, config.SessionConfig{}, zaptest.NewLogger(t))
	t.Cleanup(func() { sessions.Close() })
	return NewServer(engine, sessions, authCfg, zaptest.NewLogger(t)), sessions
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatCreatesSessionAndRecordsHistory(t *testing.T) {
	engine := &stubEngine{response: "단기 시세보다 기업의 가치를 보세요.", intent: "PHILOSOPHY"}
	srv, sessions := testServer(t, engine, config.AuthConfig{})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/api/chat", chatRequest{
		Message: "투자 철학이 궁금합니다",
		Persona: "buffett",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, engine.response, resp.Response)
	assert.Equal(t, "PHILOSOPHY", resp.Intent)
	assert.Equal(t, "buffett", resp.Persona)
	assert.NotEmpty(t, resp.SessionID)

	sess, err := sessions.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	assert.Equal(t, "user", sess.History[0].Role)
	assert.Equal(t, "투자 철학이 궁금합니다", sess.History[0].Content)
	assert.Equal(t, "assistant", sess.History[1].Role)
	assert.Equal(t, "PHILOSOPHY", sess.History[1].Intent)
}

func TestChatReusesSession(t *testing.T) {
	engine := &stubEngine{response: "answer", intent: "SMALLTALK"}
	srv, _ := testServer(t, engine, config.AuthConfig{})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/api/chat", chatRequest{Message: "안녕하세요", Persona: "lynch"})
	require.Equal(t, http.StatusOK, rec.Code)
	var first chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&first))

	rec = postJSON(t, handler, "/api/chat", chatRequest{Message: "반가워요", SessionID: first.SessionID})
	require.Equal(t, http.StatusOK, rec.Code)
	var second chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "lynch", second.Persona)
	assert.Len(t, engine.calls, 2)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _ := testServer(t, &stubEngine{}, config.AuthConfig{})
	rec := postJSON(t, srv.Handler(), "/api/chat", chatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersonaEndpoints(t *testing.T) {
	srv, _ := testServer(t, &stubEngine{}, config.AuthConfig{})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/personas", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Personas []personaSummary `json:"personas"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Personas, 3)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/personas/wood/intro", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var intro map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&intro))
	assert.Equal(t, "wood", intro["persona"])
	assert.NotEmpty(t, intro["intro"])

	// unknown personas normalize to the default mentor
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/personas/nobody/intro", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionReset(t *testing.T) {
	engine := &stubEngine{response: "answer", intent: "SMALLTALK"}
	srv, sessions := testServer(t, engine, config.AuthConfig{})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/api/chat", chatRequest{Message: "안녕", Persona: "buffett"})
	var resp chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	rec = postJSON(t, handler, "/api/sessions/reset", resetRequest{SessionID: resp.SessionID})
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := sessions.GetSession(context.Background(), resp.SessionID)
	assert.Error(t, err)
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	srv, _ := testServer(t, &stubEngine{response: "answer"}, config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
	})
	rec := postJSON(t, srv.Handler(), "/api/chat", chatRequest{Message: "안녕"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocketChat(t *testing.T) {
	engine := &stubEngine{response: "주가는 장기적으로 가치를 따릅니다.", intent: "PHILOSOPHY"}
	srv, sessions := testServer(t, engine, config.AuthConfig{})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsRequest{Message: "투자 철학 알려주세요", Persona: "buffett"}))

	var resp wsResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, engine.response, resp.Response)
	assert.Equal(t, "PHILOSOPHY", resp.Intent)
	assert.NotEmpty(t, resp.SessionID)

	// second turn reuses the session assigned on the first
	require.NoError(t, conn.WriteJSON(wsRequest{Message: "좀 더 설명해주세요"}))
	var second wsResponse
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, resp.SessionID, second.SessionID)

	// switching persona mid-connection persists on the session
	require.NoError(t, conn.WriteJSON(wsRequest{Message: "혁신 기업 이야기해주세요", Persona: "wood"}))
	var third wsResponse
	require.NoError(t, conn.ReadJSON(&third))
	sess, err := sessions.GetSession(context.Background(), third.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "wood", sess.Persona)
}
