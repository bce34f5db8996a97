// Package session keeps per-user conversation state in Redis with a
// small local cache in front of it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
	"github.com/heroes-chatbot/orchestrator/internal/config"
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
)

const defaultMaxCachedSessions = 10000

// Manager handles session management with a Redis backend
type Manager struct {
	client     *circuitbreaker.RedisWrapper
	logger     *zap.Logger
	ttl        time.Duration
	maxHistory int

	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time
	maxSessions int

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewManager connects to Redis and returns a session manager
func NewManager(cfg config.SessionConfig, logger *zap.Logger) (*Manager, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewManagerWithClient(client, cfg, logger), nil
}

// NewManagerWithClient wraps an existing Redis client, mainly for tests
func NewManagerWithClient(client *circuitbreaker.RedisWrapper, cfg config.SessionConfig, logger *zap.Logger) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &Manager{
		client:          client,
		logger:          logger,
		ttl:             ttl,
		maxHistory:      maxHistory,
		localCache:      make(map[string]*Session),
		cacheAccess:     make(map[string]time.Time),
		maxSessions:     defaultMaxCachedSessions,
		cleanupInterval: cfg.CleanupInterval,
		stopCh:          make(chan struct{}),
	}
}

// CreateSession creates a new session bound to a persona
func (m *Manager) CreateSession(ctx context.Context, userID, personaID string) (*Session, error) {
	return m.createSession(ctx, uuid.New().String(), userID, personaID)
}

// GetOrCreateSession returns the session with the given ID, creating it
// when it does not exist yet
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID, userID, personaID string) (*Session, error) {
	if sessionID == "" {
		return m.CreateSession(ctx, userID, personaID)
	}
	session, err := m.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return m.createSession(ctx, sessionID, userID, personaID)
	}
	return nil, err
}

func (m *Manager) createSession(ctx context.Context, sessionID, userID, personaID string) (*Session, error) {
	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		Persona:   string(personas.Normalize(personaID)),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		ExpiresAt: time.Now().Add(m.ttl),
		History:   make([]Message, 0),
	}

	if err := m.saveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[sessionID] = session
	m.cacheAccess[sessionID] = time.Now()
	m.cleanupLocalCache()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Created new session",
		zap.String("session_id", sessionID),
		zap.String("persona", session.Persona),
	)
	metrics.SessionsCreated.Inc()
	return session, nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if session, ok := m.localCache[sessionID]; ok {
		m.mu.RUnlock()
		metrics.SessionCacheHits.Inc()
		if session.IsExpired() {
			m.DeleteSession(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.RUnlock()
	metrics.SessionCacheMisses.Inc()

	key := m.sessionKey(sessionID)
	data, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.IsExpired() {
		m.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &session
	m.cacheAccess[sessionID] = time.Now()
	m.cleanupLocalCache()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	return &session, nil
}

// UpdateSession persists an existing session
func (m *Manager) UpdateSession(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	session.UpdatedAt = time.Now()

	if err := m.saveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.mu.Unlock()
	return nil
}

// DeleteSession removes a session everywhere
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	key := m.sessionKey(sessionID)
	if err := m.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

// SetPersona switches the session to a different persona. History is
// kept so the new persona sees the conversation so far.
func (m *Manager) SetPersona(ctx context.Context, sessionID, personaID string) error {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Persona = string(personas.Normalize(personaID))
	return m.UpdateSession(ctx, session)
}

// AddExchange appends one user turn and its response to the history
func (m *Manager) AddExchange(ctx context.Context, sessionID, userMessage, response, intent string) error {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	session.History = append(session.History,
		Message{ID: uuid.New().String(), Role: "user", Content: userMessage, Intent: intent, Timestamp: now},
		Message{ID: uuid.New().String(), Role: "assistant", Content: response, Intent: intent, Timestamp: now},
	)
	if len(session.History) > m.maxHistory {
		session.History = session.History[len(session.History)-m.maxHistory:]
	}
	return m.UpdateSession(ctx, session)
}

// CleanupExpired scans Redis and removes expired sessions
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.client.Keys(ctx, "session:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		if session.IsExpired() {
			if err := m.client.Del(ctx, key).Err(); err == nil {
				cleaned++
			}
		}
	}

	m.logger.Info("Cleaned up expired sessions", zap.Int("count", cleaned))
	return cleaned, nil
}

// StartCleanup runs periodic expiry sweeps until Close is called
func (m *Manager) StartCleanup() {
	interval := m.cleanupInterval
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := m.CleanupExpired(ctx); err != nil {
					m.logger.Warn("Session cleanup failed", zap.Error(err))
				}
				cancel()
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *Manager) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (m *Manager) saveSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := m.sessionKey(session.ID)
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, key, data, ttl).Err()
}

func (m *Manager) cleanupLocalCache() {
	if len(m.localCache) <= m.maxSessions {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.localCache))
	for id := range m.localCache {
		accessTime, exists := m.cacheAccess[id]
		if !exists {
			accessTime = time.Time{}
		}
		entries = append(entries, accessEntry{id: id, time: accessTime})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.maxSessions / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
		metrics.SessionCacheEvictions.Inc()
	}
}

// Close shuts down cleanup and the Redis connection
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return m.client.Close()
}

// RedisWrapper exposes the underlying client for health checks
func (m *Manager) RedisWrapper() *circuitbreaker.RedisWrapper {
	return m.client
}
