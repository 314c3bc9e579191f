package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/callbridge/config"
	"github.com/room4-2/callbridge/logging"
	"github.com/room4-2/callbridge/telephony"
	"github.com/room4-2/callbridge/tools"
	"github.com/room4-2/callbridge/voicelive"
)

// Manager manages all call sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config
	registry *tools.Registry
	log      *logging.Logger
}

// NewManager creates a session manager with Redis connection
func NewManager(cfg *config.Config, reg *tools.Registry, log *logging.Logger) (*Manager, error) {
	// Try to connect to Redis, but don't fail if unavailable
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Redis unavailable, continue without it
		log.Warn().Err(err).Msg("redis unavailable, session registry disabled")
		redisClient = nil
	}

	return &Manager{
		sessions: make(map[string]*Session),
		redis:    redisClient,
		config:   cfg,
		registry: reg,
		log:      log,
	}, nil
}

// CreateSession dials the voice service and bridges it to an accepted
// media-stream connection. The telephony socket is adopted either way; on
// failure it is closed before returning.
func (sm *Manager) CreateSession(ctx context.Context, mediaConn *websocket.Conn) (*Session, error) {
	sm.mu.Lock()
	if len(sm.sessions) >= sm.config.MaxSessions {
		sm.mu.Unlock()
		mediaConn.Close()
		return nil, fmt.Errorf("maximum sessions reached")
	}
	sm.mu.Unlock()

	sessionID := uuid.New().String()
	callLog := sm.log.Call(sessionID)

	down := telephony.NewConn(mediaConn, callLog.Sub("media"))

	up, err := voicelive.Dial(ctx, voicelive.DialOptions{
		Endpoint:      sm.config.VoiceLiveEndpoint,
		APIKey:        sm.config.VoiceLiveAPIKey,
		APIVersion:    sm.config.VoiceLiveAPIVersion,
		Model:         sm.config.VoiceLiveModel,
		Attempts:      sm.config.DialAttempts,
		Backoff:       sm.config.DialBackoff,
		KeepAlive:     sm.config.KeepAlive,
		MaxMessageLen: sm.config.MaxMessageLen,
	}, callLog.Sub("voicelive"))
	if err != nil {
		down.Close()
		return nil, fmt.Errorf("voice service unavailable: %w", err)
	}

	session := New(sessionID, down, up, sm.registry, sm.config, callLog, sm.forget)

	if err := sm.admit(ctx, sessionID, session); err != nil {
		session.Close()
		return nil, err
	}

	if err := session.Start(); err != nil {
		sm.RemoveSession(ctx, sessionID)
		return nil, fmt.Errorf("session handshake failed: %w", err)
	}

	metricSessionsTotal.Inc()
	metricSessionsActive.Inc()
	callLog.Info().Msg("session established")
	return session, nil
}

// admit stores the session if the cap still holds. The pre-dial cap check
// is advisory only; this one, in the same critical section as the insert,
// is authoritative.
func (sm *Manager) admit(ctx context.Context, sessionID string, session *Session) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxSessions {
		return fmt.Errorf("maximum sessions reached")
	}
	sm.storeSession(ctx, sessionID, session)
	return nil
}

// storeSession saves a session to memory and Redis. Caller holds the lock.
func (sm *Manager) storeSession(ctx context.Context, sessionID string, session *Session) {
	sm.sessions[sessionID] = session

	if sm.redis != nil {
		sm.redis.HSet(ctx, "session:"+sessionID, map[string]interface{}{
			"created_at":    session.CreatedAt.Format(time.RFC3339),
			"last_activity": session.LastActivity().Format(time.RFC3339),
			"status":        "active",
		})
		sm.redis.SAdd(ctx, "active_sessions", sessionID)
		sm.redis.Expire(ctx, "session:"+sessionID, sm.config.SessionTimeout)
	}
}

// forget drops a session that closed itself.
func (sm *Manager) forget(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[sessionID]; !exists {
		return
	}
	delete(sm.sessions, sessionID)
	metricSessionsActive.Dec()

	if sm.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sm.redis.Del(ctx, "session:"+sessionID)
		sm.redis.SRem(ctx, "active_sessions", sessionID)
	}
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	return session, exists
}

// RemoveSession cleans up and removes a session
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.RLock()
	session, exists := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !exists {
		return nil
	}

	// Close triggers forget via the session's close hook.
	session.Close()
	return nil
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions removes sessions that have been inactive
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.RLock()
	var stale []*Session
	now := time.Now()
	for _, session := range sm.sessions {
		if now.Sub(session.LastActivity()) > sm.config.SessionTimeout {
			stale = append(stale, session)
		}
	}
	sm.mu.RUnlock()

	for _, session := range stale {
		sm.log.Info().Str("call", session.ID[:8]).Msg("closing inactive session")
		session.Close()
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all sessions
func (sm *Manager) Shutdown() {
	sm.mu.RLock()
	open := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		open = append(open, session)
	}
	sm.mu.RUnlock()

	for _, session := range open {
		session.Close()
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}
