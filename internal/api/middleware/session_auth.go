package middleware

import (
	"sessionkeeper/internal/idgen"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionCookie names the cookie that carries the server session
const SessionCookie = "SESSIONID"

// DefaultSessionDuration is how long a server session stays refreshable
const DefaultSessionDuration = 7 * 24 * time.Hour

// ServerSession is a refreshable login of one user
type ServerSession struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// SessionManager manages server sessions
type SessionManager struct {
	sessions map[string]*ServerSession
	mu       sync.RWMutex
	duration time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a new session manager and starts cleaning up
// expired sessions every cleanupInterval. A zero duration uses
// DefaultSessionDuration.
func NewSessionManager(duration, cleanupInterval time.Duration) *SessionManager {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	sm := &SessionManager{
		sessions: make(map[string]*ServerSession),
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go sm.cleanupExpiredSessions(cleanupInterval)
	}
	return sm
}

// Duration returns the lifetime of new sessions
func (sm *SessionManager) Duration() time.Duration {
	return sm.duration
}

// CreateSession creates a new session for a user
func (sm *SessionManager) CreateSession(userID string) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sessionID := idgen.New()
	sm.sessions[sessionID] = &ServerSession{
		SessionID: sessionID,
		UserID:    userID,
		ExpiresAt: sm.now().Add(sm.duration),
	}
	return sessionID
}

// ValidateSession checks if a session is valid and returns the user ID
func (sm *SessionManager) ValidateSession(sessionID string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return "", false
	}
	if sm.now().After(session.ExpiresAt) {
		return "", false
	}
	return session.UserID, true
}

// DeleteSession removes a session (logout)
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.sessions, sessionID)
}

// DeleteUserSessions removes every session of a user and returns how many
// were removed
func (sm *SessionManager) DeleteUserSessions(userID string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	for id, session := range sm.sessions {
		if session.UserID == userID {
			delete(sm.sessions, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Close stops the cleanup goroutine
func (sm *SessionManager) Close() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}

// cleanupExpiredSessions periodically removes expired sessions
func (sm *SessionManager) cleanupExpiredSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.purgeExpired()
		}
	}
}

func (sm *SessionManager) purgeExpired() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	for sessionID, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, sessionID)
		}
	}
}

// SessionAuth resolves the session cookie. It never aborts; handlers check
// GetSessionUser to decide.
func SessionAuth(sm *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookie)
		if err == nil && sessionID != "" {
			if userID, valid := sm.ValidateSession(sessionID); valid {
				c.Set(sessionIDKey, sessionID)
				c.Set(sessionUserKey, userID)
			}
		}
		c.Next()
	}
}

const (
	sessionIDKey   = "session_id"
	sessionUserKey = "session_user_id"
)

// GetSessionUser returns the session and user resolved by SessionAuth
func GetSessionUser(c *gin.Context) (sessionID, userID string, ok bool) {
	sessionID = c.GetString(sessionIDKey)
	userID = c.GetString(sessionUserKey)
	return sessionID, userID, sessionID != "" && userID != ""
}
