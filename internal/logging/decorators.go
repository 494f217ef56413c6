package logging

import (
	"context"
	"log/slog"
	"sessionkeeper/internal/core"
	"sessionkeeper/internal/session"
	"time"
)

// SessionLogger wraps a session.Manager and logs all state-changing calls
type SessionLogger struct {
	manager session.Manager
	logger  *slog.Logger
}

// NewSessionLogger creates a new logging decorator for session.Manager
func NewSessionLogger(manager session.Manager, logger *slog.Logger) session.Manager {
	return &SessionLogger{
		manager: manager,
		logger:  logger.With("interface", "SessionManager"),
	}
}

func (l *SessionLogger) InitAuth(ctx context.Context) core.AuthState {
	start := time.Now()
	l.logger.Info("InitAuth called",
		"state", l.manager.State())

	state := l.manager.InitAuth(ctx)

	l.logger.Info("InitAuth completed",
		"state", state,
		"duration", time.Since(start))

	return state
}

func (l *SessionLogger) Login(ctx context.Context, token string) error {
	start := time.Now()
	l.logger.Info("Login called", TokenFingerprint(token))

	err := l.manager.Login(ctx, token)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("Login failed",
			"duration", duration,
			"error", err)
		return err
	}

	l.logger.Info("Login completed",
		"state", l.manager.State(),
		"duration", duration)

	return nil
}

func (l *SessionLogger) Logout(ctx context.Context) {
	start := time.Now()
	l.logger.Info("Logout called",
		"state", l.manager.State())

	l.manager.Logout(ctx)

	l.logger.Info("Logout completed",
		"state", l.manager.State(),
		"duration", time.Since(start))
}

func (l *SessionLogger) LogoutAllSessions(ctx context.Context) {
	start := time.Now()
	l.logger.Info("LogoutAllSessions called",
		"state", l.manager.State())

	l.manager.LogoutAllSessions(ctx)

	l.logger.Info("LogoutAllSessions completed",
		"state", l.manager.State(),
		"duration", time.Since(start))
}

// Read-only methods are passed through without logging

func (l *SessionLogger) State() core.AuthState {
	return l.manager.State()
}

func (l *SessionLogger) IsAuthenticated() bool {
	return l.manager.IsAuthenticated()
}
