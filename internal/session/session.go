// Package session owns the authentication state of one client session.
//
// A Session starts in core.StateUnknown. InitAuth reconciles the stored
// credential against the clock exactly once and settles the state; Login,
// Logout and LogoutAllSessions move it between authenticated and
// unauthenticated afterwards. Consumers that gate on the state, such as the
// route guard, must call Settled before trusting it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sessionkeeper/internal/clock"
	"sessionkeeper/internal/core"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoginPath is where logout navigates to
const DefaultLoginPath = "/login"

// Store persists the credential pair
type Store interface {
	Save(ctx context.Context, token string, issuedAt time.Time) error
	Load(ctx context.Context) (*core.Credential, error)
	Clear(ctx context.Context) error
}

// Refresher renews the access token
type Refresher interface {
	Refresh(ctx context.Context) (core.Credential, error)
	Invalidate()
}

// Scheduler arms background refreshes
type Scheduler interface {
	Start()
	StartAfter(d time.Duration)
	Stop()
	Pending() bool
	OnFailure(fn func(error))
}

// Revoker revokes server-side sessions
type Revoker interface {
	Logout(ctx context.Context) error
	LogoutAllSessions(ctx context.Context, bearer string) error
}

// Navigator moves the UI to another route
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// Publisher announces state changes to other observers
type Publisher interface {
	PublishState(ctx context.Context, state core.AuthState) error
}

// Manager is the session API exposed to the UI
type Manager interface {
	InitAuth(ctx context.Context) core.AuthState
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context)
	LogoutAllSessions(ctx context.Context)
	State() core.AuthState
	IsAuthenticated() bool
}

// Deps are the collaborators of a Session. Navigator and Publisher are optional.
type Deps struct {
	Store     Store
	Refresher Refresher
	Scheduler Scheduler
	Revoker   Revoker
	Navigator Navigator
	Publisher Publisher
	Clock     clock.Clock
	Logger    *slog.Logger
}

var ErrMissingDependency = errors.New("session dependency is required")

// Option customizes a Session
type Option func(*Session)

// WithPolicy overrides the token policy
func WithPolicy(p core.Policy) Option {
	return func(s *Session) { s.policy = p }
}

// WithLoginPath overrides the path logout navigates to
func WithLoginPath(path string) Option {
	return func(s *Session) { s.loginPath = path }
}

// Session is the authentication state machine
type Session struct {
	store     Store
	refresher Refresher
	scheduler Scheduler
	revoker   Revoker
	navigator Navigator
	publisher Publisher
	clock     clock.Clock
	logger    *slog.Logger
	policy    core.Policy
	loginPath string

	// transition serializes state-changing operations end to end
	transition sync.Mutex

	mu    sync.RWMutex
	state core.AuthState

	init singleflight.Group
}

// New creates a session in StateUnknown and subscribes it to background
// refresh failures.
func New(deps Deps, opts ...Option) (*Session, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case deps.Refresher == nil:
		return nil, fmt.Errorf("%w: refresher", ErrMissingDependency)
	case deps.Scheduler == nil:
		return nil, fmt.Errorf("%w: scheduler", ErrMissingDependency)
	case deps.Revoker == nil:
		return nil, fmt.Errorf("%w: revoker", ErrMissingDependency)
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Session{
		store:     deps.Store,
		refresher: deps.Refresher,
		scheduler: deps.Scheduler,
		revoker:   deps.Revoker,
		navigator: deps.Navigator,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		logger:    deps.Logger.With("component", "session"),
		policy:    core.DefaultPolicy(),
		loginPath: DefaultLoginPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}

	s.scheduler.OnFailure(s.handleRefreshFailure)
	return s, nil
}

// SetNavigator attaches the navigator after construction, for routers that
// themselves depend on the session.
func (s *Session) SetNavigator(n Navigator) {
	s.transition.Lock()
	defer s.transition.Unlock()
	s.navigator = n
}

// State returns the current state
func (s *Session) State() core.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether the state is StateAuthenticated
func (s *Session) IsAuthenticated() bool {
	return s.State() == core.StateAuthenticated
}

// Policy returns the token policy in use
func (s *Session) Policy() core.Policy {
	return s.policy
}

// InitAuth reconciles the stored credential with the clock and settles the
// state. Concurrent calls share one reconciliation; once the state is settled
// it is returned as is. Failures end up as StateUnauthenticated, never as
// errors.
func (s *Session) InitAuth(ctx context.Context) core.AuthState {
	if st := s.State(); st.Settled() {
		return st
	}

	v, _, _ := s.init.Do("init", func() (any, error) {
		if st := s.State(); st.Settled() {
			return st, nil
		}
		return s.reconcile(context.WithoutCancel(ctx)), nil
	})
	return v.(core.AuthState)
}

// Settled returns the settled state, running InitAuth if needed. It returns
// ctx.Err() if ctx ends first.
func (s *Session) Settled(ctx context.Context) (core.AuthState, error) {
	if st := s.State(); st.Settled() {
		return st, nil
	}

	done := make(chan core.AuthState, 1)
	go func() { done <- s.InitAuth(ctx) }()

	select {
	case st := <-done:
		return st, nil
	case <-ctx.Done():
		return core.StateUnknown, ctx.Err()
	}
}

func (s *Session) reconcile(ctx context.Context) core.AuthState {
	cred, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to load stored credential", "error", err)
		cred = nil
	}

	if cred == nil {
		return s.settle(ctx, func() core.AuthState {
			s.logger.Info("No stored access token, clearing local auth")
			s.clearStore(ctx)
			return core.StateUnauthenticated
		})
	}

	now := s.clock.Now()
	if cred.Expired(s.policy, now) {
		s.logger.Info("Token expired, trying silent refresh",
			"issued_at", cred.IssuedAt,
			"expired_at", cred.ExpiresAt(s.policy))

		_, refreshErr := s.refresher.Refresh(ctx)
		return s.settle(ctx, func() core.AuthState {
			if refreshErr != nil {
				s.logger.Warn("Silent refresh failed", "error", refreshErr)
				s.scheduler.Stop()
				s.clearStore(ctx)
				return core.StateUnauthenticated
			}
			s.scheduler.Start()
			return core.StateAuthenticated
		})
	}

	return s.settle(ctx, func() core.AuthState {
		delay := cred.RefreshIn(s.policy, now)
		s.logger.Info("Valid token, scheduling refresh", "delay", delay)
		s.scheduler.StartAfter(delay)
		return core.StateAuthenticated
	})
}

// settle applies a reconciliation outcome unless a login or logout already
// settled the state while reconciliation was running.
func (s *Session) settle(ctx context.Context, apply func() core.AuthState) core.AuthState {
	s.transition.Lock()
	defer s.transition.Unlock()

	if st := s.State(); st.Settled() {
		return st
	}
	st := apply()
	s.setState(ctx, st)
	return st
}

// Login stores token as issued now and starts the refresh cycle
func (s *Session) Login(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrEmptyToken
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	s.scheduler.Stop()
	s.refresher.Invalidate()

	if err := s.store.Save(ctx, token, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	s.scheduler.Start()
	s.setState(ctx, core.StateAuthenticated)
	s.logger.Info("Login successful")
	return nil
}

// Logout ends the session locally and revokes it on the server. A failed
// revocation is logged and does not stop the local logout.
func (s *Session) Logout(ctx context.Context) {
	s.logout(ctx, func(ctx context.Context) error {
		return s.revoker.Logout(ctx)
	})
}

// LogoutAllSessions ends the session locally and revokes every session of
// the account on the server.
func (s *Session) LogoutAllSessions(ctx context.Context) {
	s.logout(ctx, func(ctx context.Context) error {
		var bearer string
		if cred, err := s.store.Load(ctx); err == nil && cred != nil {
			bearer = cred.Token
		}
		return s.revoker.LogoutAllSessions(ctx, bearer)
	})
}

func (s *Session) logout(ctx context.Context, revoke func(context.Context) error) {
	s.transition.Lock()

	s.scheduler.Stop()
	s.refresher.Invalidate()

	if err := revoke(ctx); err != nil {
		s.logger.Warn("Backend logout failed", "error", err)
	} else {
		s.logger.Info("Backend session revoked")
	}

	s.clearStore(context.WithoutCancel(ctx))
	s.setState(ctx, core.StateUnauthenticated)
	navigator := s.navigator
	s.transition.Unlock()

	s.logger.Info("Logout successful")
	if navigator != nil {
		navigator.Navigate(ctx, s.loginPath)
	}
}

// LogoutLocal ends the session without contacting the server or navigating.
// It applies a logout that already happened elsewhere.
func (s *Session) LogoutLocal(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()

	if s.State() == core.StateUnauthenticated {
		return
	}
	s.scheduler.Stop()
	s.refresher.Invalidate()
	s.clearStore(context.WithoutCancel(ctx))
	s.setState(ctx, core.StateUnauthenticated)
}

// Reload adopts a credential written to the store by another client. It is
// a no-op when the store holds no valid credential.
func (s *Session) Reload(ctx context.Context) core.AuthState {
	s.transition.Lock()
	defer s.transition.Unlock()

	cred, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to reload stored credential", "error", err)
		return s.State()
	}
	now := s.clock.Now()
	if cred == nil || cred.Expired(s.policy, now) {
		return s.State()
	}

	s.scheduler.StartAfter(cred.RefreshIn(s.policy, now))
	s.setState(ctx, core.StateAuthenticated)
	return core.StateAuthenticated
}

// Close stops background work
func (s *Session) Close() {
	s.scheduler.Stop()
}

// handleRefreshFailure deauthenticates after a failed background refresh
func (s *Session) handleRefreshFailure(err error) {
	if errors.Is(err, core.ErrSessionEnded) {
		return
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	// A cycle armed after the failure belongs to a newer login
	if s.State() != core.StateAuthenticated || s.scheduler.Pending() {
		return
	}
	ctx := context.Background()
	s.logger.Warn("Background refresh failed, ending session", "error", err)
	s.clearStore(ctx)
	s.setState(ctx, core.StateUnauthenticated)
}

func (s *Session) clearStore(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("Failed to clear stored credential", "error", err)
	}
}

// setState records st and publishes it if it changed. Callers hold transition.
func (s *Session) setState(ctx context.Context, st core.AuthState) {
	if !st.Settled() {
		return
	}

	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	if prev == st {
		return
	}
	s.logger.Debug("Auth state changed", "from", prev, "to", st)

	// Settling to unauthenticated on startup changes nothing for other instances
	if prev == core.StateUnknown && st == core.StateUnauthenticated {
		return
	}
	if s.publisher != nil {
		if err := s.publisher.PublishState(context.WithoutCancel(ctx), st); err != nil {
			s.logger.Warn("Failed to publish state change", "state", st, "error", err)
		}
	}
}

var _ Manager = (*Session)(nil)
