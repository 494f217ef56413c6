// Package guard decides whether a navigation may proceed given the session
// state, and records where the client currently is.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sessionkeeper/internal/core"
	"sync"
)

// Redirect targets
const (
	LandingPath   = "/home"
	DashboardPath = "/dashboard"
	LoginPath     = "/login"
)

const maxRedirects = 5

var (
	ErrRedirectLoop = errors.New("too many redirects")
	ErrAborted      = errors.New("navigation aborted")
)

// AuthState exposes the settled session state
type AuthState interface {
	Settled(ctx context.Context) (core.AuthState, error)
}

// Decision is the outcome of resolving a navigation. The zero Decision
// aborts it.
type Decision struct {
	Allow    bool
	Redirect string
}

// Aborted reports whether the navigation neither proceeds nor redirects
func (d Decision) Aborted() bool {
	return !d.Allow && d.Redirect == ""
}

// Guard applies the route access rules
type Guard struct {
	table  *Table
	auth   AuthState
	logger *slog.Logger
}

// New creates a guard over table
func New(table *Table, auth AuthState, logger *slog.Logger) *Guard {
	if table == nil {
		table = DefaultRoutes()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		table:  table,
		auth:   auth,
		logger: logger.With("component", "guard"),
	}
}

// Resolve decides whether path may be entered. It waits for the session
// state to settle first. If ctx ends before that, only the root and routes
// outside the table may be entered; every guarded route is aborted.
func (g *Guard) Resolve(ctx context.Context, path string) Decision {
	state, err := g.auth.Settled(ctx)
	settled := err == nil && state.Settled()
	authenticated := state == core.StateAuthenticated

	if Clean(path) == "/" {
		switch {
		case !settled:
			return Decision{Allow: true}
		case authenticated:
			return Decision{Redirect: DashboardPath}
		default:
			return Decision{Redirect: LandingPath}
		}
	}

	route, _, ok := g.table.Match(path)
	if !ok {
		return Decision{Allow: true}
	}
	if !settled {
		g.logger.Warn("Auth state not settled, aborting navigation", "path", path, "error", err)
		return Decision{}
	}
	if route.RequiresAuth && !authenticated {
		return Decision{Redirect: LoginPath}
	}
	if route.PublicOnly && authenticated {
		return Decision{Redirect: DashboardPath}
	}
	return Decision{Allow: true}
}

// Router follows guard decisions and tracks the current location. It
// satisfies session.Navigator.
type Router struct {
	guard  *Guard
	logger *slog.Logger

	mu      sync.RWMutex
	current string
	history []string
}

// NewRouter creates a router with no current location
func NewRouter(guard *Guard, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		guard:  guard,
		logger: logger.With("component", "router"),
	}
}

// Push navigates to path, following redirects, and returns where the
// navigation ended.
func (r *Router) Push(ctx context.Context, path string) (string, error) {
	target := path
	for range maxRedirects {
		d := r.guard.Resolve(ctx, target)
		if d.Aborted() {
			r.logger.Debug("Navigation aborted", "requested", path, "path", target)
			return "", fmt.Errorf("%w: %s", ErrAborted, target)
		}
		if d.Allow {
			r.mu.Lock()
			r.current = target
			r.history = append(r.history, target)
			r.mu.Unlock()

			r.logger.Debug("Navigated", "requested", path, "path", target)
			return target, nil
		}
		r.logger.Debug("Navigation redirected", "from", target, "to", d.Redirect)
		target = d.Redirect
	}
	return "", fmt.Errorf("%w: %s", ErrRedirectLoop, path)
}

// Navigate is Push without a result
func (r *Router) Navigate(ctx context.Context, path string) {
	if _, err := r.Push(ctx, path); err != nil {
		r.logger.Error("Navigation failed", "path", path, "error", err)
	}
}

// Current returns the current location
func (r *Router) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// History returns every location entered, oldest first
func (r *Router) History() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.history...)
}
