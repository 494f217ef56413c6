// Package refresh runs the token renewal protocol shared by the background
// scheduler, the request client and startup reconciliation.
//
// Concurrent callers share a single in-flight backend call. A refresh that
// completes after Invalidate was called (logout, or a newer login) is
// discarded instead of overwriting the store.
package refresh

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

const flightKey = "refresh"

// Backend performs the renewal call
type Backend interface {
	Refresh(ctx context.Context) (string, error)
}

// Store persists the renewed credential
type Store interface {
	Save(ctx context.Context, token string, issuedAt time.Time) error
}

// Refresher renews the access token with single-flight semantics
type Refresher struct {
	backend Backend
	store   Store
	clock   clock.Clock
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	epoch uint64
}

// New creates a refresher
func New(backend Backend, store Store, clk clock.Clock, logger *slog.Logger) *Refresher {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		backend: backend,
		store:   store,
		clock:   clk,
		logger:  logger.With("component", "refresher"),
	}
}

// Refresh obtains a new access token and persists it. Callers arriving while
// a refresh is in flight wait for that one instead of starting another.
// The caller's context only bounds its own wait.
func (r *Refresher) Refresh(ctx context.Context) (core.Credential, error) {
	ch := r.group.DoChan(flightKey, func() (any, error) {
		return r.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return core.Credential{}, res.Err
		}
		if res.Shared {
			r.logger.Debug("joined in-flight refresh")
		}
		return res.Val.(core.Credential), nil
	case <-ctx.Done():
		return core.Credential{}, ctx.Err()
	}
}

// Invalidate discards the result of any refresh currently in flight and
// detaches it so later callers start a new one.
func (r *Refresher) Invalidate() {
	r.mu.Lock()
	r.epoch++
	r.mu.Unlock()
	r.group.Forget(flightKey)
}

func (r *Refresher) refresh(ctx context.Context) (core.Credential, error) {
	r.mu.Lock()
	epoch := r.epoch
	r.mu.Unlock()

	start := r.clock.Now()
	token, err := r.backend.Refresh(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrRefreshFailed) {
			err = fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
		}
		r.logger.Warn("silent refresh failed", "error", err)
		return core.Credential{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.epoch != epoch {
		r.logger.Info("discarding refresh that completed after session change")
		return core.Credential{}, core.ErrSessionEnded
	}

	cred := core.Credential{Token: token, IssuedAt: r.clock.Now()}
	if err := r.store.Save(ctx, cred.Token, cred.IssuedAt); err != nil {
		r.logger.Error("failed to persist refreshed token", "error", err)
		return core.Credential{}, fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
	}

	r.logger.Debug("access token refreshed", "duration", r.clock.Now().Sub(start))
	return cred, nil
}
