package scheduler

import (
	"context"
	"log/slog"
	"sessionkeeper/internal/clock"
	"sessionkeeper/internal/core"
	"sync"
	"time"
)

// Refresher performs one token renewal
type Refresher interface {
	Refresh(ctx context.Context) (core.Credential, error)
}

// Task is a cancellable one-shot job. Once cancelled it never fires again,
// even if rescheduled.
type Task struct {
	clock clock.Clock
	fn    func(*Task)

	mu        sync.Mutex
	timer     clock.Timer
	cancelled bool
}

func newTask(clk clock.Clock, d time.Duration, fn func(*Task)) *Task {
	t := &Task{clock: clk, fn: fn}
	t.Reschedule(d)
	return t
}

// Reschedule re-arms the task to fire after d, replacing any pending firing
func (t *Task) Reschedule(d time.Duration) {
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(d, t.fire)
}

// Cancel stops the task. Calling it more than once is a no-op.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Cancelled reports whether Cancel was called
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Task) fire() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.fn(t)
}

// Scheduler keeps at most one pending background refresh
type Scheduler struct {
	refresher Refresher
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	task      *Task
	onFailure func(error)
}

// NewScheduler creates a new scheduler. interval is the default delay between
// a successful refresh and the next one.
func NewScheduler(refresher Refresher, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		refresher: refresher,
		clock:     clk,
		interval:  interval,
		logger:    logger.With("component", "refresh-scheduler"),
	}
}

// OnFailure registers the handler called when a background refresh fails
func (s *Scheduler) OnFailure(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// Start arms the next refresh after the default interval
func (s *Scheduler) Start() {
	s.StartAfter(s.interval)
}

// StartAfter cancels any pending refresh and arms a new one after d
func (s *Scheduler) StartAfter(d time.Duration) {
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil {
		s.task.Cancel()
	}
	s.task = newTask(s.clock, d, s.run)
	s.logger.Debug("Refresh scheduled", "delay", d)
}

// Stop cancels the pending refresh, if any
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task == nil {
		return
	}
	s.task.Cancel()
	s.task = nil
	s.logger.Debug("Cleared token refresh timer")
}

// Pending reports whether a refresh cycle is armed
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

// run performs one cycle for task t
func (s *Scheduler) run(t *Task) {
	_, err := s.refresher.Refresh(context.Background())

	s.mu.Lock()
	if s.task != t || t.Cancelled() {
		// Stopped or superseded while the refresh was in flight
		s.mu.Unlock()
		return
	}

	if err == nil {
		t.Reschedule(s.interval)
		s.mu.Unlock()
		s.logger.Debug("Refresh succeeded, next one scheduled", "delay", s.interval)
		return
	}

	s.task = nil
	handler := s.onFailure
	s.mu.Unlock()

	s.logger.Warn("Background refresh failed", "error", err)
	if handler != nil {
		handler(err)
	}
}
