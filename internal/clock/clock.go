// Package clock abstracts wall-clock time and one-shot timers so the refresh
// scheduler can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending one-shot callback
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

// Clock interface abstracts time operations for testing
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// AfterFunc waits for d to elapse and then calls f in its own goroutine
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock implements Clock using the real system time
type RealClock struct{}

// Now returns the current time
func (RealClock) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Mock implements Clock for testing. Timers fire synchronously from Advance.
type Mock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
	seq     int
}

type mockTimer struct {
	mock    *Mock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// NewMock creates a mock clock set to t
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

// Now returns the mocked current time
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AfterFunc registers f to run once the mocked time reaches Now()+d
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &mockTimer{mock: m, at: m.current.Add(d), seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the mocked time forward by d and runs every timer that
// became due, in deadline order. Timers armed by a callback run in the same
// call if they are due too.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.current.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.current = target
			m.mu.Unlock()
			return
		}
		if next.at.After(m.current) {
			m.current = next.at
		}
		next.fired = true
		m.removeLocked(next)
		m.mu.Unlock()

		next.fn()
	}
}

// Set sets the mocked current time without firing timers
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Pending returns the number of armed timers
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Mock) nextDueLocked(target time.Time) *mockTimer {
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	return m.timers[0]
}

func (m *Mock) removeLocked(t *mockTimer) {
	for i, candidate := range m.timers {
		if candidate == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.mock.removeLocked(t)
	return true
}

// Ensure implementations satisfy the interface
var (
	_ Clock = RealClock{}
	_ Clock = (*Mock)(nil)
)
