package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_AdvanceFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)

	var fired []string
	m.AfterFunc(2*time.Minute, func() { fired = append(fired, "second") })
	m.AfterFunc(time.Minute, func() { fired = append(fired, "first") })
	m.AfterFunc(10*time.Minute, func() { fired = append(fired, "late") })

	m.Advance(5 * time.Minute)

	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Equal(t, start.Add(5*time.Minute), m.Now())
	assert.Equal(t, 1, m.Pending())
}

func TestMock_StoppedTimerDoesNotFire(t *testing.T) {
	m := NewMock(time.Now())

	called := false
	timer := m.AfterFunc(time.Second, func() { called = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	m.Advance(time.Minute)
	assert.False(t, called)
	assert.Equal(t, 0, m.Pending())
}

func TestMock_CallbackCanArmFollowUpTimer(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)

	var times []time.Time
	var arm func()
	arm = func() {
		times = append(times, m.Now())
		if len(times) < 3 {
			m.AfterFunc(time.Minute, arm)
		}
	}
	m.AfterFunc(time.Minute, arm)

	m.Advance(10 * time.Minute)

	require.Len(t, times, 3)
	assert.Equal(t, start.Add(time.Minute), times[0])
	assert.Equal(t, start.Add(2*time.Minute), times[1])
	assert.Equal(t, start.Add(3*time.Minute), times[2])
}

func TestRealClock_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	RealClock{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
