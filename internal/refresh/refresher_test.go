package refresh

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sessionkeeper/internal/clock"
	"sessionkeeper/internal/core"
	"sessionkeeper/internal/storage"
	"sessionkeeper/internal/storage/memory"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type mockBackend struct {
	calls atomic.Int32
	token string
	err   error
	gate  chan struct{} // when set, Refresh blocks until it is closed
}

func (m *mockBackend) Refresh(ctx context.Context) (string, error) {
	m.calls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	if m.err != nil {
		return "", m.err
	}
	return m.token, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setup(t *testing.T, backend *mockBackend) (*Refresher, *storage.CredentialStore, *clock.Mock) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := storage.NewCredentialStore(memory.New())
	return New(backend, store, clk, testLogger()), store, clk
}

func TestRefresher_Success(t *testing.T) {
	backend := &mockBackend{token: "T2"}
	r, store, clk := setup(t, backend)

	cred, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T2", cred.Token)
	assert.True(t, cred.IssuedAt.Equal(clk.Now()))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "T2", stored.Token)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestRefresher_FailureLeavesStoreUntouched(t *testing.T) {
	backend := &mockBackend{err: errors.New("status 401")}
	r, store, _ := setup(t, backend)
	require.NoError(t, store.Save(context.Background(), "T1", time.UnixMilli(1700000000000)))

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrRefreshFailed)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1", stored.Token)
}

func TestRefresher_ConcurrentCallersShareOneCall(t *testing.T) {
	backend := &mockBackend{token: "T2", gate: make(chan struct{})}
	r, _, _ := setup(t, backend)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := r.Refresh(context.Background())
			results[i] = cred.Token
			errs[i] = err
		}(i)
	}

	// Let every caller attach to the flight before releasing it
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.gate)
	wg.Wait()

	assert.Equal(t, int32(1), backend.calls.Load())
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "T2", results[i])
	}
}

func TestRefresher_InvalidateDropsLateWrite(t *testing.T) {
	backend := &mockBackend{token: "late", gate: make(chan struct{})}
	r, store, _ := setup(t, backend)

	done := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)

	// Logout happens while the refresh is on the wire
	r.Invalidate()
	require.NoError(t, store.Clear(context.Background()))
	close(backend.gate)

	assert.ErrorIs(t, <-done, core.ErrSessionEnded)
	cred, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cred, "late refresh must not resurrect the credential")
}

func TestRefresher_CallerContextBoundsWaitOnly(t *testing.T) {
	backend := &mockBackend{token: "T2", gate: make(chan struct{})}
	r, store, _ := setup(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.Refresh(ctx)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The shared flight still completes and persists
	close(backend.gate)
	require.Eventually(t, func() bool {
		cred, err := store.Load(context.Background())
		return err == nil && cred != nil && cred.Token == "T2"
	}, time.Second, time.Millisecond)
}
