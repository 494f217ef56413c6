package guard

import (
	"context"
	"log/slog"
	"os"
	"sessionkeeper/internal/core"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuth struct {
	state core.AuthState
	err   error
	calls int
}

func (a *staticAuth) Settled(ctx context.Context) (core.AuthState, error) {
	a.calls++
	return a.state, a.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTable_Match(t *testing.T) {
	table := DefaultRoutes()

	tests := []struct {
		path   string
		name   string
		params Params
		ok     bool
	}{
		{path: "/dashboard", name: "Dashboard", params: Params{}, ok: true},
		{path: "/dashboard/", name: "Dashboard", params: Params{}, ok: true},
		{path: "/login?next=/team", name: "Login", params: Params{}, ok: true},
		{path: "/project/42", name: "ProjectPage", params: Params{"projectId": "42"}, ok: true},
		{path: "/project/42/assignments", name: "Assignments", params: Params{"projectId": "42"}, ok: true},
		{path: "/project/update/42", name: "UpdateProjectPage", params: Params{"projectId": "42"}, ok: true},
		{path: "/projects/create", name: "CreateProject", params: Params{}, ok: true},
		{path: "/nowhere", ok: false},
		{path: "/project", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, params, ok := table.Match(tt.path)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.name, route.Name)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestTable_StaticSegmentBeatsParameter(t *testing.T) {
	table := NewTable(
		Route{Path: "/project/:projectId", Name: "ProjectPage"},
		Route{Path: "/project/new", Name: "NewProject"},
	)

	route, _, ok := table.Match("/project/new")
	require.True(t, ok)
	assert.Equal(t, "NewProject", route.Name)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "/", Clean(""))
	assert.Equal(t, "/", Clean("/?x=1"))
	assert.Equal(t, "/team", Clean("/team/#top"))
}

func TestGuard_Resolve(t *testing.T) {
	tests := []struct {
		name  string
		state core.AuthState
		path  string
		want  Decision
	}{
		{"root unauthenticated", core.StateUnauthenticated, "/", Decision{Redirect: "/home"}},
		{"root authenticated", core.StateAuthenticated, "/", Decision{Redirect: "/dashboard"}},
		{"protected unauthenticated", core.StateUnauthenticated, "/projects", Decision{Redirect: "/login"}},
		{"protected authenticated", core.StateAuthenticated, "/projects", Decision{Allow: true}},
		{"param route unauthenticated", core.StateUnauthenticated, "/project/7", Decision{Redirect: "/login"}},
		{"public only unauthenticated", core.StateUnauthenticated, "/login", Decision{Allow: true}},
		{"public only authenticated", core.StateAuthenticated, "/register", Decision{Redirect: "/dashboard"}},
		{"unknown route", core.StateUnauthenticated, "/nowhere", Decision{Allow: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(DefaultRoutes(), &staticAuth{state: tt.state}, testLogger())
			assert.Equal(t, tt.want, g.Resolve(context.Background(), tt.path))
		})
	}
}

func TestGuard_UnsettledStateAbortsGuardedRoutes(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Decision
	}{
		{"protected", "/dashboard", Decision{}},
		{"protected with params", "/project/7", Decision{}},
		{"public only", "/login", Decision{}},
		{"root", "/", Decision{Allow: true}},
		{"unknown route", "/nowhere", Decision{Allow: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &staticAuth{state: core.StateUnknown, err: context.Canceled}
			g := New(DefaultRoutes(), auth, testLogger())

			d := g.Resolve(context.Background(), tt.path)

			assert.Equal(t, tt.want, d)
			assert.Equal(t, 1, auth.calls)
		})
	}
}

func TestGuard_UnknownStateWithoutErrorIsNotFinal(t *testing.T) {
	g := New(DefaultRoutes(), &staticAuth{state: core.StateUnknown}, testLogger())

	assert.True(t, g.Resolve(context.Background(), "/settings").Aborted())
}

func TestRouter_CancelledWaitKeepsProtectedRouteClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRouter(New(nil, &staticAuth{state: core.StateUnknown, err: ctx.Err()}, testLogger()), testLogger())

	got, err := r.Push(ctx, "/settings")

	assert.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, got)
	assert.Empty(t, r.Current())
	assert.Empty(t, r.History())
}

func TestRouter_FollowsRedirects(t *testing.T) {
	r := NewRouter(New(nil, &staticAuth{state: core.StateUnauthenticated}, testLogger()), testLogger())

	got, err := r.Push(context.Background(), "/")

	require.NoError(t, err)
	assert.Equal(t, "/home", got)
	assert.Equal(t, "/home", r.Current())

	r.Navigate(context.Background(), "/settings")
	assert.Equal(t, "/login", r.Current())
	assert.Equal(t, []string{"/home", "/login"}, r.History())
}

func TestRouter_RedirectLoop(t *testing.T) {
	table := NewTable(
		Route{Path: "/a", Name: "A", RequiresAuth: true},
		Route{Path: "/login", Name: "Login", RequiresAuth: true},
	)
	r := NewRouter(New(table, &staticAuth{state: core.StateUnauthenticated}, testLogger()), testLogger())

	_, err := r.Push(context.Background(), "/a")

	assert.ErrorIs(t, err, ErrRedirectLoop)
	assert.Empty(t, r.Current())
}
