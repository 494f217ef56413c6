package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sessionkeeper/internal/core"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, testLogger())
	require.NoError(t, err)
	return client
}

func TestClient_Refresh_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathRefresh, r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"), "refresh never carries the access token")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "T2"})
	})

	token, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
}

func TestClient_Refresh_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "missing token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{})
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.Refresh(context.Background())
			assert.ErrorIs(t, err, core.ErrRefreshFailed)
		})
	}
}

func TestClient_Refresh_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(url, testLogger())
	require.NoError(t, err)

	_, err = client.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrRefreshFailed)
}

func TestClient_SessionCookieRoundTrip(t *testing.T) {
	var refreshCookie string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathLogin:
			var req loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ada@example.com", req.Email)
			assert.Equal(t, "secret", req.Password)
			http.SetCookie(w, &http.Cookie{Name: "SESSIONID", Value: "sess-1", Path: "/"})
			json.NewEncoder(w).Encode(map[string]string{"accessToken": "T1"})
		case PathRefresh:
			if c, err := r.Cookie("SESSIONID"); err == nil {
				refreshCookie = c.Value
			}
			json.NewEncoder(w).Encode(map[string]string{"accessToken": "T2"})
		}
	})

	token, err := client.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "T1", token)

	token, err = client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
	assert.Equal(t, "sess-1", refreshCookie, "refresh carries the session cookie")
}

func TestClient_Login_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"bad credentials"}`))
	})

	_, err := client.Login(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestClient_Register(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathRegister, r.URL.Path)
		var req RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Ada", req.Firstname)
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "T1"})
	})

	token, err := client.Register(context.Background(), RegisterRequest{
		Firstname: "Ada",
		Lastname:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", token)
}

func TestClient_Logout(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, PathLogout, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Logout(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestClient_LogoutAllSessions_SendsBearer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathLogoutAllSessions, r.URL.Path)
		assert.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.LogoutAllSessions(context.Background(), "T1"))
}

func TestClient_Logout_Failure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	assert.ErrorIs(t, client.Logout(context.Background()), ErrRevokeFailed)
	assert.ErrorIs(t, client.LogoutAllSessions(context.Background(), "T1"), ErrRevokeFailed)
}
