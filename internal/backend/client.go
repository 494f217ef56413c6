// Package backend talks to the authentication endpoints of the API server.
//
// The long-lived session proof is a cookie set by the server on login. It is
// kept in the client's cookie jar and never handled by callers directly.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sessionkeeper/internal/core"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Endpoint paths
const (
	PathRegister          = "/api/v1/auth/register"
	PathLogin             = "/api/v1/auth/login"
	PathRefresh           = "/api/v1/auth/refresh"
	PathLogout            = "/api/v1/auth/logout"
	PathLogoutAllSessions = "/api/v1/auth/logoutAllSessions"
)

var (
	ErrRevokeFailed = errors.New("session revocation failed")
	ErrLoginFailed  = errors.New("login failed")
	ErrNoToken      = errors.New("response did not contain an access token")
)

// RegisterRequest is the account creation payload
type RegisterRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login, register and refresh
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Client is an HTTP client for the auth endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client with its own cookie jar
func NewClient(baseURL string, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return NewClientWithHTTPClient(baseURL, &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	}, logger), nil
}

// NewClientWithHTTPClient creates a client around an existing http.Client.
// The client must carry a cookie jar for refresh and logout to work.
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "auth-backend"),
	}
}

// HTTPClient returns the underlying client, sharing the cookie jar
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// BaseURL returns the server base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Refresh exchanges the session cookie for a new access token.
// Any non-2xx response is reported as core.ErrRefreshFailed.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	c.logger.Debug("attempting silent token refresh")

	status, body, err := c.post(ctx, PathRefresh, nil, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
	}
	if !isSuccess(status) {
		return "", fmt.Errorf("%w: status %d", core.ErrRefreshFailed, status)
	}

	token, err := decodeToken(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
	}

	c.logger.Debug("new access token received")
	return token, nil
}

// Logout revokes the current server session
func (c *Client) Logout(ctx context.Context) error {
	return c.revoke(ctx, PathLogout, "")
}

// LogoutAllSessions revokes every session of the account. The server
// requires a valid bearer token for this call.
func (c *Client) LogoutAllSessions(ctx context.Context, bearer string) error {
	return c.revoke(ctx, PathLogoutAllSessions, bearer)
}

// Login authenticates with email and password and returns the access token.
// On success the server also sets the session cookie.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}
	return c.authenticate(ctx, PathLogin, payload)
}

// Register creates an account and returns the access token
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal register request: %w", err)
	}
	return c.authenticate(ctx, PathRegister, payload)
}

func (c *Client) authenticate(ctx context.Context, path string, payload []byte) (string, error) {
	status, body, err := c.post(ctx, path, payload, "")
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", fmt.Errorf("%w: status %d: %s", ErrLoginFailed, status, strings.TrimSpace(string(body)))
	}
	return decodeToken(body)
}

func (c *Client) revoke(ctx context.Context, path, bearer string) error {
	status, _, err := c.post(ctx, path, nil, bearer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRevokeFailed, err)
	}
	if !isSuccess(status) {
		return fmt.Errorf("%w: status %d", ErrRevokeFailed, status)
	}
	return nil
}

// post sends a POST and returns the status code and body
func (c *Client) post(ctx context.Context, path string, payload []byte, bearer string) (int, []byte, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid base URL: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func decodeToken(body []byte) (string, error) {
	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", ErrNoToken
	}
	return tr.AccessToken, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
