// Package client wraps outbound API requests with the stored access token and
// recovers once from an expired token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sessionkeeper/internal/core"
	"time"
)

// Failure reasons reported by AuthError
const (
	ReasonRefreshFailed            = "refresh failed"
	ReasonUnauthorizedAfterRefresh = "unauthorized after refresh"
)

// ErrUnauthorized matches every AuthError via errors.Is
var ErrUnauthorized = errors.New("unauthorized")

// AuthError is returned when a request cannot be authenticated
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnauthorized) true for any AuthError
func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

// TokenSource provides the current credential
type TokenSource interface {
	Load(ctx context.Context) (*core.Credential, error)
}

// Refresher performs a one-shot token renewal
type Refresher interface {
	Refresh(ctx context.Context) (core.Credential, error)
}

// Client sends authenticated requests
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	refresher  Refresher
	logger     *slog.Logger
}

// New creates a client. A nil httpClient uses a client with a 30s timeout.
func New(httpClient *http.Client, tokens TokenSource, refresher Refresher, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		refresher:  refresher,
		logger:     logger.With("component", "auth-client"),
	}
}

// Do sends req with the stored bearer token. On a 401 it refreshes the token
// once and retries once. Responses other than 401 are returned unchanged,
// whatever their status.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	discard(resp)

	c.logger.Warn("access token rejected, attempting refresh", "url", req.URL.String())
	if _, err := c.refresher.Refresh(ctx); err != nil {
		return nil, &AuthError{Reason: ReasonRefreshFailed, Err: err}
	}

	resp, err = c.send(ctx, req, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		c.logger.Error("still unauthorized after refresh", "url", req.URL.String())
		return nil, &AuthError{Reason: ReasonUnauthorizedAfterRefresh}
	}
	return resp, nil
}

// Get sends an authenticated GET
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.Do(req)
}

// PostJSON sends v as a JSON body with an authenticated POST
func (c *Client) PostJSON(ctx context.Context, url string, v any) (*http.Response, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.Do(req)
}

// send dispatches a fresh copy of req carrying the current token
func (c *Client) send(ctx context.Context, req *http.Request, body func() (io.ReadCloser, error)) (*http.Response, error) {
	out := req.Clone(ctx)
	out.Header.Del("Authorization")
	if body != nil {
		rc, err := body()
		if err != nil {
			return nil, fmt.Errorf("failed to replay request body: %w", err)
		}
		out.Body = rc
	}

	cred, err := c.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if cred != nil {
		out.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.httpClient.Do(out)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// snapshotBody returns a function producing a fresh copy of the request body
// for every attempt, or nil if the request has none.
func snapshotBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
