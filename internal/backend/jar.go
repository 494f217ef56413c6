package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sessionkeeper/internal/storage"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// KeySessionCookies holds the server's persistent cookies as JSON
const KeySessionCookies = "sessionCookies"

type storedCookie struct {
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Expires  time.Time     `json:"expires"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"httpOnly,omitempty"`
	SameSite http.SameSite `json:"sameSite,omitempty"`
}

func (c storedCookie) httpCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}
}

// PersistentJar is a cookie jar that keeps the persistent cookies set by the
// API server in a key/value store, so the session proof outlives the process
// the same way it outlives a browser reload. Session cookies and cookies of
// other hosts stay in memory only.
type PersistentJar struct {
	jar    *cookiejar.Jar
	kv     storage.KeyValue
	origin *url.URL
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	cookies map[string]storedCookie
}

// NewPersistentJar creates a jar for the server at baseURL and restores the
// unexpired cookies previously stored in kv
func NewPersistentJar(ctx context.Context, baseURL string, kv storage.KeyValue, logger *slog.Logger) (*PersistentJar, error) {
	origin, err := url.Parse(baseURL)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &PersistentJar{
		jar:     jar,
		kv:      kv,
		origin:  &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"},
		now:     time.Now,
		logger:  logger.With("component", "cookie-jar"),
		cookies: make(map[string]storedCookie),
	}
	if err := j.restore(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *PersistentJar) restore(ctx context.Context) error {
	raw, ok, err := j.kv.Get(ctx, KeySessionCookies)
	if err != nil {
		return fmt.Errorf("failed to load session cookies: %w", err)
	}
	if !ok {
		return nil
	}

	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		j.logger.Warn("Ignoring unreadable stored cookies", "error", err)
		return nil
	}

	now := j.now()
	restored := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if !c.Expires.After(now) {
			continue
		}
		j.cookies[c.Name] = c
		restored = append(restored, c.httpCookie())
	}
	j.jar.SetCookies(j.origin, restored)
	j.logger.Debug("Restored session cookies", "count", len(restored))
	return nil
}

// SetCookies implements http.CookieJar
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
	if !j.sameOrigin(u) || len(cookies) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		switch {
		case c.MaxAge < 0, !c.Expires.IsZero() && !c.Expires.After(now):
			delete(j.cookies, c.Name)
		case c.MaxAge > 0:
			j.cookies[c.Name] = storedFrom(c, now.Add(time.Duration(c.MaxAge)*time.Second))
		case !c.Expires.IsZero():
			j.cookies[c.Name] = storedFrom(c, c.Expires)
		default:
			// Session cookie replacing a persistent one
			delete(j.cookies, c.Name)
		}
	}
	j.persistLocked()
}

// Cookies implements http.CookieJar
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *PersistentJar) persistLocked() {
	ctx := context.Background()
	if len(j.cookies) == 0 {
		if err := j.kv.Delete(ctx, KeySessionCookies); err != nil {
			j.logger.Warn("Failed to clear stored cookies", "error", err)
		}
		return
	}

	stored := make([]storedCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		stored = append(stored, c)
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		j.logger.Warn("Failed to encode cookies", "error", err)
		return
	}
	if err := j.kv.SetMany(ctx, map[string]string{KeySessionCookies: string(raw)}); err != nil {
		j.logger.Warn("Failed to store cookies", "error", err)
	}
}

func (j *PersistentJar) sameOrigin(u *url.URL) bool {
	return u != nil && u.Scheme == j.origin.Scheme && strings.EqualFold(u.Host, j.origin.Host)
}

func storedFrom(c *http.Cookie, expires time.Time) storedCookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return storedCookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     path,
		Expires:  expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}
}

var _ http.CookieJar = (*PersistentJar)(nil)
