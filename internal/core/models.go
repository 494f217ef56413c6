package core

import (
	"errors"
	"fmt"
	"time"
)

// AuthState is the tri-state authentication flag of a session
type AuthState int

const (
	StateUnknown AuthState = iota
	StateAuthenticated
	StateUnauthenticated
)

// String returns the lowercase name of the state
func (s AuthState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// ParseAuthState parses the output of String
func ParseAuthState(s string) (AuthState, error) {
	switch s {
	case "authenticated":
		return StateAuthenticated, nil
	case "unauthenticated":
		return StateUnauthenticated, nil
	case "unknown":
		return StateUnknown, nil
	default:
		return StateUnknown, fmt.Errorf("%w: %q", ErrInvalidAuthState, s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s AuthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *AuthState) UnmarshalText(text []byte) error {
	st, err := ParseAuthState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Settled reports whether reconciliation has resolved the state
func (s AuthState) Settled() bool {
	return s == StateAuthenticated || s == StateUnauthenticated
}

// Default token policy
const (
	DefaultTokenLifetime   = 15 * time.Minute
	DefaultRefreshLeadTime = 60 * time.Second
)

// Policy holds the timing rules for access tokens
type Policy struct {
	TokenLifetime   time.Duration // how long an access token is valid after issuance
	RefreshLeadTime time.Duration // how long before expiry the background refresh fires
}

// DefaultPolicy returns the 15 minute / 60 second reference policy
func DefaultPolicy() Policy {
	return Policy{
		TokenLifetime:   DefaultTokenLifetime,
		RefreshLeadTime: DefaultRefreshLeadTime,
	}
}

// RefreshDelay is the delay between issuing a token and refreshing it
func (p Policy) RefreshDelay() time.Duration {
	d := p.TokenLifetime - p.RefreshLeadTime
	if d < 0 {
		return 0
	}
	return d
}

// Validate validates the policy
func (p Policy) Validate() error {
	if p.TokenLifetime <= 0 {
		return ErrInvalidPolicy
	}
	if p.RefreshLeadTime < 0 || p.RefreshLeadTime >= p.TokenLifetime {
		return ErrInvalidPolicy
	}
	return nil
}

// Credential is the stored access token and the instant it was accepted
type Credential struct {
	Token    string
	IssuedAt time.Time
}

// ExpiresAt returns the instant the token stops being valid
func (c Credential) ExpiresAt(p Policy) time.Time {
	return c.IssuedAt.Add(p.TokenLifetime)
}

// RefreshAt returns the instant the background refresh should fire
func (c Credential) RefreshAt(p Policy) time.Time {
	return c.ExpiresAt(p).Add(-p.RefreshLeadTime)
}

// Expired reports whether now is strictly past the expiry instant
func (c Credential) Expired(p Policy, now time.Time) bool {
	return now.After(c.ExpiresAt(p))
}

// RefreshIn returns the time left until RefreshAt, clamped to zero
func (c Credential) RefreshIn(p Policy, now time.Time) time.Duration {
	d := c.RefreshAt(p).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Session lifecycle errors
var (
	ErrInvalidPolicy    = errors.New("token lifetime must be positive and exceed the refresh lead time")
	ErrRefreshFailed    = errors.New("refresh failed")
	ErrSessionEnded     = errors.New("session ended while refresh was in flight")
	ErrEmptyToken       = errors.New("access token cannot be empty")
	ErrInvalidAuthState = errors.New("invalid auth state")
)
