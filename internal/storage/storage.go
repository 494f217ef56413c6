package storage

import (
	"context"
	"errors"
	"fmt"
	"sessionkeeper/internal/core"
	"strconv"
	"sync"
	"time"
)

// Keys of the two scalar entries that make up a stored credential
const (
	KeyAccessToken = "accessToken"
	KeyIssuedAt    = "accessTokenIssuedAt"
)

var ErrClosed = errors.New("storage is closed")

// KeyValue defines the durable key/value medium credentials live in.
// SetMany and Delete must apply all keys atomically.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// GetMany reads keys in one operation. Absent keys are left out.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, entries map[string]string) error
	Delete(ctx context.Context, keys ...string) error

	// Lifecycle
	Close() error
}

// CredentialStore persists the access token and its issuance instant as a pair
type CredentialStore struct {
	kv KeyValue
	mu sync.Mutex
}

// NewCredentialStore creates a credential store on top of kv
func NewCredentialStore(kv KeyValue) *CredentialStore {
	return &CredentialStore{kv: kv}
}

// Save overwrites the stored credential
func (s *CredentialStore) Save(ctx context.Context, token string, issuedAt time.Time) error {
	if token == "" {
		return core.ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.kv.SetMany(ctx, map[string]string{
		KeyAccessToken: token,
		KeyIssuedAt:    strconv.FormatInt(issuedAt.UnixMilli(), 10),
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Load returns the stored credential, or nil when there is none.
// A missing or unparsable issuance timestamp counts as no credential.
func (s *CredentialStore) Load(ctx context.Context) (*core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Both keys in one read, so another process cannot write between them
	entries, err := s.kv.GetMany(ctx, KeyAccessToken, KeyIssuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	token, raw := entries[KeyAccessToken], entries[KeyIssuedAt]
	if token == "" || raw == "" {
		return nil, nil
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || millis <= 0 {
		return nil, nil
	}

	return &core.Credential{
		Token:    token,
		IssuedAt: time.UnixMilli(millis),
	}, nil
}

// Clear removes both entries
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, KeyAccessToken, KeyIssuedAt); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
