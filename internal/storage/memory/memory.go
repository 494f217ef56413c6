// Package memory implements storage.KeyValue in process memory.
package memory

import (
	"context"
	"sessionkeeper/internal/storage"
	"sync"
)

// Store is a map-backed key/value store
type Store struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// New creates an empty store
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value for key
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, storage.ErrClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

// GetMany returns the present keys under one lock
func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany writes all entries under one lock
func (s *Store) SetMany(ctx context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	for k, v := range entries {
		s.data[k] = v
	}
	return nil
}

// Delete removes the keys under one lock
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close marks the store closed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ storage.KeyValue = (*Store)(nil)
