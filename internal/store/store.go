// Package store persists the single opaque user identifier that lets the
// client restore a session across restarts.
package store

import (
	"context"
	"sync"
)

// KeyUserID is the fixed name the identifier is stored under.
const KeyUserID = "userId"

// Store loads, saves and clears the persisted user identifier. Load returns
// "" and a nil error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
	Close() error
}

// MemoryStore keeps the identifier in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	userID string
}

// NewMemoryStore returns a MemoryStore seeded with userID (may be empty).
func NewMemoryStore(userID string) *MemoryStore {
	return &MemoryStore{userID: userID}
}

func (s *MemoryStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, nil
}

func (s *MemoryStore) Save(_ context.Context, userID string) error {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.userID = ""
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
