package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// PebbleStore keeps the identifier in a local PebbleDB directory, the
// terminal equivalent of browser local storage.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (creating if needed) the store under dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("store: open pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(context.Context) (string, error) {
	val, closer, err := s.db.Get([]byte(KeyUserID))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get: %w", err)
	}
	// val is only valid until closer is closed.
	id := string(val)
	_ = closer.Close()
	return id, nil
}

func (s *PebbleStore) Save(_ context.Context, userID string) error {
	if err := s.db.Set([]byte(KeyUserID), []byte(userID), pebble.Sync); err != nil {
		return fmt.Errorf("store: set: %w", err)
	}
	return nil
}

func (s *PebbleStore) Clear(context.Context) error {
	if err := s.db.Delete([]byte(KeyUserID), pebble.Sync); err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
