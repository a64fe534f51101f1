// Package state persists versioned JSON state on SQLite.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kinds stored by ideapadd.
const (
	KindDesired  = "desired"
	KindObserved = "observed"
)

// Entry is one stored payload with its bookkeeping.
type Entry struct {
	Payload   []byte
	Version   int64
	UpdatedAt time.Time
}

// Store keeps JSON payloads keyed by (kind, id). Every Set bumps the version,
// which is how the enforcement loop notices new desired state.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a store on an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the entry for (kind, id). A missing entry yields a nil payload
// and version 0.
func (s *Store) Get(kind, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		payload   string
		entry     Entry
		updatedAt int64
	)
	err := s.db.QueryRow(`
		SELECT payload, version, updated_at FROM resource_state
		WHERE kind = ? AND id = ?
	`, kind, id).Scan(&payload, &entry.Version, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read %s/%s: %w", kind, id, err)
	}

	entry.Payload = []byte(payload)
	entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return entry, nil
}

// Set stores payload and increments the version.
func (s *Store) Set(kind, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
	`, kind, id, string(payload), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", kind, id, err)
	}

	log.Debug().Str("kind", kind).Str("id", id).RawJSON("payload", payload).Msg("State stored")
	return nil
}

// Delete removes one entry.
func (s *Store) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM resource_state WHERE kind = ? AND id = ?`, kind, id)
	return err
}

// Clear removes every entry of kind, or everything when kind is empty.
func (s *Store) Clear(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if kind == "" {
		_, err = s.db.Exec(`DELETE FROM resource_state`)
	} else {
		_, err = s.db.Exec(`DELETE FROM resource_state WHERE kind = ?`, kind)
	}
	return err
}
