package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scope controls how long a marker lives.
type Scope string

const (
	// ScopeSession markers survive reloads but are cleared when a new
	// session starts (smart-resume retry markers). A new session is either
	// reported by the server or begins after the client sat idle; see
	// BeginSession.
	ScopeSession Scope = "session"
	// ScopeLocal markers survive across sessions (notification last-seen ids).
	ScopeLocal Scope = "local"
)

// Marker is a stored key-value entry.
type Marker struct {
	ID        string
	Scope     Scope
	Key       string
	Value     string
	UpdatedAt time.Time
}

// SetMarker stores or replaces a marker value.
func (s *Store) SetMarker(scope Scope, key, value string) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO markers (id, scope, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			id = excluded.id,
			value = excluded.value,
			updated_at = excluded.updated_at
	`, id, scope, key, value, now)
	if err != nil {
		return fmt.Errorf("upsert marker: %w", err)
	}
	return nil
}

// GetMarker retrieves a marker. ok is false when the key is absent.
func (s *Store) GetMarker(scope Scope, key string) (*Marker, bool, error) {
	var m Marker
	err := s.db.QueryRow(`
		SELECT id, scope, key, value, updated_at
		FROM markers WHERE scope = ? AND key = ?
	`, scope, key).Scan(&m.ID, &m.Scope, &m.Key, &m.Value, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query marker: %w", err)
	}
	return &m, true, nil
}

// DeleteMarker removes a marker. Deleting a missing key is not an error.
func (s *Store) DeleteMarker(scope Scope, key string) error {
	if _, err := s.db.Exec(`DELETE FROM markers WHERE scope = ? AND key = ?`, scope, key); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

// DeletePrefix removes all markers in scope whose key starts with prefix.
func (s *Store) DeletePrefix(scope Scope, prefix string) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM markers WHERE scope = ? AND instr(key, ?) = 1
	`, scope, prefix)
	if err != nil {
		return 0, fmt.Errorf("delete markers by prefix: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// ClearScope removes every marker in a scope.
func (s *Store) ClearScope(scope Scope) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM markers WHERE scope = ?`, scope)
	if err != nil {
		return 0, fmt.Errorf("clear scope: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// CountMarkers returns the number of markers in a scope.
func (s *Store) CountMarkers(scope Scope) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM markers WHERE scope = ?`, scope).Scan(&count)
	return count, err
}

// KV returns a key-value view over one scope.
func (s *Store) KV(scope Scope) *ScopedKV {
	return &ScopedKV{store: s, scope: scope}
}

// ScopedKV adapts a Store scope to a plain Get/Set interface.
type ScopedKV struct {
	store *Store
	scope Scope
}

// Get returns the value for key.
func (kv *ScopedKV) Get(key string) (string, bool, error) {
	m, ok, err := kv.store.GetMarker(kv.scope, key)
	if err != nil || !ok {
		return "", false, err
	}
	return m.Value, true, nil
}

// Set stores value under key.
func (kv *ScopedKV) Set(key, value string) error {
	return kv.store.SetMarker(kv.scope, key, value)
}

// DeletePrefix removes all keys with the prefix.
func (kv *ScopedKV) DeletePrefix(prefix string) error {
	_, err := kv.store.DeletePrefix(kv.scope, prefix)
	return err
}

// sessionActiveKey is the local-scope marker holding the time this client
// was last known to be running.
const sessionActiveKey = "session:last_active"

// BeginSession starts a client session at now. When the previous session
// ended more than idle ago (or never recorded an end), session-scope
// markers are cleared and cleared reports how many were dropped.
func (s *Store) BeginSession(now time.Time, idle time.Duration) (cleared int64, err error) {
	m, ok, err := s.GetMarker(ScopeLocal, sessionActiveKey)
	if err != nil {
		return 0, err
	}
	expired := !ok
	if ok {
		last, perr := time.Parse(time.RFC3339Nano, m.Value)
		expired = perr != nil || now.Sub(last) > idle
	}
	if expired {
		if cleared, err = s.ClearScope(ScopeSession); err != nil {
			return 0, err
		}
	}
	return cleared, s.TouchSession(now)
}

// TouchSession records that the client was running at now.
func (s *Store) TouchSession(now time.Time) error {
	return s.SetMarker(ScopeLocal, sessionActiveKey, now.UTC().Format(time.RFC3339Nano))
}
