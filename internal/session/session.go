// Package session persists named pipeline snapshots and round-trips the
// whole library through JSON export/import.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minhvu/shortreel/internal/pipeline"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/storage"
)

// Session is one named snapshot of the pipeline.
type Session struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"createdAt"`
	State     pipeline.Snapshot `json:"state"`
}

// ImportMode selects how an imported library combines with the stored one.
type ImportMode string

const (
	// Merge keeps existing sessions and appends imported ones whose ids are
	// not already present.
	Merge ImportMode = "merge"
	// Replace swaps the stored library for the imported one wholesale.
	Replace ImportMode = "replace"
)

// Manager is the session library facade over storage.
type Manager struct {
	db  *storage.Store
	log *slog.Logger
}

// NewManager creates a Manager backed by the given store.
func NewManager(db *storage.Store, log *slog.Logger) *Manager {
	return &Manager{db: db, log: log}
}

// Save stores a snapshot under name. Saving under an existing name
// overwrites that session in place and refreshes its CreatedAt; a new name
// is prepended to the library.
func (m *Manager) Save(name string, snap pipeline.Snapshot) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, provider.Errf(provider.KindValidation, "session name must not be empty")
	}
	state, err := json.Marshal(snap)
	if err != nil {
		return Session{}, fmt.Errorf("encoding session state: %w", err)
	}
	rec := storage.SessionRecord{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		State:     state,
	}
	if err := m.db.UpsertSession(rec); err != nil {
		return Session{}, fmt.Errorf("saving session: %w", err)
	}
	m.log.Info("session saved", "name", name)
	return recordToSession(rec)
}

// Load returns the session with the given id.
func (m *Manager) Load(id string) (Session, error) {
	rec, err := m.db.GetSession(id)
	if err != nil {
		return Session{}, err
	}
	return recordToSession(rec)
}

// Delete removes the session with the given id.
func (m *Manager) Delete(id string) error {
	return m.db.DeleteSession(id)
}

// List returns the library in display order, newest saves first.
func (m *Manager) List() ([]Session, error) {
	recs, err := m.db.ListSessions()
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(recs))
	for _, rec := range recs {
		s, err := recordToSession(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Export serializes the whole library as a JSON array, the same shape Import
// accepts.
func (m *Manager) Export() ([]byte, error) {
	sessions, err := m.List()
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return json.MarshalIndent(sessions, "", "  ")
}

// Import parses data as a session array and merges or replaces the stored
// library. Every entry is validated before anything is written; one invalid
// entry aborts the whole import.
func (m *Manager) Import(data []byte, mode ImportMode) (added int, err error) {
	var incoming []Session
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, provider.Wrap(provider.KindValidation, err, "import file is not a session array")
	}
	for i, s := range incoming {
		if err := validate(s); err != nil {
			return 0, provider.Wrap(provider.KindValidation, err, "import entry %d is invalid", i)
		}
	}

	switch mode {
	case Replace:
		recs := make([]storage.SessionRecord, 0, len(incoming))
		for _, s := range incoming {
			rec, err := sessionToRecord(s)
			if err != nil {
				return 0, err
			}
			recs = append(recs, rec)
		}
		if err := m.db.ReplaceSessions(recs); err != nil {
			return 0, fmt.Errorf("replacing sessions: %w", err)
		}
		m.log.Info("session library replaced", "count", len(recs))
		return len(recs), nil

	case Merge:
		existing, err := m.db.ListSessions()
		if err != nil {
			return 0, err
		}
		seen := make(map[string]bool, len(existing))
		for _, rec := range existing {
			seen[rec.ID] = true
		}
		for _, s := range incoming {
			if seen[s.ID] {
				continue
			}
			rec, err := sessionToRecord(s)
			if err != nil {
				return added, err
			}
			if err := m.db.InsertSession(rec); err != nil {
				return added, fmt.Errorf("importing session %s: %w", s.ID, err)
			}
			added++
		}
		m.log.Info("session library merged", "added", added, "skipped", len(incoming)-added)
		return added, nil

	default:
		return 0, provider.Errf(provider.KindValidation, "unknown import mode %q", mode)
	}
}

func validate(s Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("missing id")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("missing name")
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("missing createdAt")
	}
	return nil
}

func recordToSession(rec storage.SessionRecord) (Session, error) {
	var snap pipeline.Snapshot
	if err := json.Unmarshal(rec.State, &snap); err != nil {
		return Session{}, fmt.Errorf("decoding session %s state: %w", rec.ID, err)
	}
	return Session{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, State: snap}, nil
}

func sessionToRecord(s Session) (storage.SessionRecord, error) {
	state, err := json.Marshal(s.State)
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("encoding session %s state: %w", s.ID, err)
	}
	return storage.SessionRecord{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt, State: state}, nil
}
