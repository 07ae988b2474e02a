package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the settings key/value table and
// the saved session library.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "shortreel.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Settings ---

// SetSetting stores a JSON-encoded value under key, overwriting any prior
// value. Writes are synchronous; last writer wins.
func (s *Store) SetSetting(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetSetting decodes the value stored under key into out. Absent keys
// return ErrNotFound; callers treat that as "use the default".
func (s *Store) GetSetting(key string, out any) error {
	var raw string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decoding setting %s: %w", key, err)
	}
	return nil
}

// --- Sessions ---

// UpsertSession saves a session. An existing record with the same name is
// overwritten in place (keeping its list position); otherwise the record is
// prepended to the list.
func (s *Store) UpsertSession(rec SessionRecord) error {
	var existingID string
	err := s.db.QueryRow("SELECT id FROM sessions WHERE name = ?", rec.Name).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		// Prepend: shift all positions down, insert at 0.
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE sessions SET position = position + 1"); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO sessions (id, name, created_at, position, state_json)
			VALUES (?, ?, ?, 0, ?)`,
			rec.ID, rec.Name, rec.CreatedAt.UTC().Format(time.RFC3339), string(rec.State),
		); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	case err != nil:
		return err
	default:
		_, err := s.db.Exec(`
			UPDATE sessions SET created_at = ?, state_json = ? WHERE id = ?`,
			rec.CreatedAt.UTC().Format(time.RFC3339), string(rec.State), existingID,
		)
		return err
	}
}

// InsertSession inserts a record verbatim at the end of the list (used by
// import, which preserves incoming order and ids).
func (s *Store) InsertSession(rec SessionRecord) error {
	var maxPos sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(position) FROM sessions").Scan(&maxPos); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, name, created_at, position, state_json)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.CreatedAt.UTC().Format(time.RFC3339), maxPos.Int64+1, string(rec.State),
	)
	return err
}

// GetSession returns the record with the given id.
func (s *Store) GetSession(id string) (SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, name, created_at, state_json FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var createdAt, state string
	err := row.Scan(&rec.ID, &rec.Name, &createdAt, &state)
	if err == sql.ErrNoRows {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = t
	rec.State = json.RawMessage(state)
	return rec, nil
}

// ListSessions returns all sessions in list order (most recently prepended
// first).
func (s *Store) ListSessions() ([]SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, name, created_at, state_json FROM sessions ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteSession removes the record with the given id.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceSessions swaps the whole collection for the given records in one
// transaction (import in replace mode).
func (s *Store) ReplaceSessions(records []SessionRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		tx.Rollback()
		return err
	}
	for i, rec := range records {
		if _, err := tx.Exec(`
			INSERT INTO sessions (id, name, created_at, position, state_json)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, rec.Name, rec.CreatedAt.UTC().Format(time.RFC3339), i, string(rec.State),
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
