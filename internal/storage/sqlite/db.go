// Package sqlite implements the durable storage.Backend using an embedded,
// pure-Go SQLite engine (modernc.org/sqlite, the teacher's exact driver),
// generalizing the teacher's SQLiteOperationalDB/SQLiteLearningDB split
// (internal/memory/operational.go, internal/memory/learning.go) into the
// single Project/Session/Memory/Skill/Marker domain of this spec.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yocore/yocore/internal/storage"
)

//go:embed schema_sqlite.sql
var schemaSQL string

// Store implements storage.Backend against a single yocore.db file opened
// through two *sql.DB handles, exactly as spec.md §4.2 requires: a writer
// (exclusive mutator, SetMaxOpenConns(1) like the teacher's operational DB)
// and a reader (serves the service surfaces, several concurrent conns).
type Store struct {
	writer *sql.DB
	reader *sql.DB
}

var _ storage.Backend = (*Store)(nil)

type migration struct {
	version int
	sql     string
}

// migrations is the sequenced, idempotent list run inside a transaction
// against schema_version at startup, before any other write. Today there is
// a single step (the full consolidated schema); future changes append here
// rather than editing schemaSQL's CREATE statements in place.
var migrations = []migration{
	{version: 1, sql: schemaSQL},
}

// Open opens (creating if absent) the yocore.db file at dataDir/yocore.db,
// configures the teacher's exact pragma set on the writer handle, and runs
// migrations to completion before returning.
func Open(dataDir string) (*Store, error) {
	path := dataDir + "/yocore.db"

	writer, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open writer connection: %w", err)
	}
	writer.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",
	} {
		if _, err := writer.Exec(pragma); err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	reader, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to open reader connection: %w", err)
	}
	reader.SetMaxOpenConns(4)

	s := &Store{writer: writer, reader: reader}

	if err := s.migrate(); err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	tx, err := s.writer.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to ensure schema_version table: %w", err)
	}

	var current int
	row := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	return tx.Commit()
}

// Close closes both connections.
func (s *Store) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Mode reports the active storage.Backend variant for the /health payload.
func (s *Store) Mode() string {
	return "db"
}

func iso(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseISO(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
