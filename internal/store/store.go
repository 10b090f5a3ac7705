// Package store persists normalized coverage records to an embedded SQLite
// database and serves the analytical queries on top of it, grounded on the
// way coverctl's teacher pack uses database/sql against the sqlite3 driver
// for a small embedded store.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/covrs/covrs/internal/coreerrors"
)

// batchSize caps rows per multi-row INSERT, kept well under SQLite's
// default ~32766 bound-parameter limit for the widest row shape used here.
const batchSize = 2000

const schema = `
CREATE TABLE IF NOT EXISTS report (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	source_format TEXT NOT NULL,
	source_file TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS source_file (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS line_coverage (
	report_id INTEGER NOT NULL REFERENCES report(id) ON DELETE CASCADE,
	source_file_id INTEGER NOT NULL REFERENCES source_file(id) ON DELETE CASCADE,
	line_number INTEGER NOT NULL,
	hit_count INTEGER NOT NULL,
	PRIMARY KEY (report_id, source_file_id, line_number)
);

CREATE TABLE IF NOT EXISTS branch_coverage (
	report_id INTEGER NOT NULL REFERENCES report(id) ON DELETE CASCADE,
	source_file_id INTEGER NOT NULL REFERENCES source_file(id) ON DELETE CASCADE,
	line_number INTEGER NOT NULL,
	branch_index INTEGER NOT NULL,
	hit_count INTEGER NOT NULL,
	PRIMARY KEY (report_id, source_file_id, line_number, branch_index)
);

CREATE TABLE IF NOT EXISTS function_coverage (
	report_id INTEGER NOT NULL REFERENCES report(id) ON DELETE CASCADE,
	source_file_id INTEGER NOT NULL REFERENCES source_file(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	start_line INTEGER,
	start_line_key INTEGER NOT NULL,
	end_line INTEGER,
	hit_count INTEGER NOT NULL,
	PRIMARY KEY (report_id, source_file_id, name, start_line_key)
);

CREATE INDEX IF NOT EXISTS idx_line_coverage_file ON line_coverage(source_file_id, line_number);
CREATE INDEX IF NOT EXISTS idx_branch_coverage_file ON branch_coverage(source_file_id, line_number);
`

// Store wraps a *sql.DB configured for the coverage schema.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if absent) the SQLite database at path, applies the
// recommended PRAGMAs, and ensures the schema exists.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &coreerrors.IOError{Path: path, Err: err}
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers; avoid lock contention

	s := &Store{db: db, logger: logger}
	if err := s.applyPragmas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return &coreerrors.IOError{Path: p, Err: err}
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &coreerrors.IOError{Path: "schema", Err: err}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func startLineKey(startLine *uint32) int64 {
	if startLine == nil {
		return -1
	}
	return int64(*startLine)
}
