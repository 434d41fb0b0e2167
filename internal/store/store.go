package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for typedb snapshots.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the snapshot tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS modules (
  id              INTEGER PRIMARY KEY,
  name            TEXT NOT NULL UNIQUE,
  doc             TEXT,
  is_builtin      BOOLEAN DEFAULT FALSE,
  source_hash     TEXT,
  member_count    INTEGER DEFAULT 0,
  exported_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS members (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  parent_member_id INTEGER REFERENCES members(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  doc             TEXT,
  type_name       TEXT,
  target          TEXT,
  builtin_type_id TEXT,
  is_builtin      BOOLEAN DEFAULT FALSE,
  is_hidden       BOOLEAN DEFAULT FALSE,
  line            INTEGER,
  col             INTEGER,
  signature_hash  TEXT
);

CREATE TABLE IF NOT EXISTS overloads (
  id              INTEGER PRIMARY KEY,
  member_id       INTEGER NOT NULL REFERENCES members(id),
  ordinal         INTEGER NOT NULL,
  doc             TEXT,
  return_doc      TEXT,
  return_types    TEXT
);

CREATE TABLE IF NOT EXISTS parameters (
  id              INTEGER PRIMARY KEY,
  overload_id     INTEGER NOT NULL REFERENCES overloads(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT,
  format          TEXT,
  default_value   TEXT,
  doc             TEXT,
  types           TEXT
);

CREATE TABLE IF NOT EXISTS type_bases (
  id              INTEGER PRIMARY KEY,
  member_id       INTEGER NOT NULL REFERENCES members(id),
  ordinal         INTEGER NOT NULL,
  kind            TEXT NOT NULL DEFAULT 'base',
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_members_module ON members(module_id);
CREATE INDEX IF NOT EXISTS idx_members_parent ON members(parent_member_id);
CREATE INDEX IF NOT EXISTS idx_members_name ON members(name);
CREATE INDEX IF NOT EXISTS idx_members_kind ON members(kind);
CREATE INDEX IF NOT EXISTS idx_members_type_name ON members(type_name);
CREATE INDEX IF NOT EXISTS idx_overloads_member ON overloads(member_id);
CREATE INDEX IF NOT EXISTS idx_parameters_overload ON parameters(overload_id);
CREATE INDEX IF NOT EXISTS idx_type_bases_member ON type_bases(member_id);
CREATE INDEX IF NOT EXISTS idx_type_bases_name ON type_bases(name);
`

// DeleteModuleData transactionally removes a module and everything hanging
// off it. Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteModuleData(moduleID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	memberIDs, err := queryIDs(tx, "SELECT id FROM members WHERE module_id = ?", moduleID)
	if err != nil {
		return fmt.Errorf("query members: %w", err)
	}

	if len(memberIDs) > 0 {
		placeholders := placeholderList(len(memberIDs))
		args := int64sToArgs(memberIDs)
		for _, q := range []string{
			"DELETE FROM parameters WHERE overload_id IN (SELECT id FROM overloads WHERE member_id IN (" + placeholders + "))",
			"DELETE FROM overloads WHERE member_id IN (" + placeholders + ")",
			"DELETE FROM type_bases WHERE member_id IN (" + placeholders + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return fmt.Errorf("delete member child data: %w", err)
			}
		}
	}

	// Children first so parent_member_id never dangles mid-transaction.
	for _, q := range []string{
		"DELETE FROM members WHERE module_id = ? AND parent_member_id IS NOT NULL",
		"DELETE FROM members WHERE module_id = ?",
		"DELETE FROM modules WHERE id = ?",
	} {
		if _, err := tx.Exec(q, moduleID); err != nil {
			return fmt.Errorf("delete module data: %w", err)
		}
	}

	return tx.Commit()
}

// queryIDs runs a single-column id query inside tx.
func queryIDs(tx *sql.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
