package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/burnoutdv/santonian-archive/internal/util"
)

const (
	currentSchemaVersion = 1

	// schemaMarker is written to the stats table when the schema is created
	schemaMarker = "1.0.0"
)

// Store is the archive's persistent state: folders, logs, tags and stats
type Store struct {
	db     *sql.DB
	prefix string
	now    func() time.Time
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	TablePrefix string           // prepended to every table name
	Clock       func() time.Time // timestamp source, defaults to time.Now
}

// Open opens or creates a SQLite database at the given path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates a SQLite database with custom options
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; the archive is never written concurrently
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	store := &Store{db: db, prefix: opts.TablePrefix, now: clock}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Table returns the prefixed name of a logical table
func (s *Store) Table(name string) string {
	return s.prefix + name
}

// q substitutes the table prefix into a query template.
// Templates write table names as {p}name.
func (s *Store) q(query string) string {
	return strings.ReplaceAll(query, "{p}", s.prefix)
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	err = db.QueryRow("SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// CheckForeignKeys reports rows whose folder or tag references dangle
func (s *Store) CheckForeignKeys() (int, error) {
	rows, err := s.db.Query("PRAGMA foreign_key_check")
	if err != nil {
		return 0, fmt.Errorf("foreign key check failed: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var orphans int
	err = s.db.QueryRow(s.q(`
		SELECT COUNT(*) FROM {p}tag_link tl
		WHERE NOT EXISTS (SELECT 1 FROM {p}log l WHERE l.name = tl.log)
	`)).Scan(&orphans)
	if err != nil {
		return 0, fmt.Errorf("tag link check failed: %w", err)
	}

	return n + orphans, nil
}

// migrate applies database migrations
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(s.q(schemaV1)); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if _, err := tx.Exec(s.q(`
			INSERT INTO {p}stats (property, value) VALUES ('schema_version', ?)
			ON CONFLICT(property) DO UPDATE SET value = excluded.value
		`), schemaMarker); err != nil {
			return fmt.Errorf("failed to write schema marker: %w", err)
		}
		if err := s.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name=?
	`, s.Table("schema_version")).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow(s.q("SELECT COALESCE(MAX(version), 0) FROM {p}schema_version")).Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(s.q("INSERT INTO {p}schema_version (version) VALUES (?)"), version)
	return err
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE/PRIMARY KEY constraint failure
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// raceError converts a unique violation into the benign-race signal
func raceError(what string, err error) error {
	util.WarnLog("DB: unique constraint violated for %s despite prior check: %v", what, err)
	return fmt.Errorf("%s: %w", what, util.ErrConstraintRace)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE wildcards so user input matches literally.
// Queries using it must declare ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
