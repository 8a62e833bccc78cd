// Package index maintains the searchable message index and the
// per-(account, folder) sync watermarks in a single SQLite database.
// The primary messages table and its full-text shadow table are always
// written in the same transaction, so one never exists without the
// other.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested index record does not exist.
var ErrNotFound = errors.New("message not found")

// Store implements the message index and sync state on SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the index database at dbPath, enables
// WAL mode and a bounded busy-wait on storage locks, and applies any
// pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening index db: %w", err)
	}

	// Concurrent independent runs contend on file locks; a bounded
	// busy-wait resolves them instead of failing immediately.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// MigrateLegacyAccount adopts rows written by the legacy single-account
// schema: messages without an account get the given one, and legacy
// folder watermarks are copied into the partitioned sync_state table.
// Running it again once migrated is a no-op. It assumes exactly one
// pre-existing account; historical multi-account databases would need
// an explicit mapping instead.
func (s *Store) MigrateLegacyAccount(ctx context.Context, account string) error {
	if account == "" {
		return errors.New("legacy account name must not be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET account = ? WHERE account = ''", account,
	); err != nil {
		return fmt.Errorf("backfilling message accounts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (account, folder, last_uid)
		SELECT ?, name, last_uid FROM folders WHERE true
		ON CONFLICT(account, folder) DO NOTHING`,
		account,
	); err != nil {
		return fmt.Errorf("copying legacy watermarks: %w", err)
	}

	return tx.Commit()
}
