// Package sqlitedb opens SQLite databases with the pragmas offstore relies
// on and maps SQLite failures onto the storage error taxonomy.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - BEGIN IMMEDIATE transactions so read-modify-write sequences take the
//     write lock up front
package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/offstore/internal/storage"
)

// Open creates or opens a SQLite database at path.
// maxPageCount caps the database size when positive.
func Open(path string, maxPageCount int64) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite: empty path")
	}

	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	// SQLite only supports one writer at a time, and max_page_count is a
	// per-connection setting, so keep exactly one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, maxPageCount); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(db *sql.DB, maxPageCount int64) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if maxPageCount > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA max_page_count = %d", maxPageCount))
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// PagesForBytes converts a byte quota into a max_page_count value for db.
// Returns 0 (no cap) when quotaBytes is not positive.
func PagesForBytes(db *sql.DB, quotaBytes int64) (int64, error) {
	if quotaBytes <= 0 {
		return 0, nil
	}
	var pageSize int64
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("read page_size: %w", err)
	}
	pages := quotaBytes / pageSize
	if pages < 1 {
		pages = 1
	}
	return pages, nil
}

// SetQuota caps db at roughly quotaBytes.
func SetQuota(db *sql.DB, quotaBytes int64) error {
	pages, err := PagesForBytes(db, quotaBytes)
	if err != nil || pages == 0 {
		return err
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA max_page_count = %d", pages)); err != nil {
		return fmt.Errorf("set max_page_count: %w", err)
	}
	return nil
}

// Classify maps a SQLite error to a storage error kind.
// Errors that already carry a kind pass through unchanged.
func Classify(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrFull:
			return storage.WrapError(storage.KindQuotaExceeded, op, table, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return storage.WrapError(storage.KindBlocked, op, table, err)
		case sqlite3.ErrConstraint:
			return storage.WrapError(storage.KindConstraint, op, table, err)
		}
	}
	return storage.WrapError(storage.KindIO, op, table, err)
}

// QuoteIdent quotes a validated identifier for use in SQL text.
func QuoteIdent(name string) string {
	return `"` + name + `"`
}

// Pragma reads a single pragma value as text.
func Pragma(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
