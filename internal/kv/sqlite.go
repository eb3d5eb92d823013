package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/offstore/internal/sqlitedb"
	"github.com/roach88/offstore/internal/storage"
)

// SQLite is a file-backed Store. Revision checks run inside one SQLite
// write transaction, so they hold across processes sharing the file.
type SQLite struct {
	db    *sql.DB
	quota int64
}

// OpenSQLite creates or opens a key-value file at path. quotaBytes caps the
// summed length of keys and values; 0 means unlimited.
func OpenSQLite(path string, quotaBytes int64) (*SQLite, error) {
	db, err := sqlitedb.Open(path, 0)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			rev   INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLite{db: db, quota: quotaBytes}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Get(key string) (Item, bool, error) {
	var item Item
	err := s.db.QueryRow(`SELECT value, rev FROM kv WHERE key = ?`, key).Scan(&item.Value, &item.Rev)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, sqlitedb.Classify("get", key, err)
	}
	return item, true, nil
}

func (s *SQLite) Set(key, value string, rev int64) (int64, error) {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return 0, sqlitedb.Classify("set", key, err)
	}
	defer tx.Rollback() // No-op if committed

	var cur int64
	err = tx.QueryRow(`SELECT rev FROM kv WHERE key = ?`, key).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		cur = 0
	case err != nil:
		return 0, sqlitedb.Classify("set", key, err)
	}
	if cur != rev {
		return 0, ErrConflict
	}

	if s.quota > 0 {
		var others int64
		if err := tx.QueryRow(
			`SELECT COALESCE(SUM(length(CAST(key AS BLOB)) + length(CAST(value AS BLOB))), 0) FROM kv WHERE key <> ?`,
			key,
		).Scan(&others); err != nil {
			return 0, sqlitedb.Classify("set", key, err)
		}
		if others+int64(len(key)+len(value)) > s.quota {
			return 0, storage.NewError(storage.KindQuotaExceeded, "set", key,
				"writing %d bytes exceeds quota of %d bytes", len(value), s.quota)
		}
	}

	next := cur + 1
	if _, err := tx.Exec(`
		INSERT INTO kv (key, value, rev) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, rev = excluded.rev
	`, key, value, next); err != nil {
		return 0, sqlitedb.Classify("set", key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, sqlitedb.Classify("set", key, err)
	}
	return next, nil
}

func (s *SQLite) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return sqlitedb.Classify("remove", key, err)
	}
	return nil
}

func (s *SQLite) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, sqlitedb.Classify("keys", "", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, sqlitedb.Classify("keys", "", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlitedb.Classify("keys", "", err)
	}
	return keys, nil
}
