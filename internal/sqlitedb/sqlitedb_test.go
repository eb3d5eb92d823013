package sqlitedb

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offstore/internal/storage"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err)
	defer db.Close()

	tests := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range tests {
		got, err := Pragma(db, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, "pragma %s", name)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("", 0)
	assert.Error(t, err)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", 0)
	assert.Error(t, err)
}

func TestSetQuota(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE blobs (v TEXT)`)
	require.NoError(t, err)

	require.NoError(t, SetQuota(db, 16*1024))

	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = 'x'
	}
	_, err = db.Exec(`INSERT INTO blobs (v) VALUES (?)`, string(big))
	require.Error(t, err)
	assert.True(t, storage.IsQuotaExceeded(Classify("create", "blobs", err)), "got %v", err)
}

func TestPagesForBytes_NoQuota(t *testing.T) {
	pages, err := PagesForBytes(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pages)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want storage.Kind
	}{
		{"full", sqlite3.Error{Code: sqlite3.ErrFull}, storage.KindQuotaExceeded},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, storage.KindBlocked},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, storage.KindBlocked},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, storage.KindConstraint},
		{"wrapped", fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrFull}), storage.KindQuotaExceeded},
		{"other", errors.New("boom"), storage.KindIO},
		{"already classified", storage.UnknownTable("find", "t"), storage.KindConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.KindOf(Classify("op", "t", tt.err)))
		})
	}
	assert.NoError(t, Classify("op", "t", nil))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"formData"`, QuoteIdent("formData"))
}
