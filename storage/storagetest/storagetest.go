// Package storagetest opens throwaway sqlite databases for tests.
package storagetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/reform.v1"

	"github.com/gebv/airtime/storage"
)

func NewDB(t testing.TB) *reform.DB {
	t.Helper()
	db, err := storage.Open(storage.SQLite, filepath.Join(t.TempDir(), "airtime.db"), 0, 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() {
		storage.Close(db)
	})
	return db
}
