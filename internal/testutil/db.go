// Package testutil provides shared fixtures for store and model tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/store"
)

// NewTestStore opens a migrated SQLite store in a temp directory.
// The store is closed at test cleanup.
func NewTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "mdata", "store.db"), store.DefaultKeyID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}
