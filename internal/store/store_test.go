package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainvault/internal/chain"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	c := createTestChain(t, chain.NewMemoryStore())

	openTestStore(t, path, c)

	_, err := os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Pragmas(t *testing.T) {
	s, _ := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "2"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	c := createTestChain(t, chain.NewMemoryStore())

	for i := 0; i < 3; i++ {
		s, err := Open(path, c, nil)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, s.Close())
	}

	s := openTestStore(t, path, c)
	for _, table := range []string{"records", "record_history"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q missing", table)
	}
}

func TestOpen_RequiresLedger(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), nil, nil)
	assert.Error(t, err)
}

func TestClose_Twice(t *testing.T) {
	s, _ := createTestStore(t)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
