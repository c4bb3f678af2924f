package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/seal"
	"github.com/roach88/chainvault/internal/testutil"
)

var (
	keysOnce  sync.Once
	keysA     *seal.KeyPair
	keysB     *seal.KeyPair
	keysError error
)

// testKeys returns two distinct key pairs shared by the whole package.
func testKeys(t *testing.T) (*seal.KeyPair, *seal.KeyPair) {
	t.Helper()
	keysOnce.Do(func() {
		keysA, keysError = seal.Generate(seal.MinKeyBits)
		if keysError == nil {
			keysB, keysError = seal.Generate(seal.MinKeyBits)
		}
	})
	require.NoError(t, keysError)
	return keysA, keysB
}

// createTestChain opens a deterministic chain over the given block store.
func createTestChain(t *testing.T, blocks chain.BlockStore) *chain.Chain {
	t.Helper()
	clock := testutil.NewStepClock(time.Millisecond)
	c, err := chain.Open(context.Background(), blocks, chain.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// createTestStore creates a store in a temp dir backed by an in-memory chain.
func createTestStore(t *testing.T) (*Store, *chain.Chain) {
	t.Helper()
	c := createTestChain(t, chain.NewMemoryStore())
	return openTestStore(t, filepath.Join(t.TempDir(), "records.db"), c), c
}

func openTestStore(t *testing.T, path string, ledger Ledger, opts ...Option) *Store {
	t.Helper()
	kp, _ := testKeys(t)
	clock := testutil.NewStepClock(time.Second)
	opts = append([]Option{WithClock(clock.Now), WithCompression(true)}, opts...)
	s, err := Open(path, ledger, kp, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
