package contract

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/seal"
	"github.com/roach88/chainvault/internal/store"
	"github.com/roach88/chainvault/internal/testutil"
)

var (
	keysOnce sync.Once
	keys     *seal.KeyPair
	keysErr  error
)

type fixture struct {
	chain   *chain.Chain
	store   *store.Store
	runtime *Runtime
	caps    Capabilities
}

func newFixture(t *testing.T, opts ...RuntimeOption) *fixture {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = seal.Generate(seal.MinKeyBits) })
	require.NoError(t, keysErr)

	clock := testutil.NewStepClock(time.Millisecond)
	c, err := chain.Open(context.Background(), chain.NewMemoryStore(), chain.WithClock(clock.Now))
	require.NoError(t, err)
	s, err := store.Open(filepath.Join(t.TempDir(), "records.db"), c, keys, store.WithClock(clock.Now))
	require.NoError(t, err)
	rt := NewRuntime(opts...)

	t.Cleanup(func() {
		rt.Close()
		s.Close()
		c.Close()
	})
	return &fixture{
		chain:   c,
		store:   s,
		runtime: rt,
		caps:    Capabilities{Storage: s, Chain: c},
	}
}

func (f *fixture) bind(name string, proc Procedure) *SmartContract {
	return New(f.runtime, Definition{Name: name, Version: "v1", Procedure: proc}, f.caps)
}

func saveOpts() store.SaveOptions {
	return store.SaveOptions{}
}
