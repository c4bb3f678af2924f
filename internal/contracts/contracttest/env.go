// Package contracttest runs bundled contracts against a real chain and
// record store in tests.
package contracttest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/seal"
	"github.com/roach88/chainvault/internal/store"
	"github.com/roach88/chainvault/internal/testutil"
)

var (
	keysOnce sync.Once
	keys     *seal.KeyPair
	keysErr  error
)

// Env is a memory chain, a temporary SQLite store and a runtime with
// contracts registered on it.
type Env struct {
	Chain     *chain.Chain
	Store     *store.Store
	Runtime   *contract.Runtime
	Contracts map[string]*contract.SmartContract

	ids *testutil.SequenceGenerator
}

// New builds an Env with defs bound, closed when t finishes.
func New(t *testing.T, defs ...contract.Definition) *Env {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = seal.Generate(seal.MinKeyBits) })
	require.NoError(t, keysErr)

	clock := testutil.NewStepClock(time.Millisecond)
	c, err := chain.Open(context.Background(), chain.NewMemoryStore(), chain.WithClock(clock.Now))
	require.NoError(t, err)
	s, err := store.Open(filepath.Join(t.TempDir(), "records.db"), c, keys, store.WithClock(clock.Now))
	require.NoError(t, err)
	rt := contract.NewRuntime()

	env := &Env{
		Chain:     c,
		Store:     s,
		Runtime:   rt,
		Contracts: make(map[string]*contract.SmartContract),
		ids:       testutil.NewSequenceGenerator("exec"),
	}
	caps := contract.Capabilities{Storage: s, Chain: c}
	for _, d := range defs {
		env.Contracts[d.Name] = contract.New(rt, d, caps)
	}

	t.Cleanup(func() {
		rt.Close()
		s.Close()
		c.Close()
	})
	return env
}

// Exec runs the named contract with args, adding a fresh execution id.
// kv alternates argument names and Go values.
func (e *Env) Exec(t *testing.T, name string, kv ...any) (contract.Outcome, error) {
	t.Helper()
	c, ok := e.Contracts[name]
	require.True(t, ok, "contract %s not registered", name)

	args := ir.IRObject{contract.ArgExecutionID: ir.IRString(e.ids.Generate())}
	require.Zero(t, len(kv)%2, "odd argument list")
	for i := 0; i < len(kv); i += 2 {
		v, err := ir.ToIRValue(kv[i+1])
		require.NoError(t, err)
		args[fmt.Sprint(kv[i])] = v
	}
	return c.Execute(context.Background(), args)
}

// Put stores value under id outside any contract.
func (e *Env) Put(t *testing.T, id string, value ir.IRValue) {
	t.Helper()
	_, err := e.Store.SaveData(context.Background(), id, value, store.SaveOptions{})
	require.NoError(t, err)
}

// Get loads the value under id.
func (e *Env) Get(t *testing.T, id string) ir.IRValue {
	t.Helper()
	v, err := e.Store.LoadData(context.Background(), id)
	require.NoError(t, err)
	return v
}

// Tail returns the most recent block.
func (e *Env) Tail(t *testing.T) chain.Block {
	t.Helper()
	b, err := e.Chain.ReadBlock(context.Background(), e.Chain.TailHash())
	require.NoError(t, err)
	return b
}
