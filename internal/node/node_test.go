package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/config"
	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/contracts/curve"
	"github.com/roach88/chainvault/internal/contracts/token"
	"github.com/roach88/chainvault/internal/fault"
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

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.Chain.Backend = backend
	return cfg
}

func testKeys(t *testing.T) *seal.KeyPair {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = seal.Generate(seal.MinKeyBits) })
	require.NoError(t, keysErr)
	return keys
}

func openNode(t *testing.T, cfg *config.Config, opts ...Option) *Node {
	t.Helper()
	keys := testKeys(t)
	clock := testutil.NewStepClock(time.Millisecond)
	n, err := Open(context.Background(), cfg, append([]Option{WithKeys(keys), WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return n
}

func TestOpen_Backends(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendLevelDB, config.BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			n := openNode(t, testConfig(t, backend))
			defer n.Close()

			assert.Equal(t, int64(0), n.Chain.Height())
			_, err := n.Store.SaveData(context.Background(), "k", ir.IRString("v"), store.SaveOptions{Encrypted: true})
			require.NoError(t, err)
			assert.Equal(t, int64(1), n.Chain.Height())
		})
	}
}

func TestOpen_PersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	ctx := context.Background()

	n := openNode(t, cfg)
	w, err := n.Store.SaveData(ctx, "bal:alice", ir.IRObject{"balance": ir.IRInt(100)}, store.SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, n.Close())

	n = openNode(t, cfg)
	defer n.Close()
	assert.Equal(t, w.BlockHash, n.Chain.TailHash())
	v, err := n.Store.LoadData(ctx, "bal:alice")
	require.NoError(t, err)
	ok, err := n.Store.Validate(ctx, "bal:alice", v, w.BlockHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_GeneratesKeys(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	n, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer n.Close()
	require.NotNil(t, n.Keys)

	loaded, err := seal.Load(cfg.KeysDir())
	require.NoError(t, err)
	assert.True(t, n.Keys.Public.Equal(loaded.Public))
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, "tape")
	_, err := Open(context.Background(), cfg, WithKeys(testKeys(t)))
	assert.Error(t, err)
}

func TestContractExecution(t *testing.T) {
	n := openNode(t, testConfig(t, config.BackendMemory), WithBlockStore(chain.NewMemoryStore()))
	defer n.Close()
	ctx := context.Background()

	_, err := n.Store.SaveData(ctx, token.BalanceKey("alice"), ir.IRObject{"balance": ir.IRInt(100)}, store.SaveOptions{})
	require.NoError(t, err)

	c, err := n.Contract(token.TransferName)
	require.NoError(t, err)
	out, err := c.Execute(ctx, ir.IRObject{
		contract.ArgExecutionID: ir.IRString("t1"),
		"from":                  ir.IRString("alice"),
		"to":                    ir.IRString("bob"),
		"amount":                ir.IRInt(40),
	})
	require.NoError(t, err)
	assert.True(t, out.OK())

	_, err = n.Contract("nope")
	assert.True(t, fault.IsNotFound(err))
}

func TestSaveDefinitionsAndLoad(t *testing.T) {
	n := openNode(t, testConfig(t, config.BackendMemory))
	defer n.Close()
	ctx := context.Background()

	hashes, err := n.SaveDefinitions(ctx)
	require.NoError(t, err)
	assert.Len(t, hashes, len(n.Registry.List()))

	c, err := n.LoadContract(ctx, hashes[token.BalanceName])
	require.NoError(t, err)
	assert.Equal(t, token.BalanceName, c.Name())
	assert.Equal(t, hashes[token.BalanceName], c.Definition())
	assert.True(t, n.Chain.IsValid(ctx, chain.VerifyOptions{}))
}

func TestOpen_AppliesRuntimeConfig(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Runtime.MaxWrites = 1
	n := openNode(t, cfg)
	defer n.Close()

	c, err := n.Contract(token.MintName)
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), ir.IRObject{
		contract.ArgExecutionID: ir.IRString("m1"),
		"account":               ir.IRString("carol"),
		"amount":                ir.IRInt(5),
	})
	require.Error(t, err)
	assert.True(t, contract.IsWritesExceededError(err))
}

func TestOpen_WithMarketsAndRuntimeOptions(t *testing.T) {
	var (
		mu     sync.Mutex
		states []contract.State
	)
	observe := func(id string, s contract.State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}
	n := openNode(t, testConfig(t, config.BackendMemory),
		WithMarkets(curve.Markets{"flat": curve.Linear{K: 2}}),
		WithRuntimeOptions(contract.WithObserver(observe)),
	)
	defer n.Close()
	ctx := context.Background()

	quote, err := n.Contract(curve.QuoteName)
	require.NoError(t, err)

	out, err := quote.Execute(ctx, ir.IRObject{
		contract.ArgExecutionID: ir.IRString("q1"),
		"market":                ir.IRString("flat"),
		"payment":               ir.IRInt(curve.Micro),
	})
	require.NoError(t, err)
	name, _ := out.Result.String("curve")
	assert.Equal(t, "linear(k=2)", name)

	out, err = quote.Execute(ctx, ir.IRObject{
		contract.ArgExecutionID: ir.IRString("q2"),
		"market":                ir.IRString("linear"),
		"payment":               ir.IRInt(curve.Micro),
	})
	require.Error(t, err)
	assert.Equal(t, fault.KindProcedure, out.Failure.Kind)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, contract.StateDone)
	assert.Contains(t, states, contract.StateFailed)
}
