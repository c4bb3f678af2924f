package token

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/contracts/contracttest"
	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

func balance(n int64) ir.IRObject {
	return ir.IRObject{"balance": ir.IRInt(n)}
}

func TestTransfer_AliceToBob(t *testing.T) {
	env := contracttest.New(t, Definitions()...)
	env.Put(t, BalanceKey("alice"), balance(100))
	assert.Equal(t, balance(100), env.Get(t, BalanceKey("alice")))
	before := env.Chain.Height()

	out, err := env.Exec(t, TransferName, "from", "alice", "to", "bob", "amount", 40)
	require.NoError(t, err)
	assert.True(t, out.OK())

	assert.Equal(t, balance(60), env.Get(t, BalanceKey("alice")))
	assert.Equal(t, balance(40), env.Get(t, BalanceKey("bob")))

	// two balance writes plus the audit block
	assert.Equal(t, before+3, env.Chain.Height())
	require.Len(t, out.Blocks, 3)
	audit := env.Tail(t)
	assert.Equal(t, out.Blocks[2], audit.Hash)
	assert.Equal(t, ir.BlockTokenTransfer, audit.Data.Type)
	amount, _ := audit.Data.Body.Int("amount")
	assert.Equal(t, int64(40), amount)
	from, _ := audit.Data.Body.String("from")
	assert.Equal(t, "alice", from)

	assert.True(t, env.Chain.IsValid(context.Background(), chain.VerifyOptions{}))
}

func TestTransfer_Rejections(t *testing.T) {
	tests := []struct {
		name string
		args []any
		msg  string
	}{
		{"insufficient", []any{"from", "alice", "to", "bob", "amount", 101}, "insufficient balance"},
		{"self", []any{"from", "alice", "to", "alice", "amount", 1}, "same account"},
		{"zero", []any{"from", "alice", "to", "bob", "amount", 0}, "must be positive"},
		{"negative", []any{"from", "alice", "to", "bob", "amount", -5}, "must be positive"},
		{"missing to", []any{"from", "alice", "amount", 1}, `"to"`},
		{"amount as string", []any{"from", "alice", "to", "bob", "amount", "1"}, "must be an integer"},
		{"fractional amount", []any{"from", "alice", "to", "bob", "amount", 2.5}, "must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := contracttest.New(t, Definitions()...)
			env.Put(t, BalanceKey("alice"), balance(100))
			height := env.Chain.Height()

			out, err := env.Exec(t, TransferName, tt.args...)
			require.Error(t, err)
			assert.True(t, fault.IsProcedure(err))
			assert.Contains(t, out.Failure.Message, tt.msg)
			assert.Equal(t, height, env.Chain.Height(), "a rejected transfer writes nothing")
			assert.Equal(t, balance(100), env.Get(t, BalanceKey("alice")))
		})
	}
}

func TestTransfer_Overflow(t *testing.T) {
	env := contracttest.New(t, Definitions()...)
	env.Put(t, BalanceKey("alice"), balance(10))
	env.Put(t, BalanceKey("bob"), balance(math.MaxInt64-5))

	out, err := env.Exec(t, TransferName, "from", "alice", "to", "bob", "amount", 6)
	require.Error(t, err)
	assert.Contains(t, out.Failure.Message, "overflow")
	assert.Equal(t, balance(10), env.Get(t, BalanceKey("alice")))
}

func TestTransfer_MalformedBalance(t *testing.T) {
	env := contracttest.New(t, Definitions()...)
	env.Put(t, BalanceKey("alice"), ir.IRObject{"balance": ir.IRString("lots")})

	out, err := env.Exec(t, TransferName, "from", "alice", "to", "bob", "amount", 1)
	require.Error(t, err)
	assert.Contains(t, out.Failure.Message, "malformed")
}

func TestMintBurn(t *testing.T) {
	env := contracttest.New(t, Definitions()...)

	out, err := env.Exec(t, MintName, "account", "carol", "amount", 500)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(500), out.Result["supply"])
	assert.Equal(t, ir.BlockTokenMint, env.Tail(t).Data.Type)

	_, err = env.Exec(t, MintName, "account", "dave", "amount", 250, "token", "gold")
	require.NoError(t, err)

	out, err = env.Exec(t, BurnName, "account", "carol", "amount", 200)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(300), out.Result["balance"])
	assert.Equal(t, ir.BlockTokenBurn, env.Tail(t).Data.Type)

	assert.Equal(t, balance(300), env.Get(t, BalanceKey("carol")))
	assert.Equal(t, ir.IRObject{"supply": ir.IRInt(300)}, env.Get(t, SupplyKey(DefaultToken)))
	assert.Equal(t, ir.IRObject{"supply": ir.IRInt(250)}, env.Get(t, SupplyKey("gold")))

	out, err = env.Exec(t, BurnName, "account", "carol", "amount", 301)
	require.Error(t, err)
	assert.True(t, fault.IsProcedure(out.Err()))
}

func TestBalance(t *testing.T) {
	env := contracttest.New(t, Definitions()...)
	env.Put(t, BalanceKey("alice"), balance(7))
	height := env.Chain.Height()

	out, err := env.Exec(t, BalanceName, "account", "alice")
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(7), out.Result["balance"])

	out, err = env.Exec(t, BalanceName, "account", "nobody")
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(0), out.Result["balance"])
	assert.Equal(t, height, env.Chain.Height())
}

func TestTransfer_ConcurrentConservesSupply(t *testing.T) {
	env := contracttest.New(t, Definitions()...)
	accounts := []string{"a", "b", "c", "d"}
	for _, a := range accounts {
		env.Put(t, BalanceKey(a), balance(100))
	}

	const n = 40
	g := new(errgroup.Group)
	for i := 0; i < n; i++ {
		from := accounts[i%len(accounts)]
		to := accounts[(i+1)%len(accounts)]
		g.Go(func() error {
			// Each account sends 10 x 10 at most, so no ordering can
			// overdraw it.
			out, err := env.Exec(t, TransferName, "from", from, "to", to, "amount", 10)
			if err != nil {
				return fmt.Errorf("%s: %w", out.ExecutionID, err)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var total int64
	for _, a := range accounts {
		bal, _ := env.Get(t, BalanceKey(a)).(ir.IRObject).Int("balance")
		assert.Equal(t, int64(100), bal, "each account sent and received %d times", n/len(accounts))
		total += bal
	}
	assert.Equal(t, int64(400), total)
	assert.True(t, env.Chain.IsValid(context.Background(), chain.VerifyOptions{}))
}

func TestTransfer_ConcurrentNeverOverdraws(t *testing.T) {
	env := contracttest.New(t, Definitions()...)
	env.Put(t, BalanceKey("alice"), balance(100))

	const n = 15
	var (
		mu       sync.Mutex
		outcomes []contract.Outcome
	)
	g := new(errgroup.Group)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, _ := env.Exec(t, TransferName, "from", "alice", "to", "bob", "amount", 10)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, outcomes, n)

	var done, rejected int
	for _, out := range outcomes {
		switch {
		case out.OK():
			done++
		case out.State == contract.StateFailed && out.Failure != nil && out.Failure.Kind == fault.KindProcedure:
			assert.Contains(t, out.Failure.Message, "insufficient balance")
			rejected++
		default:
			t.Errorf("unexpected outcome for %s: %+v", out.ExecutionID, out)
		}
	}
	assert.Equal(t, 10, done)
	assert.Equal(t, 5, rejected)

	assert.Equal(t, balance(0), env.Get(t, BalanceKey("alice")))
	assert.Equal(t, balance(100), env.Get(t, BalanceKey("bob")))

	blocks, err := env.Chain.Blocks(context.Background(), 0)
	require.NoError(t, err)
	var transfers int
	for _, b := range blocks {
		if b.Data.Type == ir.BlockTokenTransfer {
			transfers++
		}
	}
	assert.Equal(t, 10, transfers)
	assert.True(t, env.Chain.IsValid(context.Background(), chain.VerifyOptions{}))
}

func TestDefinitions(t *testing.T) {
	reg, err := contract.NewRegistry(Definitions()...)
	require.NoError(t, err)
	assert.Len(t, reg.List(), 4)
}
