package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/testutil"
)

func openTestChain(t *testing.T, store BlockStore) *Chain {
	t.Helper()
	clock := testutil.NewStepClock(time.Millisecond)
	c, err := Open(context.Background(), store, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testData(a int64) ir.BlockData {
	return ir.NewBlockData("test", ir.IRObject{"a": ir.IRInt(a)})
}

// tamperFileBlock rewrites data.body.a of the block stored under hash.
func tamperFileBlock(t *testing.T, store *FileStore, hash string, a int) {
	t.Helper()
	path := store.BlockPath(hash)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	body := doc["data"].(map[string]any)["body"].(map[string]any)
	body["a"] = a

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func TestOpen_CreatesGenesis(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())
	ctx := context.Background()

	assert.Equal(t, int64(0), c.Height())
	genesis, err := c.ReadBlock(ctx, c.TailHash())
	require.NoError(t, err)
	assert.True(t, genesis.IsGenesis())
	assert.Equal(t, ir.GenesisPrevHash, genesis.PrevHash)
	assert.Equal(t, ir.BlockGenesis, genesis.Data.Type)
	assert.True(t, c.IsValid(ctx, VerifyOptions{}))
}

func TestAddBlock_LinksToPredecessor(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())
	ctx := context.Background()
	genesis := c.TailHash()

	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	r2, err := c.AddBlock(ctx, testData(2))
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.ID)
	assert.Equal(t, int64(2), r2.ID)
	assert.Equal(t, genesis, r1.PrevHash)
	assert.Equal(t, r1.Hash, r2.PrevHash)
	assert.Equal(t, r2.Hash, c.TailHash())

	b2, err := c.ReadBlock(ctx, r2.Hash)
	require.NoError(t, err)
	assert.Equal(t, r1.Hash, b2.PrevHash)
	assert.Equal(t, ir.IRInt(2), b2.Data.Body["a"])

	computed, err := b2.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, r2.Hash, computed)
}

func TestAddBlock_ValidAfterEveryAppend(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		_, err := c.AddBlock(ctx, testData(i))
		require.NoError(t, err)
		require.True(t, c.IsValid(ctx, VerifyOptions{}), "chain invalid after append %d", i)
	}
}

func TestChain_TamperDetection_EndToEnd(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := openTestChain(t, store)
	ctx := context.Background()

	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	r2, err := c.AddBlock(ctx, testData(2))
	require.NoError(t, err)

	b2, err := c.ReadBlock(ctx, r2.Hash)
	require.NoError(t, err)
	assert.Equal(t, r1.Hash, b2.PrevHash)
	assert.True(t, c.IsValid(ctx, VerifyOptions{}))

	tamperFileBlock(t, store, r1.Hash, 9)

	assert.False(t, c.IsValid(ctx, VerifyOptions{}))
	assert.True(t, c.IsValid(ctx, VerifyOptions{Last: 1}), "range excluding the tampered block stays valid")
	assert.False(t, c.IsValid(ctx, VerifyOptions{Last: 2}))

	report, err := c.Verify(ctx, VerifyOptions{})
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, r1.Hash, report.BadHash)
	assert.Equal(t, 1, report.Checked)
}

func TestVerify_FromHash(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())
	ctx := context.Background()

	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	_, err = c.AddBlock(ctx, testData(2))
	require.NoError(t, err)

	report, err := c.Verify(ctx, VerifyOptions{From: r1.Hash})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Checked)

	assert.False(t, c.IsValid(ctx, VerifyOptions{From: "deadbeef"}))
}

func TestVerify_NegativeLast(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())
	_, err := c.Verify(context.Background(), VerifyOptions{Last: -1})
	assert.Error(t, err)
}

func TestVerify_MissingLink(t *testing.T) {
	store := NewMemoryStore()
	c := openTestChain(t, store)
	ctx := context.Background()

	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	_, err = c.AddBlock(ctx, testData(2))
	require.NoError(t, err)

	store.mu.Lock()
	delete(store.blocks, r1.Hash)
	store.mu.Unlock()

	report, err := c.Verify(ctx, VerifyOptions{})
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, "missing block", report.Reason)
}

func TestVerifyBlock(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	c := openTestChain(t, store)
	ctx := context.Background()

	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	r2, err := c.AddBlock(ctx, testData(2))
	require.NoError(t, err)

	assert.True(t, c.VerifyBlock(ctx, r1.Hash))
	assert.True(t, c.VerifyBlock(ctx, r2.Hash))
	assert.False(t, c.VerifyBlock(ctx, ir.GenesisPrevHash))

	tamperFileBlock(t, store, r1.Hash, 5)
	assert.False(t, c.VerifyBlock(ctx, r1.Hash))
	assert.False(t, c.VerifyBlock(ctx, r2.Hash), "a tampered predecessor breaks the link")
}

func TestReadBlock_NotFound(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())

	_, err := c.ReadBlock(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestAddBlock_RejectsMissingType(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())

	_, err := c.AddBlock(context.Background(), ir.BlockData{Body: ir.IRObject{}})
	require.Error(t, err)
	assert.True(t, fault.IsInvalidArgument(err))
	assert.Equal(t, int64(0), c.Height())
}

func TestAddBlock_AfterClose(t *testing.T) {
	c, err := Open(context.Background(), NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	_, err = c.AddBlock(context.Background(), testData(1))
	require.Error(t, err)
	assert.True(t, fault.IsClosed(err))
}

func TestAddBlock_ConcurrentAppendsAreLinearized(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())
	ctx := context.Background()
	const n = 50

	receipts := make([]Receipt, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := c.AddBlock(gctx, testData(int64(i)))
			receipts[i] = r
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(n), c.Height())
	assert.True(t, c.IsValid(ctx, VerifyOptions{}))

	ids := make(map[int64]bool)
	prevs := make(map[string]bool)
	for _, r := range receipts {
		assert.False(t, ids[r.ID], "duplicate id %d", r.ID)
		assert.False(t, prevs[r.PrevHash], "two blocks share prev hash %s", r.PrevHash)
		ids[r.ID] = true
		prevs[r.PrevHash] = true
	}
}

func TestAddBlock_TimestampsNeverDecrease(t *testing.T) {
	times := []time.Time{
		testutil.Epoch.Add(time.Hour),
		testutil.Epoch.Add(2 * time.Hour),
		testutil.Epoch,
	}
	i := 0
	now := func() time.Time {
		ts := times[i%len(times)]
		i++
		return ts
	}
	c, err := Open(context.Background(), NewMemoryStore(), WithClock(now))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	r2, err := c.AddBlock(ctx, testData(2))
	require.NoError(t, err)

	assert.Equal(t, r1.Timestamp, r2.Timestamp, "clock skew clamps to the previous timestamp")
	assert.True(t, c.IsValid(ctx, VerifyOptions{}))
}

func TestChain_DeterministicHashes(t *testing.T) {
	ctx := context.Background()
	build := func() string {
		c := openTestChain(t, NewMemoryStore())
		for i := int64(1); i <= 3; i++ {
			_, err := c.AddBlock(ctx, testData(i))
			require.NoError(t, err)
		}
		return c.TailHash()
	}
	assert.Equal(t, build(), build())
}

func TestChain_ReopenFileStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	c, err := Open(ctx, store)
	require.NoError(t, err)
	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	store, err = NewFileStore(dir)
	require.NoError(t, err)
	c = openTestChain(t, store)
	assert.Equal(t, r1.Hash, c.TailHash())
	assert.Equal(t, int64(1), c.Height())

	r2, err := c.AddBlock(ctx, testData(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), r2.ID)
	assert.Equal(t, r1.Hash, r2.PrevHash)
	assert.True(t, c.IsValid(ctx, VerifyOptions{}))
}

func TestChain_LevelDBBackend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewLevelDBStore(dir)
	require.NoError(t, err)
	c, err := Open(ctx, store)
	require.NoError(t, err)
	r1, err := c.AddBlock(ctx, testData(1))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	store, err = NewLevelDBStore(dir)
	require.NoError(t, err)
	c = openTestChain(t, store)
	assert.Equal(t, r1.Hash, c.TailHash())

	b, err := c.ReadBlock(ctx, r1.Hash)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), b.Data.Body["a"])
	assert.True(t, c.IsValid(ctx, VerifyOptions{}))
}

func TestWalkAndBlocks(t *testing.T) {
	c := openTestChain(t, NewMemoryStore())
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		_, err := c.AddBlock(ctx, testData(i))
		require.NoError(t, err)
	}

	all, err := c.Blocks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, b := range all {
		assert.Equal(t, int64(4-i), b.ID)
	}

	latest, err := c.Blocks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(4), latest[0].ID)
	assert.Equal(t, int64(3), latest[1].ID)

	boom := fmt.Errorf("boom")
	err = c.Walk(ctx, "", func(Block) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestFileStore_RejectsNonDigestHashes(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetBlock("../TAIL")
	assert.ErrorIs(t, err, ErrBlockNotFound)
	assert.Error(t, store.PutBlock("../escape", []byte("{}")))

	tail, err := store.GetTail()
	require.NoError(t, err)
	assert.Empty(t, tail)
}
