package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/seal"
)

func testValues() map[string]ir.IRValue {
	return map[string]ir.IRValue{
		"empty object": ir.IRObject{},
		"balance":      ir.IRObject{"balance": ir.IRInt(100)},
		"nested": ir.IRObject{
			"owner": ir.IRString("alice"),
			"items": ir.IRArray{
				ir.IRObject{"sku": ir.IRString("a-1"), "qty": ir.IRInt(2)},
				ir.IRBool(false),
			},
			"tags": ir.IRArray{},
		},
		"string": ir.IRString("plain"),
		"int":    ir.IRInt(-42),
		"null":   ir.IRNull{},
		"large":  ir.IRObject{"blob": ir.IRString(strings.Repeat("ledger", 4000))},
		"numbers": ir.IRObject{
			"price": ir.IRFloat(1.5),
			"tiny":  ir.IRFloat(-2.5e-7),
			"huge":  ir.IRFloat(1e300),
			"gone":  ir.IRNull{},
		},
	}
}

func TestSaveData_LoadData_RoundTrip(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	for name, v := range testValues() {
		for _, encrypted := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/encrypted=%v", name, encrypted), func(t *testing.T) {
				id := fmt.Sprintf("%s-%v", name, encrypted)

				receipt, err := s.SaveData(ctx, id, v, SaveOptions{Encrypted: encrypted})
				require.NoError(t, err)
				assert.Equal(t, id, receipt.ID)
				assert.Equal(t, encrypted, receipt.Encrypted)
				assert.Len(t, receipt.BlockHash, 64)

				got, err := s.LoadData(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, v, got)
			})
		}
	}
}

func TestSaveData_EncryptedPayloadIsNotCanonical(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	v := ir.IRObject{"secret": ir.IRString("swordfish")}

	_, err := s.SaveData(ctx, "sealed", v, SaveOptions{Encrypted: true})
	require.NoError(t, err)
	_, err = s.SaveData(ctx, "open", v, SaveOptions{})
	require.NoError(t, err)

	canonical, err := ir.MarshalCanonical(v)
	require.NoError(t, err)

	var sealed, open []byte
	require.NoError(t, s.db.QueryRow(`SELECT payload FROM records WHERE id = 'sealed'`).Scan(&sealed))
	require.NoError(t, s.db.QueryRow(`SELECT payload FROM records WHERE id = 'open'`).Scan(&open))

	assert.NotEqual(t, canonical, sealed)
	assert.NotContains(t, string(sealed), "swordfish")
	assert.Equal(t, canonical, open)
}

func TestSaveData_DigestIgnoresEncryption(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	v := ir.IRObject{"a": ir.IRInt(1)}

	plain, err := s.SaveData(ctx, "p", v, SaveOptions{})
	require.NoError(t, err)
	sealed, err := s.SaveData(ctx, "s", v, SaveOptions{Encrypted: true})
	require.NoError(t, err)

	assert.Equal(t, plain.ContentDigest, sealed.ContentDigest)
	assert.Equal(t, ir.MustContentDigest(v), plain.ContentDigest)
	assert.NotEqual(t, plain.BlockHash, sealed.BlockHash)
}

func TestSaveData_AppendsStorageWriteBlock(t *testing.T) {
	s, c := createTestStore(t)
	ctx := context.Background()

	receipt, err := s.SaveData(ctx, "bal:alice", ir.IRObject{"balance": ir.IRInt(100)}, SaveOptions{Encrypted: true})
	require.NoError(t, err)
	assert.Equal(t, receipt.BlockHash, c.TailHash())

	block, err := c.ReadBlock(ctx, receipt.BlockHash)
	require.NoError(t, err)
	assert.Equal(t, ir.BlockStorageWrite, block.Data.Type)
	assert.Equal(t, ir.IRString("write"), block.Data.Body[ir.FieldOp])
	assert.Equal(t, ir.IRString("bal:alice"), block.Data.Body[ir.FieldRecordID])
	assert.Equal(t, ir.IRString(receipt.ContentDigest), block.Data.Body[ir.FieldContentDigest])
	assert.Equal(t, ir.IRBool(true), block.Data.Body[ir.FieldEncrypted])
	assert.True(t, c.IsValid(ctx, chain.VerifyOptions{}))
}

func TestSaveData_InvalidArguments(t *testing.T) {
	s, c := createTestStore(t)
	ctx := context.Background()

	_, err := s.SaveData(ctx, "", ir.IRObject{}, SaveOptions{})
	assert.True(t, fault.IsInvalidArgument(err))

	_, err = s.SaveData(ctx, "x", nil, SaveOptions{})
	assert.True(t, fault.IsInvalidArgument(err))

	assert.Equal(t, int64(0), c.Height(), "rejected writes append nothing")
}

func TestSaveData_EncryptWithoutKeys(t *testing.T) {
	c := createTestChain(t, chain.NewMemoryStore())
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), c, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.SaveData(ctx, "k", ir.IRObject{"a": ir.IRInt(1)}, SaveOptions{Encrypted: true})
	require.Error(t, err)
	assert.True(t, fault.IsEncryption(err))

	has, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, int64(0), c.Height())
}

func TestSaveData_LedgerFailureLeavesNoRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := NewMockLedger(ctrl)
	boom := errors.New("disk full")
	ledger.EXPECT().AddBlock(gomock.Any(), gomock.Any()).Return(chain.Receipt{}, boom)

	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"), ledger)
	ctx := context.Background()

	_, err := s.SaveData(ctx, "k", ir.IRObject{"a": ir.IRInt(1)}, SaveOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	has, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has, "a failed attestation must roll the staged row back")

	history, err := s.History(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSaveData_LedgerFailureKeepsPreviousValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := NewMockLedger(ctrl)
	first := chain.Receipt{ID: 1, Hash: strings.Repeat("a", 64)}
	gomock.InOrder(
		ledger.EXPECT().AddBlock(gomock.Any(), gomock.Any()).Return(first, nil),
		ledger.EXPECT().AddBlock(gomock.Any(), gomock.Any()).Return(chain.Receipt{}, errors.New("closed")),
	)

	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"), ledger)
	ctx := context.Background()

	_, err := s.SaveData(ctx, "k", ir.IRInt(1), SaveOptions{})
	require.NoError(t, err)
	_, err = s.SaveData(ctx, "k", ir.IRInt(2), SaveOptions{Encrypted: true})
	require.Error(t, err)

	got, err := s.LoadData(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), got)

	rec, err := s.Record(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, first.Hash, rec.BlockHash)
	assert.False(t, rec.Encrypted)
}

func TestSaveData_AttestsWithComputedDigest(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := NewMockLedger(ctrl)
	v := ir.IRObject{"a": ir.IRInt(1)}
	want := ir.StorageWrite("k", ir.MustContentDigest(v), false)
	ledger.EXPECT().AddBlock(gomock.Any(), want).Return(chain.Receipt{ID: 1, Hash: strings.Repeat("b", 64)}, nil)

	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"), ledger)
	receipt, err := s.SaveData(context.Background(), "k", v, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 64), receipt.BlockHash)
}

func TestSaveData_ConcurrentWrites(t *testing.T) {
	s, c := createTestStore(t)
	ctx := context.Background()
	const n = 20

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := s.SaveData(gctx, fmt.Sprintf("item:%02d", i), ir.IRObject{"n": ir.IRInt(int64(i))}, SaveOptions{Encrypted: i%2 == 0})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(n), c.Height())
	assert.True(t, c.IsValid(ctx, chain.VerifyOptions{}))

	keys, err := s.Keys(ctx, "item:")
	require.NoError(t, err)
	assert.Len(t, keys, n)

	for i := 0; i < n; i++ {
		v, err := s.LoadData(ctx, fmt.Sprintf("item:%02d", i))
		require.NoError(t, err)
		assert.Equal(t, ir.IRObject{"n": ir.IRInt(int64(i))}, v)
	}
}

// slowBlocks delays every block write.
type slowBlocks struct {
	*chain.MemoryStore
	delay time.Duration
}

func (b *slowBlocks) PutBlock(hash string, encoded []byte) error {
	time.Sleep(b.delay)
	return b.MemoryStore.PutBlock(hash, encoded)
}

func TestSaveData_CancelledDuringAppend(t *testing.T) {
	c := createTestChain(t, &slowBlocks{MemoryStore: chain.NewMemoryStore(), delay: 200 * time.Millisecond})
	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"), c)
	v := ir.IRObject{"balance": ir.IRInt(100)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	receipt, err := s.SaveData(ctx, "bal:alice", v, SaveOptions{})
	require.NoError(t, err)
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded, "deadline passed while the block was being written")

	// The block and the record land together.
	bg := context.Background()
	assert.Equal(t, receipt.BlockHash, c.TailHash())
	got, err := s.LoadData(bg, "bal:alice")
	require.NoError(t, err)
	assert.Equal(t, v, got)

	ok, err := s.Validate(bg, "bal:alice", v, receipt.BlockHash)
	require.NoError(t, err)
	assert.True(t, ok)

	findings, err := s.Audit(bg)
	require.NoError(t, err)
	assert.Empty(t, findings)

	history, err := s.History(bg, "bal:alice")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSaveData_CancelledBeforeStart(t *testing.T) {
	s, c := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SaveData(ctx, "bal:alice", ir.IRObject{"balance": ir.IRInt(100)}, SaveOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	has, err := s.Has(context.Background(), "bal:alice")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, int64(0), c.Height())
}

func TestLoadData_WrongKey(t *testing.T) {
	_, other := testKeys(t)
	c := createTestChain(t, chain.NewMemoryStore())
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s := openTestStore(t, path, c)
	_, err := s.SaveData(ctx, "k", ir.IRObject{"a": ir.IRInt(1)}, SaveOptions{Encrypted: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path, c, other)
	require.NoError(t, err)
	defer s2.Close()

	_, err = s2.LoadData(ctx, "k")
	require.Error(t, err)
	assert.True(t, fault.IsDecryption(err))

	s3, err := Open(path, c, &seal.KeyPair{Public: other.Public})
	require.NoError(t, err)
	defer s3.Close()
	_, err = s3.LoadData(ctx, "k")
	assert.True(t, fault.IsDecryption(err))
}

func TestLoadData_NotFound(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.LoadData(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))

	_, err = s.Record(context.Background(), "missing")
	assert.True(t, fault.IsNotFound(err))
}

func TestLoadData_DetectsTamperedPayload(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.SaveData(ctx, "k", ir.IRObject{"a": ir.IRInt(1)}, SaveOptions{})
	require.NoError(t, err)

	_, err = s.db.Exec(`UPDATE records SET payload = ? WHERE id = 'k'`, []byte(`{"a":2}`))
	require.NoError(t, err)

	_, err = s.LoadData(ctx, "k")
	require.Error(t, err)
	assert.True(t, fault.IsIntegrity(err))
}
