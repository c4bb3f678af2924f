package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/chainvault/internal/fault"
)

// VerifyOptions bounds an integrity walk. The zero value checks the whole
// chain from the tail back to genesis.
type VerifyOptions struct {
	// Last limits the walk to the newest Last blocks. Zero means no limit.
	Last int
	// From starts the walk at this hash instead of the tail.
	From string
}

// Report is the outcome of Verify.
type Report struct {
	Valid   bool   `json:"valid"`
	Checked int    `json:"checked"`
	BadHash string `json:"bad_hash,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func invalid(r Report, hash, reason string) Report {
	r.Valid = false
	r.BadHash = hash
	r.Reason = reason
	return r
}

// Verify walks the chain backward, recomputing each block's hash and
// checking it against the stored hash, the key it is stored under and the
// link from its successor.
//
// A corrupted chain yields a Report with Valid false. Only I/O failures and
// context cancellation are returned as errors.
func (c *Chain) Verify(ctx context.Context, opts VerifyOptions) (Report, error) {
	if opts.Last < 0 {
		return Report{}, fmt.Errorf("verify: last must be >= 0, got %d", opts.Last)
	}
	hash := opts.From
	if hash == "" {
		hash = c.TailHash()
	}

	report := Report{Valid: true}
	var next *Block
	for opts.Last == 0 || report.Checked < opts.Last {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		raw, err := c.store.GetBlock(hash)
		if errors.Is(err, ErrBlockNotFound) {
			return invalid(report, hash, "missing block"), nil
		}
		if err != nil {
			return Report{}, fmt.Errorf("verify: read block %s: %w", hash, err)
		}
		b, err := decodeBlock(raw)
		if err != nil {
			return invalid(report, hash, err.Error()), nil
		}
		if err := b.verifySelf(hash); err != nil {
			return invalid(report, hash, err.Error()), nil
		}
		if next != nil {
			if b.ID+1 != next.ID {
				return invalid(report, hash, fmt.Sprintf("id %d does not precede %d", b.ID, next.ID)), nil
			}
			if b.Timestamp > next.Timestamp {
				return invalid(report, hash, "timestamp after successor"), nil
			}
		}
		report.Checked++

		if b.IsGenesis() {
			if b.ID != 0 {
				return invalid(report, hash, fmt.Sprintf("genesis block has id %d", b.ID)), nil
			}
			break
		}
		hash = b.PrevHash
		next = &b
	}
	return report, nil
}

// IsValid reports whether the selected range of the chain is intact.
// It never fails: an unreadable chain is reported as invalid.
func (c *Chain) IsValid(ctx context.Context, opts VerifyOptions) bool {
	report, err := c.Verify(ctx, opts)
	if err != nil {
		c.logger.Warn("chain verification aborted", "error", err)
		return false
	}
	if !report.Valid {
		c.logger.Warn("chain integrity violation", "hash", report.BadHash, "reason", report.Reason)
	}
	return report.Valid
}

// VerifyBlock checks a single block: its stored hash must match a
// recomputation, and unless it is the genesis block its predecessor must
// exist and verify in the same way.
func (c *Chain) VerifyBlock(ctx context.Context, hash string) bool {
	b, ok := c.checkBlock(ctx, hash)
	if !ok {
		return false
	}
	if b.IsGenesis() {
		return true
	}
	prev, ok := c.checkBlock(ctx, b.PrevHash)
	return ok && prev.ID+1 == b.ID
}

func (c *Chain) checkBlock(ctx context.Context, hash string) (Block, bool) {
	if ctx.Err() != nil {
		return Block{}, false
	}
	raw, err := c.store.GetBlock(hash)
	if err != nil {
		return Block{}, false
	}
	b, err := decodeBlock(raw)
	if err != nil {
		return Block{}, false
	}
	if err := b.verifySelf(hash); err != nil {
		c.logger.Warn("block integrity violation", "hash", hash, "reason", err)
		return Block{}, false
	}
	return b, true
}

// ErrStopWalk can be returned from a Walk callback to end the walk early
// without an error.
var ErrStopWalk = errors.New("stop walk")

// Walk visits blocks from the given hash (or the tail when from is empty)
// back to genesis, newest first. Blocks are decoded but not verified.
func (c *Chain) Walk(ctx context.Context, from string, fn func(Block) error) error {
	hash := from
	if hash == "" {
		hash = c.TailHash()
	}
	prevID := int64(-1)
	for {
		b, err := c.ReadBlock(ctx, hash)
		if err != nil {
			return err
		}
		if prevID >= 0 && b.ID >= prevID {
			return fault.New(fault.KindIntegrity, "chain.Walk",
				fmt.Sprintf("block %s has id %d, expected below %d", hash, b.ID, prevID))
		}
		prevID = b.ID
		if err := fn(b); err != nil {
			if errors.Is(err, ErrStopWalk) {
				return nil
			}
			return err
		}
		if b.IsGenesis() {
			return nil
		}
		hash = b.PrevHash
	}
}

// Blocks returns up to limit blocks, newest first. A limit of zero returns
// the whole chain.
func (c *Chain) Blocks(ctx context.Context, limit int) ([]Block, error) {
	var blocks []Block
	err := c.Walk(ctx, "", func(b Block) error {
		blocks = append(blocks, b)
		if limit > 0 && len(blocks) >= limit {
			return ErrStopWalk
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
