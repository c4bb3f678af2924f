package store

import (
	"context"
	"fmt"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

// SaveOptions tunes SaveData.
type SaveOptions struct {
	// Encrypted seals the payload for the store's key pair.
	Encrypted bool
}

// WriteReceipt describes a committed write.
type WriteReceipt struct {
	ID            string `json:"id"`
	BlockHash     string `json:"block_hash"`
	ContentDigest string `json:"content_digest"`
	Encrypted     bool   `json:"encrypted"`
	Seq           int64  `json:"seq"`
}

// SaveData stores value under id and attests it on the ledger.
//
// The content digest is computed over the plaintext canonical encoding, so
// it is the same whether or not the payload is encrypted. Either the record
// and its block both become visible, or neither does; see the package
// documentation for the one exception on commit failure. ctx is only
// consulted before the write starts.
func (s *Store) SaveData(ctx context.Context, id string, value ir.IRValue, opts SaveOptions) (WriteReceipt, error) {
	const op = "store.SaveData"
	if id == "" {
		return WriteReceipt{}, fault.New(fault.KindInvalidArgument, op, "record id is required")
	}

	canonical, digest, err := canonicalize(value)
	if err != nil {
		return WriteReceipt{}, err
	}
	p, err := s.sealPayload(canonical, opts.Encrypted)
	if err != nil {
		return WriteReceipt{}, err
	}
	now := s.now().UnixMilli()

	if err := ctx.Err(); err != nil {
		return WriteReceipt{}, fmt.Errorf("save %s: %w", id, err)
	}
	// From here on the write runs to completion. A transaction bound to a
	// cancelled context is rolled back by database/sql, which would strand
	// the block appended below.
	ctx = context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WriteReceipt{}, fmt.Errorf("save %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	// Stage the payload. block_hash is stamped once the chain has accepted
	// the attestation.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(id, encrypted, payload, wrapped_key, nonce, compressed, content_digest, block_hash, seq, format, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			encrypted = excluded.encrypted,
			payload = excluded.payload,
			wrapped_key = excluded.wrapped_key,
			nonce = excluded.nonce,
			compressed = excluded.compressed,
			content_digest = excluded.content_digest,
			format = excluded.format,
			updated_at = excluded.updated_at
	`,
		id,
		boolToInt(p.Encrypted),
		p.Data,
		p.WrappedKey,
		p.Nonce,
		boolToInt(p.Compressed),
		digest,
		ir.FormatVersion,
		now,
	)
	if err != nil {
		return WriteReceipt{}, fmt.Errorf("save %s: stage record: %w", id, err)
	}

	receipt, err := s.ledger.AddBlock(ctx, ir.StorageWrite(id, digest, p.Encrypted))
	if err != nil {
		return WriteReceipt{}, fmt.Errorf("save %s: attest: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO record_history (record_id, content_digest, block_hash, encrypted, written_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, digest, receipt.Hash, boolToInt(p.Encrypted), now)
	if err != nil {
		s.logOrphan(id, receipt.Hash, err)
		return WriteReceipt{}, fmt.Errorf("save %s: history: %w", id, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		s.logOrphan(id, receipt.Hash, err)
		return WriteReceipt{}, fmt.Errorf("save %s: history seq: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET block_hash = ?, seq = ? WHERE id = ?`,
		receipt.Hash, seq, id,
	); err != nil {
		s.logOrphan(id, receipt.Hash, err)
		return WriteReceipt{}, fmt.Errorf("save %s: stamp block: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		s.logOrphan(id, receipt.Hash, err)
		return WriteReceipt{}, fmt.Errorf("save %s: commit: %w", id, err)
	}

	s.logger.Debug("record saved",
		"id", id,
		"block", receipt.Hash,
		"digest", digest,
		"encrypted", p.Encrypted,
	)
	return WriteReceipt{
		ID:            id,
		BlockHash:     receipt.Hash,
		ContentDigest: digest,
		Encrypted:     p.Encrypted,
		Seq:           seq,
	}, nil
}

// logOrphan reports a block that attests a write which never committed.
func (s *Store) logOrphan(id, blockHash string, err error) {
	s.logger.Error("orphan attestation: record write failed after chain append",
		"id", id,
		"block", blockHash,
		"error", err,
	)
}
