package store

import (
	"context"
	"fmt"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

// Validate reports whether value under id is the write attested by the
// block at blockHash.
//
// It recomputes the digest of value, reads the block, and requires a
// storage-write block for the same id carrying that digest whose own hash
// and link to its predecessor verify. Any mismatch is false, not an error;
// only context cancellation and I/O failures are returned as errors.
func (s *Store) Validate(ctx context.Context, id string, value ir.IRValue, blockHash string) (bool, error) {
	if value == nil {
		return false, nil
	}
	canonical, err := ir.MarshalCanonical(value)
	if err != nil {
		return false, nil
	}
	digest := ir.Digest(ir.DomainRecord, canonical)

	block, err := s.ledger.ReadBlock(ctx, blockHash)
	if err != nil {
		if fault.IsNotFound(err) || fault.IsIntegrity(err) {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("validate %s: %w", id, err)
	}

	if block.Data.Type != ir.BlockStorageWrite {
		return false, nil
	}
	if got, _ := block.Data.Body.String(ir.FieldRecordID); got != id {
		return false, nil
	}
	if got, _ := block.Data.Body.String(ir.FieldContentDigest); got != digest {
		return false, nil
	}
	if !s.ledger.VerifyBlock(ctx, blockHash) {
		s.logger.Warn("attesting block failed verification", "id", id, "block", blockHash)
		return false, nil
	}
	return true, nil
}

// AuditFinding is a record whose stored state disagrees with the chain.
type AuditFinding struct {
	ID        string `json:"id"`
	BlockHash string `json:"block_hash"`
	Reason    string `json:"reason"`
}

// Audit cross-checks every record against its attesting block: the stored
// payload must decode to a value that validates against the block hash
// recorded for it. Records that cannot be decrypted with the configured key
// are reported rather than skipped.
//
// Returns an empty slice (not nil) when every record checks out.
func (s *Store) Audit(ctx context.Context) ([]AuditFinding, error) {
	records, err := s.Records(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	findings := []AuditFinding{}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := s.LoadData(ctx, r.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			findings = append(findings, AuditFinding{ID: r.ID, BlockHash: r.BlockHash, Reason: err.Error()})
			continue
		}
		ok, err := s.Validate(ctx, r.ID, value, r.BlockHash)
		if err != nil {
			return nil, fmt.Errorf("audit %s: %w", r.ID, err)
		}
		if !ok {
			findings = append(findings, AuditFinding{ID: r.ID, BlockHash: r.BlockHash, Reason: "attesting block does not match"})
		}
	}
	if len(findings) > 0 {
		s.logger.Warn("record audit found mismatches", "count", len(findings))
	}
	return findings, nil
}
