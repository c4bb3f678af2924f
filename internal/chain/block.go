package chain

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/chainvault/internal/ir"
)

// Block is one immutable entry in the chain.
type Block struct {
	ID        int64        `json:"id"`
	Data      ir.BlockData `json:"data"`
	PrevHash  string       `json:"prev_hash"`
	Hash      string       `json:"hash"`
	Timestamp int64        `json:"timestamp"`
}

// Receipt identifies an appended block.
type Receipt struct {
	ID        int64  `json:"id"`
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash"`
	Timestamp int64  `json:"timestamp"`
}

// IsGenesis reports whether b is the first block of a chain.
func (b Block) IsGenesis() bool {
	return b.PrevHash == ir.GenesisPrevHash
}

// ComputeHash recomputes the digest from the block's fields, ignoring the
// stored Hash.
func (b Block) ComputeHash() (string, error) {
	return ir.BlockHash(b.PrevHash, b.Data, b.ID, b.Timestamp)
}

// verifySelf checks the block's stored hash against a recomputation and
// against the key it was looked up by.
func (b Block) verifySelf(key string) error {
	if b.Hash != key {
		return fmt.Errorf("block stored under %s claims hash %s", key, b.Hash)
	}
	computed, err := b.ComputeHash()
	if err != nil {
		return fmt.Errorf("recompute hash: %w", err)
	}
	if computed != b.Hash {
		return fmt.Errorf("recomputed hash %s differs from stored %s", computed, b.Hash)
	}
	return nil
}

func encodeBlock(b Block) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}
	return data, nil
}

func decodeBlock(data []byte) (Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}
	if b.Data.Body == nil {
		b.Data.Body = ir.IRObject{}
	}
	return b, nil
}
