package ir

import "fmt"

// BlockType is the discriminant of a block payload.
type BlockType string

// Known block types. Any non-empty type is accepted on the chain; these are
// the ones chainvault itself writes.
const (
	BlockGenesis            BlockType = "genesis"
	BlockStorageWrite       BlockType = "storage-write"
	BlockContractDefinition BlockType = "contract-definition"
	BlockTokenTransfer      BlockType = "token-transfer"
	BlockTokenMint          BlockType = "token-mint"
	BlockTokenBurn          BlockType = "token-burn"
	BlockCurveBuy           BlockType = "curve-buy"
	BlockCurveSell          BlockType = "curve-sell"
	BlockWishlistReserve    BlockType = "wishlist-reserve"
	BlockWishlistRelease    BlockType = "wishlist-release"
	BlockChatMessage        BlockType = "chat-message"
)

// BlockData is the tagged payload carried by a block: an explicit type plus
// a body whose shape is specific to that type.
type BlockData struct {
	Type BlockType `json:"type"`
	Body IRObject  `json:"body"`
}

// NewBlockData builds a payload, normalizing a nil body to an empty object.
func NewBlockData(t BlockType, body IRObject) BlockData {
	if body == nil {
		body = IRObject{}
	}
	return BlockData{Type: t, Body: body}
}

// IR returns the payload as the object that is hashed and persisted.
func (d BlockData) IR() IRObject {
	body := d.Body
	if body == nil {
		body = IRObject{}
	}
	return IRObject{
		"type": IRString(d.Type),
		"body": body,
	}
}

// Validate checks the payload can be appended.
func (d BlockData) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("block data: type is required")
	}
	if _, err := MarshalCanonical(d.IR()); err != nil {
		return fmt.Errorf("block data: %w", err)
	}
	return nil
}

// Storage-write body field names.
const (
	FieldRecordID      = "id"
	FieldContentDigest = "content_digest"
	FieldEncrypted     = "encrypted"
	FieldOp            = "op"
)

// StorageWrite builds the attestation body for one record write.
func StorageWrite(id, contentDigest string, encrypted bool) BlockData {
	return NewBlockData(BlockStorageWrite, IRObject{
		FieldOp:            IRString("write"),
		FieldRecordID:      IRString(id),
		FieldContentDigest: IRString(contentDigest),
		FieldEncrypted:     IRBool(encrypted),
	})
}

// ContractDefinition builds the body recording a contract's identity.
func ContractDefinition(name, version, codeRef string) BlockData {
	return NewBlockData(BlockContractDefinition, IRObject{
		"name":     IRString(name),
		"version":  IRString(version),
		"code_ref": IRString(codeRef),
	})
}
