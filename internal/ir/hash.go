package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainBlock    = "chainvault/block/v1"
	DomainRecord   = "chainvault/record/v1"
	DomainContract = "chainvault/contract/v1"
)

// GenesisPrevHash is the sentinel previous-hash of the first block.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// hashWithDomain computes SHA256(domain || 0x00 || data) as lowercase hex.
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest hashes already-canonical bytes under domain.
func Digest(domain string, canonical []byte) string {
	return hashWithDomain(domain, canonical)
}

// ContentDigest computes the record digest of a value: the record-domain
// hash of its canonical encoding. Storage computes it over plaintext, so it
// is identical for encrypted and unencrypted writes of the same value.
func ContentDigest(v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ContentDigest: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// BlockHash computes H(prevHash ‖ canonical(data) ‖ id ‖ timestamp).
// The four fields are framed as one canonical object so no field boundary
// can be shifted into another.
func BlockHash(prevHash string, data BlockData, id, timestamp int64) (string, error) {
	obj := IRObject{
		"prev_hash": IRString(prevHash),
		"data":      data.IR(),
		"id":        IRInt(id),
		"timestamp": IRInt(timestamp),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("BlockHash: %w", err)
	}
	return hashWithDomain(DomainBlock, canonical), nil
}

// CodeRef computes the content-addressable reference for a contract's
// logic from its name and version label.
func CodeRef(name, version string) string {
	canonical, err := MarshalCanonical(IRObject{
		"name":    IRString(name),
		"version": IRString(version),
	})
	if err != nil {
		// Two strings always encode.
		panic(err)
	}
	return hashWithDomain(DomainContract, canonical)
}

// MustContentDigest is like ContentDigest but panics on error.
// Use only in tests or when the value is known to be encodable.
func MustContentDigest(v IRValue) string {
	d, err := ContentDigest(v)
	if err != nil {
		panic(err)
	}
	return d
}
