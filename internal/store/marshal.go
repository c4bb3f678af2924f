package store

import (
	"fmt"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/seal"
)

// payload is a record's persisted bytes plus envelope metadata.
// For plaintext records Data is the canonical JSON of the value.
type payload struct {
	Data       []byte
	WrappedKey []byte
	Nonce      []byte
	Encrypted  bool
	Compressed bool
}

// canonicalize encodes v as RFC 8785 canonical JSON and computes its
// content digest over those plaintext bytes.
func canonicalize(v ir.IRValue) (canonical []byte, digest string, err error) {
	if v == nil {
		return nil, "", fault.New(fault.KindInvalidArgument, "store.SaveData", "value is nil")
	}
	canonical, err = ir.MarshalCanonical(v)
	if err != nil {
		return nil, "", fault.Wrap(fault.KindInvalidArgument, "store.SaveData", err)
	}
	return canonical, ir.Digest(ir.DomainRecord, canonical), nil
}

// sealPayload builds the persisted form of canonical bytes.
func (s *Store) sealPayload(canonical []byte, encrypted bool) (payload, error) {
	if !encrypted {
		return payload{Data: canonical}, nil
	}
	if s.keys == nil || s.keys.Public == nil {
		return payload{}, fault.New(fault.KindEncryption, "store.SaveData", "no public key configured")
	}
	env, err := seal.Encrypt(s.keys.Public, canonical, seal.Options{Compress: s.compress})
	if err != nil {
		return payload{}, err
	}
	return payload{
		Data:       env.Ciphertext,
		WrappedKey: env.WrappedKey,
		Nonce:      env.Nonce,
		Encrypted:  true,
		Compressed: env.Compressed,
	}, nil
}

// openPayload returns the canonical plaintext of a persisted payload.
func (s *Store) openPayload(p payload) ([]byte, error) {
	if !p.Encrypted {
		return p.Data, nil
	}
	if s.keys == nil || s.keys.Private == nil {
		return nil, fault.New(fault.KindDecryption, "store.LoadData", "no private key configured")
	}
	return seal.Decrypt(s.keys.Private, &seal.Envelope{
		WrappedKey: p.WrappedKey,
		Nonce:      p.Nonce,
		Ciphertext: p.Data,
		Compressed: p.Compressed,
	})
}

// decodeValue parses canonical JSON back into an IR value and checks it
// against the digest recorded at write time.
func decodeValue(id string, canonical []byte, wantDigest string) (ir.IRValue, error) {
	if got := ir.Digest(ir.DomainRecord, canonical); got != wantDigest {
		return nil, fault.New(fault.KindIntegrity, "store.LoadData",
			fmt.Sprintf("record %s: payload digest %s does not match recorded %s", id, got, wantDigest))
	}
	v, err := ir.UnmarshalIRValue(canonical)
	if err != nil {
		return nil, fault.Wrap(fault.KindIntegrity, "store.LoadData", fmt.Errorf("record %s: %w", id, err))
	}
	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
