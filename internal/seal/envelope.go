// Package seal is the crypto provider: content digests and envelope
// encryption of record payloads.
//
// Bulk data is sealed with a fresh XChaCha20-Poly1305 key per payload; only
// that 32-byte key is encrypted with RSA-OAEP. RSA never sees the payload,
// so payloads of any length are supported.
package seal

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

var (
	// oaepLabel binds wrapped keys to their purpose.
	oaepLabel = []byte("chainvault/envelope-key/v1")

	// envelopeAAD is authenticated with every sealed payload.
	envelopeAAD = []byte("chainvault/envelope/v1")
)

// Envelope is a sealed payload plus everything needed to open it except
// the private key.
type Envelope struct {
	WrappedKey []byte
	Nonce      []byte
	Ciphertext []byte
	// Compressed reports that the plaintext was snappy-encoded before sealing.
	Compressed bool
}

// Options tunes Encrypt.
type Options struct {
	// Compress snappy-encodes the plaintext before sealing.
	Compress bool
}

// Digest returns the record content digest of v. It is the same function
// storage uses, exposed here as the provider's hashing entry point.
func Digest(v ir.IRValue) (string, error) {
	return ir.ContentDigest(v)
}

// Encrypt seals plaintext for the holder of pub.
func Encrypt(pub *rsa.PublicKey, plaintext []byte, opts Options) (*Envelope, error) {
	const op = "seal.Encrypt"
	if pub == nil {
		return nil, fault.New(fault.KindEncryption, op, "no public key")
	}

	dek := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fault.Wrap(fault.KindEncryption, op, err)
	}
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fault.Wrap(fault.KindEncryption, op, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fault.Wrap(fault.KindEncryption, op, err)
	}

	body := plaintext
	if opts.Compress {
		body = snappy.Encode(nil, plaintext)
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, dek, oaepLabel)
	if err != nil {
		return nil, fault.Wrap(fault.KindEncryption, op, err)
	}

	return &Envelope{
		WrappedKey: wrapped,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, body, envelopeAAD),
		Compressed: opts.Compress,
	}, nil
}

// Decrypt opens env with priv. Any mismatch between key material and
// envelope surfaces as a KindDecryption error.
func Decrypt(priv *rsa.PrivateKey, env *Envelope) ([]byte, error) {
	const op = "seal.Decrypt"
	if priv == nil {
		return nil, fault.New(fault.KindDecryption, op, "no private key")
	}
	if env == nil || len(env.WrappedKey) == 0 {
		return nil, fault.New(fault.KindDecryption, op, "missing wrapped key")
	}

	dek, err := rsa.DecryptOAEP(sha256.New(), nil, priv, env.WrappedKey, oaepLabel)
	if err != nil {
		return nil, fault.Wrap(fault.KindDecryption, op, fmt.Errorf("unwrap key: %w", err))
	}
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fault.Wrap(fault.KindDecryption, op, err)
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, fault.Wrap(fault.KindDecryption, op,
			fmt.Errorf("nonce length %d, want %d", len(env.Nonce), aead.NonceSize()))
	}
	body, err := aead.Open(nil, env.Nonce, env.Ciphertext, envelopeAAD)
	if err != nil {
		return nil, fault.Wrap(fault.KindDecryption, op, errors.New("ciphertext authentication failed"))
	}
	if !env.Compressed {
		return body, nil
	}
	plaintext, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fault.Wrap(fault.KindDecryption, op, fmt.Errorf("decompress: %w", err))
	}
	return plaintext, nil
}
