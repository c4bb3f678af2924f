package seal

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/chainvault/internal/fault"
)

// MinKeyBits is the smallest RSA modulus accepted for key wrapping.
const MinKeyBits = 2048

// Key file names under the key directory.
const (
	PublicKeyFile  = "public.pem"
	PrivateKeyFile = "private.pem"
)

// KeyPair is the asymmetric credential used to wrap envelope keys.
// The private key never leaves the key directory and never encrypts bulk
// payloads directly.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// Generate creates a fresh key pair of the given size.
func Generate(bits int) (*KeyPair, error) {
	if bits < MinKeyBits {
		return nil, fault.New(fault.KindInvalidArgument, "seal.Generate",
			fmt.Sprintf("key size %d below minimum %d", bits, MinKeyBits))
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fault.Wrap(fault.KindEncryption, "seal.Generate", err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// LoadOrGenerate loads the key pair stored in dir, generating and writing a
// new one if neither file exists. A directory holding only one of the two
// files is an error: silently replacing half a pair would orphan every
// record sealed under the old key.
func LoadOrGenerate(dir string, bits int) (*KeyPair, error) {
	pubPath := filepath.Join(dir, PublicKeyFile)
	privPath := filepath.Join(dir, PrivateKeyFile)

	pubExists, err := exists(pubPath)
	if err != nil {
		return nil, err
	}
	privExists, err := exists(privPath)
	if err != nil {
		return nil, err
	}

	switch {
	case pubExists && privExists:
		return Load(dir)
	case pubExists != privExists:
		return nil, fault.New(fault.KindInvalidArgument, "seal.LoadOrGenerate",
			fmt.Sprintf("incomplete key pair in %s", dir))
	}

	kp, err := Generate(bits)
	if err != nil {
		return nil, err
	}
	if err := kp.Save(dir); err != nil {
		return nil, err
	}
	slog.Info("generated key pair", "dir", dir, "bits", bits)
	return kp, nil
}

// Load reads public.pem and private.pem from dir.
func Load(dir string) (*KeyPair, error) {
	privPEM, err := os.ReadFile(filepath.Join(dir, PrivateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fault.New(fault.KindInvalidArgument, "seal.Load", "private key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, "seal.Load", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fault.New(fault.KindInvalidArgument, "seal.Load", "private key is not RSA")
	}

	pubPEM, err := os.ReadFile(filepath.Join(dir, PublicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	block, _ = pem.Decode(pubPEM)
	if block == nil {
		return nil, fault.New(fault.KindInvalidArgument, "seal.Load", "public key is not PEM encoded")
	}
	parsedPub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArgument, "seal.Load", err)
	}
	pub, ok := parsedPub.(*rsa.PublicKey)
	if !ok {
		return nil, fault.New(fault.KindInvalidArgument, "seal.Load", "public key is not RSA")
	}
	if !pub.Equal(&priv.PublicKey) {
		return nil, fault.New(fault.KindInvalidArgument, "seal.Load", "public and private key do not match")
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Save writes the pair to dir. The private key is written 0600.
func (kp *KeyPair) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(kp.Private)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(kp.Public)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(filepath.Join(dir, PrivateKeyFile), privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(filepath.Join(dir, PublicKeyFile), pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
