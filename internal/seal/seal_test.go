package seal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

var (
	testKeysOnce sync.Once
	testKeys     *KeyPair
)

// sharedKeys generates one 2048-bit pair for the whole package; RSA key
// generation dominates test time otherwise.
func sharedKeys(t *testing.T) *KeyPair {
	t.Helper()
	testKeysOnce.Do(func() {
		kp, err := Generate(MinKeyBits)
		if err != nil {
			panic(err)
		}
		testKeys = kp
	})
	return testKeys
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	kp := sharedKeys(t)

	payloads := map[string]ir.IRValue{
		"empty object": ir.IRObject{},
		"flat":         ir.IRObject{"balance": ir.IRInt(100)},
		"nested": ir.IRObject{
			"owner": ir.IRString("alice"),
			"items": ir.IRArray{ir.IRObject{"sku": ir.IRString("a-1"), "qty": ir.IRInt(2)}, ir.IRBool(true)},
			"meta":  ir.IRObject{"tags": ir.IRArray{}},
		},
		// Larger than one RSA-2048 OAEP block (190 bytes).
		"large": ir.IRObject{"blob": ir.IRString(strings.Repeat("chainvault", 2000))},
	}

	for name, v := range payloads {
		for _, compress := range []bool{false, true} {
			t.Run(name, func(t *testing.T) {
				plaintext, err := ir.MarshalCanonical(v)
				require.NoError(t, err)

				env, err := Encrypt(kp.Public, plaintext, Options{Compress: compress})
				require.NoError(t, err)
				assert.NotEqual(t, plaintext, env.Ciphertext)
				assert.Equal(t, compress, env.Compressed)

				got, err := Decrypt(kp.Private, env)
				require.NoError(t, err)
				assert.Equal(t, plaintext, got)

				decoded, err := ir.UnmarshalIRValue(got)
				require.NoError(t, err)
				assert.Equal(t, v, decoded)
			})
		}
	}
}

func TestEncrypt_FreshKeyPerPayload(t *testing.T) {
	kp := sharedKeys(t)
	plaintext := []byte(`{"balance":100}`)

	a, err := Encrypt(kp.Public, plaintext, Options{})
	require.NoError(t, err)
	b, err := Encrypt(kp.Public, plaintext, Options{})
	require.NoError(t, err)

	assert.NotEqual(t, a.WrappedKey, b.WrappedKey)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDecrypt_WrongKey(t *testing.T) {
	kp := sharedKeys(t)
	other, err := Generate(MinKeyBits)
	require.NoError(t, err)

	env, err := Encrypt(kp.Public, []byte(`{"a":1}`), Options{})
	require.NoError(t, err)

	_, err = Decrypt(other.Private, env)
	require.Error(t, err)
	assert.True(t, fault.IsDecryption(err))
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	kp := sharedKeys(t)
	env, err := Encrypt(kp.Public, []byte(`{"a":1}`), Options{})
	require.NoError(t, err)

	env.Ciphertext[0] ^= 0xff
	_, err = Decrypt(kp.Private, env)
	assert.True(t, fault.IsDecryption(err))
}

func TestDecrypt_Malformed(t *testing.T) {
	kp := sharedKeys(t)

	_, err := Decrypt(kp.Private, &Envelope{})
	assert.True(t, fault.IsDecryption(err))

	env, err := Encrypt(kp.Public, []byte(`{}`), Options{})
	require.NoError(t, err)
	env.Nonce = env.Nonce[:4]
	_, err = Decrypt(kp.Private, env)
	assert.True(t, fault.IsDecryption(err))
}

func TestGenerate_RejectsSmallKeys(t *testing.T) {
	_, err := Generate(1024)
	assert.True(t, fault.IsInvalidArgument(err))
}

func TestLoadOrGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	first, err := LoadOrGenerate(dir, MinKeyBits)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, PrivateKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrGenerate(dir, MinKeyBits)
	require.NoError(t, err)
	assert.True(t, first.Public.Equal(second.Public))
	assert.True(t, first.Private.Equal(second.Private))
}

func TestLoadOrGenerate_IncompletePair(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sharedKeys(t).Save(dir))
	require.NoError(t, os.Remove(filepath.Join(dir, PrivateKeyFile)))

	_, err := LoadOrGenerate(dir, MinKeyBits)
	assert.True(t, fault.IsInvalidArgument(err))
}

func TestLoad_MismatchedPair(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sharedKeys(t).Save(dir))

	other, err := Generate(MinKeyBits)
	require.NoError(t, err)
	otherDir := t.TempDir()
	require.NoError(t, other.Save(otherDir))

	pub, err := os.ReadFile(filepath.Join(otherDir, PublicKeyFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, PublicKeyFile), pub, 0o644))

	_, err = Load(dir)
	assert.True(t, fault.IsInvalidArgument(err))
}

func TestDigest_EncryptionAgnostic(t *testing.T) {
	v := ir.IRObject{"balance": ir.IRInt(100)}
	d1, err := Digest(v)
	require.NoError(t, err)
	d2, err := Digest(ir.IRObject{"balance": ir.IRInt(100)})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	d3, err := Digest(ir.IRObject{"balance": ir.IRInt(101)})
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
	assert.False(t, bytes.Equal([]byte(d1), []byte(d3)))
}
