package aicrypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNewCipherKeyValidation(t *testing.T) {
	_, err := NewCipher(testKey)
	require.NoError(t, err)

	_, err = NewCipher("not-hex")
	assert.Error(t, err)

	// Valid hex, wrong length.
	_, err = NewCipher("deadbeef")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	plaintext := "sk-proj-abc123-secret-api-key"
	encoded, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)
	assert.NotContains(t, encoded, plaintext)

	decrypted, err := c.Decrypt(encoded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	a, err := c.Encrypt("same secret")
	require.NoError(t, err)
	b, err := c.Encrypt("same secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonce must make ciphertexts differ")
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	encoded, err := c.Encrypt("secret")
	require.NoError(t, err)

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(sealed)

	_, err = c.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	_, err = c.Decrypt("!!not base64!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	// Too short to even hold a nonce.
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("tiny")))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptWithDifferentKeyFails(t *testing.T) {
	c1, err := NewCipher(testKey)
	require.NoError(t, err)
	c2, err := NewCipher(strings.Repeat("ff", 32))
	require.NoError(t, err)

	encoded, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(encoded)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
