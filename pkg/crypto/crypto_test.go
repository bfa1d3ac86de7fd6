package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	require.NoError(t, SetEncryptionKey("test-secret"))

	sealed, err := Encrypt("gw-api-key-123")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))
	assert.NotContains(t, sealed, "gw-api-key-123")

	plain, err := Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "gw-api-key-123", plain)
}

func TestDecrypt_PlainLegacyValue(t *testing.T) {
	require.NoError(t, SetEncryptionKey("test-secret"))
	plain, err := Decrypt("legacy-plain")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain", plain)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	require.NoError(t, SetEncryptionKey("key-a"))
	sealed, err := Encrypt("secret")
	require.NoError(t, err)

	require.NoError(t, SetEncryptionKey("key-b"))
	_, err = Decrypt(sealed)
	assert.Error(t, err)
}

func TestSetEncryptionKey_Empty(t *testing.T) {
	assert.Error(t, SetEncryptionKey("  "))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "******7890", Mask("1234567890"))
	assert.Equal(t, "***", Mask("abc"))
}
