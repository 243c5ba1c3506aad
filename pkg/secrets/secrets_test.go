package secrets_test

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/dmitrymomot/twofactor/pkg/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyring(t *testing.T) *secrets.Keyring {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	ring, err := secrets.NewKeyring(key)
	require.NoError(t, err)
	return ring
}

func TestEncryptDecryptString(t *testing.T) {
	t.Parallel()
	ring := newKeyring(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"totp secret", "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"},
		{"unicode", "Hello 世界 🌍"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ciphertext, err := ring.EncryptString(secrets.PurposeTOTPSecret, tt.plaintext, "account-1")
			require.NoError(t, err)
			if tt.plaintext != "" {
				assert.NotContains(t, ciphertext, tt.plaintext)
			}

			decrypted, err := ring.DecryptString(secrets.PurposeTOTPSecret, ciphertext, "account-1")
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEncryptBytes_NonceIsRandom(t *testing.T) {
	t.Parallel()
	ring := newKeyring(t)

	a, err := ring.EncryptBytes(secrets.PurposeTOTPSecret, []byte("same"), nil)
	require.NoError(t, err)
	b, err := ring.EncryptBytes(secrets.PurposeTOTPSecret, []byte("same"), nil)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b))
}

func TestDecrypt_BoundToAADAndPurpose(t *testing.T) {
	t.Parallel()
	ring := newKeyring(t)

	ciphertext, err := ring.EncryptString(secrets.PurposeTOTPSecret, "secret", "account-1")
	require.NoError(t, err)

	_, err = ring.DecryptString(secrets.PurposeTOTPSecret, ciphertext, "account-2")
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)

	_, err = ring.DecryptString(secrets.PurposeBackupCode, ciphertext, "account-1")
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)

	_, err = newKeyring(t).DecryptString(secrets.PurposeTOTPSecret, ciphertext, "account-1")
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
}

func TestInvalidCiphertext(t *testing.T) {
	t.Parallel()
	ring := newKeyring(t)

	tests := []struct {
		name       string
		ciphertext string
		wantErr    error
	}{
		{"empty string", "", secrets.ErrInvalidCiphertext},
		{"invalid base64", "not-base64!@#$", secrets.ErrInvalidCiphertext},
		{"too short ciphertext", "AA==", secrets.ErrInvalidCiphertext},
		{"tampered ciphertext", base64.StdEncoding.EncodeToString(make([]byte, 40)), secrets.ErrDecryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ring.DecryptString(secrets.PurposeTOTPSecret, tt.ciphertext, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()
	ring := newKeyring(t)

	a, err := ring.DeriveKey(secrets.PurposeTOTPSecret)
	require.NoError(t, err)
	again, err := ring.DeriveKey(secrets.PurposeTOTPSecret)
	require.NoError(t, err)
	b, err := ring.DeriveKey(secrets.PurposeBackupCode)
	require.NoError(t, err)

	assert.Len(t, a, secrets.KeySize)
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)

	_, err = ring.DeriveKey("")
	assert.ErrorIs(t, err, secrets.ErrMissingPurpose)
}

func TestNewKeyring(t *testing.T) {
	t.Parallel()

	_, err := secrets.NewKeyring(make([]byte, 16))
	assert.ErrorIs(t, err, secrets.ErrInvalidMasterKey)

	_, err = secrets.NewKeyringFromBase64("%%%")
	assert.ErrorIs(t, err, secrets.ErrInvalidMasterKey)

	encoded, err := secrets.GenerateEncodedKey()
	require.NoError(t, err)
	ring, err := secrets.NewKeyringFromBase64(encoded)
	require.NoError(t, err)
	assert.NotNil(t, ring)
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()
	keys := make(map[string]bool)
	for range 10 {
		key, err := secrets.GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, secrets.KeySize)
		require.False(t, keys[string(key)], "Generated duplicate key")
		keys[string(key)] = true
	}
}
