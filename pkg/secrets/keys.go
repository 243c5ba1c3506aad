package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required size for the master key and every derived key.
	KeySize = 32

	// infoPrefix provides domain separation for HKDF expansion.
	infoPrefix = "twofactor-secrets-v1:"
)

// Well-known key purposes.
const (
	PurposeTOTPSecret = "totp-secret"
	PurposeBackupCode = "backup-code"
)

// Keyring derives purpose-bound keys from one master key.
type Keyring struct {
	master []byte
}

// NewKeyring copies masterKey, which must be exactly KeySize bytes.
func NewKeyring(masterKey []byte) (*Keyring, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidMasterKey
	}
	master := make([]byte, KeySize)
	copy(master, masterKey)
	return &Keyring{master: master}, nil
}

// NewKeyringFromBase64 decodes a standard base64 master key, as stored in environment variables.
func NewKeyringFromBase64(encoded string) (*Keyring, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidMasterKey, err)
	}
	defer clearBytes(key)
	return NewKeyring(key)
}

// DeriveKey returns the subkey for purpose. The caller owns the returned slice.
func (k *Keyring) DeriveKey(purpose string) ([]byte, error) {
	if purpose == "" {
		return nil, ErrMissingPurpose
	}
	r := hkdf.New(sha256.New, k.master, nil, []byte(infoPrefix+purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}

// clearBytes zeroes key material once it is no longer needed.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateKey creates a new random 32-byte key suitable for encryption
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateEncodedKey returns a new random key encoded with standard base64.
func GenerateEncodedKey() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
