package secrets

import "errors"

var (
	ErrInvalidMasterKey = errors.New("invalid master key: must be 32 bytes")
	ErrMissingPurpose   = errors.New("key purpose is required")

	// Encryption/decryption errors
	ErrEncryptionFailed  = errors.New("encryption failed")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// Key derivation errors
	ErrKeyDerivationFailed = errors.New("key derivation failed")
)
