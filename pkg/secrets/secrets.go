package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// EncryptString encrypts plaintext under the purpose key and returns base64 ciphertext.
// aad is authenticated but not encrypted; the same value is required to decrypt.
func (k *Keyring) EncryptString(purpose, plaintext, aad string) (string, error) {
	ciphertext, err := k.EncryptBytes(purpose, []byte(plaintext), []byte(aad))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString.
func (k *Keyring) DecryptString(purpose, ciphertext, aad string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	plaintext, err := k.DecryptBytes(purpose, raw, []byte(aad))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptBytes returns nonce + ciphertext + tag.
func (k *Keyring) EncryptBytes(purpose string, data, aad []byte) ([]byte, error) {
	aesGCM, err := k.aead(purpose)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	return aesGCM.Seal(nonce, nonce, data, aad), nil
}

// DecryptBytes expects ciphertext in format: nonce + encrypted data + tag
func (k *Keyring) DecryptBytes(purpose string, ciphertext, aad []byte) ([]byte, error) {
	aesGCM, err := k.aead(purpose)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize+aesGCM.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (k *Keyring) aead(purpose string) (cipher.AEAD, error) {
	key, err := k.DeriveKey(purpose)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
