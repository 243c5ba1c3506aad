// Package secrets protects values at rest with keys derived from a single master key.
//
// A Keyring derives one 32-byte subkey per purpose with HKDF-SHA-256, so the key that
// encrypts authenticator secrets is unrelated to the key that peppers backup-code
// hashes even though both come from the same configured master key. Encryption uses
// AES-256-GCM; the random nonce is prepended to the ciphertext and callers bind each
// ciphertext to its owner through additional authenticated data:
//
//	ring, _ := secrets.NewKeyring(masterKey)
//	ct, _ := ring.EncryptString(secrets.PurposeTOTPSecret, secret, accountID.String())
//	pt, _ := ring.DecryptString(secrets.PurposeTOTPSecret, ct, accountID.String())
//
// A ciphertext copied to another account's row fails to decrypt because the AAD differs.
// All errors wrap package sentinels such as ErrDecryptionFailed; match them with errors.Is.
package secrets
