package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/text/width"
)

const (
	// RecoveryCodeLength is the number of significant characters in a recovery code.
	RecoveryCodeLength = 10

	// Crockford base32: no I, L, O or U.
	recoveryAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

// GenerateRecoveryCodes creates cryptographically secure backup codes for account recovery.
// Each code has 10 characters from a 32-symbol alphabet (50 bits of entropy) and is
// grouped as XXXXX-XXXXX for readability.
func GenerateRecoveryCodes(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidRecoveryCodeCount
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	buf := make([]byte, RecoveryCodeLength)
	for len(codes) < count {
		if _, err := rand.Read(buf); err != nil {
			return nil, errors.Join(ErrFailedToGenerateRecoveryCode, err)
		}
		var sb strings.Builder
		for i, b := range buf {
			if i == RecoveryCodeLength/2 {
				sb.WriteByte('-')
			}
			sb.WriteByte(recoveryAlphabet[b&0x1f])
		}
		code := sb.String()
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeRecoveryCode maps user input onto the canonical form used for hashing:
// upper case, no separators, full-width characters narrowed, and the ambiguous
// letters O, I and L read as digits.
func NormalizeRecoveryCode(code string) string {
	code = strings.ToUpper(width.Narrow.String(code))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		case 'O':
			return '0'
		case 'I', 'L':
			return '1'
		}
		return r
	}, code)
}

// HashRecoveryCode returns the keyed HMAC-SHA256 of the normalized code, hex encoded.
// The key keeps stored hashes useless without the server-side secret.
func HashRecoveryCode(key []byte, code string) (string, error) {
	if len(key) == 0 {
		return "", ErrMissingRecoveryCodeKey
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(NormalizeRecoveryCode(code)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyRecoveryCode performs constant-time comparison to prevent timing attacks.
func VerifyRecoveryCode(key []byte, code, hashedCode string) bool {
	computed, err := HashRecoveryCode(key, code)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hashedCode)) == 1
}

// ValidRecoveryCodeFormat reports whether code, once normalized, has the length and
// alphabet of a generated recovery code.
func ValidRecoveryCodeFormat(code string) bool {
	code = NormalizeRecoveryCode(code)
	if len(code) != RecoveryCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(recoveryAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
