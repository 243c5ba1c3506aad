package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDigits    = 6      // Standard 6-digit TOTP codes
	DefaultPeriod    = 30     // 30-second validity window (RFC 6238 standard)
	DefaultAlgorithm = "SHA1" // HMAC-SHA1 algorithm (RFC 6238 standard)
	DefaultSkew      = 1      // Steps accepted on each side of the current one

	// SecretSize is the raw secret length in bytes (160 bits, RFC 4226 recommendation).
	SecretSize = 20
	// MinSecretSize is the shortest raw secret accepted (128 bits is recommended,
	// RFC 4226 requires at least 80).
	MinSecretSize = 10
)

var (
	// ValidateSecretKeyRegex ensures Base32 format: uppercase A-Z, digits 2-7, optional padding
	ValidateSecretKeyRegex = regexp.MustCompile("^[A-Z2-7]+=*$")

	secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// TOTPParams contains the parameters for TOTP URI generation
type TOTPParams struct {
	Secret      string // Base32-encoded TOTP secret key (required)
	AccountName string // User identifier like email (required)
	Issuer      string // Service name displayed in authenticator apps (required)
	Algorithm   string // HMAC algorithm (optional, defaults to SHA1)
	Digits      int    // Number of digits in generated codes (optional, defaults to 6)
	Period      int    // Code validity period in seconds (optional, defaults to 30)
}

// Validate ensures all required TOTP parameters are present and valid
func (p TOTPParams) Validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if !ValidateSecretKeyRegex.MatchString(p.Secret) {
		return ErrInvalidSecret
	}
	if p.AccountName == "" {
		return ErrMissingAccountName
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

// GetDefaults returns a copy with RFC 6238 standard defaults applied to zero-valued fields
func (p TOTPParams) GetDefaults() TOTPParams {
	if p.Algorithm == "" {
		p.Algorithm = DefaultAlgorithm
	}
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	return p
}

// GenerateSecretKey generates a new Base32-encoded secret key for TOTP.
func GenerateSecretKey() (string, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", errors.Join(ErrFailedToGenerateSecretKey, err)
	}
	return secretEncoding.EncodeToString(secret), nil
}

// GetTOTPURI creates a properly encoded TOTP URI for use with authenticator apps.
// The URI format follows the Key Uri Format specification:
// https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func GetTOTPURI(params TOTPParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	params = params.GetDefaults()

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(params.Issuer),
		url.PathEscape(params.AccountName),
	)

	query := url.Values{}
	query.Set("secret", params.Secret)
	query.Set("issuer", params.Issuer)
	query.Set("algorithm", params.Algorithm)
	query.Set("digits", strconv.Itoa(params.Digits))
	query.Set("period", strconv.Itoa(params.Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}

// Engine computes and verifies time-based codes for a fixed digits/period/skew setting.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	digits int
	period time.Duration
	skew   int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDigits sets the code length. Values outside 6..8 are ignored.
func WithDigits(digits int) EngineOption {
	return func(e *Engine) {
		if digits >= 6 && digits <= 8 {
			e.digits = digits
		}
	}
}

// WithPeriod sets the time step. Values below one second are ignored.
func WithPeriod(period time.Duration) EngineOption {
	return func(e *Engine) {
		if period >= time.Second {
			e.period = period.Truncate(time.Second)
		}
	}
}

// WithSkew sets how many steps before and after the current one are accepted.
func WithSkew(skew int) EngineOption {
	return func(e *Engine) {
		if skew >= 0 {
			e.skew = skew
		}
	}
}

// NewEngine creates an Engine with RFC 6238 defaults: 6 digits, 30 second steps, one step of drift.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		digits: DefaultDigits,
		period: DefaultPeriod * time.Second,
		skew:   DefaultSkew,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Digits() int           { return e.digits }
func (e *Engine) Period() time.Duration { return e.period }
func (e *Engine) Skew() int             { return e.skew }

// StepAt returns the time-step index containing t.
func (e *Engine) StepAt(t time.Time) int64 {
	return t.Unix() / int64(e.period/time.Second)
}

// ComputeCode returns the zero-padded code for the given step.
func (e *Engine) ComputeCode(secret string, step int64) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", errors.Join(ErrFailedToGenerateTOTP, err)
	}
	return e.format(GenerateHOTP(key, step, e.digits)), nil
}

// CodeAt returns the code for the step containing t.
func (e *Engine) CodeAt(secret string, t time.Time) (string, error) {
	return e.ComputeCode(secret, e.StepAt(t))
}

// Verify reports whether code is valid for secret at now, allowing the configured drift.
// A malformed secret or code yields false without error; a secret that looks like base32
// but cannot be decoded yields ErrFailedToValidateTOTP.
func (e *Engine) Verify(secret, code string, now time.Time) (bool, error) {
	_, ok, err := e.Match(secret, code, now)
	return ok, err
}

// Match is Verify that also returns the step the code matched.
// Every candidate step is compared so the running time does not depend on which one matched.
func (e *Engine) Match(secret, code string, now time.Time) (int64, bool, error) {
	code = NormalizeCode(code)
	if !ValidCodeFormat(code, e.digits) {
		return 0, false, nil
	}

	secret = normalizeSecret(secret)
	if !ValidateSecretKeyRegex.MatchString(secret) {
		return 0, false, nil
	}

	key, err := decodeKey(secret)
	if err != nil {
		return 0, false, errors.Join(ErrFailedToValidateTOTP, err)
	}

	current := e.StepAt(now)
	var (
		matched int64
		found   int
	)
	for i := -e.skew; i <= e.skew; i++ {
		step := current + int64(i)
		candidate := e.format(GenerateHOTP(key, step, e.digits))
		eq := subtle.ConstantTimeCompare([]byte(candidate), []byte(code))
		if eq == 1 && found == 0 {
			matched = step
		}
		found |= eq
	}

	return matched, found == 1, nil
}

func (e *Engine) format(code int) string {
	return fmt.Sprintf("%0*d", e.digits, code)
}

// GenerateHOTP implements RFC 4226 HMAC-based One-Time Password algorithm.
// The algorithm converts a counter value into a numeric code using HMAC-SHA1.
func GenerateHOTP(key []byte, counter int64, digits int) int {
	counterBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(counterBytes, uint64(counter))

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes)
	hash := mac.Sum(nil)

	// Dynamic truncation (RFC 4226): use last 4 bits as offset into hash
	offset := hash[len(hash)-1] & 0x0f
	code := (int(hash[offset]&0x7f) << 24) |
		(int(hash[offset+1]) << 16) |
		(int(hash[offset+2]) << 8) |
		int(hash[offset+3])

	return code % int(math.Pow10(digits))
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}

func decodeSecret(secret string) ([]byte, error) {
	secret = normalizeSecret(secret)
	if !ValidateSecretKeyRegex.MatchString(secret) {
		return nil, ErrInvalidSecret
	}
	key, err := decodeKey(secret)
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	return key, nil
}

// decodeKey decodes base32 with or without padding. The unpadded decoder takes
// lengths that no whole number of bytes encodes to (1, 3 or 6 mod 8), so those
// are refused here, as are keys shorter than MinSecretSize.
func decodeKey(secret string) ([]byte, error) {
	secret = strings.TrimRight(secret, "=")
	switch len(secret) % 8 {
	case 1, 3, 6:
		return nil, fmt.Errorf("base32 secret has impossible length %d", len(secret))
	}
	key, err := secretEncoding.DecodeString(secret)
	if err != nil {
		return nil, err
	}
	if len(key) < MinSecretSize {
		return nil, fmt.Errorf("secret is %d bytes, at least %d required", len(key), MinSecretSize)
	}
	return key, nil
}
