// Package totp implements RFC 6238 time-based one-time passwords together with the
// helpers needed to onboard an authenticator app and to issue recovery codes.
//
// Secrets are 160-bit random values encoded as unpadded base32. GetTOTPURI builds the
// otpauth:// provisioning URI that authenticator apps scan as a QR code.
//
// An Engine holds the digits/period/skew settings and performs the actual code
// computation and verification:
//
//	engine := totp.NewEngine(totp.WithSkew(1))
//	secret, _ := totp.GenerateSecretKey()
//	code, _ := engine.CodeAt(secret, time.Now())
//	ok, err := engine.Verify(secret, code, time.Now())
//
// Verify treats malformed input as a plain mismatch. Only a secret that passes the
// base32 format check but fails to decode is reported as ErrFailedToValidateTOTP, so
// callers can tell corrupted storage apart from a wrong code. Match additionally returns
// the matched step, which lets callers refuse a code that was already used.
//
// Recovery codes are produced by GenerateRecoveryCodes and stored only as keyed
// HMAC-SHA256 digests (HashRecoveryCode). User input is normalized before hashing so
// lower case, separators and full-width digits are accepted.
package totp
