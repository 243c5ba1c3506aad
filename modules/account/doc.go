// Package account mounts account security routes on a chi router.
//
// TwoFactorService exposes twofactor.Service as JSON endpoints under /2fa:
//
//	POST /2fa/enroll          start enrollment, returns secret, otpauth URI and QR code
//	POST /2fa/enroll/confirm  {"code"} enable and return the backup codes
//	POST /2fa/verify          {"account_id","code"} login challenge, before a session exists
//	POST /2fa/disable         {"code"} turn two-factor authentication off
//	POST /2fa/backup-codes    {"code"} replace the backup codes
//	GET  /2fa/status          current state
//	GET  /2fa/activity        ?limit= recent security events, when WithActivity is set
//
// Every route except verify requires an identity resolved by auth.Middleware.
// Errors are rendered as {"error":{"code","message"}} with the status chosen by
// MapTwoFactorError: 400 for malformed codes, 401 for wrong codes, 403 for roles
// that may not manage second factors, 409 for state conflicts, 429 with
// Retry-After while locked out and 503 when storage is unavailable.
package account
