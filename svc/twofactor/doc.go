// Package twofactor implements TOTP-based two-factor authentication for accounts:
// enrollment with a pending confirmation step, login challenges answered with a
// time-based code or a single-use backup code, and disablement that requires
// proof of possession.
//
// # Lifecycle
//
// A profile moves unset → pending → enabled → disabled. Re-enrollment from
// disabled or a restarted enrollment from pending re-enters pending with a fresh
// secret. Transitions are declared once on a statemachine.Machine; the Service
// fires an event, computes the next profile and persists it with a version check
// so that at most one concurrent transition per account wins.
//
// # Secrets and backup codes
//
// TOTP secrets are encrypted with a key derived from the master key and bound to
// the account id. Backup codes are stored as HMAC-SHA256 hashes under a second
// derived key and consumed with a single conditional update.
//
// # Lockout
//
// VerifyLogin, Disable and RegenerateBackupCodes share a per-account lockout.Guard.
// Each call reserves an attempt slot first. While an account is locked, or while
// its recorded failures plus the calls still in flight reach the threshold, a
// call fails with KindLockedOut before the code is evaluated. Malformed input is rejected with KindInputValidation and is not
// counted.
//
// # Usage
//
//	guard, _ := lockout.NewGuard(lockout.NewRedisStore(rdb), cfg.Lockout)
//	keyring, _ := secrets.NewKeyringFromBase64(cfg.MasterKey)
//	svc, err := twofactor.NewService(cfg, pgstore.New(pool), accounts, guard, keyring,
//		twofactor.WithLogger(log),
//		twofactor.WithEventPublisher(twofactor.NewBroadcastPublisher(hub)),
//	)
//
//	enrollment, err := svc.StartEnrollment(ctx, identity)
//	confirmation, err := svc.ConfirmEnrollment(ctx, identity, "123456")
//	verification, err := svc.VerifyLogin(ctx, identity.AccountID, "654321")
//
// Errors are *Error values; use KindOf to classify them and errors.Is with the
// package sentinels for specific conditions.
package twofactor
