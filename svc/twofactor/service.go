package twofactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/pkg/lockout"
	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/qrcode"
	"github.com/dmitrymomot/twofactor/pkg/secrets"
	"github.com/dmitrymomot/twofactor/pkg/statemachine"
	"github.com/dmitrymomot/twofactor/pkg/totp"
	"github.com/dmitrymomot/twofactor/svc/auth"
)

const lockoutKeyPrefix = "twofactor:"

// Service runs the two-factor lifecycle of accounts. It is safe for concurrent use;
// all per-account state lives in the Store and the lockout Guard.
type Service struct {
	cfg      Config
	store    Store
	accounts AccountDirectory
	guard    *lockout.Guard
	keyring  *secrets.Keyring
	engine   *totp.Engine
	vault    *Vault
	machine  *statemachine.Machine[Status, Event]
	qr       *qrcode.Renderer
	events   EventPublisher
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEventPublisher sets where security events go. Events are dropped by default.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithQRRenderer(r *qrcode.Renderer) Option {
	return func(s *Service) {
		if r != nil {
			s.qr = r
		}
	}
}

// NewService validates cfg and wires the collaborators. The guard must be built
// from cfg.Lockout by the caller so that it can share a store across replicas.
func NewService(cfg Config, store Store, accounts AccountDirectory, guard *lockout.Guard, keyring *secrets.Keyring, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || accounts == nil || guard == nil || keyring == nil {
		return nil, fmt.Errorf("%w: store, accounts, guard and keyring are required", ErrInvalidConfig)
	}

	pepper, err := keyring.DeriveKey(secrets.PurposeBackupCode)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		accounts: accounts,
		guard:    guard,
		keyring:  keyring,
		engine: totp.NewEngine(
			totp.WithDigits(cfg.Digits),
			totp.WithPeriod(cfg.Period),
			totp.WithSkew(cfg.Skew),
		),
		vault:   NewVault(store, pepper, cfg.BackupCodes),
		machine: newLifecycle(),
		qr:      qrcode.NewRenderer(qrcode.WithSize(cfg.QRCodeSize)),
		events:  noopPublisher{},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("twofactor"))

	return s, nil
}

// StartEnrollment generates a new secret and stores the profile as pending.
// Calling it again while pending replaces the unconfirmed secret.
func (s *Service) StartEnrollment(ctx context.Context, id auth.Identity) (*Enrollment, error) {
	const op = "twofactor.StartEnrollment"

	if err := s.authorize(op, id); err != nil {
		return nil, err
	}
	p, err := s.loadProfile(ctx, op, id.AccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.transition(ctx, op, p, EventStart)
	if err != nil {
		return nil, err
	}

	label, err := s.accountLabel(ctx, op, id)
	if err != nil {
		return nil, err
	}

	secret, err := totp.GenerateSecretKey()
	if err != nil {
		s.log.ErrorContext(ctx, "secret generation failed", logger.AccountID(id.AccountID), logger.Error(err))
		return nil, newError(op, KindEntropy, ErrEntropy, err)
	}
	uri, err := totp.GetTOTPURI(totp.TOTPParams{
		Secret:      secret,
		AccountName: label,
		Issuer:      s.cfg.Issuer,
		Digits:      s.cfg.Digits,
		Period:      int(s.cfg.Period / time.Second),
	})
	if err != nil {
		return nil, newError(op, KindUnknown, err)
	}
	encrypted, err := s.keyring.EncryptString(secrets.PurposeTOTPSecret, secret, id.AccountID.String())
	if err != nil {
		return nil, newError(op, KindEntropy, ErrEntropy, err)
	}

	now := s.now()
	next := *p
	next.SecretEncrypted = encrypted
	next.Status = to
	next.ConfirmedAt = nil
	next.LastUsedStep = 0
	next.UpdatedAt = now
	if err := s.store.SaveProfile(ctx, &next, p.Version); err != nil {
		return nil, storeError(op, err)
	}

	enrollment := &Enrollment{Secret: secret, ProvisioningURI: uri}
	if enrollment.QRCode, err = s.qr.DataURI(uri); err != nil {
		s.log.WarnContext(ctx, "qr code rendering failed", logger.AccountID(id.AccountID), logger.Error(err))
	}

	s.log.InfoContext(ctx, "two-factor enrollment started",
		logger.AccountID(id.AccountID),
		logger.Status(string(next.Status)),
	)
	return enrollment, nil
}

// ConfirmEnrollment enables two-factor authentication once code matches the pending
// secret and returns the first backup code batch. Wrong codes are not counted
// against the lockout.
func (s *Service) ConfirmEnrollment(ctx context.Context, id auth.Identity, code string) (*Confirmation, error) {
	const op = "twofactor.ConfirmEnrollment"

	if err := s.authorize(op, id); err != nil {
		return nil, err
	}
	code = totp.NormalizeCode(code)
	if !totp.ValidCodeFormat(code, s.cfg.Digits) {
		return nil, newError(op, KindInputValidation, ErrInvalidCodeFormat)
	}

	p, err := s.loadProfile(ctx, op, id.AccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.transition(ctx, op, p, EventConfirm)
	if err != nil {
		return nil, err
	}

	now := s.now()
	step, err := s.matchTOTP(op, p, code, now)
	if err != nil {
		return nil, err
	}

	plain, records, err := s.vault.NewBatch(id.AccountID, now)
	if err != nil {
		return nil, newError(op, KindEntropy, err)
	}

	next := *p
	next.Status = to
	next.ConfirmedAt = &now
	next.LastUsedStep = step
	next.UpdatedAt = now
	if err := s.store.SaveProfileWithBackupCodes(ctx, &next, p.Version, records); err != nil {
		return nil, storeError(op, err)
	}

	s.log.InfoContext(ctx, "two-factor authentication enabled", logger.AccountID(id.AccountID))
	s.publish(ctx, SecurityEvent{Type: EventEnabled, AccountID: id.AccountID, OccurredAt: now})

	return &Confirmation{BackupCodes: plain, ConfirmedAt: now}, nil
}

// VerifyLogin checks a login challenge. A lockout slot is reserved before
// anything else; TOTP codes are tried before backup codes. A success clears the
// failure counter, a wrong code adds to it. Unknown accounts and accounts without
// two-factor authentication get the same invalid code error, uncounted.
func (s *Service) VerifyLogin(ctx context.Context, accountID uuid.UUID, code string) (*Verification, error) {
	const op = "twofactor.VerifyLogin"

	attempt, err := s.reserve(ctx, op, accountID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, attempt, accountID)

	if _, err := s.accounts.GetAccountByID(ctx, accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, newError(op, KindInvalidCode, ErrInvalidCode)
		}
		return nil, persistenceError(op, err)
	}
	p, err := s.loadProfile(ctx, op, accountID)
	if err != nil {
		return nil, err
	}
	if !p.IsEnabled() {
		return nil, newError(op, KindInvalidCode, ErrInvalidCode)
	}

	pr, err := s.prove(ctx, op, attempt, p, code, backupConsume)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := &Verification{Method: pr.method}
	switch pr.method {
	case MethodTOTP:
		if err := s.commitStep(ctx, op, p, pr.step, now); err != nil {
			if errors.Is(err, ErrInvalidCode) {
				return nil, s.fail(ctx, op, attempt, accountID)
			}
			return nil, err
		}
	case MethodBackupCode:
		remaining, err := s.vault.Remaining(ctx, accountID)
		if err != nil {
			s.log.WarnContext(ctx, "counting backup codes failed", logger.AccountID(accountID), logger.Error(err))
		}
		res.BackupCodesRemaining = remaining
		s.publish(ctx, SecurityEvent{
			Type:       EventBackupCodeUsed,
			AccountID:  accountID,
			OccurredAt: now,
			Method:     MethodBackupCode,
			Remaining:  remaining,
		})
	}

	s.succeed(ctx, attempt, accountID)
	s.log.InfoContext(ctx, "two-factor challenge passed",
		logger.AccountID(accountID),
		logger.Method(string(pr.method)),
	)
	return res, nil
}

// Disable turns two-factor authentication off. It requires a currently valid TOTP
// or backup code; without one the profile is left enabled with its secret. A
// backup code is spent in the same write that disables the profile, so a lost
// race leaves both untouched.
func (s *Service) Disable(ctx context.Context, id auth.Identity, code string) error {
	const op = "twofactor.Disable"

	if err := s.authorize(op, id); err != nil {
		return err
	}
	p, err := s.loadProfile(ctx, op, id.AccountID)
	if err != nil {
		return err
	}
	to, err := s.transition(ctx, op, p, EventDisable)
	if err != nil {
		return err
	}
	attempt, err := s.reserve(ctx, op, id.AccountID)
	if err != nil {
		return err
	}
	defer s.release(ctx, attempt, id.AccountID)

	pr, err := s.prove(ctx, op, attempt, p, code, backupDefer)
	if err != nil {
		return err
	}

	now := s.now()
	next := *p
	next.Status = to
	next.SecretEncrypted = ""
	next.ConfirmedAt = nil
	next.LastUsedStep = 0
	next.UpdatedAt = now
	if pr.method == MethodBackupCode {
		err = s.store.DisableProfileWithBackupCode(ctx, &next, p.Version, pr.codeHash, now)
	} else {
		err = s.store.DisableProfile(ctx, &next, p.Version, now)
	}
	switch {
	case errors.Is(err, ErrInvalidCode):
		return s.fail(ctx, op, attempt, id.AccountID)
	case err != nil:
		return storeError(op, err)
	}

	s.succeed(ctx, attempt, id.AccountID)
	s.log.InfoContext(ctx, "two-factor authentication disabled",
		logger.AccountID(id.AccountID),
		logger.Method(string(pr.method)),
	)
	s.publish(ctx, SecurityEvent{Type: EventDisabled, AccountID: id.AccountID, OccurredAt: now, Method: pr.method})
	return nil
}

// RegenerateBackupCodes replaces the whole backup code batch. Only a TOTP code is
// accepted as proof so that a leaked backup code cannot mint new ones.
func (s *Service) RegenerateBackupCodes(ctx context.Context, id auth.Identity, code string) ([]string, error) {
	const op = "twofactor.RegenerateBackupCodes"

	if err := s.authorize(op, id); err != nil {
		return nil, err
	}
	p, err := s.loadProfile(ctx, op, id.AccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.transition(ctx, op, p, EventRegenerate)
	if err != nil {
		return nil, err
	}
	attempt, err := s.reserve(ctx, op, id.AccountID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, attempt, id.AccountID)

	pr, err := s.prove(ctx, op, attempt, p, code, backupReject)
	if err != nil {
		return nil, err
	}

	now := s.now()
	plain, records, err := s.vault.NewBatch(id.AccountID, now)
	if err != nil {
		return nil, newError(op, KindEntropy, err)
	}

	next := *p
	next.Status = to
	next.LastUsedStep = pr.step
	next.UpdatedAt = now
	if err := s.store.SaveProfileWithBackupCodes(ctx, &next, p.Version, records); err != nil {
		return nil, storeError(op, err)
	}

	s.succeed(ctx, attempt, id.AccountID)
	s.log.InfoContext(ctx, "backup codes regenerated", logger.AccountID(id.AccountID))
	s.publish(ctx, SecurityEvent{Type: EventBackupCodesRegenerated, AccountID: id.AccountID, OccurredAt: now})

	return plain, nil
}

// Status reports the profile state, remaining backup codes and lockout.
func (s *Service) Status(ctx context.Context, accountID uuid.UUID) (*StatusInfo, error) {
	const op = "twofactor.Status"

	p, err := s.loadProfile(ctx, op, accountID)
	if err != nil {
		return nil, err
	}
	info := &StatusInfo{Status: p.Status, ConfirmedAt: p.ConfirmedAt}

	if p.IsEnabled() {
		if info.BackupCodesRemaining, err = s.vault.Remaining(ctx, accountID); err != nil {
			return nil, persistenceError(op, err)
		}
	}

	d, err := s.guard.Check(ctx, lockoutKey(accountID))
	switch {
	case errors.Is(err, lockout.ErrLockedOut):
		info.Locked = true
		info.RetryAfter = d.RetryAfter
	case err != nil:
		return nil, persistenceError(op, err)
	}
	return info, nil
}

// backupPolicy says whether and how prove accepts a backup code.
type backupPolicy int

const (
	backupReject  backupPolicy = iota
	backupConsume              // spend the code right away
	backupDefer                // only hash it; the caller spends it in its own write
)

type proof struct {
	method   Method
	step     int64  // matched time step, zero for backup codes
	codeHash string // set for deferred backup codes
}

// prove checks code against p. A wrong code is counted on attempt; a malformed
// one is rejected without being counted.
func (s *Service) prove(ctx context.Context, op string, attempt *lockout.Attempt, p *Profile, code string, backup backupPolicy) (proof, error) {
	now := s.now()

	if c := totp.NormalizeCode(code); totp.ValidCodeFormat(c, s.cfg.Digits) {
		step, err := s.matchTOTP(op, p, c, now)
		switch {
		case errors.Is(err, ErrInvalidCode):
			return proof{}, s.fail(ctx, op, attempt, p.AccountID)
		case err != nil:
			return proof{}, err
		}
		return proof{method: MethodTOTP, step: step}, nil
	}

	if backup == backupReject || !totp.ValidRecoveryCodeFormat(code) {
		return proof{}, newError(op, KindInputValidation, ErrInvalidCodeFormat)
	}

	if backup == backupDefer {
		hash, err := s.vault.Hash(code)
		if err != nil {
			return proof{}, newError(op, KindInputValidation, err)
		}
		return proof{method: MethodBackupCode, codeHash: hash}, nil
	}

	err := s.vault.Consume(ctx, p.AccountID, code, now)
	switch {
	case errors.Is(err, ErrInvalidCode):
		return proof{}, s.fail(ctx, op, attempt, p.AccountID)
	case err != nil:
		return proof{}, persistenceError(op, err)
	}
	return proof{method: MethodBackupCode}, nil
}

// matchTOTP returns the matched step. Steps at or before LastUsedStep are replays.
func (s *Service) matchTOTP(op string, p *Profile, code string, now time.Time) (int64, error) {
	if !p.hasSecret() {
		return 0, newError(op, KindUnknown, ErrSecretUnavailable)
	}
	secret, err := s.keyring.DecryptString(secrets.PurposeTOTPSecret, p.SecretEncrypted, p.AccountID.String())
	if err != nil {
		return 0, newError(op, KindUnknown, ErrSecretUnavailable, err)
	}
	step, ok, err := s.engine.Match(secret, code, now)
	if err != nil {
		return 0, newError(op, KindUnknown, ErrSecretUnavailable, err)
	}
	if !ok || step <= p.LastUsedStep {
		return 0, newError(op, KindInvalidCode, ErrInvalidCode)
	}
	return step, nil
}

// commitStep records step as used. On a lost race the profile is reloaded once:
// if the winner already used this step or a later one, the code is a replay.
func (s *Service) commitStep(ctx context.Context, op string, p *Profile, step int64, now time.Time) error {
	for range 2 {
		if !p.IsEnabled() || step <= p.LastUsedStep {
			return ErrInvalidCode
		}
		next := *p
		next.LastUsedStep = step
		next.UpdatedAt = now
		err := s.store.SaveProfile(ctx, &next, p.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return persistenceError(op, err)
		}
		if p, err = s.store.GetProfile(ctx, p.AccountID); err != nil {
			return persistenceError(op, err)
		}
	}
	return newError(op, KindStateConflict, ErrConcurrentUpdate)
}

func (s *Service) fail(ctx context.Context, op string, attempt *lockout.Attempt, accountID uuid.UUID) error {
	d, err := attempt.Fail(ctx)
	if err != nil {
		return persistenceError(op, err)
	}
	if d.Locked {
		s.log.WarnContext(ctx, "two-factor verification locked",
			logger.AccountID(accountID),
			slog.Time("locked_until", d.LockedUntil),
		)
		s.publish(ctx, SecurityEvent{
			Type:       EventLockedOut,
			AccountID:  accountID,
			OccurredAt: s.now(),
			RetryAfter: d.RetryAfter,
		})
	}
	return newError(op, KindInvalidCode, ErrInvalidCode)
}

// succeed clears the failure counter. The operation has already committed, so a
// store error is only logged.
func (s *Service) succeed(ctx context.Context, attempt *lockout.Attempt, accountID uuid.UUID) {
	if err := attempt.Succeed(ctx); err != nil {
		s.log.ErrorContext(ctx, "lockout reset failed", logger.AccountID(accountID), logger.Error(err))
	}
}

// release returns the slot of an attempt that was neither a success nor a counted
// failure. It is a no-op once the attempt is settled.
func (s *Service) release(ctx context.Context, attempt *lockout.Attempt, accountID uuid.UUID) {
	if err := attempt.Release(ctx); err != nil {
		s.log.WarnContext(ctx, "lockout release failed", logger.AccountID(accountID), logger.Error(err))
	}
}

// reserve takes a lockout slot for accountID or reports the lock.
func (s *Service) reserve(ctx context.Context, op string, accountID uuid.UUID) (*lockout.Attempt, error) {
	attempt, d, err := s.guard.Reserve(ctx, lockoutKey(accountID))
	switch {
	case errors.Is(err, lockout.ErrLockedOut):
		e := newError(op, KindLockedOut, ErrLockedOut)
		e.RetryAfter = d.RetryAfter
		return nil, e
	case err != nil:
		return nil, persistenceError(op, err)
	}
	return attempt, nil
}

func (s *Service) authorize(op string, id auth.Identity) error {
	if !id.CanManageTwoFactor() {
		return newError(op, KindForbidden, ErrNotPermitted)
	}
	return nil
}

// loadProfile returns an unset profile for accounts that never enrolled.
func (s *Service) loadProfile(ctx context.Context, op string, accountID uuid.UUID) (*Profile, error) {
	p, err := s.store.GetProfile(ctx, accountID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return &Profile{AccountID: accountID, Status: StatusUnset}, nil
	case err != nil:
		return nil, persistenceError(op, err)
	}
	return p, nil
}

func (s *Service) transition(ctx context.Context, op string, p *Profile, event Event) (Status, error) {
	to, err := s.machine.Fire(ctx, p.Status, event, p)
	if err != nil {
		return "", newError(op, KindStateConflict, conflictFor(event), err)
	}
	return to, nil
}

// accountLabel is the name shown in authenticator apps.
func (s *Service) accountLabel(ctx context.Context, op string, id auth.Identity) (string, error) {
	if id.Email != "" {
		return id.Email, nil
	}
	acc, err := s.accounts.GetAccountByID(ctx, id.AccountID)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return "", newError(op, KindForbidden, ErrAccountNotFound)
	case err != nil:
		return "", persistenceError(op, err)
	}
	if acc.Email == "" {
		return id.AccountID.String(), nil
	}
	return acc.Email, nil
}

func (s *Service) publish(ctx context.Context, ev SecurityEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "security event not published",
			logger.Event(string(ev.Type)),
			logger.AccountID(ev.AccountID),
			logger.Error(err),
		)
	}
}

func storeError(op string, err error) error {
	if errors.Is(err, ErrConcurrentUpdate) {
		return newError(op, KindStateConflict, err)
	}
	return persistenceError(op, err)
}

func lockoutKey(accountID uuid.UUID) string {
	return lockoutKeyPrefix + accountID.String()
}
