package twofactor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/twofactor/pkg/lockout"
	"github.com/dmitrymomot/twofactor/pkg/secrets"
	"github.com/dmitrymomot/twofactor/pkg/totp"
	"github.com/dmitrymomot/twofactor/svc/auth"
	"github.com/dmitrymomot/twofactor/svc/twofactor"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []twofactor.SecurityEvent
}

func (r *recorder) Publish(_ context.Context, ev twofactor.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Types() []twofactor.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]twofactor.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc    *twofactor.Service
	store  *twofactor.MemoryStore
	clock  *clock
	events *recorder
	engine *totp.Engine
	id     auth.Identity
}

func newFixture(t *testing.T, store twofactor.Store) *fixture {
	t.Helper()

	mem := twofactor.NewMemoryStore()
	if store == nil {
		store = mem
	}

	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	id := auth.Identity{AccountID: uuid.New(), Email: "seller@example.com", Role: auth.RoleOwner}

	lockStore := lockout.NewMemoryStore(lockout.WithCleanupInterval(0))
	t.Cleanup(func() { _ = lockStore.Close() })
	cfg := twofactor.DefaultConfig()
	guard, err := lockout.NewGuard(lockStore, cfg.Lockout, lockout.WithClock(c.Now))
	require.NoError(t, err)

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	keyring, err := secrets.NewKeyring(key)
	require.NoError(t, err)

	events := &recorder{}
	svc, err := twofactor.NewService(cfg, store,
		twofactor.NewMemoryDirectory(twofactor.Account{ID: id.AccountID, Email: id.Email}),
		guard, keyring,
		twofactor.WithClock(c.Now),
		twofactor.WithEventPublisher(events),
	)
	require.NoError(t, err)

	return &fixture{
		svc:    svc,
		store:  mem,
		clock:  c,
		events: events,
		engine: totp.NewEngine(),
		id:     id,
	}
}

// code returns the current TOTP code for secret.
func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := f.engine.CodeAt(secret, f.clock.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a well-formed code that matches none of the accepted steps.
func (f *fixture) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	accepted := map[string]bool{}
	step := f.engine.StepAt(f.clock.Now())
	for i := int64(-1); i <= 1; i++ {
		c, err := f.engine.ComputeCode(secret, step+i)
		require.NoError(t, err)
		accepted[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !accepted[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

// enable runs a full enrollment and moves the clock to the next time step, so
// the confirmation code is not replayed by the caller.
func (f *fixture) enable(t *testing.T) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := f.svc.StartEnrollment(ctx, f.id)
	require.NoError(t, err)
	confirmation, err := f.svc.ConfirmEnrollment(ctx, f.id, f.code(t, enrollment.Secret))
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	return enrollment.Secret, confirmation.BackupCodes
}

func assertKind(t *testing.T, err error, kind twofactor.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, twofactor.KindOf(err), "unexpected kind for %v", err)
}

func TestService_EnrollmentRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	enrollment, err := f.svc.StartEnrollment(ctx, f.id)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/Marketplace:seller@example.com?"))
	assert.Contains(t, enrollment.ProvisioningURI, "secret="+enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,"))

	info, err := f.svc.Status(ctx, f.id.AccountID)
	require.NoError(t, err)
	assert.Equal(t, twofactor.StatusPending, info.Status)

	p, err := f.store.GetProfile(ctx, f.id.AccountID)
	require.NoError(t, err)
	assert.NotContains(t, p.SecretEncrypted, enrollment.Secret)

	confirmation, err := f.svc.ConfirmEnrollment(ctx, f.id, f.code(t, enrollment.Secret))
	require.NoError(t, err)
	require.Len(t, confirmation.BackupCodes, 10)
	assert.Equal(t, f.clock.Now(), confirmation.ConfirmedAt)

	distinct := map[string]struct{}{}
	for _, c := range confirmation.BackupCodes {
		assert.True(t, totp.ValidRecoveryCodeFormat(c), c)
		distinct[c] = struct{}{}
	}
	assert.Len(t, distinct, 10)

	for _, stored := range f.store.BackupCodes(f.id.AccountID) {
		for _, c := range confirmation.BackupCodes {
			assert.NotEqual(t, c, stored.CodeHash)
		}
	}

	info, err = f.svc.Status(ctx, f.id.AccountID)
	require.NoError(t, err)
	assert.Equal(t, twofactor.StatusEnabled, info.Status)
	assert.Equal(t, 10, info.BackupCodesRemaining)
	require.NotNil(t, info.ConfirmedAt)
	assert.Equal(t, []twofactor.EventType{twofactor.EventEnabled}, f.events.Types())
}

func TestService_StartEnrollment_RestartReplacesSecret(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.StartEnrollment(ctx, f.id)
	require.NoError(t, err)
	second, err := f.svc.StartEnrollment(ctx, f.id)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	oldCode := f.code(t, first.Secret)
	if oldCode != f.code(t, second.Secret) {
		_, err = f.svc.ConfirmEnrollment(ctx, f.id, oldCode)
		assertKind(t, err, twofactor.KindInvalidCode)
	}

	_, err = f.svc.ConfirmEnrollment(ctx, f.id, f.code(t, second.Secret))
	require.NoError(t, err)
}

func TestService_StartEnrollment_AlreadyEnabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.enable(t)

	_, err := f.svc.StartEnrollment(context.Background(), f.id)
	assertKind(t, err, twofactor.KindStateConflict)
	assert.ErrorIs(t, err, twofactor.ErrAlreadyEnabled)
}

func TestService_ConfirmEnrollment_Failures(t *testing.T) {
	t.Parallel()

	t.Run("not pending", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.svc.ConfirmEnrollment(context.Background(), f.id, "123456")
		assertKind(t, err, twofactor.KindStateConflict)
		assert.ErrorIs(t, err, twofactor.ErrNotPending)
	})

	t.Run("malformed code", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.svc.StartEnrollment(context.Background(), f.id)
		require.NoError(t, err)

		for _, code := range []string{"", "12345", "1234567", "12a456"} {
			_, err := f.svc.ConfirmEnrollment(context.Background(), f.id, code)
			assertKind(t, err, twofactor.KindInputValidation)
			assert.ErrorIs(t, err, twofactor.ErrInvalidCodeFormat)
		}
	})

	t.Run("wrong code keeps pending and is not counted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		ctx := context.Background()
		enrollment, err := f.svc.StartEnrollment(ctx, f.id)
		require.NoError(t, err)

		for range 10 {
			_, err = f.svc.ConfirmEnrollment(ctx, f.id, f.wrongCode(t, enrollment.Secret))
			assertKind(t, err, twofactor.KindInvalidCode)
		}

		info, err := f.svc.Status(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, twofactor.StatusPending, info.Status)
		assert.False(t, info.Locked)

		_, err = f.svc.ConfirmEnrollment(ctx, f.id, f.code(t, enrollment.Secret))
		require.NoError(t, err)
	})
}

func TestService_ConfirmEnrollment_FullWidthDigits(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	enrollment, err := f.svc.StartEnrollment(ctx, f.id)
	require.NoError(t, err)

	code := f.code(t, enrollment.Secret)
	wide := strings.Map(func(r rune) rune { return r - '0' + '０' }, code)
	_, err = f.svc.ConfirmEnrollment(ctx, f.id, wide[:9]+" "+wide[9:])
	require.NoError(t, err)
}

func TestService_ConcurrentConfirmSingleWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	enrollment, err := f.svc.StartEnrollment(ctx, f.id)
	require.NoError(t, err)
	code := f.code(t, enrollment.Secret)

	const callers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ConfirmEnrollment(ctx, f.id, code); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), successes.Load())
	for err := range errs {
		assertKind(t, err, twofactor.KindStateConflict)
	}
	assert.Len(t, f.store.BackupCodes(f.id.AccountID), 10)
}

func TestService_Forbidden(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	guest := f.id
	guest.Role = auth.RoleGuest

	_, err := f.svc.StartEnrollment(ctx, guest)
	assertKind(t, err, twofactor.KindForbidden)
	assert.ErrorIs(t, err, twofactor.ErrNotPermitted)

	_, err = f.svc.ConfirmEnrollment(ctx, guest, "123456")
	assertKind(t, err, twofactor.KindForbidden)

	err = f.svc.Disable(ctx, guest, "123456")
	assertKind(t, err, twofactor.KindForbidden)

	_, err = f.svc.RegenerateBackupCodes(ctx, guest, "123456")
	assertKind(t, err, twofactor.KindForbidden)
}

func TestService_VerifyLogin_TOTP(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	secret, _ := f.enable(t)

	code := f.code(t, secret)
	res, err := f.svc.VerifyLogin(ctx, f.id.AccountID, code)
	require.NoError(t, err)
	assert.Equal(t, twofactor.MethodTOTP, res.Method)

	// The same code inside its validity window is a replay.
	f.clock.Advance(10 * time.Second)
	_, err = f.svc.VerifyLogin(ctx, f.id.AccountID, code)
	assertKind(t, err, twofactor.KindInvalidCode)

	f.clock.Advance(30 * time.Second)
	_, err = f.svc.VerifyLogin(ctx, f.id.AccountID, f.code(t, secret))
	require.NoError(t, err)
}

func TestService_VerifyLogin_LockoutAfterFiveFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	secret, _ := f.enable(t)

	for i := range 5 {
		_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, f.wrongCode(t, secret))
		assertKind(t, err, twofactor.KindInvalidCode)
		assert.ErrorIs(t, err, twofactor.ErrInvalidCode, "attempt %d", i+1)
	}

	_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, f.code(t, secret))
	assertKind(t, err, twofactor.KindLockedOut)
	assert.ErrorIs(t, err, twofactor.ErrLockedOut)
	assert.Equal(t, 15*time.Minute, twofactor.RetryAfter(err))
	assert.Contains(t, f.events.Types(), twofactor.EventLockedOut)

	info, err := f.svc.Status(ctx, f.id.AccountID)
	require.NoError(t, err)
	assert.True(t, info.Locked)

	f.clock.Advance(15*time.Minute + time.Second)
	res, err := f.svc.VerifyLogin(ctx, f.id.AccountID, f.code(t, secret))
	require.NoError(t, err)
	assert.Equal(t, twofactor.MethodTOTP, res.Method)
}

func TestService_VerifyLogin_SuccessResetsFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	secret, _ := f.enable(t)

	for range 4 {
		_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, f.wrongCode(t, secret))
		assertKind(t, err, twofactor.KindInvalidCode)
	}
	_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, f.code(t, secret))
	require.NoError(t, err)

	for range 4 {
		_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, f.wrongCode(t, secret))
		assertKind(t, err, twofactor.KindInvalidCode)
	}
	f.clock.Advance(30 * time.Second)
	_, err = f.svc.VerifyLogin(ctx, f.id.AccountID, f.code(t, secret))
	require.NoError(t, err)
}

func TestService_VerifyLogin_MalformedIsNotCounted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	secret, _ := f.enable(t)

	for _, code := range []string{"", "abc", "12345", "ABCDE-FGHUU", strings.Repeat("9", 12)} {
		for range 2 {
			_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, code)
			assertKind(t, err, twofactor.KindInputValidation)
		}
	}

	_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, f.code(t, secret))
	require.NoError(t, err)
}

func TestService_VerifyLogin_StateErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.VerifyLogin(ctx, uuid.New(), "123456")
	assertKind(t, err, twofactor.KindInvalidCode)

	// A known account without two-factor looks exactly like a wrong code and is
	// not counted.
	for range 6 {
		_, err = f.svc.VerifyLogin(ctx, f.id.AccountID, "123456")
		assertKind(t, err, twofactor.KindInvalidCode)
		assert.ErrorIs(t, err, twofactor.ErrInvalidCode)
		assert.NotErrorIs(t, err, twofactor.ErrNotEnabled)
	}

	info, err := f.svc.Status(ctx, f.id.AccountID)
	require.NoError(t, err)
	assert.False(t, info.Locked)
}

func TestService_BackupCodes_SingleUse(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	_, codes := f.enable(t)
	require.Len(t, codes, 10)

	res, err := f.svc.VerifyLogin(ctx, f.id.AccountID, codes[2])
	require.NoError(t, err)
	assert.Equal(t, twofactor.MethodBackupCode, res.Method)
	assert.Equal(t, 9, res.BackupCodesRemaining)

	_, err = f.svc.VerifyLogin(ctx, f.id.AccountID, codes[2])
	assertKind(t, err, twofactor.KindInvalidCode)

	// Lower case without the dash is the same code.
	res, err = f.svc.VerifyLogin(ctx, f.id.AccountID, strings.ToLower(strings.ReplaceAll(codes[6], "-", "")))
	require.NoError(t, err)
	assert.Equal(t, 8, res.BackupCodesRemaining)
	assert.Contains(t, f.events.Types(), twofactor.EventBackupCodeUsed)
}

func TestService_BackupCodes_ConcurrentConsumeOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	_, codes := f.enable(t)

	const callers = 10
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
		other     atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, codes[0])
			switch kind := twofactor.KindOf(err); {
			case err == nil:
				successes.Add(1)
			case kind == twofactor.KindInvalidCode, kind == twofactor.KindLockedOut:
				rejected.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
	assert.Zero(t, other.Load())

	remaining, err := f.store.CountRemainingBackupCodes(ctx, f.id.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

// gatedDirectory parks every lookup until open is closed.
type gatedDirectory struct {
	twofactor.AccountDirectory
	open    chan struct{}
	arrived atomic.Int32
}

func (d *gatedDirectory) GetAccountByID(ctx context.Context, id uuid.UUID) (*twofactor.Account, error) {
	d.arrived.Add(1)
	<-d.open
	return d.AccountDirectory.GetAccountByID(ctx, id)
}

func TestService_VerifyLogin_ConcurrentBurstIsBounded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	id := auth.Identity{AccountID: uuid.New(), Email: "seller@example.com", Role: auth.RoleOwner}
	cfg := twofactor.DefaultConfig()

	lockStore := lockout.NewMemoryStore(lockout.WithCleanupInterval(0))
	t.Cleanup(func() { _ = lockStore.Close() })
	guard, err := lockout.NewGuard(lockStore, cfg.Lockout, lockout.WithClock(c.Now))
	require.NoError(t, err)
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	keyring, err := secrets.NewKeyring(key)
	require.NoError(t, err)

	dir := &gatedDirectory{
		AccountDirectory: twofactor.NewMemoryDirectory(twofactor.Account{ID: id.AccountID, Email: id.Email}),
		open:             make(chan struct{}),
	}
	svc, err := twofactor.NewService(cfg, twofactor.NewMemoryStore(), dir, guard, keyring, twofactor.WithClock(c.Now))
	require.NoError(t, err)

	enrollment, err := svc.StartEnrollment(ctx, id)
	require.NoError(t, err)
	engine := totp.NewEngine()
	code, err := engine.CodeAt(enrollment.Secret, c.Now())
	require.NoError(t, err)
	_, err = svc.ConfirmEnrollment(ctx, id, code)
	require.NoError(t, err)
	c.Advance(30 * time.Second)

	f := &fixture{clock: c, engine: engine}
	wrong := f.wrongCode(t, enrollment.Secret)

	const callers = 40
	var (
		wg        sync.WaitGroup
		invalid   atomic.Int32
		lockedOut atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyLogin(ctx, id.AccountID, wrong)
			switch twofactor.KindOf(err) {
			case twofactor.KindInvalidCode:
				invalid.Add(1)
			case twofactor.KindLockedOut:
				lockedOut.Add(1)
			}
		}()
	}

	// Everyone is either parked inside the check or already turned away.
	require.Eventually(t, func() bool {
		return dir.arrived.Load()+lockedOut.Load() == callers
	}, 5*time.Second, time.Millisecond)
	close(dir.open)
	wg.Wait()

	assert.Equal(t, int32(cfg.Lockout.Threshold), dir.arrived.Load())
	assert.Equal(t, int32(cfg.Lockout.Threshold), invalid.Load())
	assert.Equal(t, int32(callers-cfg.Lockout.Threshold), lockedOut.Load())

	info, err := svc.Status(ctx, id.AccountID)
	require.NoError(t, err)
	assert.True(t, info.Locked)
}

func TestService_Disable(t *testing.T) {
	t.Parallel()

	t.Run("without a valid code the profile stays enabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		ctx := context.Background()
		secret, _ := f.enable(t)

		before, err := f.store.GetProfile(ctx, f.id.AccountID)
		require.NoError(t, err)

		err = f.svc.Disable(ctx, f.id, f.wrongCode(t, secret))
		assertKind(t, err, twofactor.KindInvalidCode)
		err = f.svc.Disable(ctx, f.id, "not-a-code")
		assertKind(t, err, twofactor.KindInputValidation)
		err = f.svc.Disable(ctx, f.id, "ZZZZZ-ZZZZZ")
		assertKind(t, err, twofactor.KindInvalidCode)

		after, err := f.store.GetProfile(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, twofactor.StatusEnabled, after.Status)
		assert.Equal(t, before.SecretEncrypted, after.SecretEncrypted)
		assert.NotContains(t, f.events.Types(), twofactor.EventDisabled)
	})

	t.Run("with a TOTP code", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		ctx := context.Background()
		secret, _ := f.enable(t)

		require.NoError(t, f.svc.Disable(ctx, f.id, f.code(t, secret)))

		p, err := f.store.GetProfile(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, twofactor.StatusDisabled, p.Status)
		assert.Empty(t, p.SecretEncrypted)
		assert.Nil(t, p.ConfirmedAt)

		remaining, err := f.store.CountRemainingBackupCodes(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Zero(t, remaining)
		assert.Contains(t, f.events.Types(), twofactor.EventDisabled)
	})

	t.Run("with a backup code", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		ctx := context.Background()
		_, codes := f.enable(t)

		require.NoError(t, f.svc.Disable(ctx, f.id, codes[4]))

		_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, codes[5])
		assertKind(t, err, twofactor.KindInvalidCode)

		p, err := f.store.GetProfile(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, twofactor.StatusDisabled, p.Status)
	})

	t.Run("a lost race keeps the backup code", func(t *testing.T) {
		t.Parallel()
		store := &racingStore{MemoryStore: twofactor.NewMemoryStore()}
		f := newFixture(t, store)
		ctx := context.Background()
		_, codes := f.enable(t)

		err := f.svc.Disable(ctx, f.id, codes[0])
		assertKind(t, err, twofactor.KindStateConflict)
		assert.ErrorIs(t, err, twofactor.ErrConcurrentUpdate)

		p, err := store.GetProfile(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, twofactor.StatusEnabled, p.Status)
		remaining, err := store.CountRemainingBackupCodes(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, 10, remaining)

		res, err := f.svc.VerifyLogin(ctx, f.id.AccountID, codes[0])
		require.NoError(t, err)
		assert.Equal(t, 9, res.BackupCodesRemaining)
	})

	t.Run("a spent backup code is counted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		ctx := context.Background()
		_, codes := f.enable(t)

		_, err := f.svc.VerifyLogin(ctx, f.id.AccountID, codes[3])
		require.NoError(t, err)

		err = f.svc.Disable(ctx, f.id, codes[3])
		assertKind(t, err, twofactor.KindInvalidCode)

		p, err := f.store.GetProfile(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, twofactor.StatusEnabled, p.Status)
	})

	t.Run("not enabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		err := f.svc.Disable(context.Background(), f.id, "123456")
		assertKind(t, err, twofactor.KindStateConflict)
		assert.ErrorIs(t, err, twofactor.ErrNotEnabled)
	})

	t.Run("re-enrollment after disable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		ctx := context.Background()
		secret, _ := f.enable(t)
		require.NoError(t, f.svc.Disable(ctx, f.id, f.code(t, secret)))

		enrollment, err := f.svc.StartEnrollment(ctx, f.id)
		require.NoError(t, err)
		assert.NotEqual(t, secret, enrollment.Secret)

		info, err := f.svc.Status(ctx, f.id.AccountID)
		require.NoError(t, err)
		assert.Equal(t, twofactor.StatusPending, info.Status)
	})
}

func TestService_RegenerateBackupCodes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	secret, old := f.enable(t)

	_, err := f.svc.RegenerateBackupCodes(ctx, f.id, old[0])
	assertKind(t, err, twofactor.KindInputValidation)

	_, err = f.svc.RegenerateBackupCodes(ctx, f.id, f.wrongCode(t, secret))
	assertKind(t, err, twofactor.KindInvalidCode)

	fresh, err := f.svc.RegenerateBackupCodes(ctx, f.id, f.code(t, secret))
	require.NoError(t, err)
	require.Len(t, fresh, 10)
	assert.NotEqual(t, old, fresh)
	assert.Contains(t, f.events.Types(), twofactor.EventBackupCodesRegenerated)

	_, err = f.svc.VerifyLogin(ctx, f.id.AccountID, old[1])
	assertKind(t, err, twofactor.KindInvalidCode)

	res, err := f.svc.VerifyLogin(ctx, f.id.AccountID, fresh[1])
	require.NoError(t, err)
	assert.Equal(t, 9, res.BackupCodesRemaining)
}

func TestService_RegenerateBackupCodes_NotEnabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.svc.RegenerateBackupCodes(context.Background(), f.id, "123456")
	assertKind(t, err, twofactor.KindStateConflict)
	assert.ErrorIs(t, err, twofactor.ErrNotEnabled)
}

// racingStore lets another writer bump the profile version right before a
// backup code disable commits.
type racingStore struct {
	*twofactor.MemoryStore
}

func (s *racingStore) DisableProfileWithBackupCode(ctx context.Context, p *twofactor.Profile, expectedVersion int64, codeHash string, at time.Time) error {
	current, err := s.MemoryStore.GetProfile(ctx, p.AccountID)
	if err != nil {
		return err
	}
	if err := s.MemoryStore.SaveProfile(ctx, current, current.Version); err != nil {
		return err
	}
	return s.MemoryStore.DisableProfileWithBackupCode(ctx, p, expectedVersion, codeHash, at)
}

type failingStore struct {
	*twofactor.MemoryStore
	err error
}

func (s *failingStore) GetProfile(context.Context, uuid.UUID) (*twofactor.Profile, error) {
	return nil, s.err
}

func TestService_PersistenceFailure(t *testing.T) {
	t.Parallel()
	down := errors.New("connection refused")
	f := newFixture(t, &failingStore{MemoryStore: twofactor.NewMemoryStore(), err: down})
	ctx := context.Background()

	_, err := f.svc.StartEnrollment(ctx, f.id)
	assertKind(t, err, twofactor.KindPersistence)
	assert.ErrorIs(t, err, twofactor.ErrStorageUnavailable)
	assert.ErrorIs(t, err, down)
	assert.True(t, twofactor.KindOf(err).Retryable())

	_, err = f.svc.Status(ctx, f.id.AccountID)
	assertKind(t, err, twofactor.KindPersistence)
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	keyring, err := secrets.NewKeyring(key)
	require.NoError(t, err)
	lockStore := lockout.NewMemoryStore(lockout.WithCleanupInterval(0))
	t.Cleanup(func() { _ = lockStore.Close() })
	guard, err := lockout.NewGuard(lockStore, lockout.DefaultConfig())
	require.NoError(t, err)

	bad := twofactor.DefaultConfig()
	bad.Digits = 4
	_, err = twofactor.NewService(bad, twofactor.NewMemoryStore(), twofactor.NewMemoryDirectory(), guard, keyring)
	assert.ErrorIs(t, err, twofactor.ErrInvalidConfig)

	_, err = twofactor.NewService(twofactor.DefaultConfig(), nil, twofactor.NewMemoryDirectory(), guard, keyring)
	assert.ErrorIs(t, err, twofactor.ErrInvalidConfig)
}
