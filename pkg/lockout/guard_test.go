package lockout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrymomot/twofactor/pkg/lockout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
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

func newGuard(t *testing.T) (*lockout.Guard, *clock) {
	t.Helper()
	store := lockout.NewMemoryStore(lockout.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	guard, err := lockout.NewGuard(store, lockout.DefaultConfig(), lockout.WithClock(c.Now))
	require.NoError(t, err)
	return guard, c
}

func TestNewGuard_Validation(t *testing.T) {
	t.Parallel()

	_, err := lockout.NewGuard(nil, lockout.DefaultConfig())
	assert.ErrorIs(t, err, lockout.ErrStoreRequired)

	tests := []struct {
		name string
		cfg  lockout.Config
	}{
		{"zero threshold", lockout.Config{Threshold: 0, Window: time.Minute, Cooldown: time.Minute}},
		{"zero window", lockout.Config{Threshold: 1, Window: 0, Cooldown: time.Minute}},
		{"negative cooldown", lockout.Config{Threshold: 1, Window: time.Minute, Cooldown: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := lockout.NewGuard(lockout.NewMemoryStore(lockout.WithCleanupInterval(0)), tt.cfg)
			assert.ErrorIs(t, err, lockout.ErrInvalidConfig)
		})
	}
}

func TestGuard_LocksAfterThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, c := newGuard(t)

	for i := 1; i <= 4; i++ {
		d, err := guard.CheckAndRecord(ctx, "acc", lockout.OutcomeFailure)
		require.NoError(t, err)
		assert.False(t, d.Locked)
		assert.Equal(t, i, d.Failures)
		assert.Equal(t, 5-i, d.Remaining)
		c.Advance(time.Minute)
	}

	d, err := guard.CheckAndRecord(ctx, "acc", lockout.OutcomeFailure)
	require.NoError(t, err)
	assert.True(t, d.Locked)
	assert.Equal(t, 15*time.Minute, d.RetryAfter)

	// Sixth attempt is rejected even if it would have been a success.
	d, err = guard.CheckAndRecord(ctx, "acc", lockout.OutcomeSuccess)
	assert.ErrorIs(t, err, lockout.ErrLockedOut)
	assert.True(t, d.Locked)

	c.Advance(10 * time.Minute)
	d, err = guard.Check(ctx, "acc")
	assert.ErrorIs(t, err, lockout.ErrLockedOut)
	assert.Equal(t, 5*time.Minute, d.RetryAfter)

	c.Advance(5 * time.Minute)
	d, err = guard.Check(ctx, "acc")
	require.NoError(t, err)
	assert.False(t, d.Locked)
	assert.Equal(t, 0, d.Failures)
}

func TestGuard_FailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, c := newGuard(t)

	for range 4 {
		_, err := guard.RecordFailure(ctx, "acc")
		require.NoError(t, err)
	}

	c.Advance(15 * time.Minute)
	d, err := guard.RecordFailure(ctx, "acc")
	require.NoError(t, err)
	assert.False(t, d.Locked)
	assert.Equal(t, 1, d.Failures)
}

func TestGuard_SuccessResets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, _ := newGuard(t)

	for range 4 {
		_, err := guard.RecordFailure(ctx, "acc")
		require.NoError(t, err)
	}

	d, err := guard.CheckAndRecord(ctx, "acc", lockout.OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Remaining)

	d, err = guard.RecordFailure(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Failures)
}

func TestGuard_KeysAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, _ := newGuard(t)

	for range 5 {
		_, err := guard.RecordFailure(ctx, "a")
		require.NoError(t, err)
	}

	_, err := guard.Check(ctx, "a")
	assert.ErrorIs(t, err, lockout.ErrLockedOut)
	_, err = guard.Check(ctx, "b")
	assert.NoError(t, err)
}

func TestGuard_ConcurrentFailuresAreNotLost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := lockout.NewMemoryStore(lockout.WithCleanupInterval(0))
	defer store.Close()

	guard, err := lockout.NewGuard(store, lockout.Config{Threshold: 100, Window: time.Hour, Cooldown: time.Hour})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = guard.RecordFailure(ctx, "acc")
		}()
	}
	wg.Wait()

	d, err := guard.Check(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, 50, d.Failures)
}

func TestGuard_EmptyKey(t *testing.T) {
	t.Parallel()
	guard, _ := newGuard(t)

	_, err := guard.Check(context.Background(), "")
	assert.ErrorIs(t, err, lockout.ErrKeyRequired)
	_, err = guard.RecordFailure(context.Background(), "")
	assert.ErrorIs(t, err, lockout.ErrKeyRequired)
	_, _, err = guard.Reserve(context.Background(), "")
	assert.ErrorIs(t, err, lockout.ErrKeyRequired)
	assert.ErrorIs(t, guard.Reset(context.Background(), ""), lockout.ErrKeyRequired)
}

func TestGuard_ReserveBoundsConcurrentAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, _ := newGuard(t)

	const callers = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		attempts []*lockout.Attempt
		refused  int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt, d, err := guard.Reserve(ctx, "acc")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, lockout.ErrLockedOut)
				assert.True(t, d.Locked)
				assert.Positive(t, d.RetryAfter)
				refused++
				return
			}
			attempts = append(attempts, attempt)
		}()
	}
	wg.Wait()

	require.Len(t, attempts, 5)
	assert.Equal(t, callers-5, refused)

	for _, a := range attempts {
		_, err := a.Fail(ctx)
		require.NoError(t, err)
	}

	d, err := guard.Check(ctx, "acc")
	assert.ErrorIs(t, err, lockout.ErrLockedOut)
	assert.Equal(t, 5, d.Failures)
	assert.Equal(t, 15*time.Minute, d.RetryAfter)
}

func TestGuard_ReserveCountsInFlightWithFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, _ := newGuard(t)

	for range 3 {
		_, err := guard.RecordFailure(ctx, "acc")
		require.NoError(t, err)
	}

	first, _, err := guard.Reserve(ctx, "acc")
	require.NoError(t, err)
	second, _, err := guard.Reserve(ctx, "acc")
	require.NoError(t, err)

	_, d, err := guard.Reserve(ctx, "acc")
	require.ErrorIs(t, err, lockout.ErrLockedOut)
	assert.Equal(t, time.Second, d.RetryAfter)

	// The key itself is not locked while attempts are only in flight.
	_, err = guard.Check(ctx, "acc")
	require.NoError(t, err)

	require.NoError(t, first.Release(ctx))
	third, _, err := guard.Reserve(ctx, "acc")
	require.NoError(t, err)

	require.NoError(t, second.Succeed(ctx))
	require.NoError(t, third.Release(ctx))

	d, err = guard.Check(ctx, "acc")
	require.NoError(t, err)
	assert.Zero(t, d.Failures)
}

func TestGuard_AttemptSettlesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, _ := newGuard(t)

	attempt, _, err := guard.Reserve(ctx, "acc")
	require.NoError(t, err)

	d, err := attempt.Fail(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Failures)

	_, err = attempt.Fail(ctx)
	assert.ErrorIs(t, err, lockout.ErrAttemptSettled)
	assert.ErrorIs(t, attempt.Succeed(ctx), lockout.ErrAttemptSettled)
	assert.NoError(t, attempt.Release(ctx))

	d, err = guard.Check(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Failures)
}

func TestGuard_AbandonedReservationsExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	guard, c := newGuard(t)

	for range 5 {
		_, _, err := guard.Reserve(ctx, "acc")
		require.NoError(t, err)
	}
	_, _, err := guard.Reserve(ctx, "acc")
	require.ErrorIs(t, err, lockout.ErrLockedOut)

	c.Advance(lockout.ReservationTTL)
	attempt, _, err := guard.Reserve(ctx, "acc")
	require.NoError(t, err)
	require.NoError(t, attempt.Release(ctx))
}

func TestGuard_CheckAndRecordUnknownOutcome(t *testing.T) {
	t.Parallel()
	guard, _ := newGuard(t)

	_, err := guard.CheckAndRecord(context.Background(), "acc", lockout.Outcome(42))
	assert.ErrorIs(t, err, lockout.ErrUnknownOutcome)
}

type storeMock struct {
	mock.Mock
}

func (m *storeMock) Get(ctx context.Context, key string, now time.Time, cfg lockout.Config) (lockout.State, error) {
	args := m.Called(ctx, key, now, cfg)
	return args.Get(0).(lockout.State), args.Error(1)
}

func (m *storeMock) RecordFailure(ctx context.Context, key string, now time.Time, cfg lockout.Config) (lockout.State, error) {
	args := m.Called(ctx, key, now, cfg)
	return args.Get(0).(lockout.State), args.Error(1)
}

func (m *storeMock) Reserve(ctx context.Context, key string, now time.Time, cfg lockout.Config) (lockout.State, bool, error) {
	args := m.Called(ctx, key, now, cfg)
	return args.Get(0).(lockout.State), args.Bool(1), args.Error(2)
}

func (m *storeMock) Settle(ctx context.Context, key string, now time.Time, cfg lockout.Config, outcome lockout.Outcome) (lockout.State, error) {
	args := m.Called(ctx, key, now, cfg, outcome)
	return args.Get(0).(lockout.State), args.Error(1)
}

func (m *storeMock) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestGuard_StoreFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	store := new(storeMock)
	store.On("Get", ctx, "acc", mock.Anything, mock.Anything).Return(lockout.State{}, storeErr)
	store.On("RecordFailure", ctx, "acc", mock.Anything, mock.Anything).Return(lockout.State{}, storeErr)
	store.On("Reserve", ctx, "acc", mock.Anything, mock.Anything).Return(lockout.State{}, false, storeErr)
	store.On("Reset", ctx, "acc").Return(storeErr)

	guard, err := lockout.NewGuard(store, lockout.DefaultConfig())
	require.NoError(t, err)

	_, err = guard.Check(ctx, "acc")
	assert.ErrorIs(t, err, lockout.ErrStoreFailure)
	assert.ErrorIs(t, err, storeErr)

	_, err = guard.RecordFailure(ctx, "acc")
	assert.ErrorIs(t, err, lockout.ErrStoreFailure)

	_, _, err = guard.Reserve(ctx, "acc")
	assert.ErrorIs(t, err, lockout.ErrStoreFailure)
	assert.ErrorIs(t, err, storeErr)

	assert.ErrorIs(t, guard.Reset(ctx, "acc"), lockout.ErrStoreFailure)
	store.AssertExpectations(t)
}
