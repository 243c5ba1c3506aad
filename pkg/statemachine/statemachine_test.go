package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrymomot/twofactor/pkg/statemachine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	state string
	event string
)

const (
	idle    state = "idle"
	running state = "running"
	stopped state = "stopped"

	start event = "start"
	stop  event = "stop"
)

func TestMachine_Fire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := statemachine.MustNew(
		statemachine.WithTransition[state, event](idle, running, start),
		statemachine.WithTransition[state, event](running, stopped, stop),
	)

	next, err := m.Fire(ctx, idle, start, nil)
	require.NoError(t, err)
	assert.Equal(t, running, next)

	next, err = m.Fire(ctx, next, stop, nil)
	require.NoError(t, err)
	assert.Equal(t, stopped, next)

	next, err = m.Fire(ctx, stopped, start, nil)
	assert.True(t, statemachine.IsNoTransitionAvailableError(err))
	assert.Equal(t, stopped, next, "state is unchanged on error")

	_, err = m.Fire(ctx, idle, "", nil)
	assert.ErrorIs(t, err, statemachine.ErrInvalidEvent)
}

func TestMachine_Guards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	allowed := func(_ context.Context, _ state, _ event, data any) bool {
		ok, _ := data.(bool)
		return ok
	}

	m := statemachine.MustNew(
		statemachine.WithTransition(idle, running, start, statemachine.WithGuard[state, event](allowed)),
	)

	assert.True(t, m.CanFire(ctx, idle, start, true))
	assert.False(t, m.CanFire(ctx, idle, start, false))
	assert.False(t, m.CanFire(ctx, running, start, true))

	_, err := m.Fire(ctx, idle, start, false)
	assert.True(t, statemachine.IsTransitionRejectedError(err))
}

func TestMachine_FirstPassingGuardWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	isStop := func(_ context.Context, _ state, _ event, data any) bool { return data == "halt" }

	m := statemachine.MustNew(
		statemachine.WithTransition(idle, stopped, start, statemachine.WithGuard[state, event](isStop)),
		statemachine.WithTransition[state, event](idle, running, start),
	)

	next, err := m.Fire(ctx, idle, start, "halt")
	require.NoError(t, err)
	assert.Equal(t, stopped, next)

	next, err = m.Fire(ctx, idle, start, nil)
	require.NoError(t, err)
	assert.Equal(t, running, next)
}

func TestMachine_Actions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls []string
	record := func(_ context.Context, from, to state, e event, _ any) error {
		calls = append(calls, string(from)+">"+string(to)+":"+string(e))
		return nil
	}
	fail := func(context.Context, state, state, event, any) error { return errors.New("boom") }

	m := statemachine.MustNew(
		statemachine.WithTransition(idle, running, start, statemachine.WithAction[state, event](record)),
		statemachine.WithTransition(running, stopped, stop, statemachine.WithAction[state, event](fail)),
	)

	next, err := m.Fire(ctx, idle, start, nil)
	require.NoError(t, err)
	assert.Equal(t, running, next)
	assert.Equal(t, []string{"idle>running:start"}, calls)

	next, err = m.Fire(ctx, running, stop, nil)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, running, next)

	assert.True(t, m.CanFire(ctx, running, stop, nil), "CanFire does not run actions")
}

func TestNew_InvalidTransition(t *testing.T) {
	t.Parallel()

	_, err := statemachine.New(statemachine.WithTransition[state, event]("", running, start))
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	_, err = statemachine.New(statemachine.WithTransitions(
		statemachine.Transition[state, event]{From: idle, To: running, Event: start},
		statemachine.Transition[state, event]{From: idle, To: running},
	))
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	assert.ErrorContains(t, err, "transition[1]")

	assert.Panics(t, func() {
		statemachine.MustNew(statemachine.WithTransition[state, event](idle, "", start))
	})
}

func TestMachine_Events(t *testing.T) {
	t.Parallel()

	m := statemachine.MustNew(
		statemachine.WithTransition[state, event](idle, running, start),
		statemachine.WithTransition[state, event](idle, stopped, stop),
	)

	assert.ElementsMatch(t, []event{start, stop}, m.Events(idle))
	assert.Empty(t, m.Events(stopped))
}

func TestMachine_ConcurrentUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := statemachine.MustNew(
		statemachine.WithTransition[state, event](idle, running, start),
		statemachine.WithTransition[state, event](running, idle, stop),
	)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := idle
			for range 100 {
				var err error
				if s, err = m.Fire(ctx, s, start, nil); err != nil {
					t.Error(err)
					return
				}
				if s, err = m.Fire(ctx, s, stop, nil); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
