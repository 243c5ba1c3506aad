package twofactor_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/twofactor/svc/twofactor"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, twofactor.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*twofactor.Config)
	}{
		{"no issuer", func(c *twofactor.Config) { c.Issuer = "" }},
		{"short digits", func(c *twofactor.Config) { c.Digits = 5 }},
		{"long digits", func(c *twofactor.Config) { c.Digits = 9 }},
		{"fractional period", func(c *twofactor.Config) { c.Period = 1500 * time.Millisecond }},
		{"negative skew", func(c *twofactor.Config) { c.Skew = -1 }},
		{"no backup codes", func(c *twofactor.Config) { c.BackupCodes = 0 }},
		{"bad lockout", func(c *twofactor.Config) { c.Lockout.Threshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := twofactor.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), twofactor.ErrInvalidConfig)
		})
	}
}

func TestError_KindAndUnwrap(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("handler: %w", &twofactor.Error{
		Kind:       twofactor.KindLockedOut,
		Op:         "twofactor.VerifyLogin",
		Err:        twofactor.ErrLockedOut,
		RetryAfter: time.Minute,
	})

	assert.Equal(t, twofactor.KindLockedOut, twofactor.KindOf(err))
	assert.Equal(t, time.Minute, twofactor.RetryAfter(err))
	assert.ErrorIs(t, err, twofactor.ErrLockedOut)
	assert.Contains(t, err.Error(), "twofactor.VerifyLogin")
	assert.Equal(t, "locked_out", twofactor.KindLockedOut.String())

	assert.Equal(t, twofactor.KindUnknown, twofactor.KindOf(errors.New("plain")))
	assert.Zero(t, twofactor.RetryAfter(errors.New("plain")))
	assert.False(t, twofactor.KindInvalidCode.Retryable())
	assert.True(t, twofactor.KindPersistence.Retryable())
}
