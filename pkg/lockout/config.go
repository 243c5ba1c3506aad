package lockout

import (
	"fmt"
	"time"
)

// Config holds the lockout policy.
type Config struct {
	Threshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`  // Failures that trigger a lock.
	Window    time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`   // Window in which failures are counted.
	Cooldown  time.Duration `env:"LOCKOUT_COOLDOWN" envDefault:"15m"` // Lock duration.
}

// DefaultConfig returns 5 failures in 15 minutes, locked for 15 minutes.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Window:    15 * time.Minute,
		Cooldown:  15 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidConfig, c.Threshold)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfig, c.Window)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("%w: cooldown must be positive, got %v", ErrInvalidConfig, c.Cooldown)
	}
	return nil
}
