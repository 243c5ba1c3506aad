package twofactor

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/twofactor/pkg/lockout"
)

// Config is loaded with the TWOFACTOR_ prefix, so Digits reads TWOFACTOR_DIGITS and
// the nested lockout policy reads TWOFACTOR_LOCKOUT_THRESHOLD and friends.
type Config struct {
	Issuer      string         `env:"ISSUER" envDefault:"Marketplace"`
	Digits      int            `env:"DIGITS" envDefault:"6"`
	Period      time.Duration  `env:"PERIOD" envDefault:"30s"`
	Skew        int            `env:"SKEW" envDefault:"1"`
	BackupCodes int            `env:"BACKUP_CODES" envDefault:"10"`
	QRCodeSize  int            `env:"QR_CODE_SIZE" envDefault:"256"`
	MasterKey   string         `env:"MASTER_KEY"` // base64, 32 bytes
	Lockout     lockout.Config
}

func DefaultConfig() Config {
	return Config{
		Issuer:      "Marketplace",
		Digits:      6,
		Period:      30 * time.Second,
		Skew:        1,
		BackupCodes: 10,
		QRCodeSize:  256,
		Lockout:     lockout.DefaultConfig(),
	}
}

// Validate checks everything except MasterKey, which is consumed by the keyring.
func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	case c.Digits < 6 || c.Digits > 8:
		return fmt.Errorf("%w: digits must be between 6 and 8, got %d", ErrInvalidConfig, c.Digits)
	case c.Period < time.Second || c.Period%time.Second != 0:
		return fmt.Errorf("%w: period must be a whole number of seconds, got %v", ErrInvalidConfig, c.Period)
	case c.Skew < 0 || c.Skew > 3:
		return fmt.Errorf("%w: skew must be between 0 and 3, got %d", ErrInvalidConfig, c.Skew)
	case c.BackupCodes < 1 || c.BackupCodes > 50:
		return fmt.Errorf("%w: backup codes must be between 1 and 50, got %d", ErrInvalidConfig, c.BackupCodes)
	}
	if err := c.Lockout.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
