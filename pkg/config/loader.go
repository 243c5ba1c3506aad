package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// Validator is implemented by configuration structs that check their own invariants.
type Validator interface {
	Validate() error
}

type options struct {
	prefix   string
	envFiles []string
}

// Option tunes Load.
type Option func(*options)

// WithPrefix prepends prefix to every variable name of the struct.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvFiles loads the given dotenv files instead of the default ".env".
// Variables already present in the environment are never overwritten.
func WithEnvFiles(files ...string) Option {
	return func(o *options) { o.envFiles = files }
}

// Load parses environment variables into a new T according to its env tags.
// Dotenv files are read once per process; a missing file is not an error.
// When *T implements Validator it is validated after parsing.
//
//	type ServerConfig struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	cfg, err := config.Load[ServerConfig]()
func Load[T any](opts ...Option) (T, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	dotenvOnce.Do(func() {
		_ = godotenv.Load(o.envFiles...)
	})

	var cfg T
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: o.prefix}); err != nil {
		return cfg, errors.Join(ErrParsingConfig, err)
	}

	if v, ok := any(&cfg).(Validator); ok {
		if err := v.Validate(); err != nil {
			return cfg, errors.Join(ErrInvalidConfig, err)
		}
	}

	return cfg, nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](opts ...Option) T {
	cfg, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return cfg
}
