// Package config loads tq settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mattbonnell/tq"
	"github.com/rs/zerolog/log"
)

const envPrefix = "TQ"

type Config struct {
	Driver string `envconfig:"DRIVER" default:"sqlite3" validate:"oneof=sqlite3 postgres pgx mysql"`
	DSN    string `envconfig:"DSN" default:"tq.db" validate:"required"`

	MaxRetries int `envconfig:"MAX_RETRIES" default:"5" validate:"gte=0"`
	// ExponentialBackoff is unset unless TQ_EXPONENTIAL_BACKOFF is.
	ExponentialBackoff *float64 `envconfig:"EXPONENTIAL_BACKOFF" validate:"omitempty,gte=0"`
	KeepMessages       int      `envconfig:"KEEP_MESSAGES" default:"10000" validate:"gte=0"`
	PruneInterval      int      `envconfig:"PRUNE_INTERVAL" default:"1000" validate:"gte=1"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	MetricsAddr string        `envconfig:"METRICS_ADDR"`
	PollInitial time.Duration `envconfig:"POLL_INITIAL" default:"100ms" validate:"gt=0"`
	PollMax     time.Duration `envconfig:"POLL_MAX" default:"5s" validate:"gtefield=PollInitial"`
}

// Load reads an optional .env file, then TQ_* environment variables.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// QueueOptions maps the config onto queue options.
func (c Config) QueueOptions() []tq.Option {
	opts := []tq.Option{
		tq.WithMaxRetries(c.MaxRetries),
		tq.WithKeepMessages(c.KeepMessages),
		tq.WithPruneInterval(c.PruneInterval),
	}
	if c.ExponentialBackoff != nil {
		opts = append(opts, tq.WithExponentialBackoff(*c.ExponentialBackoff))
	}
	return opts
}
