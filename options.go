package tq

import (
	"database/sql"
	"math"
	"time"
)

const (
	defaultMaxRetries    = 5
	defaultKeepMessages  = 10000
	defaultPruneInterval = 1000
)

// Options configures a Queue.
type Options struct {
	// MaxRetries is the retry count at which a failed message moves to the
	// deadletter relation.
	MaxRetries int
	// ExponentialBackoff, when set, delays a failed message with n prior
	// retries by (n+1)^ExponentialBackoff seconds. Nil retries immediately.
	ExponentialBackoff *float64
	// KeepMessages is the number of acknowledged rows pruning leaves behind.
	KeepMessages int
	// PruneInterval is the number of queue Puts between prune passes.
	PruneInterval int

	now func() time.Time
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		MaxRetries:    defaultMaxRetries,
		KeepMessages:  defaultKeepMessages,
		PruneInterval: defaultPruneInterval,
		now:           time.Now,
	}
}

func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

func WithExponentialBackoff(exponent float64) Option {
	return func(o *Options) {
		o.ExponentialBackoff = &exponent
	}
}

func WithKeepMessages(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.KeepMessages = n
		}
	}
}

func WithPruneInterval(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.PruneInterval = n
		}
	}
}

// WithNowFunc replaces the clock used for enqueued, fetched, acked and eta
// timestamps.
func WithNowFunc(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.now = now
		}
	}
}

// nextETA returns the visibility time of a message failing with prior retries.
func (o Options) nextETA(now time.Time, prior int) sql.NullInt64 {
	if o.ExponentialBackoff == nil {
		return sql.NullInt64{}
	}
	ms := math.Pow(float64(prior+1), *o.ExponentialBackoff) * 1000
	if ms >= float64(math.MaxInt64-now.UnixMilli()) {
		return sql.NullInt64{Int64: math.MaxInt64, Valid: true}
	}
	return sql.NullInt64{Int64: now.UnixMilli() + int64(ms), Valid: true}
}
