package tq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultPollInitialInterval = 100 * time.Millisecond
	defaultPollMaxInterval     = 5 * time.Second
)

// Store is the part of a Queue a Consumer needs.
type Store interface {
	Get(ctx context.Context, route Route) (*Message, error)
	Done(ctx context.Context, m Message) error
	Fail(ctx context.Context, m Message) error
}

// HandlerFunc processes one message. A nil return acknowledges it; an error
// or a panic reports it failed.
type HandlerFunc func(ctx context.Context, m Message) error

type ConsumerOption func(*Consumer)

// WithPollInterval bounds the exponential wait between polls of an empty
// queue.
func WithPollInterval(initial, max time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if initial > 0 {
			c.pollInitial = initial
		}
		if max >= initial && max > 0 {
			c.pollMax = max
		}
	}
}

func WithLogger(logger zerolog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// Consumer polls a Store and dispatches each message to the handler
// registered for its task.
type Consumer struct {
	store       Store
	pollInitial time.Duration
	pollMax     time.Duration
	logger      zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func newConsumer(store Store, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		store:       store,
		pollInitial: defaultPollInitialInterval,
		pollMax:     defaultPollMaxInterval,
		logger:      log.Logger,
		handlers:    make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewConsumer returns a Consumer reading from store.
func NewConsumer(store Store, opts ...ConsumerOption) *Consumer {
	return newConsumer(store, opts...)
}

// Handle registers fn for task, replacing any previous handler.
func (c *Consumer) Handle(task string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[task] = fn
	c.logger.Debug().Str("task", task).Msg("registered handler")
}

func (c *Consumer) handler(task string) (HandlerFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.handlers[task]
	return fn, ok
}

func (c *Consumer) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInitial
	b.MaxInterval = c.pollMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run processes messages until ctx is done. An empty queue or a store error
// backs the poll off exponentially; a processed message resets the wait.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.RLock()
	registered := len(c.handlers)
	c.mu.RUnlock()
	if registered == 0 {
		return errors.New("no handlers registered")
	}
	c.logger.Info().Int("handlers", registered).Msg("starting consumer")
	b := c.newBackOff()
	for {
		processed, err := c.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("error processing message")
		}
		wait := time.Duration(0)
		if processed && err == nil {
			b.Reset()
		} else {
			wait = b.NextBackOff()
		}
		select {
		case <-ctx.Done():
			c.logger.Info().Err(ctx.Err()).Msg("stopping consumer: context closed")
			return nil
		case <-time.After(wait):
		}
	}
}

// ProcessOne gets at most one message and handles it. It reports whether a
// message was taken from the queue.
func (c *Consumer) ProcessOne(ctx context.Context) (bool, error) {
	m, err := c.store.Get(ctx, RouteQueue)
	if err != nil {
		return false, fmt.Errorf("error getting message: %w", err)
	}
	if m == nil {
		return false, nil
	}
	logger := c.logger.With().Str("id", m.ID.String()).Str("task", m.Task).Int("retries", m.Retries).Logger()
	logger.Debug().Msg("processing message")
	if err := c.dispatch(ctx, *m); err != nil {
		logger.Warn().Err(err).Msg("error processing message")
		if err := c.store.Fail(ctx, *m); err != nil {
			return true, fmt.Errorf("error failing message %s: %w", m.ID, err)
		}
		return true, nil
	}
	if err := c.store.Done(ctx, *m); err != nil {
		return true, fmt.Errorf("error acknowledging message %s: %w", m.ID, err)
	}
	logger.Debug().Msg("successfully processed message")
	return true, nil
}

func (c *Consumer) dispatch(ctx context.Context, m Message) (err error) {
	fn, ok := c.handler(m.Task)
	if !ok {
		return fmt.Errorf("no handler registered for task '%s'", m.Task)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn(ctx, m)
}
