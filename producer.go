package tq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxPushRetries = 3
	messageCacheSize      = 50
)

// ErrProducerStopped is returned by Push after Stop.
var ErrProducerStopped = errors.New("producer stopped")

// Putter is the part of a Queue a Producer needs.
type Putter interface {
	Put(ctx context.Context, m Message, route Route) (uuid.UUID, error)
}

type ProducerOptions struct {
	// MaxRetries bounds how often one Put is retried on a store error.
	MaxRetries int
	// BufferSize is the depth of the pending message channel.
	BufferSize int
}

func defaultProducerOptions() ProducerOptions {
	return ProducerOptions{
		MaxRetries: defaultMaxPushRetries,
		BufferSize: messageCacheSize,
	}
}

// Producer puts messages asynchronously from a background goroutine,
// retrying store errors with exponential backoff.
type Producer struct {
	ctx     context.Context
	q       Putter
	opts    ProducerOptions
	msgChan chan Message
	errChan chan error

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewProducer starts a producer for q. A nil opts selects the defaults.
func NewProducer(ctx context.Context, q Putter, opts *ProducerOptions) *Producer {
	p := &Producer{ctx: ctx, q: q, opts: defaultProducerOptions()}
	if opts != nil {
		p.opts = *opts
	}
	if p.opts.BufferSize < 0 {
		p.opts.BufferSize = 0
	}
	p.msgChan = make(chan Message, p.opts.BufferSize)
	p.errChan = make(chan error, p.opts.BufferSize+1)
	p.wg.Add(1)
	go p.startPushingMessages()
	return p
}

// Push assigns a new ID to a message for task and queues it for putting.
func (p *Producer) Push(task string, payload any) (uuid.UUID, error) {
	m, err := NewMessage(uuid.New(), task, payload)
	if err != nil {
		return uuid.Nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return uuid.Nil, ErrProducerStopped
	}
	select {
	case p.msgChan <- m:
		return m.ID, nil
	case <-p.ctx.Done():
		return uuid.Nil, p.ctx.Err()
	}
}

// Errors delivers the pushes that failed permanently.
func (p *Producer) Errors() <-chan error {
	return p.errChan
}

// Stop waits for queued messages to be put and ends the background
// goroutine. If the producer's context is done first, every message still
// queued is reported on Errors instead.
func (p *Producer) Stop() {
	p.closeInput()
	p.wg.Wait()
}

func (p *Producer) closeInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		close(p.msgChan)
	}
}

func (p *Producer) startPushingMessages() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			log.Debug().Err(p.ctx.Err()).Msg("stopping message pushing: context closed")
			p.closeInput()
			for m := range p.msgChan {
				p.reportError(fmt.Errorf("error pushing message %s: %w", m.ID, p.ctx.Err()), m)
			}
			return
		case m, ok := <-p.msgChan:
			if !ok {
				log.Debug().Msg("stopping message pushing: producer stopped")
				return
			}
			if err := p.ctx.Err(); err != nil {
				p.reportError(fmt.Errorf("error pushing message %s: %w", m.ID, err), m)
				continue
			}
			p.push(m)
		}
	}
}

func (p *Producer) push(m Message) {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.opts.MaxRetries)), p.ctx)
	err := backoff.Retry(func() error { return p.pushMessage(m) }, b)
	if err == nil {
		return
	}
	p.reportError(fmt.Errorf("error pushing message %s: %w", m.ID, err), m)
}

func (p *Producer) reportError(err error, m Message) {
	log.Err(err).Msg("error pushing message")
	select {
	case p.errChan <- err:
	default:
		log.Warn().Str("id", m.ID.String()).Msg("producer error channel full, dropping error")
	}
}

func (p *Producer) pushMessage(m Message) error {
	log.Debug().Str("id", m.ID.String()).Msg("pushing message onto queue")
	if _, err := p.q.Put(p.ctx, m, RouteQueue); err != nil {
		if errors.Is(err, ErrPruneFailed) {
			// Stored; retrying would insert a duplicate ID.
			log.Err(err).Str("id", m.ID.String()).Msg("message stored but prune failed")
			return nil
		}
		return err
	}
	log.Debug().Str("id", m.ID.String()).Msg("successfully pushed message onto queue")
	return nil
}
