package tq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattbonnell/tq/internal"
	"github.com/mattbonnell/tq/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ErrPruneFailed is returned by Put when the message was stored but the
// prune pass it triggered failed.
var ErrPruneFailed = errors.New("prune failed")

// Queue is a durable FIFO task queue with a deadletter relation, backed by
// a transactional SQL store. It is safe for concurrent use; isolation
// between consumers comes from the store's transactions.
type Queue struct {
	db      *sqlx.DB
	dialect internal.Dialect
	opts    Options
	queries map[Route]internal.Queries

	mu             sync.Mutex
	putsSincePrune int
}

func (q *Queue) query(r Route) internal.Queries {
	r.table()
	return q.queries[r]
}

func (q *Queue) now() time.Time {
	return q.opts.now()
}

// Put inserts m into route and returns its ID. Every PruneInterval-th Put
// into the queue relation runs a prune pass after the insert commits.
func (q *Queue) Put(ctx context.Context, m Message, route Route) (uuid.UUID, error) {
	qs := q.query(route)
	row := m.toRow(q.now())
	log.Debug().Str("id", row.ID).Str("route", string(route)).Msg("putting message")
	if _, err := q.db.ExecContext(ctx, qs.Insert, row.ID, row.Task, row.Enqueued, row.Blob, row.Retries, row.ETA); err != nil {
		e := fmt.Errorf("error inserting message: %w", err)
		log.Debug().Err(e).Msg("error")
		return uuid.Nil, e
	}
	metrics.MessagesPut.WithLabelValues(string(route)).Inc()
	if route == RouteQueue {
		if err := q.countPut(ctx); err != nil {
			return m.ID, fmt.Errorf("%w: %w", ErrPruneFailed, err)
		}
	}
	return m.ID, nil
}

// countPut advances the put counter. The caller whose increment reaches
// PruneInterval resets it and runs the prune.
func (q *Queue) countPut(ctx context.Context) error {
	q.mu.Lock()
	q.putsSincePrune++
	due := q.putsSincePrune >= q.opts.PruneInterval
	if due {
		q.putsSincePrune = 0
	}
	q.mu.Unlock()
	if !due {
		return nil
	}
	_, err := q.prune(ctx)
	return err
}

// Get claims the oldest eligible message in route, or returns nil if there is
// none. Queue messages are eligible once unfetched and past their ETA;
// deadletter messages ignore ETA.
func (q *Queue) Get(ctx context.Context, route Route) (*Message, error) {
	qs := q.query(route)
	now := q.now().UnixMilli()
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		e := fmt.Errorf("error beginning message get transaction: %w", err)
		log.Debug().Err(e).Msg("error")
		return nil, e
	}
	defer tx.Rollback()

	var args []interface{}
	if route == RouteQueue {
		args = append(args, now)
	}
	var row internal.Row
	if err := tx.QueryRowxContext(ctx, qs.Claim, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug().Str("route", string(route)).Msg("no messages to get")
			return nil, nil
		}
		e := fmt.Errorf("error selecting message: %w", err)
		log.Debug().Err(e).Msg("error")
		return nil, e
	}
	res, err := tx.ExecContext(ctx, qs.Fetch, now, row.ID)
	if err != nil {
		e := fmt.Errorf("error claiming message: %w", err)
		log.Debug().Err(e).Msg("error")
		return nil, e
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error claiming message: %w", err)
	}
	if n != 1 {
		log.Debug().Str("id", row.ID).Msg("message claimed by another consumer")
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		e := fmt.Errorf("error committing transaction: %w", err)
		log.Debug().Err(e).Msg("error")
		return nil, e
	}
	m, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	metrics.MessagesFetched.WithLabelValues(string(route)).Inc()
	log.Debug().Str("id", row.ID).Str("route", string(route)).Msg("got message")
	return &m, nil
}

// Done acknowledges m. The row stays in the queue relation until pruned.
// A message missing from the queue is ignored.
func (q *Queue) Done(ctx context.Context, m Message) error {
	qs := q.query(RouteQueue)
	res, err := q.db.ExecContext(ctx, qs.Ack, q.now().UnixMilli(), m.ID.String())
	if err != nil {
		return fmt.Errorf("error acknowledging message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error acknowledging message: %w", err)
	}
	if n == 0 {
		log.Debug().Str("id", m.ID.String()).Msg("done: message not in queue")
		return nil
	}
	metrics.MessagesAcked.Inc()
	log.Debug().Str("id", m.ID.String()).Msg("message done")
	return nil
}

// Fail records a failed delivery of m. The retry count becomes
// m.Retries+1; once that reaches MaxRetries the message moves to the
// deadletter relation, otherwise it becomes eligible again at the backoff
// ETA. A message already at MaxRetries moves with its count unchanged.
// A message missing from the queue, or already acknowledged, is ignored.
func (q *Queue) Fail(ctx context.Context, m Message) error {
	now := q.now()
	if m.Retries >= q.opts.MaxRetries {
		return q.deadletter(ctx, m, m.Retries, now)
	}
	retries := m.Retries + 1
	if retries >= q.opts.MaxRetries {
		return q.deadletter(ctx, m, retries, now)
	}
	eta := q.opts.nextETA(now, m.Retries)
	res, err := q.db.ExecContext(ctx, q.query(RouteQueue).Retry, retries, eta, m.ID.String())
	if err != nil {
		return fmt.Errorf("error scheduling retry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error scheduling retry: %w", err)
	}
	if n == 0 {
		log.Debug().Str("id", m.ID.String()).Msg("fail: message not in queue")
		return nil
	}
	metrics.MessagesRetried.Inc()
	log.Debug().Str("id", m.ID.String()).Int("retries", retries).Msg("message scheduled for retry")
	return nil
}

func (q *Queue) deadletter(ctx context.Context, m Message, retries int, now time.Time) error {
	moved, err := q.move(ctx, m.ID.String(), RouteQueue, RouteDeadletter, retries, now)
	if err != nil {
		return err
	}
	if !moved {
		log.Debug().Str("id", m.ID.String()).Msg("fail: message not in queue")
		return nil
	}
	metrics.MessagesDeadlettered.Inc()
	metrics.MessagesPut.WithLabelValues(string(RouteDeadletter)).Inc()
	log.Debug().Str("id", m.ID.String()).Int("retries", retries).Msg("message moved to deadletter")
	return nil
}

// move copies row id from one relation into the other and deletes it from
// the source, in one transaction. It reports false if from does not hold id.
func (q *Queue) move(ctx context.Context, id string, from, to Route, retries int, now time.Time) (bool, error) {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error beginning move transaction: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, q.query(to).MoveIn, now.UnixMilli(), retries, id)
	if err != nil {
		return false, fmt.Errorf("error inserting message into %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error inserting message into %s: %w", to, err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, q.query(from).Delete, id); err != nil {
		return false, fmt.Errorf("error deleting message from %s: %w", from, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing transaction: %w", err)
	}
	return true, nil
}

// QSize counts the eligible messages in the queue relation, or every
// message in the deadletter relation.
func (q *Queue) QSize(ctx context.Context, route Route) (int, error) {
	qs := q.query(route)
	var args []interface{}
	if route == RouteQueue {
		args = append(args, q.now().UnixMilli())
	}
	var n int
	if err := q.db.QueryRowxContext(ctx, qs.Size, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting messages: %w", err)
	}
	return n, nil
}

func (q *Queue) Empty(ctx context.Context, route Route) (bool, error) {
	n, err := q.QSize(ctx, route)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// RequeueDeadletter moves the deadletter messages present at call time back
// into the queue with their retries reset to 0, and returns how many moved.
// Messages deadlettered while it runs are left for the next call.
func (q *Queue) RequeueDeadletter(ctx context.Context) (int, error) {
	var ids []string
	if err := q.db.SelectContext(ctx, &ids, q.query(RouteDeadletter).IDs); err != nil {
		return 0, fmt.Errorf("error listing deadletter messages: %w", err)
	}
	log.Debug().Int("count", len(ids)).Msg("requeueing deadletter messages")
	moved := 0
	for _, id := range ids {
		ok, err := q.move(ctx, id, RouteDeadletter, RouteQueue, 0, q.now())
		if err != nil {
			return moved, err
		}
		if !ok {
			continue
		}
		moved++
		metrics.MessagesRequeued.Inc()
		metrics.MessagesPut.WithLabelValues(string(RouteQueue)).Inc()
		if err := q.countPut(ctx); err != nil {
			return moved, fmt.Errorf("%w: %w", ErrPruneFailed, err)
		}
	}
	log.Debug().Int("count", moved).Msg("requeued deadletter messages")
	return moved, nil
}

// Prune deletes acknowledged queue rows beyond the KeepMessages most
// recently enqueued, compacts the store, and resets the put counter.
func (q *Queue) Prune(ctx context.Context) (int64, error) {
	q.mu.Lock()
	q.putsSincePrune = 0
	q.mu.Unlock()
	return q.prune(ctx)
}

func (q *Queue) prune(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() {
		metrics.PruneDuration.Observe(time.Since(start).Seconds())
	}()
	res, err := q.db.ExecContext(ctx, q.query(RouteQueue).Prune, q.opts.KeepMessages)
	if err != nil {
		return 0, fmt.Errorf("error pruning queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error pruning queue: %w", err)
	}
	log.Debug().Int64("deleted", n).Int("keep", q.opts.KeepMessages).Msg("pruned queue")
	if n == 0 {
		return 0, nil
	}
	metrics.MessagesPruned.Add(float64(n))
	for _, stmt := range q.dialect.Compaction {
		if _, err := q.db.ExecContext(ctx, stmt); err != nil {
			log.Err(err).Str("stmt", stmt).Msg("error compacting store")
		}
	}
	return n, nil
}
