package tq

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattbonnell/tq/internal"
	"github.com/rs/zerolog/log"
)

const sqliteBusyTimeoutMillis = 5000

// New wraps db in a Queue, creating the queue and deadletter relations if
// they do not exist yet.
func New(db *sqlx.DB, opts ...Option) (*Queue, error) {
	log.Debug().Msg("creating new queue")
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d, err := internal.GetDialect(db.DriverName())
	if err != nil {
		return nil, err
	}
	if err := internal.CreateSchema(db); err != nil {
		err = fmt.Errorf("error creating schema: %w", err)
		log.Debug().Msg(err.Error())
		return nil, err
	}
	q := &Queue{
		db:      db,
		dialect: d,
		opts:    o,
		queries: map[Route]internal.Queries{
			RouteQueue:      internal.NewQueries(d, internal.QueueTable, db.Rebind),
			RouteDeadletter: internal.NewQueries(d, internal.DeadletterTable, db.Rebind),
		},
	}
	log.Debug().Str("driver", d.Name).Msg("queue created")
	return q, nil
}

// Open connects to the store and calls New. For sqlite3, dsn may be a plain
// file path or ":memory:"; transactions are then opened BEGIN IMMEDIATE and
// the pool is pinned to a single connection.
func Open(driverName, dsn string, opts ...Option) (*Queue, error) {
	if driverName == "sqlite3" {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't reach database: %w", err)
	}
	q, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func sqliteDSN(dsn string) string {
	if strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	if dsn == "" || dsn == ":memory:" {
		return "file::memory:?_txlock=immediate"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("file:%s%s_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_synchronous=FULL", dsn, sep, sqliteBusyTimeoutMillis)
}

// Close closes the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// NewConsumer returns a Consumer polling this queue.
func (q *Queue) NewConsumer(opts ...ConsumerOption) *Consumer {
	return newConsumer(q, opts...)
}

// NewProducer returns a Producer putting into this queue.
func (q *Queue) NewProducer(ctx context.Context, opts *ProducerOptions) *Producer {
	return NewProducer(ctx, q, opts)
}
