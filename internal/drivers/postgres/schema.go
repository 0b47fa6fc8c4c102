package postgres

const (
	queueTable = `CREATE TABLE IF NOT EXISTS queue (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	task TEXT NOT NULL,
	enqueued BIGINT NOT NULL,
	fetched BIGINT,
	acked BIGINT,
	blob TEXT NOT NULL,
	retries INT NOT NULL DEFAULT 0,
	eta BIGINT
);`
	queueEnqueuedIndex = `CREATE INDEX IF NOT EXISTS queue_enqueued ON queue (enqueued ASC, seq ASC);`

	deadletterTable = `CREATE TABLE IF NOT EXISTS deadletter (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	task TEXT NOT NULL,
	enqueued BIGINT NOT NULL,
	fetched BIGINT,
	acked BIGINT,
	blob TEXT NOT NULL,
	retries INT NOT NULL DEFAULT 0,
	eta BIGINT
);`
	deadletterEnqueuedIndex = `CREATE INDEX IF NOT EXISTS deadletter_enqueued ON deadletter (enqueued ASC, seq ASC);`
)

var Schema = []string{queueTable, queueEnqueuedIndex, deadletterTable, deadletterEnqueuedIndex}

const ClaimLock = " FOR UPDATE SKIP LOCKED"

const Blob = "blob"

// VACUUM cannot run inside a transaction block; these are issued on the pool.
var Compaction = []string{"VACUUM queue"}
