package sqlite3

const (
	queueTable = `CREATE TABLE IF NOT EXISTS queue (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	task TEXT NOT NULL,
	enqueued INTEGER NOT NULL,
	fetched INTEGER,
	acked INTEGER,
	blob TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	eta INTEGER
);`
	queueEnqueuedIndex = `CREATE INDEX IF NOT EXISTS queue_enqueued ON queue (enqueued ASC, seq ASC);`

	deadletterTable = `CREATE TABLE IF NOT EXISTS deadletter (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	task TEXT NOT NULL,
	enqueued INTEGER NOT NULL,
	fetched INTEGER,
	acked INTEGER,
	blob TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	eta INTEGER
);`
	deadletterEnqueuedIndex = `CREATE INDEX IF NOT EXISTS deadletter_enqueued ON deadletter (enqueued ASC, seq ASC);`
)

var Schema = []string{queueTable, queueEnqueuedIndex, deadletterTable, deadletterEnqueuedIndex}

// Transactions are opened BEGIN IMMEDIATE through the DSN, so the claim
// select already holds the write lock.
const ClaimLock = ""

const Blob = "blob"

var Compaction = []string{"VACUUM"}
