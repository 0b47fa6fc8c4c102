package internal

import (
	"database/sql"
)

// Row is a persisted message; timestamps are milliseconds since the epoch.
type Row struct {
	Seq      int64         `db:"seq"`
	ID       string        `db:"id"`
	Task     string        `db:"task"`
	Enqueued int64         `db:"enqueued"`
	Fetched  sql.NullInt64 `db:"fetched"`
	Acked    sql.NullInt64 `db:"acked"`
	Blob     string        `db:"blob"`
	Retries  int           `db:"retries"`
	ETA      sql.NullInt64 `db:"eta"`
}
