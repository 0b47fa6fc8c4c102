package internal

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueriesRebinds(t *testing.T) {
	d, err := GetDialect("postgres")
	require.NoError(t, err)
	q := NewQueries(d, QueueTable, func(s string) string { return sqlx.Rebind(sqlx.DOLLAR, s) })

	assert.Equal(t, "INSERT INTO queue (id, task, enqueued, blob, retries, eta) VALUES ($1, $2, $3, $4, $5, $6)", q.Insert)
	assert.Equal(t, "SELECT id, task, blob, retries, eta FROM queue WHERE fetched IS NULL AND (eta IS NULL OR eta <= $1) "+
		"ORDER BY enqueued ASC, seq ASC LIMIT 1 FOR UPDATE SKIP LOCKED", q.Claim)
	assert.Equal(t, "INSERT INTO queue (id, task, enqueued, blob, retries, eta) SELECT id, task, $1, blob, $2, NULL FROM deadletter WHERE id = $3 AND acked IS NULL", q.MoveIn)
}

func TestNewQueriesDeadletterIgnoresETA(t *testing.T) {
	d, err := GetDialect("sqlite3")
	require.NoError(t, err)
	q := NewQueries(d, DeadletterTable, func(s string) string { return s })

	assert.Equal(t, "SELECT id, task, blob, retries, eta FROM deadletter WHERE fetched IS NULL ORDER BY enqueued ASC, seq ASC LIMIT 1", q.Claim)
	assert.Equal(t, "SELECT COUNT(*) FROM deadletter", q.Size)
	assert.Contains(t, q.MoveIn, "FROM queue WHERE id = ? AND acked IS NULL")
}

func TestNewQueriesMySQLQuotesBlob(t *testing.T) {
	d, err := GetDialect("mysql")
	require.NoError(t, err)
	q := NewQueries(d, QueueTable, func(s string) string { return s })

	assert.Contains(t, q.Insert, "enqueued, `blob`, retries")
	assert.Contains(t, q.Prune, "AS kept")
}
