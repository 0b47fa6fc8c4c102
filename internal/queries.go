package internal

import "fmt"

// Queries holds the statements for one relation, already rebound to the
// driver's placeholder style.
type Queries struct {
	Insert string
	Claim  string
	Fetch  string
	Ack    string
	Retry  string
	Delete string
	Size   string
	IDs    string
	// MoveIn copies a row from the other relation into this one.
	MoveIn string
	Prune  string
}

func other(table string) string {
	if table == QueueTable {
		return DeadletterTable
	}
	return QueueTable
}

// NewQueries builds the statements for table. Only the queue relation
// filters on eta; deadletter rows are always visible.
func NewQueries(d Dialect, table string, rebind func(string) string) Queries {
	visible := "fetched IS NULL"
	if table == QueueTable {
		visible = "fetched IS NULL AND (eta IS NULL OR eta <= ?)"
	}
	size := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if table == QueueTable {
		size = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, visible)
	}
	q := Queries{
		Insert: fmt.Sprintf("INSERT INTO %s (id, task, enqueued, %s, retries, eta) VALUES (?, ?, ?, ?, ?, ?)", table, d.Blob),
		Claim:  fmt.Sprintf("SELECT id, task, %s, retries, eta FROM %s WHERE %s ORDER BY enqueued ASC, seq ASC LIMIT 1%s", d.Blob, table, visible, d.ClaimLock),
		Fetch:  fmt.Sprintf("UPDATE %s SET fetched = ? WHERE id = ? AND fetched IS NULL", table),
		Ack:    fmt.Sprintf("UPDATE %s SET acked = ? WHERE id = ?", table),
		Retry:  fmt.Sprintf("UPDATE %s SET retries = ?, eta = ?, fetched = NULL WHERE id = ? AND acked IS NULL", table),
		Delete: fmt.Sprintf("DELETE FROM %s WHERE id = ?", table),
		Size:   size,
		IDs:    fmt.Sprintf("SELECT id FROM %s ORDER BY enqueued ASC, seq ASC", table),
		MoveIn: fmt.Sprintf("INSERT INTO %s (id, task, enqueued, %s, retries, eta) SELECT id, task, ?, %s, ?, NULL FROM %s WHERE id = ? AND acked IS NULL", table, d.Blob, d.Blob, other(table)),
		Prune: fmt.Sprintf("DELETE FROM %s WHERE acked IS NOT NULL AND seq NOT IN "+
			"(SELECT seq FROM (SELECT seq FROM %s WHERE acked IS NOT NULL ORDER BY enqueued DESC, seq DESC LIMIT ?) AS kept)", table, table),
	}
	q.Insert = rebind(q.Insert)
	q.Claim = rebind(q.Claim)
	q.Fetch = rebind(q.Fetch)
	q.Ack = rebind(q.Ack)
	q.Retry = rebind(q.Retry)
	q.Delete = rebind(q.Delete)
	q.Size = rebind(q.Size)
	q.IDs = rebind(q.IDs)
	q.MoveIn = rebind(q.MoveIn)
	q.Prune = rebind(q.Prune)
	return q
}
