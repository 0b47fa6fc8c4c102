package tq

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattbonnell/tq/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockQueue(t *testing.T, driverName string, opts ...Option) (*Queue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() { db.Close() })

	test.ExpectSchema(t, mock, driverName)
	q, err := New(sqlx.NewDb(db, driverName), opts...)
	require.NoError(t, err)
	return q, mock
}

func TestGetShouldSucceed_Postgres(t *testing.T) {
	q, mock := newMockQueue(t, "postgres")
	id := uuid.New()

	mock.ExpectBegin()
	mock.
		ExpectQuery(regexp.QuoteMeta(
			`SELECT id, task, blob, retries, eta FROM queue WHERE fetched IS NULL AND (eta IS NULL OR eta <= $1) ORDER BY enqueued ASC, seq ASC LIMIT 1 FOR UPDATE SKIP LOCKED`,
		)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "task", "blob", "retries", "eta"}).
				AddRow(id.String(), "email", `{"to":"a@b.c"}`, 1, nil),
		)
	mock.
		ExpectExec(regexp.QuoteMeta(`UPDATE queue SET fetched = $1 WHERE id = $2 AND fetched IS NULL`)).
		WithArgs(sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m, err := q.Get(context.Background(), RouteQueue)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, "email", m.Task)
	assert.Equal(t, 1, m.Retries)
	assert.JSONEq(t, `{"to":"a@b.c"}`, string(m.Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetShouldReturnNil_ClaimedByAnotherConsumer(t *testing.T) {
	q, mock := newMockQueue(t, "mysql")
	id := uuid.New()

	mock.ExpectBegin()
	mock.
		ExpectQuery(regexp.QuoteMeta(
			"SELECT id, task, `blob`, retries, eta FROM deadletter WHERE fetched IS NULL ORDER BY enqueued ASC, seq ASC LIMIT 1 FOR UPDATE SKIP LOCKED",
		)).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "task", "blob", "retries", "eta"}).
				AddRow(id.String(), "email", "null", 5, nil),
		)
	mock.
		ExpectExec(regexp.QuoteMeta(`UPDATE deadletter SET fetched = ? WHERE id = ? AND fetched IS NULL`)).
		WithArgs(sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	m, err := q.Get(context.Background(), RouteDeadletter)
	require.NoError(t, err)
	assert.Nil(t, m)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetShouldFail_QueryError(t *testing.T) {
	q, mock := newMockQueue(t, "postgres")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, task").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	m, err := q.Get(context.Background(), RouteQueue)
	require.Error(t, err)
	assert.Nil(t, m)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailShouldMoveAtomically_Postgres(t *testing.T) {
	q, mock := newMockQueue(t, "pgx", WithMaxRetries(3))
	m := Message{ID: uuid.New(), Task: "email", Retries: 2}

	mock.ExpectBegin()
	mock.
		ExpectExec(regexp.QuoteMeta(
			`INSERT INTO deadletter (id, task, enqueued, blob, retries, eta) SELECT id, task, $1, blob, $2, NULL FROM queue WHERE id = $3 AND acked IS NULL`,
		)).
		WithArgs(sqlmock.AnyArg(), int64(3), m.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.
		ExpectExec(regexp.QuoteMeta(`DELETE FROM queue WHERE id = $1`)).
		WithArgs(m.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, q.Fail(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailShouldRollBack_DeleteError(t *testing.T) {
	q, mock := newMockQueue(t, "mysql", WithMaxRetries(1))
	m := Message{ID: uuid.New(), Task: "email"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO deadletter").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM queue").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	require.Error(t, q.Fail(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailShouldScheduleRetry_MySQL(t *testing.T) {
	q, mock := newMockQueue(t, "mysql", WithMaxRetries(3))
	m := Message{ID: uuid.New(), Task: "email", Retries: 1}

	mock.
		ExpectExec(regexp.QuoteMeta(`UPDATE queue SET retries = ?, eta = ?, fetched = NULL WHERE id = ? AND acked IS NULL`)).
		WithArgs(int64(2), nil, m.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, q.Fail(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneShouldCompact_Postgres(t *testing.T) {
	q, mock := newMockQueue(t, "postgres", WithKeepMessages(10))

	mock.
		ExpectExec(regexp.QuoteMeta(
			`DELETE FROM queue WHERE acked IS NOT NULL AND seq NOT IN (SELECT seq FROM (SELECT seq FROM queue WHERE acked IS NOT NULL ORDER BY enqueued DESC, seq DESC LIMIT $1) AS kept)`,
		)).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(`VACUUM queue`)).WillReturnError(errors.New("vacuum failed"))

	n, err := q.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneShouldSkipCompaction_NothingDeleted(t *testing.T) {
	q, mock := newMockQueue(t, "mysql")

	mock.ExpectExec("DELETE FROM queue WHERE acked IS NOT NULL").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := q.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutShouldReturnErrPruneFailed(t *testing.T) {
	q, mock := newMockQueue(t, "mysql", WithPruneInterval(1))
	m := Message{ID: uuid.New(), Task: "email", Payload: []byte(`{}`)}

	mock.
		ExpectExec(regexp.QuoteMeta("INSERT INTO queue (id, task, enqueued, `blob`, retries, eta) VALUES (?, ?, ?, ?, ?, ?)")).
		WithArgs(m.ID.String(), "email", sqlmock.AnyArg(), "{}", int64(0), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM queue WHERE acked IS NOT NULL").WillReturnError(errors.New("disk full"))

	id, err := q.Put(context.Background(), m, RouteQueue)
	require.ErrorIs(t, err, ErrPruneFailed)
	assert.Equal(t, m.ID, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewShouldFail_UnsupportedDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(sqlx.NewDb(db, "oracle"))
	require.EqualError(t, err, "driver 'oracle' not supported")
}
