package test

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattbonnell/tq/internal"
)

// ExpectSchema registers the statements CreateSchema issues for driverName.
func ExpectSchema(t *testing.T, mock sqlmock.Sqlmock, driverName string) {
	t.Helper()
	d, err := internal.GetDialect(driverName)
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectBegin()
	for _, stmt := range d.Schema {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
}
