package internal

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattbonnell/tq/internal/drivers/mysql"
	"github.com/mattbonnell/tq/internal/drivers/postgres"
	"github.com/mattbonnell/tq/internal/drivers/sqlite3"
	"github.com/rs/zerolog/log"
)

const (
	QueueTable      = "queue"
	DeadletterTable = "deadletter"
)

// Dialect is the per-driver SQL that differs between backends.
type Dialect struct {
	Name       string
	Schema     []string
	ClaimLock  string
	Blob       string
	Compaction []string
}

func GetDialect(driverName string) (Dialect, error) {
	switch driverName {
	case "sqlite3":
		return Dialect{
			Name:       driverName,
			Schema:     sqlite3.Schema,
			ClaimLock:  sqlite3.ClaimLock,
			Blob:       sqlite3.Blob,
			Compaction: sqlite3.Compaction,
		}, nil
	case "mysql":
		return Dialect{
			Name:       driverName,
			Schema:     mysql.Schema,
			ClaimLock:  mysql.ClaimLock,
			Blob:       mysql.Blob,
			Compaction: mysql.Compaction,
		}, nil
	case "pgx":
		fallthrough
	case "postgres":
		return Dialect{
			Name:       driverName,
			Schema:     postgres.Schema,
			ClaimLock:  postgres.ClaimLock,
			Blob:       postgres.Blob,
			Compaction: postgres.Compaction,
		}, nil
	default:
		return Dialect{}, fmt.Errorf("driver '%s' not supported", driverName)
	}
}

// CreateSchema creates both relations and their enqueued indexes. It is safe
// to call against an existing store.
func CreateSchema(db *sqlx.DB) error {
	log.Debug().Msg("creating schema")
	d, err := GetDialect(db.DriverName())
	if err != nil {
		return fmt.Errorf("error retrieving schema: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range d.Schema {
		_, err := tx.Exec(stmt)
		if err != nil {
			return fmt.Errorf("failed to exec stmt %s: %w", strings.Split(stmt, "(")[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	log.Debug().Msg("schema created")
	return nil
}
