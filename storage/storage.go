// Package storage opens the reform database shared by the payment order store,
// the purchase ledger and the vendor call auditor.
package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/reform.v1"
	"gopkg.in/reform.v1/dialects/postgresql"
	"gopkg.in/reform.v1/dialects/sqlite3"
	_ "modernc.org/sqlite"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Open connects to the database, applies the schema and wraps it into reform.
func Open(driver, dsn string, maxLifetime time.Duration, maxOpen, maxIdle int) (*reform.DB, error) {
	var dialect reform.Dialect
	switch driver {
	case Postgres:
		dialect = postgresql.Dialect
	case SQLite:
		dialect = sqlite3.Dialect
	default:
		return nil, errors.Errorf("unsupported db driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "Failed open database")
	}
	sqlDB.SetConnMaxLifetime(maxLifetime)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	if err = sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "Failed ping database")
	}

	if driver == SQLite {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			sqlDB.Close()
			return nil, errors.Wrap(err, "Failed set wal mode")
		}
		if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
			sqlDB.Close()
			return nil, errors.Wrap(err, "Failed set busy timeout")
		}
	}

	if err := Migrate(sqlDB, driver); err != nil {
		sqlDB.Close()
		return nil, err
	}

	zap.L().Named("storage").Info("Database - Connected!", zap.String("driver", driver))
	return reform.NewDB(sqlDB, dialect, reform.NewPrintfLogger(zap.L().Sugar().Debugf)), nil
}

// Close releases the connection pool behind db.
func Close(db *reform.DB) error {
	sqlDB, ok := db.DBInterface().(*sql.DB)
	if !ok {
		return errors.Errorf("unexpected db interface %T", db.DBInterface())
	}
	return sqlDB.Close()
}

// Migrate creates missing tables.
func Migrate(db *sql.DB, driver string) error {
	stmts := sqliteSchema
	if driver == Postgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "Failed migrate: %s", stmt)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS payment_orders (
		order_number TEXT PRIMARY KEY,
		payment_system_name TEXT NOT NULL,
		raw_order_status TEXT NOT NULL,
		amount NUMERIC(18,4) NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		upstream_id BIGINT NOT NULL DEFAULT 0,
		product_id TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		payment_id TEXT NOT NULL DEFAULT '',
		status_id BIGINT NOT NULL DEFAULT 0,
		status_message TEXT NOT NULL DEFAULT '',
		status_class TEXT NOT NULL DEFAULT '',
		operator_name TEXT NOT NULL DEFAULT '',
		product_description TEXT NOT NULL DEFAULT '',
		retail_price NUMERIC(18,4) NOT NULL DEFAULT 0,
		wholesale_price NUMERIC(18,4) NOT NULL DEFAULT 0,
		confirmed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS escalations (
		transaction_id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		product_id TEXT NOT NULL,
		amount NUMERIC(18,4) NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS escalations_status_idx ON escalations (status)`,
	`CREATE TABLE IF NOT EXISTS vendor_calls (
		id BIGSERIAL PRIMARY KEY,
		vendor TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code BIGINT NOT NULL,
		duration_ms BIGINT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS payment_orders (
		order_number TEXT PRIMARY KEY,
		payment_system_name TEXT NOT NULL,
		raw_order_status TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		upstream_id INTEGER NOT NULL DEFAULT 0,
		product_id TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		payment_id TEXT NOT NULL DEFAULT '',
		status_id INTEGER NOT NULL DEFAULT 0,
		status_message TEXT NOT NULL DEFAULT '',
		status_class TEXT NOT NULL DEFAULT '',
		operator_name TEXT NOT NULL DEFAULT '',
		product_description TEXT NOT NULL DEFAULT '',
		retail_price TEXT NOT NULL DEFAULT '0',
		wholesale_price TEXT NOT NULL DEFAULT '0',
		confirmed_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS escalations (
		transaction_id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		product_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS escalations_status_idx ON escalations (status)`,
	`CREATE TABLE IF NOT EXISTS vendor_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
}
