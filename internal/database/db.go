package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openclaw/messenger-server-go/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DBTX is an interface that both *sqlx.DB and *sqlx.Tx satisfy.
// This allows repositories to work with either a direct connection or a transaction.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	Rebind(query string) string
}

// Ensure *sqlx.DB and *sqlx.Tx implement DBTX
var _ DBTX = (*sqlx.DB)(nil)
var _ DBTX = (*sqlx.Tx)(nil)

type DB struct {
	*sqlx.DB
}

// Driver picks the sql driver for dsn.
func Driver(dsn string) string {
	if config.IsPostgresDSN(dsn) {
		return DriverPostgres
	}
	return DriverSQLite
}

func Connect(dsn string) (*DB, error) {
	driver := Driver(dsn)
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer; one connection also keeps
		// in-memory databases shared.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.DBMaxOpenConns)
		db.SetMaxIdleConns(config.DBMaxIdleConns)
	}
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	return &DB{db}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate creates the archive schema when missing.
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.DriverName() == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS message_archive (
	id           TEXT PRIMARY KEY,
	message_id   BIGINT NOT NULL,
	sender       TEXT NOT NULL,
	receiver     TEXT NOT NULL,
	body         TEXT NOT NULL,
	status       TEXT NOT NULL,
	sent_at      TIMESTAMPTZ NOT NULL,
	delivered_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_message_archive_sender ON message_archive (sender, sent_at);
CREATE INDEX IF NOT EXISTS idx_message_archive_receiver ON message_archive (receiver, sent_at);
CREATE INDEX IF NOT EXISTS idx_message_archive_message_id ON message_archive (message_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS message_archive (
	id           TEXT PRIMARY KEY,
	message_id   INTEGER NOT NULL,
	sender       TEXT NOT NULL,
	receiver     TEXT NOT NULL,
	body         TEXT NOT NULL,
	status       TEXT NOT NULL,
	sent_at      DATETIME NOT NULL,
	delivered_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_message_archive_sender ON message_archive (sender, sent_at);
CREATE INDEX IF NOT EXISTS idx_message_archive_receiver ON message_archive (receiver, sent_at);
CREATE INDEX IF NOT EXISTS idx_message_archive_message_id ON message_archive (message_id);
`
