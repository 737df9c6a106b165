package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// schema holds the tables owned by the orchestration service.
const schema = `
CREATE TABLE IF NOT EXISTS server_acquisitions (
	id            BIGSERIAL PRIMARY KEY,
	match_id      TEXT NOT NULL UNIQUE,
	region        TEXT,
	session_id    TEXT,
	address       TEXT,
	port          INTEGER NOT NULL DEFAULT 0,
	succeeded     BOOLEAN NOT NULL,
	error_message TEXT,
	duration_ms   BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// NewPostgresDB creates a new PostgreSQL database connection.
func NewPostgresDB(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Ping the database to verify the connection.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
