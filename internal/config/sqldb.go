package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const (
	defaultMaxOpenConnections = 50
	defaultMaxIdleConnections = 10
	defaultConnMaxLifetime    = time.Hour
	defaultConnMaxIdleTime    = time.Minute * 5
)

// OpenSQLDB opens a configured *sql.DB for deployments that prefer the
// standard library driver stack over pgxpool.
func (c Config) OpenSQLDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConnections)
	db.SetMaxIdleConns(defaultMaxIdleConnections)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", pingErr)
	}

	return db, nil
}

// OpenSQLX opens a configured *sqlx.DB on the same driver stack.
func (c Config) OpenSQLX(ctx context.Context) (*sqlx.DB, error) {
	db, err := c.OpenSQLDB(ctx)
	if err != nil {
		return nil, err
	}

	return sqlx.NewDb(db, "postgres"), nil
}
