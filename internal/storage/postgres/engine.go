package postgres

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/shelfstack/lending-go/internal/storage"
	"github.com/shelfstack/lending-go/internal/storage/postgres/adapters"
)

// Engine translates Specifications into SQL via goqu and executes them
// against PostgreSQL. It leverages a database adapter so it works with
// pgxpool.Pool, sql.DB, and sqlx.DB connections alike.
type Engine struct {
	db               adapters.DBAdapter
	logger           storage.Logger
	contextualLogger storage.ContextualLogger
}

// Option defines a functional option for configuring an Engine.
type Option func(*Engine) error

// WithLogger sets the logger for the Engine.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: operation outcomes and concurrency conflicts (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: failures that cause operation errors.
func WithLogger(logger storage.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger for the Engine. When
// set it takes precedence over the plain logger, so log records carry the
// trace correlation of the operation's context.
func WithContextualLogger(logger storage.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// NewEngineFromPGXPool creates a new Engine using a pgx pool with optional configuration.
func NewEngineFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Engine, error) {
	if pool == nil {
		return nil, storage.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(pool), options...)
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, storage.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options...)
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, storage.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options...)
}

func newEngine(db adapters.DBAdapter, options ...Option) (*Engine, error) {
	engine := &Engine{db: db}

	for _, option := range options {
		if err := option(engine); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

// Begin opens a transaction and returns a UnitOfWork bound to it.
func (e *Engine) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	return &UnitOfWork{tx: tx, logger: e.logger, contextualLogger: e.contextualLogger}, nil
}

var _ storage.Factory = (*Engine)(nil)
