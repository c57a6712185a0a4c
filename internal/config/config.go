// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds everything the lending service needs at startup.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	DirectoryBaseURL  string `env:"DIRECTORY_BASE_URL,notEmpty"`
	DirectoryPageSize int    `env:"DIRECTORY_PAGE_SIZE" envDefault:"50"`

	DefaultLoanPeriodDays    int           `env:"DEFAULT_LOAN_PERIOD_DAYS" envDefault:"14"`
	DebtorReviewIntervalDays int           `env:"DEBTOR_REVIEW_INTERVAL_DAYS" envDefault:"1"`
	ExternalCallTimeout      time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"30s"`

	SMTPAddr     string `env:"SMTP_ADDR" envDefault:"localhost:25"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"library@localhost"`
}

// Load parses the configuration from the environment and rejects values
// the service cannot run with.
func Load() (Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.DirectoryPageSize < 1 {
		return Config{}, fmt.Errorf("DIRECTORY_PAGE_SIZE must be at least 1, got %d", cfg.DirectoryPageSize)
	}

	if cfg.DefaultLoanPeriodDays < 1 {
		return Config{}, fmt.Errorf("DEFAULT_LOAN_PERIOD_DAYS must be at least 1, got %d", cfg.DefaultLoanPeriodDays)
	}

	if cfg.DebtorReviewIntervalDays < 1 {
		return Config{}, fmt.Errorf("DEBTOR_REVIEW_INTERVAL_DAYS must be at least 1, got %d", cfg.DebtorReviewIntervalDays)
	}

	return cfg, nil
}

// LoanPeriod returns the configured lending period as a duration.
func (c Config) LoanPeriod() time.Duration {
	return time.Duration(c.DefaultLoanPeriodDays) * 24 * time.Hour
}

// ReviewInterval returns the configured debtor review interval as a duration.
func (c Config) ReviewInterval() time.Duration {
	return time.Duration(c.DebtorReviewIntervalDays) * 24 * time.Hour
}

// PGXPoolConfig builds a tuned pgxpool.Config for the configured database.
func (c Config) PGXPoolConfig() (*pgxpool.Config, error) {
	const defaultMaxConnections = int32(8)
	const defaultMinConnections = int32(2)
	const defaultMaxConnLifetime = time.Hour
	const defaultMaxConnIdleTime = time.Minute * 5
	const defaultHealthCheckPeriod = time.Minute
	const defaultConnectTimeout = time.Second * 5

	dbConfig, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	dbConfig.MaxConns = defaultMaxConnections
	dbConfig.MinConns = defaultMinConnections
	dbConfig.MaxConnLifetime = defaultMaxConnLifetime
	dbConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	dbConfig.HealthCheckPeriod = defaultHealthCheckPeriod
	dbConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return dbConfig, nil
}
