// The lending service owns the library catalog and its loans. This
// binary wires the PostgreSQL storage engine, the lending workflows and
// the recurring debtor review together and runs until it receives an
// interrupt.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfstack/lending-go/internal/config"
	"github.com/shelfstack/lending-go/internal/directory"
	"github.com/shelfstack/lending-go/internal/library"
	"github.com/shelfstack/lending-go/internal/mail"
	"github.com/shelfstack/lending-go/internal/notify"
	"github.com/shelfstack/lending-go/internal/observability"
	"github.com/shelfstack/lending-go/internal/storage/postgres"
)

func main() {
	logger := observability.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(logger); err != nil {
		logger.Error("lending service failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *observability.SlogLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	poolConfig, err := cfg.PGXPoolConfig()
	if err != nil {
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return err
	}
	defer pool.Close()

	engine, err := postgres.NewEngineFromPGXPool(pool,
		postgres.WithLogger(logger),
		postgres.WithContextualLogger(observability.NewSlogBridgeLogger("lending-storage")))
	if err != nil {
		return err
	}

	users := directory.NewHTTPClient(cfg.DirectoryBaseURL,
		directory.WithHTTPClient(&http.Client{Timeout: cfg.ExternalCallTimeout}))

	service := library.NewService(engine, users,
		library.WithLoanPeriod(cfg.LoanPeriod()),
		library.WithLogger(logger))

	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		host, _, splitErr := net.SplitHostPort(cfg.SMTPAddr)
		if splitErr != nil {
			host = cfg.SMTPAddr
		}
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, host)
	}

	mailer := mail.NewSMTPDispatcher(cfg.SMTPAddr, auth, cfg.MailFrom,
		mail.WithSendTimeout(cfg.ExternalCallTimeout))

	scheduler := notify.NewScheduler(service, users, mailer,
		notify.WithInterval(cfg.ReviewInterval()),
		notify.WithRunTimeout(cfg.ExternalCallTimeout),
		notify.WithPageSize(cfg.DirectoryPageSize),
		notify.WithLogger(logger))

	logger.Info("lending service started")

	scheduler.Start(ctx)

	logger.Info("lending service stopped")

	return nil
}
