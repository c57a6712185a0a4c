// Package notify runs the recurring debtor review: collect overdue loans
// grouped per user, resolve each user against the identity directory, and
// send one reminder email per debtor.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/shelfstack/lending-go/internal/directory"
	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

const (
	logMsgRunSkipped       = "debtor review skipped, previous run still in progress"
	logMsgNoDebtors        = "no expired loans, nothing to notify"
	logMsgRunCompleted     = "debtor review completed"
	logMsgRunFailed        = "debtor review failed"
	logMsgEmailSendFailed  = "sending debtor email failed"
	logMsgEmailsDispatched = "debtor emails dispatched"
	logMsgSchedulerStopped = "debtor review scheduler stopped"
	logAttrError           = "error"
	logAttrUserID          = "user_id"
	logAttrDebtorCount     = "debtor_count"
	logAttrNotifiedCount   = "notified_count"
	logAttrDurationMS      = "duration_ms"
)

// DebtorSource yields the current overdue-loan aggregation, one
// notification per debtor with empty email and name.
type DebtorSource interface {
	GetExpiredLoans(ctx context.Context) ([]domain.DebtorNotification, error)
}

// Mailer dispatches one formatted email.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

// Scheduler triggers the debtor review once at startup and then on a
// fixed interval. Runs never overlap: a tick arriving while a run is in
// progress is dropped, not queued.
type Scheduler struct {
	debtors   DebtorSource
	directory directory.Directory
	mailer    Mailer
	interval  time.Duration
	timeout   time.Duration
	pageSize  int
	logger    storage.Logger

	running sync.Mutex
}

// SchedulerOption defines a functional option for configuring a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval overrides the review interval. Non-positive values are
// ignored and the default stays in effect.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithRunTimeout bounds one review run, enrichment included. Non-positive
// values are ignored and the default stays in effect.
func WithRunTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithPageSize overrides the directory listing page size. Non-positive
// values are ignored and the default stays in effect.
func WithPageSize(pageSize int) SchedulerOption {
	return func(s *Scheduler) {
		if pageSize > 0 {
			s.pageSize = pageSize
		}
	}
}

// WithLogger sets the logger for the Scheduler.
func WithLogger(logger storage.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler wires a Scheduler to its collaborators.
func NewScheduler(
	debtors DebtorSource,
	dir directory.Directory,
	mailer Mailer,
	options ...SchedulerOption,
) *Scheduler {

	scheduler := &Scheduler{
		debtors:   debtors,
		directory: dir,
		mailer:    mailer,
		interval:  24 * time.Hour,
		timeout:   30 * time.Second,
		pageSize:  50,
	}

	for _, option := range options {
		option(scheduler)
	}

	return scheduler
}

// Start blocks until the context is canceled, running one review
// immediately and one per interval tick afterwards.
func (s *Scheduler) Start(ctx context.Context) {
	s.runGuarded(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logInfo(logMsgSchedulerStopped)
			return
		case <-ticker.C:
			s.runGuarded(ctx)
		}
	}
}

// runGuarded is the single-flight entry: when the previous run still
// holds the guard the tick is dropped.
func (s *Scheduler) runGuarded(ctx context.Context) {
	if !s.running.TryLock() {
		s.logInfo(logMsgRunSkipped)
		return
	}
	defer s.running.Unlock()

	start := time.Now()

	if err := s.runOnce(ctx); err != nil {
		s.logError(logMsgRunFailed, logAttrError, err.Error())
		return
	}

	s.logInfo(logMsgRunCompleted, logAttrDurationMS, time.Since(start).Milliseconds())
}

// RunNow triggers one review outside the schedule, still honoring the
// single-flight guard.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runGuarded(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	notifications, err := s.debtors.GetExpiredLoans(ctx)
	if err != nil {
		return err
	}

	if len(notifications) == 0 {
		s.logInfo(logMsgNoDebtors)
		return nil
	}

	enriched, err := s.enrich(ctx, notifications)
	if err != nil {
		return err
	}

	notified := 0

	for _, notification := range enriched {
		subject, body, renderErr := renderDebtorEmail(notification)
		if renderErr != nil {
			s.logError(logMsgEmailSendFailed,
				logAttrUserID, notification.UserID.String(), logAttrError, renderErr.Error())
			continue
		}

		if sendErr := s.mailer.Send(ctx, notification.Email, subject, body); sendErr != nil {
			s.logError(logMsgEmailSendFailed,
				logAttrUserID, notification.UserID.String(), logAttrError, sendErr.Error())
			continue
		}

		notified++
	}

	s.logInfo(logMsgEmailsDispatched,
		logAttrDebtorCount, len(enriched), logAttrNotifiedCount, notified)

	return nil
}

func (s *Scheduler) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scheduler) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
