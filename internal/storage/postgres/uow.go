package postgres

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
	"github.com/shelfstack/lending-go/internal/storage/postgres/adapters"
)

const (
	logMsgSQLExecuted         = "executed sql"
	logMsgDBQueryFailed       = "database query execution failed"
	logMsgDBExecFailed        = "database execution failed during commit"
	logMsgCloseRowsFailed     = "failed to close database rows"
	logMsgScanRowFailed       = "failed to scan database row"
	logMsgRowsAffectedFailed  = "failed to get rows affected count"
	logMsgConcurrencyConflict = "concurrency conflict detected"
	logMsgCommitted           = "unit of work committed"
	logAttrError              = "error"
	logAttrQuery              = "query"
	logAttrDurationMS         = "duration_ms"
	logAttrRowsAffected       = "rows_affected"
	logAttrStatementCount     = "statement_count"
)

// stagedStatement is one mutation waiting for Commit. When expectRows is
// positive and fewer rows are affected, the whole transaction fails with
// domain.ErrConflict.
type stagedStatement struct {
	sqlQuery   string
	expectRows int64
}

// UnitOfWork binds the four entity repositories to one transaction.
// Mutations staged through the repositories are executed only on Commit.
type UnitOfWork struct {
	tx               adapters.DBTx
	logger           storage.Logger
	contextualLogger storage.ContextualLogger
	staged           []stagedStatement
	done             bool
}

// Books returns the book repository bound to this transaction.
func (u *UnitOfWork) Books() storage.Repository[domain.Book] {
	return &bookRepository{uow: u}
}

// Authors returns the author repository bound to this transaction.
func (u *UnitOfWork) Authors() storage.Repository[domain.Author] {
	return &authorRepository{uow: u}
}

// Genres returns the genre repository bound to this transaction.
func (u *UnitOfWork) Genres() storage.Repository[domain.Genre] {
	return &genreRepository{uow: u}
}

// Loans returns the loan repository bound to this transaction.
func (u *UnitOfWork) Loans() storage.Repository[domain.Loan] {
	return &loanRepository{uow: u}
}

// Commit executes every staged statement and commits the transaction.
// Either all staged mutations become visible or none do. Cancellation is
// not honored once Commit has been issued.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	for _, statement := range u.staged {
		result, execErr := u.executeStatement(ctx, statement.sqlQuery)
		if execErr != nil {
			_ = u.tx.Rollback(ctx)
			return errors.Join(storage.ErrCommitFailed, execErr)
		}

		if statement.expectRows > 0 {
			rowsAffected, rowsErr := result.RowsAffected()
			if rowsErr != nil {
				u.logError(ctx, logMsgRowsAffectedFailed, logAttrError, rowsErr.Error())
				_ = u.tx.Rollback(ctx)

				return errors.Join(storage.ErrCommitFailed, rowsErr)
			}

			if rowsAffected < statement.expectRows {
				u.logInfo(ctx, logMsgConcurrencyConflict, logAttrRowsAffected, rowsAffected)
				_ = u.tx.Rollback(ctx)

				return domain.ErrConflict
			}
		}
	}

	if commitErr := u.tx.Commit(ctx); commitErr != nil {
		return errors.Join(storage.ErrCommitFailed, commitErr)
	}

	u.done = true
	u.logInfo(ctx, logMsgCommitted, logAttrStatementCount, len(u.staged))

	return nil
}

// Rollback discards all staged mutations. After a successful Commit it is
// a no-op, so it is safe to defer.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}

	u.done = true

	return u.tx.Rollback(context.WithoutCancel(ctx))
}

// stage queues a mutation for Commit.
func (u *UnitOfWork) stage(sqlQuery string, expectRows int64) {
	u.staged = append(u.staged, stagedStatement{sqlQuery: sqlQuery, expectRows: expectRows})
}

// executeQuery executes a select statement and returns rows with timing logged.
func (u *UnitOfWork) executeQuery(ctx context.Context, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := u.tx.Query(ctx, sqlQuery)
	u.logQueryWithDuration(ctx, sqlQuery, time.Since(start))

	if queryErr != nil {
		u.logError(ctx, logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)

		return nil, errors.Join(storage.ErrQueryFailed, queryErr)
	}

	return rows, nil
}

// executeStatement executes a mutation statement with timing logged.
func (u *UnitOfWork) executeStatement(ctx context.Context, sqlQuery string) (adapters.DBResult, error) {
	start := time.Now()
	result, execErr := u.tx.Exec(ctx, sqlQuery)
	u.logQueryWithDuration(ctx, sqlQuery, time.Since(start))

	if execErr != nil {
		u.logError(ctx, logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)

		return nil, execErr
	}

	return result, nil
}

// closeRows safely closes database rows and logs any errors.
func (u *UnitOfWork) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		u.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// The log helpers prefer the contextual logger when one is configured, so
// records carry trace correlation; otherwise they fall back to the plain logger.

func (u *UnitOfWork) logQueryWithDuration(ctx context.Context, sqlQuery string, duration time.Duration) {
	if u.contextualLogger != nil {
		u.contextualLogger.DebugContext(ctx, logMsgSQLExecuted, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	if u.logger != nil {
		u.logger.Debug(logMsgSQLExecuted, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (u *UnitOfWork) logInfo(ctx context.Context, msg string, args ...any) {
	if u.contextualLogger != nil {
		u.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if u.logger != nil {
		u.logger.Info(msg, args...)
	}
}

func (u *UnitOfWork) logWarn(ctx context.Context, msg string, args ...any) {
	if u.contextualLogger != nil {
		u.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if u.logger != nil {
		u.logger.Warn(msg, args...)
	}
}

func (u *UnitOfWork) logError(ctx context.Context, msg string, args ...any) {
	if u.contextualLogger != nil {
		u.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if u.logger != nil {
		u.logger.Error(msg, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

var _ storage.UnitOfWork = (*UnitOfWork)(nil)
