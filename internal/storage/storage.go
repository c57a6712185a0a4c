// Package storage defines the backend-agnostic data access contracts:
// the Specification value object describing a read, the generic Repository
// executing specifications and staging mutations, and the UnitOfWork that
// commits all staged mutations of one logical operation atomically.
package storage

import (
	"context"
	"errors"

	"github.com/shelfstack/lending-go/internal/domain"
)

var (
	// ErrNilDatabaseConnection is returned by engine constructors when the
	// supplied connection is nil.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrInvalidEntity is returned when an entity without an identity is
	// staged for a mutation.
	ErrInvalidEntity = errors.New("entity is missing its identity")

	// ErrPagingWithoutOrderBy is returned when a specification applies a
	// paging window without an order key; such pages would not be
	// deterministic.
	ErrPagingWithoutOrderBy = errors.New("specification applies paging without an order key")

	// ErrUnknownField is returned when a criterion or order key references
	// a field the engine has no mapping for.
	ErrUnknownField = errors.New("specification references an unknown field")

	// ErrBuildingQueryFailed is joined onto errors from translating a
	// specification into a query.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrQueryFailed is joined onto errors from executing a read.
	ErrQueryFailed = errors.New("executing query failed")

	// ErrScanningRowFailed is joined onto errors from scanning a result row.
	ErrScanningRowFailed = errors.New("scanning database row failed")

	// ErrCommitFailed is joined onto errors from applying staged mutations.
	ErrCommitFailed = errors.New("committing staged mutations failed")
)

// Repository executes Specifications against one entity's storage and
// stages mutations on the owning UnitOfWork.
type Repository[T any] interface {
	// Count returns the number of rows matching the specification's
	// criteria. Order, includes and paging are ignored.
	Count(ctx context.Context, spec Specification) (int, error)

	// First returns the first row after applying criteria, includes and
	// order. Without an order key "first" is engine-defined; callers that
	// need a specific row must filter to at most one match.
	// Returns domain.ErrNotFound when nothing matches.
	First(ctx context.Context, spec Specification) (*T, error)

	// List returns all matches after applying criteria, includes, order
	// and paging.
	List(ctx context.Context, spec Specification) ([]T, error)

	// Add stages an insert. No visible effect until Commit.
	Add(ctx context.Context, entity T) error

	// Update stages an update. No visible effect until Commit.
	Update(ctx context.Context, entity T) error

	// Delete stages a delete. No visible effect until Commit.
	Delete(ctx context.Context, entity T) error
}

// UnitOfWork is the transactional boundary of one logical operation. All
// repositories obtained from it share one underlying transaction; Commit
// applies every staged mutation atomically or not at all.
type UnitOfWork interface {
	Books() Repository[domain.Book]
	Authors() Repository[domain.Author]
	Genres() Repository[domain.Genre]
	Loans() Repository[domain.Loan]

	// Commit durably applies all staged mutations. A mutation whose
	// concurrency check affects no rows fails the whole transaction with
	// domain.ErrConflict. Commit ignores context cancellation - once
	// issued it is past the point of no return.
	Commit(ctx context.Context) error

	// Rollback discards all staged mutations. Calling it after a
	// successful Commit is a no-op, so it is safe to defer.
	Rollback(ctx context.Context) error
}

// Factory creates one UnitOfWork per logical operation.
type Factory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
