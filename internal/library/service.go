package library

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

const (
	// DefaultLoanPeriod applies when no loan period is configured.
	DefaultLoanPeriod = 14 * 24 * time.Hour

	logMsgBookLent        = "book lent"
	logMsgBookReturned    = "book returned"
	logMsgBookCreated     = "book created"
	logMsgBookUpdated     = "book updated"
	logMsgBookDeleted     = "book deleted"
	logAttrBookID         = "book_id"
	logAttrUserID         = "user_id"
	logAttrDebtorCount    = "debtor_count"
	logAttrExpiredLoanCnt = "expired_loan_count"
)

// UserDirectory is the narrow slice of the identity directory the lending
// workflow needs: existence checks for the requesting user.
type UserDirectory interface {
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// BookFields carries the caller-supplied attributes of a book for create
// and update operations. Identity and version are managed by the service.
type BookFields struct {
	ISBN         string
	Title        string
	Description  string
	Quantity     int
	AuthorID     uuid.UUID
	GenreID      uuid.UUID
	CoverImageID uuid.UUID
}

// SearchResult is one page of the catalog.
type SearchResult struct {
	Items       []domain.Book
	CurrentPage int
	TotalPages  int
}

// Service implements the lending workflows on top of the storage
// contracts. Each operation runs in its own unit of work; staged
// mutations become visible only when the operation commits.
type Service struct {
	store      storage.Factory
	directory  UserDirectory
	loanPeriod time.Duration
	clock      func() time.Time
	newID      func() uuid.UUID
	logger     storage.Logger
}

// Option defines a functional option for configuring a Service.
type Option func(*Service)

// WithLoanPeriod overrides the default lending period. Non-positive
// periods would put the due date at or before the borrow time, so they
// are ignored and the default stays in effect.
func WithLoanPeriod(period time.Duration) Option {
	return func(s *Service) {
		if period > 0 {
			s.loanPeriod = period
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithIDGenerator overrides the identity source, used by tests.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithLogger sets the logger for the Service.
func WithLogger(logger storage.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService wires a Service to its storage factory and user directory.
func NewService(store storage.Factory, directory UserDirectory, options ...Option) *Service {
	service := &Service{
		store:      store,
		directory:  directory,
		loanPeriod: DefaultLoanPeriod,
		clock:      time.Now,
		newID:      uuid.New,
	}

	for _, option := range options {
		option(service)
	}

	return service
}

// Lend hands one copy of a book to a user: a loan row is created and the
// shelf quantity drops by one, atomically. The availability guard runs in
// application code; the storage layer's version check on the book closes
// the race between two lends of the last copy, surfacing the loser as
// domain.ErrConflict so the caller may retry.
func (s *Service) Lend(ctx context.Context, bookID uuid.UUID, userID uuid.UUID) error {
	exists, err := s.directory.UserExists(ctx, userID)
	if err != nil {
		return domain.ExternalServiceError{Service: "identity directory", Err: err}
	}
	if !exists {
		return domain.NewValidationError("user %s does not exist", userID)
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	book, err := uow.Books().First(ctx, BookByID(bookID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("book is not available or does not exist")
		}

		return err
	}

	if !book.IsAvailable() {
		return domain.NewValidationError("book is not available or does not exist")
	}

	now := s.clock()
	loan := domain.Loan{
		ID:         s.newID(),
		BookID:     book.ID,
		UserID:     userID,
		BorrowedAt: now,
		DueBy:      now.Add(s.loanPeriod),
	}

	if err := uow.Loans().Add(ctx, loan); err != nil {
		return err
	}

	book.Quantity--
	if err := uow.Books().Update(ctx, *book); err != nil {
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return err
	}

	s.logInfo(logMsgBookLent, logAttrBookID, book.ID.String(), logAttrUserID, userID.String())

	return nil
}

// Return takes one copy of a book back from a user: the loan row is
// deleted and the shelf quantity rises by one, atomically.
// Returns domain.ErrNotFound when the user holds no loan for the book.
func (s *Service) Return(ctx context.Context, bookID uuid.UUID, userID uuid.UUID) error {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	loan, err := uow.Loans().First(ctx, LoanForBookAndUser(bookID, userID))
	if err != nil {
		return err
	}

	book, err := uow.Books().First(ctx, BookByID(bookID))
	if err != nil {
		return err
	}

	if err := uow.Loans().Delete(ctx, *loan); err != nil {
		return err
	}

	book.Quantity++
	if err := uow.Books().Update(ctx, *book); err != nil {
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return err
	}

	s.logInfo(logMsgBookReturned, logAttrBookID, book.ID.String(), logAttrUserID, userID.String())

	return nil
}

// CreateBook adds a new catalog entry and returns its identity.
func (s *Service) CreateBook(ctx context.Context, fields BookFields) (uuid.UUID, error) {
	if err := validateBookFields(fields); err != nil {
		return uuid.Nil, err
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	taken, err := uow.Books().Count(ctx, BookByISBN(fields.ISBN))
	if err != nil {
		return uuid.Nil, err
	}
	if taken > 0 {
		return uuid.Nil, domain.NewValidationError("a book with ISBN %s already exists", fields.ISBN)
	}

	if err := s.checkReferences(ctx, uow, fields); err != nil {
		return uuid.Nil, err
	}

	book := domain.Book{
		ID:           s.newID(),
		ISBN:         fields.ISBN,
		Title:        fields.Title,
		Description:  fields.Description,
		Quantity:     fields.Quantity,
		AuthorID:     fields.AuthorID,
		GenreID:      fields.GenreID,
		CoverImageID: fields.CoverImageID,
		Version:      1,
	}

	if err := uow.Books().Add(ctx, book); err != nil {
		return uuid.Nil, err
	}

	if err := uow.Commit(ctx); err != nil {
		return uuid.Nil, err
	}

	s.logInfo(logMsgBookCreated, logAttrBookID, book.ID.String())

	return book.ID, nil
}

// UpdateBook replaces the caller-managed attributes of an existing book.
// Returns domain.ErrNotFound when the book does not exist and
// domain.ErrConflict when a concurrent writer got there first.
func (s *Service) UpdateBook(ctx context.Context, id uuid.UUID, fields BookFields) error {
	if err := validateBookFields(fields); err != nil {
		return err
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	book, err := uow.Books().First(ctx, BookByID(id))
	if err != nil {
		return err
	}

	taken, err := uow.Books().Count(ctx, BookISBNTakenByOther(fields.ISBN, id))
	if err != nil {
		return err
	}
	if taken > 0 {
		return domain.NewValidationError("a book with ISBN %s already exists", fields.ISBN)
	}

	if err := s.checkReferences(ctx, uow, fields); err != nil {
		return err
	}

	book.ISBN = fields.ISBN
	book.Title = fields.Title
	book.Description = fields.Description
	book.Quantity = fields.Quantity
	book.AuthorID = fields.AuthorID
	book.GenreID = fields.GenreID
	book.CoverImageID = fields.CoverImageID

	if err := uow.Books().Update(ctx, *book); err != nil {
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return err
	}

	s.logInfo(logMsgBookUpdated, logAttrBookID, book.ID.String())

	return nil
}

// DeleteBook removes a catalog entry. Deletion is blocked while any copy
// is out on loan.
func (s *Service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	book, err := uow.Books().First(ctx, BookByID(id))
	if err != nil {
		return err
	}

	outstanding, err := uow.Loans().Count(ctx, LoansForBook(id))
	if err != nil {
		return err
	}
	if outstanding > 0 {
		return domain.NewValidationError("cannot delete a book that is currently lent")
	}

	if err := uow.Books().Delete(ctx, *book); err != nil {
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return err
	}

	s.logInfo(logMsgBookDeleted, logAttrBookID, book.ID.String())

	return nil
}

// SearchCatalog returns one page of the catalog with author and genre
// attached to every item. Page numbering starts at 1; out-of-range pages
// return an empty item list with the correct page count.
func (s *Service) SearchCatalog(
	ctx context.Context,
	filter CatalogFilter,
	page int,
	pageSize int,
) (SearchResult, error) {

	if page < 1 {
		return SearchResult{}, domain.NewValidationError("page must be at least 1")
	}
	if pageSize < 1 {
		return SearchResult{}, domain.NewValidationError("page size must be at least 1")
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return SearchResult{}, err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	spec := CatalogSearch(filter, page, pageSize)

	total, err := uow.Books().Count(ctx, spec)
	if err != nil {
		return SearchResult{}, err
	}

	items, err := uow.Books().List(ctx, spec)
	if err != nil {
		return SearchResult{}, err
	}

	totalPages := (total + pageSize - 1) / pageSize

	return SearchResult{Items: items, CurrentPage: page, TotalPages: totalPages}, nil
}

// GetExpiredLoans aggregates all overdue loans into one notification per
// debtor, each carrying a brief per overdue book. Email and name stay
// empty; the notifier's enrichment step fills them in.
func (s *Service) GetExpiredLoans(ctx context.Context) ([]domain.DebtorNotification, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = uow.Rollback(ctx) }()

	loans, err := uow.Loans().List(ctx, ExpiredLoans(s.clock()))
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.DebtorNotification, 0)
	byUser := make(map[uuid.UUID]int)

	for _, loan := range loans {
		brief := domain.Brief{}
		if loan.Book != nil {
			brief.BookTitle = loan.Book.Title
			if loan.Book.Author != nil {
				brief.AuthorName = loan.Book.Author.FullName()
			}
		}

		index, seen := byUser[loan.UserID]
		if !seen {
			index = len(notifications)
			byUser[loan.UserID] = index
			notifications = append(notifications, domain.DebtorNotification{UserID: loan.UserID})
		}

		notifications[index].Briefs = append(notifications[index].Briefs, brief)
	}

	s.logInfo("expired loans collected",
		logAttrExpiredLoanCnt, len(loans), logAttrDebtorCount, len(notifications))

	return notifications, nil
}

// checkReferences verifies the author and genre a book points at exist.
func (s *Service) checkReferences(ctx context.Context, uow storage.UnitOfWork, fields BookFields) error {
	if _, err := uow.Authors().First(ctx, AuthorByID(fields.AuthorID)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("author %s does not exist", fields.AuthorID)
		}

		return err
	}

	if _, err := uow.Genres().First(ctx, GenreByID(fields.GenreID)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("genre %s does not exist", fields.GenreID)
		}

		return err
	}

	return nil
}

func validateBookFields(fields BookFields) error {
	if fields.ISBN == "" {
		return domain.NewValidationError("ISBN must not be empty")
	}
	if fields.Title == "" {
		return domain.NewValidationError("title must not be empty")
	}
	if fields.Quantity < 0 {
		return domain.NewValidationError("quantity must not be negative")
	}
	if fields.AuthorID == uuid.Nil {
		return domain.NewValidationError("author reference must be set")
	}
	if fields.GenreID == uuid.Nil {
		return domain.NewValidationError("genre reference must be set")
	}

	return nil
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
