// Package memory implements the storage contracts on plain maps guarded
// by a mutex. It mirrors the transactional semantics of the PostgreSQL
// engine (staged mutations, atomic commit, optimistic version checks) and
// is primarily used by tests and local development setups.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

// Engine stores all entities in memory. The zero value is not usable;
// construct it with NewEngine.
type Engine struct {
	mu      sync.RWMutex
	books   map[uuid.UUID]domain.Book
	authors map[uuid.UUID]domain.Author
	genres  map[uuid.UUID]domain.Genre
	loans   map[uuid.UUID]domain.Loan
	logger  storage.Logger
}

// Option defines a functional option for configuring an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the Engine.
func WithLogger(logger storage.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an empty in-memory Engine.
func NewEngine(options ...Option) *Engine {
	engine := &Engine{
		books:   make(map[uuid.UUID]domain.Book),
		authors: make(map[uuid.UUID]domain.Author),
		genres:  make(map[uuid.UUID]domain.Genre),
		loans:   make(map[uuid.UUID]domain.Loan),
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

// Begin returns a UnitOfWork whose reads observe the committed state and
// whose mutations stay invisible until Commit.
func (e *Engine) Begin(_ context.Context) (storage.UnitOfWork, error) {
	return &unitOfWork{engine: e}, nil
}

// Seed replaces the committed state wholesale. Intended for test setup;
// it bypasses all constraint checks.
func (e *Engine) Seed(
	books []domain.Book,
	authors []domain.Author,
	genres []domain.Genre,
	loans []domain.Loan,
) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.books = make(map[uuid.UUID]domain.Book, len(books))
	for _, book := range books {
		e.books[book.ID] = book
	}

	e.authors = make(map[uuid.UUID]domain.Author, len(authors))
	for _, author := range authors {
		e.authors[author.ID] = author
	}

	e.genres = make(map[uuid.UUID]domain.Genre, len(genres))
	for _, genre := range genres {
		e.genres[genre.ID] = genre
	}

	e.loans = make(map[uuid.UUID]domain.Loan, len(loans))
	for _, loan := range loans {
		e.loans[loan.ID] = loan
	}
}

// snapshot holds a deep-enough copy of the committed maps so a commit can
// be validated and applied without touching the live state until it is
// known to succeed.
type snapshot struct {
	books   map[uuid.UUID]domain.Book
	authors map[uuid.UUID]domain.Author
	genres  map[uuid.UUID]domain.Genre
	loans   map[uuid.UUID]domain.Loan
}

func (e *Engine) cloneState() *snapshot {
	s := &snapshot{
		books:   make(map[uuid.UUID]domain.Book, len(e.books)),
		authors: make(map[uuid.UUID]domain.Author, len(e.authors)),
		genres:  make(map[uuid.UUID]domain.Genre, len(e.genres)),
		loans:   make(map[uuid.UUID]domain.Loan, len(e.loans)),
	}

	for id, book := range e.books {
		s.books[id] = book
	}
	for id, author := range e.authors {
		s.authors[id] = author
	}
	for id, genre := range e.genres {
		s.genres[id] = genre
	}
	for id, loan := range e.loans {
		s.loans[id] = loan
	}

	return s
}

func (e *Engine) swapState(s *snapshot) {
	e.books = s.books
	e.authors = s.authors
	e.genres = s.genres
	e.loans = s.loans
}

var _ storage.Factory = (*Engine)(nil)
