package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

const (
	logMsgCommitted           = "unit of work committed"
	logMsgConstraintViolation = "constraint violation during commit"
	logAttrReason             = "reason"
	logAttrMutationCount      = "mutation_count"
)

// mutation validates and applies one staged change against the working
// snapshot. Returning an error aborts the whole commit.
type mutation func(s *snapshot) error

type unitOfWork struct {
	engine *Engine
	staged []mutation
	done   bool
}

func (u *unitOfWork) Books() storage.Repository[domain.Book] {
	return &bookRepository{uow: u}
}

func (u *unitOfWork) Authors() storage.Repository[domain.Author] {
	return &authorRepository{uow: u}
}

func (u *unitOfWork) Genres() storage.Repository[domain.Genre] {
	return &genreRepository{uow: u}
}

func (u *unitOfWork) Loans() storage.Repository[domain.Loan] {
	return &loanRepository{uow: u}
}

// Commit applies all staged mutations against a copy of the committed
// state and swaps the copy in only when every one of them succeeds.
func (u *unitOfWork) Commit(_ context.Context) error {
	u.engine.mu.Lock()
	defer u.engine.mu.Unlock()

	working := u.engine.cloneState()

	for _, apply := range u.staged {
		if err := apply(working); err != nil {
			if u.engine.logger != nil {
				u.engine.logger.Info(logMsgConstraintViolation, logAttrReason, err.Error())
			}

			return err
		}
	}

	u.engine.swapState(working)
	u.done = true

	if u.engine.logger != nil {
		u.engine.logger.Info(logMsgCommitted, logAttrMutationCount, len(u.staged))
	}

	return nil
}

// Rollback discards the staged mutations. Safe to defer; after a
// successful Commit it is a no-op.
func (u *unitOfWork) Rollback(_ context.Context) error {
	if u.done {
		return nil
	}

	u.staged = nil
	u.done = true

	return nil
}

func (u *unitOfWork) stage(apply mutation) {
	u.staged = append(u.staged, apply)
}

// criteriaOnly strips includes, order and paging from a specification so
// counts see the same row set the relational engine's COUNT query sees.
func criteriaOnly(spec storage.Specification) storage.Specification {
	out := storage.NewSpecification()
	for _, criterion := range spec.Criteria() {
		out = out.AddCriteria(criterion)
	}

	return out
}

func requireIdentity(id uuid.UUID) error {
	if id == uuid.Nil {
		return storage.ErrInvalidEntity
	}

	return nil
}

/***** books *****/

type bookRepository struct {
	uow *unitOfWork
}

func (r *bookRepository) load(spec storage.Specification) ([]domain.Book, error) {
	engine := r.uow.engine
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	all := make([]domain.Book, 0, len(engine.books))
	for _, book := range engine.books {
		all = append(all, book)
	}

	matches, err := evaluate(all, spec, bookField)
	if err != nil {
		return nil, err
	}

	for i := range matches {
		if spec.HasInclude(domain.IncludeAuthor) {
			if author, ok := engine.authors[matches[i].AuthorID]; ok {
				matches[i].Author = &author
			}
		}
		if spec.HasInclude(domain.IncludeGenre) {
			if genre, ok := engine.genres[matches[i].GenreID]; ok {
				matches[i].Genre = &genre
			}
		}
	}

	return matches, nil
}

func (r *bookRepository) Count(_ context.Context, spec storage.Specification) (int, error) {
	matches, err := r.load(criteriaOnly(spec))
	if err != nil {
		return 0, err
	}

	return len(matches), nil
}

func (r *bookRepository) List(_ context.Context, spec storage.Specification) ([]domain.Book, error) {
	return r.load(spec)
}

func (r *bookRepository) First(_ context.Context, spec storage.Specification) (*domain.Book, error) {
	matches, err := r.load(spec)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}

	return &matches[0], nil
}

// checkBookConstraints enforces what the relational schema enforces:
// unique ISBN, non-negative quantity, and existing author and genre rows.
func checkBookConstraints(s *snapshot, book domain.Book) error {
	if book.Quantity < 0 {
		return domain.ErrConflict
	}

	for id, other := range s.books {
		if id != book.ID && other.ISBN == book.ISBN {
			return domain.ErrConflict
		}
	}

	if _, ok := s.authors[book.AuthorID]; !ok {
		return domain.ErrConflict
	}
	if _, ok := s.genres[book.GenreID]; !ok {
		return domain.ErrConflict
	}

	return nil
}

func (r *bookRepository) Add(_ context.Context, book domain.Book) error {
	if err := requireIdentity(book.ID); err != nil {
		return err
	}

	book.Author, book.Genre = nil, nil

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.books[book.ID]; exists {
			return domain.ErrConflict
		}

		if err := checkBookConstraints(s, book); err != nil {
			return err
		}

		s.books[book.ID] = book

		return nil
	})

	return nil
}

func (r *bookRepository) Update(_ context.Context, book domain.Book) error {
	if err := requireIdentity(book.ID); err != nil {
		return err
	}

	book.Author, book.Genre = nil, nil

	r.uow.stage(func(s *snapshot) error {
		current, exists := s.books[book.ID]
		if !exists || current.Version != book.Version {
			return domain.ErrConflict
		}

		if err := checkBookConstraints(s, book); err != nil {
			return err
		}

		book.Version++
		s.books[book.ID] = book

		return nil
	})

	return nil
}

func (r *bookRepository) Delete(_ context.Context, book domain.Book) error {
	if err := requireIdentity(book.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		current, exists := s.books[book.ID]
		if !exists || current.Version != book.Version {
			return domain.ErrConflict
		}

		for _, loan := range s.loans {
			if loan.BookID == book.ID {
				return domain.ErrConflict
			}
		}

		delete(s.books, book.ID)

		return nil
	})

	return nil
}

/***** authors *****/

type authorRepository struct {
	uow *unitOfWork
}

func (r *authorRepository) load(spec storage.Specification) ([]domain.Author, error) {
	engine := r.uow.engine
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	all := make([]domain.Author, 0, len(engine.authors))
	for _, author := range engine.authors {
		all = append(all, author)
	}

	return evaluate(all, spec, authorField)
}

func (r *authorRepository) Count(_ context.Context, spec storage.Specification) (int, error) {
	matches, err := r.load(criteriaOnly(spec))
	if err != nil {
		return 0, err
	}

	return len(matches), nil
}

func (r *authorRepository) List(_ context.Context, spec storage.Specification) ([]domain.Author, error) {
	return r.load(spec)
}

func (r *authorRepository) First(_ context.Context, spec storage.Specification) (*domain.Author, error) {
	matches, err := r.load(spec)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}

	return &matches[0], nil
}

func (r *authorRepository) Add(_ context.Context, author domain.Author) error {
	if err := requireIdentity(author.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.authors[author.ID]; exists {
			return domain.ErrConflict
		}

		s.authors[author.ID] = author

		return nil
	})

	return nil
}

func (r *authorRepository) Update(_ context.Context, author domain.Author) error {
	if err := requireIdentity(author.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.authors[author.ID]; !exists {
			return domain.ErrConflict
		}

		s.authors[author.ID] = author

		return nil
	})

	return nil
}

func (r *authorRepository) Delete(_ context.Context, author domain.Author) error {
	if err := requireIdentity(author.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.authors[author.ID]; !exists {
			return domain.ErrConflict
		}

		for _, book := range s.books {
			if book.AuthorID == author.ID {
				return domain.ErrConflict
			}
		}

		delete(s.authors, author.ID)

		return nil
	})

	return nil
}

/***** genres *****/

type genreRepository struct {
	uow *unitOfWork
}

func (r *genreRepository) load(spec storage.Specification) ([]domain.Genre, error) {
	engine := r.uow.engine
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	all := make([]domain.Genre, 0, len(engine.genres))
	for _, genre := range engine.genres {
		all = append(all, genre)
	}

	return evaluate(all, spec, genreField)
}

func (r *genreRepository) Count(_ context.Context, spec storage.Specification) (int, error) {
	matches, err := r.load(criteriaOnly(spec))
	if err != nil {
		return 0, err
	}

	return len(matches), nil
}

func (r *genreRepository) List(_ context.Context, spec storage.Specification) ([]domain.Genre, error) {
	return r.load(spec)
}

func (r *genreRepository) First(_ context.Context, spec storage.Specification) (*domain.Genre, error) {
	matches, err := r.load(spec)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}

	return &matches[0], nil
}

func checkGenreName(s *snapshot, genre domain.Genre) error {
	for id, other := range s.genres {
		if id != genre.ID && other.Name == genre.Name {
			return domain.ErrConflict
		}
	}

	return nil
}

func (r *genreRepository) Add(_ context.Context, genre domain.Genre) error {
	if err := requireIdentity(genre.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.genres[genre.ID]; exists {
			return domain.ErrConflict
		}

		if err := checkGenreName(s, genre); err != nil {
			return err
		}

		s.genres[genre.ID] = genre

		return nil
	})

	return nil
}

func (r *genreRepository) Update(_ context.Context, genre domain.Genre) error {
	if err := requireIdentity(genre.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.genres[genre.ID]; !exists {
			return domain.ErrConflict
		}

		if err := checkGenreName(s, genre); err != nil {
			return err
		}

		s.genres[genre.ID] = genre

		return nil
	})

	return nil
}

func (r *genreRepository) Delete(_ context.Context, genre domain.Genre) error {
	if err := requireIdentity(genre.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.genres[genre.ID]; !exists {
			return domain.ErrConflict
		}

		for _, book := range s.books {
			if book.GenreID == genre.ID {
				return domain.ErrConflict
			}
		}

		delete(s.genres, genre.ID)

		return nil
	})

	return nil
}

/***** loans *****/

type loanRepository struct {
	uow *unitOfWork
}

func (r *loanRepository) load(spec storage.Specification) ([]domain.Loan, error) {
	engine := r.uow.engine
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	all := make([]domain.Loan, 0, len(engine.loans))
	for _, loan := range engine.loans {
		all = append(all, loan)
	}

	matches, err := evaluate(all, spec, loanField)
	if err != nil {
		return nil, err
	}

	withBookAuthor := spec.HasInclude(domain.IncludeBookAuthor)
	withBook := spec.HasInclude(domain.IncludeBook) || withBookAuthor

	if withBook {
		for i := range matches {
			book, ok := engine.books[matches[i].BookID]
			if !ok {
				continue
			}

			if withBookAuthor {
				if author, authorOK := engine.authors[book.AuthorID]; authorOK {
					book.Author = &author
				}
			}

			matches[i].Book = &book
		}
	}

	return matches, nil
}

func (r *loanRepository) Count(_ context.Context, spec storage.Specification) (int, error) {
	matches, err := r.load(criteriaOnly(spec))
	if err != nil {
		return 0, err
	}

	return len(matches), nil
}

func (r *loanRepository) List(_ context.Context, spec storage.Specification) ([]domain.Loan, error) {
	return r.load(spec)
}

func (r *loanRepository) First(_ context.Context, spec storage.Specification) (*domain.Loan, error) {
	matches, err := r.load(spec)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}

	return &matches[0], nil
}

func (r *loanRepository) Add(_ context.Context, loan domain.Loan) error {
	if err := requireIdentity(loan.ID); err != nil {
		return err
	}

	loan.Book = nil

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.loans[loan.ID]; exists {
			return domain.ErrConflict
		}

		if _, ok := s.books[loan.BookID]; !ok {
			return domain.ErrConflict
		}

		s.loans[loan.ID] = loan

		return nil
	})

	return nil
}

func (r *loanRepository) Update(_ context.Context, loan domain.Loan) error {
	if err := requireIdentity(loan.ID); err != nil {
		return err
	}

	loan.Book = nil

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.loans[loan.ID]; !exists {
			return domain.ErrConflict
		}

		if _, ok := s.books[loan.BookID]; !ok {
			return domain.ErrConflict
		}

		s.loans[loan.ID] = loan

		return nil
	})

	return nil
}

func (r *loanRepository) Delete(_ context.Context, loan domain.Loan) error {
	if err := requireIdentity(loan.ID); err != nil {
		return err
	}

	r.uow.stage(func(s *snapshot) error {
		if _, exists := s.loans[loan.ID]; !exists {
			return domain.ErrConflict
		}

		delete(s.loans, loan.ID)

		return nil
	})

	return nil
}

var _ storage.UnitOfWork = (*unitOfWork)(nil)
