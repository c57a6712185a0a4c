package postgres

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

// sqlBuilder is satisfied by all goqu dataset types.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func buildSQL(builder sqlBuilder) (string, error) {
	sqlQuery, _, toSQLErr := builder.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(storage.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// countRows executes a COUNT over the specification's criteria only;
// order, includes and paging are ignored for counts.
func (u *UnitOfWork) countRows(
	ctx context.Context,
	table string,
	alias string,
	spec storage.Specification,
	fields fieldMap,
) (int, error) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(goqu.T(table).As(alias)).
		Select(goqu.COUNT(goqu.Star()))

	selectStmt, err := applyCriteria(selectStmt, spec, fields)
	if err != nil {
		return 0, err
	}

	sqlQuery, err := buildSQL(selectStmt)
	if err != nil {
		return 0, err
	}

	rows, err := u.executeQuery(ctx, sqlQuery)
	if err != nil {
		return 0, err
	}
	defer u.closeRows(ctx, rows)

	count := 0
	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			u.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return 0, errors.Join(storage.ErrScanningRowFailed, scanErr)
		}
	}

	return count, nil
}

func requireIdentity(id uuid.UUID) error {
	if id == uuid.Nil {
		return storage.ErrInvalidEntity
	}

	return nil
}

/***** books *****/

type bookRepository struct {
	uow *UnitOfWork
}

func (r *bookRepository) buildSelect(spec storage.Specification) (*goqu.SelectDataset, bool, bool, error) {
	withAuthor := spec.HasInclude(domain.IncludeAuthor)
	withGenre := spec.HasInclude(domain.IncludeGenre)

	selectStmt := goqu.Dialect(dialectPostgres).
		From(goqu.T(booksTable).As(aliasBook))

	columns := []any{
		"b.id", "b.isbn", "b.title", "b.description", "b.quantity",
		"b.author_id", "b.genre_id", "b.cover_image_id", "b.version",
	}

	if withAuthor {
		selectStmt = selectStmt.Join(
			goqu.T(authorsTable).As(aliasAuthor),
			goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id"))),
		)
		columns = append(columns, "a.name", "a.surname")
	}

	if withGenre {
		selectStmt = selectStmt.Join(
			goqu.T(genresTable).As(aliasGenre),
			goqu.On(goqu.I("g.id").Eq(goqu.I("b.genre_id"))),
		)
		columns = append(columns, "g.name")
	}

	selectStmt, err := applySpecification(selectStmt.Select(columns...), spec, bookFields)
	if err != nil {
		return nil, false, false, err
	}

	return selectStmt, withAuthor, withGenre, nil
}

func (r *bookRepository) scanAll(ctx context.Context, rows interface {
	Next() bool
	Scan(dest ...any) error
}, withAuthor bool, withGenre bool) ([]domain.Book, error) {

	books := make([]domain.Book, 0)

	for rows.Next() {
		var book domain.Book
		var authorName, authorSurname, genreName string

		dest := []any{
			&book.ID, &book.ISBN, &book.Title, &book.Description, &book.Quantity,
			&book.AuthorID, &book.GenreID, &book.CoverImageID, &book.Version,
		}
		if withAuthor {
			dest = append(dest, &authorName, &authorSurname)
		}
		if withGenre {
			dest = append(dest, &genreName)
		}

		if scanErr := rows.Scan(dest...); scanErr != nil {
			r.uow.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, errors.Join(storage.ErrScanningRowFailed, scanErr)
		}

		if withAuthor {
			book.Author = &domain.Author{ID: book.AuthorID, Name: authorName, Surname: authorSurname}
		}
		if withGenre {
			book.Genre = &domain.Genre{ID: book.GenreID, Name: genreName}
		}

		books = append(books, book)
	}

	return books, nil
}

func (r *bookRepository) Count(ctx context.Context, spec storage.Specification) (int, error) {
	return r.uow.countRows(ctx, booksTable, aliasBook, spec, bookFields)
}

func (r *bookRepository) List(ctx context.Context, spec storage.Specification) ([]domain.Book, error) {
	selectStmt, withAuthor, withGenre, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt)
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	return r.scanAll(ctx, rows, withAuthor, withGenre)
}

func (r *bookRepository) First(ctx context.Context, spec storage.Specification) (*domain.Book, error) {
	selectStmt, withAuthor, withGenre, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt.Limit(1))
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	books, err := r.scanAll(ctx, rows, withAuthor, withGenre)
	if err != nil {
		return nil, err
	}

	if len(books) == 0 {
		return nil, domain.ErrNotFound
	}

	return &books[0], nil
}

func (r *bookRepository) Add(_ context.Context, book domain.Book) error {
	if err := requireIdentity(book.ID); err != nil {
		return err
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(booksTable).
		Rows(goqu.Record{
			"id":             book.ID,
			"isbn":           book.ISBN,
			"title":          book.Title,
			"description":    book.Description,
			"quantity":       book.Quantity,
			"author_id":      book.AuthorID,
			"genre_id":       book.GenreID,
			"cover_image_id": book.CoverImageID,
			"version":        book.Version,
		})

	sqlQuery, err := buildSQL(insertStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

// Update stages an optimistic update: the version read together with the
// book must still be current at commit time, otherwise the whole unit of
// work fails with domain.ErrConflict.
func (r *bookRepository) Update(_ context.Context, book domain.Book) error {
	if err := requireIdentity(book.ID); err != nil {
		return err
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(booksTable).
		Set(goqu.Record{
			"isbn":           book.ISBN,
			"title":          book.Title,
			"description":    book.Description,
			"quantity":       book.Quantity,
			"author_id":      book.AuthorID,
			"genre_id":       book.GenreID,
			"cover_image_id": book.CoverImageID,
			"version":        goqu.L("version + 1"),
		}).
		Where(goqu.Ex{"id": book.ID, "version": book.Version})

	sqlQuery, err := buildSQL(updateStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

func (r *bookRepository) Delete(_ context.Context, book domain.Book) error {
	if err := requireIdentity(book.ID); err != nil {
		return err
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(booksTable).
		Where(goqu.Ex{"id": book.ID, "version": book.Version})

	sqlQuery, err := buildSQL(deleteStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

/***** authors *****/

type authorRepository struct {
	uow *UnitOfWork
}

func (r *authorRepository) buildSelect(spec storage.Specification) (*goqu.SelectDataset, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(goqu.T(authorsTable).As(aliasAuthor)).
		Select("a.id", "a.name", "a.surname")

	return applySpecification(selectStmt, spec, authorFields)
}

func (r *authorRepository) scanAll(ctx context.Context, rows interface {
	Next() bool
	Scan(dest ...any) error
}) ([]domain.Author, error) {

	authors := make([]domain.Author, 0)

	for rows.Next() {
		var author domain.Author

		if scanErr := rows.Scan(&author.ID, &author.Name, &author.Surname); scanErr != nil {
			r.uow.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, errors.Join(storage.ErrScanningRowFailed, scanErr)
		}

		authors = append(authors, author)
	}

	return authors, nil
}

func (r *authorRepository) Count(ctx context.Context, spec storage.Specification) (int, error) {
	return r.uow.countRows(ctx, authorsTable, aliasAuthor, spec, authorFields)
}

func (r *authorRepository) List(ctx context.Context, spec storage.Specification) ([]domain.Author, error) {
	selectStmt, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt)
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	return r.scanAll(ctx, rows)
}

func (r *authorRepository) First(ctx context.Context, spec storage.Specification) (*domain.Author, error) {
	selectStmt, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt.Limit(1))
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	authors, err := r.scanAll(ctx, rows)
	if err != nil {
		return nil, err
	}

	if len(authors) == 0 {
		return nil, domain.ErrNotFound
	}

	return &authors[0], nil
}

func (r *authorRepository) Add(_ context.Context, author domain.Author) error {
	if err := requireIdentity(author.ID); err != nil {
		return err
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(authorsTable).
		Rows(goqu.Record{"id": author.ID, "name": author.Name, "surname": author.Surname})

	sqlQuery, err := buildSQL(insertStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

func (r *authorRepository) Update(_ context.Context, author domain.Author) error {
	if err := requireIdentity(author.ID); err != nil {
		return err
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(authorsTable).
		Set(goqu.Record{"name": author.Name, "surname": author.Surname}).
		Where(goqu.Ex{"id": author.ID})

	sqlQuery, err := buildSQL(updateStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

func (r *authorRepository) Delete(_ context.Context, author domain.Author) error {
	if err := requireIdentity(author.ID); err != nil {
		return err
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(authorsTable).
		Where(goqu.Ex{"id": author.ID})

	sqlQuery, err := buildSQL(deleteStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

/***** genres *****/

type genreRepository struct {
	uow *UnitOfWork
}

func (r *genreRepository) buildSelect(spec storage.Specification) (*goqu.SelectDataset, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(goqu.T(genresTable).As(aliasGenre)).
		Select("g.id", "g.name")

	return applySpecification(selectStmt, spec, genreFields)
}

func (r *genreRepository) scanAll(ctx context.Context, rows interface {
	Next() bool
	Scan(dest ...any) error
}) ([]domain.Genre, error) {

	genres := make([]domain.Genre, 0)

	for rows.Next() {
		var genre domain.Genre

		if scanErr := rows.Scan(&genre.ID, &genre.Name); scanErr != nil {
			r.uow.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, errors.Join(storage.ErrScanningRowFailed, scanErr)
		}

		genres = append(genres, genre)
	}

	return genres, nil
}

func (r *genreRepository) Count(ctx context.Context, spec storage.Specification) (int, error) {
	return r.uow.countRows(ctx, genresTable, aliasGenre, spec, genreFields)
}

func (r *genreRepository) List(ctx context.Context, spec storage.Specification) ([]domain.Genre, error) {
	selectStmt, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt)
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	return r.scanAll(ctx, rows)
}

func (r *genreRepository) First(ctx context.Context, spec storage.Specification) (*domain.Genre, error) {
	selectStmt, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt.Limit(1))
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	genres, err := r.scanAll(ctx, rows)
	if err != nil {
		return nil, err
	}

	if len(genres) == 0 {
		return nil, domain.ErrNotFound
	}

	return &genres[0], nil
}

func (r *genreRepository) Add(_ context.Context, genre domain.Genre) error {
	if err := requireIdentity(genre.ID); err != nil {
		return err
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(genresTable).
		Rows(goqu.Record{"id": genre.ID, "name": genre.Name})

	sqlQuery, err := buildSQL(insertStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

func (r *genreRepository) Update(_ context.Context, genre domain.Genre) error {
	if err := requireIdentity(genre.ID); err != nil {
		return err
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(genresTable).
		Set(goqu.Record{"name": genre.Name}).
		Where(goqu.Ex{"id": genre.ID})

	sqlQuery, err := buildSQL(updateStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

func (r *genreRepository) Delete(_ context.Context, genre domain.Genre) error {
	if err := requireIdentity(genre.ID); err != nil {
		return err
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(genresTable).
		Where(goqu.Ex{"id": genre.ID})

	sqlQuery, err := buildSQL(deleteStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

/***** loans *****/

type loanRepository struct {
	uow *UnitOfWork
}

func (r *loanRepository) buildSelect(spec storage.Specification) (*goqu.SelectDataset, bool, bool, error) {
	withBookAuthor := spec.HasInclude(domain.IncludeBookAuthor)
	withBook := spec.HasInclude(domain.IncludeBook) || withBookAuthor

	selectStmt := goqu.Dialect(dialectPostgres).
		From(goqu.T(loansTable).As(aliasLoan))

	columns := []any{"l.id", "l.book_id", "l.user_id", "l.borrowed_at", "l.due_by"}

	if withBook {
		selectStmt = selectStmt.Join(
			goqu.T(booksTable).As(aliasBook),
			goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id"))),
		)
		columns = append(columns,
			"b.isbn", "b.title", "b.description", "b.quantity",
			"b.author_id", "b.genre_id", "b.cover_image_id", "b.version",
		)
	}

	if withBookAuthor {
		selectStmt = selectStmt.Join(
			goqu.T(authorsTable).As(aliasAuthor),
			goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id"))),
		)
		columns = append(columns, "a.name", "a.surname")
	}

	selectStmt, err := applySpecification(selectStmt.Select(columns...), spec, loanFields)
	if err != nil {
		return nil, false, false, err
	}

	return selectStmt, withBook, withBookAuthor, nil
}

func (r *loanRepository) scanAll(ctx context.Context, rows interface {
	Next() bool
	Scan(dest ...any) error
}, withBook bool, withBookAuthor bool) ([]domain.Loan, error) {

	loans := make([]domain.Loan, 0)

	for rows.Next() {
		var loan domain.Loan
		var book domain.Book
		var authorName, authorSurname string

		dest := []any{&loan.ID, &loan.BookID, &loan.UserID, &loan.BorrowedAt, &loan.DueBy}
		if withBook {
			dest = append(dest,
				&book.ISBN, &book.Title, &book.Description, &book.Quantity,
				&book.AuthorID, &book.GenreID, &book.CoverImageID, &book.Version,
			)
		}
		if withBookAuthor {
			dest = append(dest, &authorName, &authorSurname)
		}

		if scanErr := rows.Scan(dest...); scanErr != nil {
			r.uow.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, errors.Join(storage.ErrScanningRowFailed, scanErr)
		}

		if withBook {
			book.ID = loan.BookID
			if withBookAuthor {
				book.Author = &domain.Author{ID: book.AuthorID, Name: authorName, Surname: authorSurname}
			}
			loan.Book = &book
		}

		loans = append(loans, loan)
	}

	return loans, nil
}

func (r *loanRepository) Count(ctx context.Context, spec storage.Specification) (int, error) {
	return r.uow.countRows(ctx, loansTable, aliasLoan, spec, loanFields)
}

func (r *loanRepository) List(ctx context.Context, spec storage.Specification) ([]domain.Loan, error) {
	selectStmt, withBook, withBookAuthor, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt)
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	return r.scanAll(ctx, rows, withBook, withBookAuthor)
}

func (r *loanRepository) First(ctx context.Context, spec storage.Specification) (*domain.Loan, error) {
	selectStmt, withBook, withBookAuthor, err := r.buildSelect(spec)
	if err != nil {
		return nil, err
	}

	sqlQuery, err := buildSQL(selectStmt.Limit(1))
	if err != nil {
		return nil, err
	}

	rows, err := r.uow.executeQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer r.uow.closeRows(ctx, rows)

	loans, err := r.scanAll(ctx, rows, withBook, withBookAuthor)
	if err != nil {
		return nil, err
	}

	if len(loans) == 0 {
		return nil, domain.ErrNotFound
	}

	return &loans[0], nil
}

func (r *loanRepository) Add(_ context.Context, loan domain.Loan) error {
	if err := requireIdentity(loan.ID); err != nil {
		return err
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(loansTable).
		Rows(goqu.Record{
			"id":          loan.ID,
			"book_id":     loan.BookID,
			"user_id":     loan.UserID,
			"borrowed_at": loan.BorrowedAt,
			"due_by":      loan.DueBy,
		})

	sqlQuery, err := buildSQL(insertStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

func (r *loanRepository) Update(_ context.Context, loan domain.Loan) error {
	if err := requireIdentity(loan.ID); err != nil {
		return err
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(loansTable).
		Set(goqu.Record{
			"book_id":     loan.BookID,
			"user_id":     loan.UserID,
			"borrowed_at": loan.BorrowedAt,
			"due_by":      loan.DueBy,
		}).
		Where(goqu.Ex{"id": loan.ID})

	sqlQuery, err := buildSQL(updateStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}

func (r *loanRepository) Delete(_ context.Context, loan domain.Loan) error {
	if err := requireIdentity(loan.ID); err != nil {
		return err
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(loansTable).
		Where(goqu.Ex{"id": loan.ID})

	sqlQuery, err := buildSQL(deleteStmt)
	if err != nil {
		return err
	}

	r.uow.stage(sqlQuery, 1)

	return nil
}
