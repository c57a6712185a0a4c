// Package library implements the lending workflows: lend, return, and the
// book management operations, plus the catalog search and the expired-loan
// aggregation the notifier runs on. All reads are expressed as named
// specifications so the same description works against every storage engine.
package library

import (
	"time"

	"github.com/google/uuid"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

// BookByID matches exactly the book with the given identity.
func BookByID(id uuid.UUID) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldID, storage.OpEqual, id))
}

// BookByISBN matches the book carrying the given ISBN. ISBNs are unique,
// so this matches at most one row.
func BookByISBN(isbn string) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldISBN, storage.OpEqual, isbn))
}

// BookISBNTakenByOther matches books holding the given ISBN under a
// different identity. Used for uniqueness checks during updates.
func BookISBNTakenByOther(isbn string, excludeID uuid.UUID) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(
			storage.P(domain.FieldISBN, storage.OpEqual, isbn),
			storage.P(domain.FieldID, storage.OpNotEqual, excludeID),
		)
}

// CatalogFilter narrows a catalog search. Zero-valued fields are ignored.
type CatalogFilter struct {
	TitleContains string
	AuthorID      uuid.UUID
	GenreID       uuid.UUID
}

// CatalogSearch builds the paged catalog read: filtered, ordered by title,
// with author and genre attached. Page numbering starts at 1.
func CatalogSearch(filter CatalogFilter, page int, pageSize int) storage.Specification {
	spec := storage.NewSpecification().
		AddInclude(domain.IncludeAuthor, domain.IncludeGenre).
		ApplyOrderBy(domain.FieldTitle).
		ApplyPaging((page-1)*pageSize, pageSize)

	if filter.TitleContains != "" {
		spec = spec.AddCriteria(storage.P(domain.FieldTitle, storage.OpContains, filter.TitleContains))
	}
	if filter.AuthorID != uuid.Nil {
		spec = spec.AddCriteria(storage.P(domain.FieldAuthorID, storage.OpEqual, filter.AuthorID))
	}
	if filter.GenreID != uuid.Nil {
		spec = spec.AddCriteria(storage.P(domain.FieldGenreID, storage.OpEqual, filter.GenreID))
	}

	return spec
}

// AuthorByID matches exactly the author with the given identity.
func AuthorByID(id uuid.UUID) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldID, storage.OpEqual, id))
}

// GenreByID matches exactly the genre with the given identity.
func GenreByID(id uuid.UUID) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldID, storage.OpEqual, id))
}

// GenreByName matches the genre carrying the given unique name.
func GenreByName(name string) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldName, storage.OpEqual, name))
}

// LoansForBook matches every outstanding loan of the given book.
func LoansForBook(bookID uuid.UUID) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldBookID, storage.OpEqual, bookID))
}

// LoanForBookAndUser matches the outstanding loan of one book held by one
// user. At most one such row exists.
func LoanForBookAndUser(bookID uuid.UUID, userID uuid.UUID) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(
			storage.P(domain.FieldBookID, storage.OpEqual, bookID),
			storage.P(domain.FieldUserID, storage.OpEqual, userID),
		)
}

// ExpiredLoans matches every loan past its due date at the given time,
// with book and author attached and ordered by user so grouping by user
// sees contiguous runs.
func ExpiredLoans(now time.Time) storage.Specification {
	return storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldDueBy, storage.OpLessThan, now)).
		AddInclude(domain.IncludeBook, domain.IncludeBookAuthor).
		ApplyOrderBy(domain.FieldUserID)
}
