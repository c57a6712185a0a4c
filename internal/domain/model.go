// Package domain holds the persisted aggregates of the library catalog
// (Book, Author, Genre, Loan) and the transient value objects built from
// them, together with the error taxonomy shared by all layers.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Book is a catalog entry. Quantity counts the copies currently on the
// shelf; it must never become negative. Version is the optimistic
// concurrency token checked by the storage layer on every update.
type Book struct {
	ID           uuid.UUID
	ISBN         string
	Title        string
	Description  string
	Quantity     int
	AuthorID     uuid.UUID
	GenreID      uuid.UUID
	CoverImageID uuid.UUID
	Version      int

	// Populated only when the executed specification included the relation.
	Author *Author
	Genre  *Genre
}

// IsAvailable reports whether at least one copy is on the shelf.
func (b Book) IsAvailable() bool {
	return b.Quantity > 0
}

// Author is a reference entity; deletion is blocked while any book references it.
type Author struct {
	ID      uuid.UUID
	Name    string
	Surname string
}

// FullName joins name and surname for display purposes.
func (a Author) FullName() string {
	return strings.TrimSpace(a.Name + " " + a.Surname)
}

// Genre is a reference entity with a unique name.
type Genre struct {
	ID   uuid.UUID
	Name string
}

// Loan records that a copy of a book is held by a user until DueBy.
// The existence of the row is what "currently on loan" means - there is
// no returned flag; a return deletes the row.
type Loan struct {
	ID         uuid.UUID
	BookID     uuid.UUID
	UserID     uuid.UUID
	BorrowedAt time.Time
	DueBy      time.Time

	// Populated only when the executed specification included the relation.
	Book *Book
}

// IsExpired reports whether the loan is past its due date at the given time.
func (l Loan) IsExpired(now time.Time) bool {
	return l.DueBy.Before(now)
}

// Brief is one (book title, author name) pair inside a debtor notification.
type Brief struct {
	BookTitle  string
	AuthorName string
}

// DebtorNotification is a per-user aggregate built at read time and never
// persisted. Email and Name stay empty until the enrichment step resolves
// the user against the identity directory.
type DebtorNotification struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Briefs []Brief
}
