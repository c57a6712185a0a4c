package domain

// Field keys understood by the storage engines. Specifications reference
// entity attributes through these keys; each engine maps them to its own
// columns or struct fields.
const (
	FieldID       = "id"
	FieldISBN     = "isbn"
	FieldTitle    = "title"
	FieldQuantity = "quantity"
	FieldAuthorID = "author_id"
	FieldGenreID  = "genre_id"
	FieldName     = "name"
	FieldSurname  = "surname"
	FieldBookID   = "book_id"
	FieldUserID   = "user_id"
	FieldDueBy    = "due_by"
)

// Include keys for related data that a specification may ask an engine to
// attach to the returned rows.
const (
	IncludeAuthor     = "author"
	IncludeGenre      = "genre"
	IncludeBook       = "book"
	IncludeBookAuthor = "book.author"
)
