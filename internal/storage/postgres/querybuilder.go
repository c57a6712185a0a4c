package postgres

import (
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

const (
	dialectPostgres = "postgres"

	booksTable   = "books"
	authorsTable = "authors"
	genresTable  = "genres"
	loansTable   = "loans"

	aliasBook   = "b"
	aliasAuthor = "a"
	aliasGenre  = "g"
	aliasLoan   = "l"
)

// fieldMap maps specification field keys to qualified column identifiers.
type fieldMap map[string]string

var bookFields = fieldMap{
	domain.FieldID:       "b.id",
	domain.FieldISBN:     "b.isbn",
	domain.FieldTitle:    "b.title",
	domain.FieldQuantity: "b.quantity",
	domain.FieldAuthorID: "b.author_id",
	domain.FieldGenreID:  "b.genre_id",
}

var authorFields = fieldMap{
	domain.FieldID:      "a.id",
	domain.FieldName:    "a.name",
	domain.FieldSurname: "a.surname",
}

var genreFields = fieldMap{
	domain.FieldID:   "g.id",
	domain.FieldName: "g.name",
}

var loanFields = fieldMap{
	domain.FieldID:     "l.id",
	domain.FieldBookID: "l.book_id",
	domain.FieldUserID: "l.user_id",
	domain.FieldDueBy:  "l.due_by",
}

// criterionExpression translates one criterion into a goqu expression.
func criterionExpression(criterion storage.Criterion, fields fieldMap) (goqu.Expression, error) {
	column, ok := fields[criterion.Field()]
	if !ok {
		return nil, errors.Join(storage.ErrUnknownField, fmt.Errorf("field %q", criterion.Field()))
	}

	ident := goqu.I(column)

	switch criterion.Op() {
	case storage.OpEqual:
		return ident.Eq(criterion.Value()), nil
	case storage.OpNotEqual:
		return ident.Neq(criterion.Value()), nil
	case storage.OpLessThan:
		return ident.Lt(criterion.Value()), nil
	case storage.OpLessOrEqual:
		return ident.Lte(criterion.Value()), nil
	case storage.OpGreaterThan:
		return ident.Gt(criterion.Value()), nil
	case storage.OpGreaterOrEqual:
		return ident.Gte(criterion.Value()), nil
	case storage.OpContains:
		return ident.ILike(fmt.Sprintf("%%%v%%", criterion.Value())), nil
	default:
		return nil, errors.Join(storage.ErrUnknownField, fmt.Errorf("unsupported comparison %d", criterion.Op()))
	}
}

// applyCriteria adds the specification's conjunctive WHERE clause.
func applyCriteria(
	selectStmt *goqu.SelectDataset,
	spec storage.Specification,
	fields fieldMap,
) (*goqu.SelectDataset, error) {

	criteria := spec.Criteria()
	if len(criteria) == 0 {
		return selectStmt, nil
	}

	expressions := make([]goqu.Expression, 0, len(criteria))

	for _, criterion := range criteria {
		expression, err := criterionExpression(criterion, fields)
		if err != nil {
			return nil, err
		}

		expressions = append(expressions, expression)
	}

	return selectStmt.Where(goqu.And(expressions...)), nil
}

// applySpecification adds criteria, order and paging to a select statement.
// Paging without an order key is rejected, pages would not be deterministic.
func applySpecification(
	selectStmt *goqu.SelectDataset,
	spec storage.Specification,
	fields fieldMap,
) (*goqu.SelectDataset, error) {

	selectStmt, err := applyCriteria(selectStmt, spec, fields)
	if err != nil {
		return nil, err
	}

	if spec.HasOrderBy() {
		column, ok := fields[spec.OrderBy()]
		if !ok {
			return nil, errors.Join(storage.ErrUnknownField, fmt.Errorf("order key %q", spec.OrderBy()))
		}

		selectStmt = selectStmt.Order(goqu.I(column).Asc())
	}

	if offset, limit, ok := spec.Paging(); ok {
		if !spec.HasOrderBy() {
			return nil, storage.ErrPagingWithoutOrderBy
		}

		selectStmt = selectStmt.Offset(uint(offset)).Limit(uint(limit))
	}

	return selectStmt, nil
}
