package memory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

// fieldGetter resolves a specification field key on one entity. The
// second return value is false for unmapped keys.
type fieldGetter[T any] func(entity T, field string) (any, bool)

func bookField(book domain.Book, field string) (any, bool) {
	switch field {
	case domain.FieldID:
		return book.ID, true
	case domain.FieldISBN:
		return book.ISBN, true
	case domain.FieldTitle:
		return book.Title, true
	case domain.FieldQuantity:
		return book.Quantity, true
	case domain.FieldAuthorID:
		return book.AuthorID, true
	case domain.FieldGenreID:
		return book.GenreID, true
	default:
		return nil, false
	}
}

func authorField(author domain.Author, field string) (any, bool) {
	switch field {
	case domain.FieldID:
		return author.ID, true
	case domain.FieldName:
		return author.Name, true
	case domain.FieldSurname:
		return author.Surname, true
	default:
		return nil, false
	}
}

func genreField(genre domain.Genre, field string) (any, bool) {
	switch field {
	case domain.FieldID:
		return genre.ID, true
	case domain.FieldName:
		return genre.Name, true
	default:
		return nil, false
	}
}

func loanField(loan domain.Loan, field string) (any, bool) {
	switch field {
	case domain.FieldID:
		return loan.ID, true
	case domain.FieldBookID:
		return loan.BookID, true
	case domain.FieldUserID:
		return loan.UserID, true
	case domain.FieldDueBy:
		return loan.DueBy, true
	default:
		return nil, false
	}
}

// compareValues orders two attribute values of the same kind. It returns
// a negative, zero or positive number like strings.Compare.
func compareValues(left any, right any) (int, error) {
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return 0, fmt.Errorf("comparing string with %T", right)
		}
		return strings.Compare(l, r), nil
	case int:
		r, ok := right.(int)
		if !ok {
			return 0, fmt.Errorf("comparing int with %T", right)
		}
		switch {
		case l < r:
			return -1, nil
		case l > r:
			return 1, nil
		default:
			return 0, nil
		}
	case time.Time:
		r, ok := right.(time.Time)
		if !ok {
			return 0, fmt.Errorf("comparing time with %T", right)
		}
		return l.Compare(r), nil
	case uuid.UUID:
		r, ok := right.(uuid.UUID)
		if !ok {
			return 0, fmt.Errorf("comparing uuid with %T", right)
		}
		return strings.Compare(l.String(), r.String()), nil
	default:
		return 0, fmt.Errorf("unsupported attribute type %T", left)
	}
}

// matchCriterion evaluates one predicate against an already resolved
// attribute value.
func matchCriterion(attribute any, criterion storage.Criterion) (bool, error) {
	if criterion.Op() == storage.OpContains {
		haystack, hayOK := attribute.(string)
		needle, needleOK := criterion.Value().(string)
		if !hayOK || !needleOK {
			return false, fmt.Errorf("substring match on non-string field %q", criterion.Field())
		}

		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle)), nil
	}

	ordering, err := compareValues(attribute, criterion.Value())
	if err != nil {
		return false, err
	}

	switch criterion.Op() {
	case storage.OpEqual:
		return ordering == 0, nil
	case storage.OpNotEqual:
		return ordering != 0, nil
	case storage.OpLessThan:
		return ordering < 0, nil
	case storage.OpLessOrEqual:
		return ordering <= 0, nil
	case storage.OpGreaterThan:
		return ordering > 0, nil
	case storage.OpGreaterOrEqual:
		return ordering >= 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison %d", criterion.Op())
	}
}

// evaluate runs the full specification pipeline over the given entities:
// conjunctive filtering, stable ascending order, then the paging window.
func evaluate[T any](
	entities []T,
	spec storage.Specification,
	getField fieldGetter[T],
) ([]T, error) {

	matches := make([]T, 0, len(entities))

	for _, entity := range entities {
		matched := true

		for _, criterion := range spec.Criteria() {
			attribute, ok := getField(entity, criterion.Field())
			if !ok {
				return nil, errors.Join(storage.ErrUnknownField, fmt.Errorf("field %q", criterion.Field()))
			}

			hit, err := matchCriterion(attribute, criterion)
			if err != nil {
				return nil, err
			}

			if !hit {
				matched = false
				break
			}
		}

		if matched {
			matches = append(matches, entity)
		}
	}

	if spec.HasOrderBy() {
		var zero T
		if _, ok := getField(zero, spec.OrderBy()); !ok {
			return nil, errors.Join(storage.ErrUnknownField, fmt.Errorf("order key %q", spec.OrderBy()))
		}

		var sortErr error
		sort.SliceStable(matches, func(i, j int) bool {
			left, leftOK := getField(matches[i], spec.OrderBy())
			right, rightOK := getField(matches[j], spec.OrderBy())
			if !leftOK || !rightOK {
				sortErr = errors.Join(storage.ErrUnknownField, fmt.Errorf("order key %q", spec.OrderBy()))
				return false
			}

			ordering, err := compareValues(left, right)
			if err != nil {
				sortErr = err
				return false
			}

			return ordering < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}

	if offset, limit, ok := spec.Paging(); ok {
		if !spec.HasOrderBy() {
			return nil, storage.ErrPagingWithoutOrderBy
		}

		if offset >= len(matches) {
			return []T{}, nil
		}

		matches = matches[offset:]
		if limit < len(matches) {
			matches = matches[:limit]
		}
	}

	return matches, nil
}
