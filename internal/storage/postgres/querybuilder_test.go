package postgres

import (
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

func baseBookSelect() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(goqu.T(booksTable).As(aliasBook)).
		Select("b.id")
}

func Test_ApplySpecification_GeneratedSQL(t *testing.T) {
	authorID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	tests := []struct {
		name        string
		spec        storage.Specification
		contains    []string
		notContains []string
	}{
		{
			name:        "empty_specification_has_no_where_clause",
			spec:        storage.NewSpecification(),
			notContains: []string{"WHERE", "ORDER BY", "LIMIT"},
		},
		{
			name: "equality_criterion",
			spec: storage.NewSpecification().
				AddCriteria(storage.P(domain.FieldAuthorID, storage.OpEqual, authorID)),
			contains: []string{`WHERE ("b"."author_id" = '11111111-1111-1111-1111-111111111111')`},
		},
		{
			name: "chained_criteria_are_conjoined",
			spec: storage.NewSpecification().
				AddCriteria(storage.P(domain.FieldQuantity, storage.OpGreaterThan, 0)).
				AddCriteria(storage.P(domain.FieldTitle, storage.OpNotEqual, "x")),
			contains: []string{`("b"."quantity" > 0)`, " AND ", `("b"."title" != 'x')`},
		},
		{
			name: "contains_criterion_uses_case_insensitive_like",
			spec: storage.NewSpecification().
				AddCriteria(storage.P(domain.FieldTitle, storage.OpContains, "sea")),
			contains: []string{`"b"."title" ILIKE '%sea%'`},
		},
		{
			name: "order_key_produces_ascending_order",
			spec: storage.NewSpecification().ApplyOrderBy(domain.FieldTitle),
			contains: []string{`ORDER BY "b"."title" ASC`},
		},
		{
			name: "paging_with_order_produces_limit_and_offset",
			spec: storage.NewSpecification().
				ApplyOrderBy(domain.FieldTitle).
				ApplyPaging(20, 10),
			contains: []string{"LIMIT 10", "OFFSET 20"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			selectStmt, err := applySpecification(baseBookSelect(), tc.spec, bookFields)
			require.NoError(t, err)

			sqlQuery, _, err := selectStmt.ToSQL()
			require.NoError(t, err)

			for _, fragment := range tc.contains {
				assert.Contains(t, sqlQuery, fragment)
			}
			for _, fragment := range tc.notContains {
				assert.NotContains(t, sqlQuery, fragment)
			}
		})
	}
}

func Test_ApplySpecification_RejectsPagingWithoutOrderKey(t *testing.T) {
	spec := storage.NewSpecification().ApplyPaging(0, 10)

	_, err := applySpecification(baseBookSelect(), spec, bookFields)

	assert.ErrorIs(t, err, storage.ErrPagingWithoutOrderBy)
}

func Test_ApplySpecification_RejectsUnknownFields(t *testing.T) {
	t.Run("unknown_criterion_field", func(t *testing.T) {
		spec := storage.NewSpecification().
			AddCriteria(storage.P("no_such_field", storage.OpEqual, 1))

		_, err := applySpecification(baseBookSelect(), spec, bookFields)

		assert.ErrorIs(t, err, storage.ErrUnknownField)
	})

	t.Run("unknown_order_key", func(t *testing.T) {
		spec := storage.NewSpecification().ApplyOrderBy("no_such_field")

		_, err := applySpecification(baseBookSelect(), spec, bookFields)

		assert.ErrorIs(t, err, storage.ErrUnknownField)
	})

	t.Run("field_of_another_entity", func(t *testing.T) {
		spec := storage.NewSpecification().
			AddCriteria(storage.P(domain.FieldDueBy, storage.OpLessThan, 1))

		_, err := applySpecification(baseBookSelect(), spec, bookFields)

		assert.ErrorIs(t, err, storage.ErrUnknownField)
	})
}

func Test_BookRepository_SelectWithIncludes(t *testing.T) {
	repo := &bookRepository{uow: &UnitOfWork{}}

	spec := storage.NewSpecification().
		AddInclude(domain.IncludeAuthor, domain.IncludeGenre)

	selectStmt, withAuthor, withGenre, err := repo.buildSelect(spec)
	require.NoError(t, err)
	assert.True(t, withAuthor)
	assert.True(t, withGenre)

	sqlQuery, _, err := selectStmt.ToSQL()
	require.NoError(t, err)

	assert.Contains(t, sqlQuery, `INNER JOIN "authors" AS "a" ON ("a"."id" = "b"."author_id")`)
	assert.Contains(t, sqlQuery, `INNER JOIN "genres" AS "g" ON ("g"."id" = "b"."genre_id")`)
	assert.Contains(t, sqlQuery, `"a"."name"`)
	assert.Contains(t, sqlQuery, `"g"."name"`)
}

func Test_LoanRepository_SelectWithBookAuthorInclude(t *testing.T) {
	repo := &loanRepository{uow: &UnitOfWork{}}

	spec := storage.NewSpecification().
		AddInclude(domain.IncludeBook, domain.IncludeBookAuthor)

	selectStmt, withBook, withBookAuthor, err := repo.buildSelect(spec)
	require.NoError(t, err)
	assert.True(t, withBook)
	assert.True(t, withBookAuthor)

	sqlQuery, _, err := selectStmt.ToSQL()
	require.NoError(t, err)

	assert.Contains(t, sqlQuery, `INNER JOIN "books" AS "b" ON ("b"."id" = "l"."book_id")`)
	assert.Contains(t, sqlQuery, `INNER JOIN "authors" AS "a" ON ("a"."id" = "b"."author_id")`)
}

func Test_BookRepository_UpdateStagesOptimisticVersionCheck(t *testing.T) {
	uow := &UnitOfWork{}
	repo := &bookRepository{uow: uow}

	book := domain.Book{
		ID:       uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		ISBN:     "978-3-16-148410-0",
		Title:    "The Sea",
		Quantity: 3,
		AuthorID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		GenreID:  uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		Version:  7,
	}

	err := repo.Update(t.Context(), book)
	require.NoError(t, err)
	require.Len(t, uow.staged, 1)

	assert.Contains(t, uow.staged[0].sqlQuery, `"version"=version + 1`)
	assert.Contains(t, uow.staged[0].sqlQuery, `"version" = 7`)
	assert.Contains(t, uow.staged[0].sqlQuery, `"id" = '22222222-2222-2222-2222-222222222222'`)
	assert.Equal(t, int64(1), uow.staged[0].expectRows)
}

func Test_Repositories_RejectEntitiesWithoutIdentity(t *testing.T) {
	uow := &UnitOfWork{}

	assert.ErrorIs(t, (&bookRepository{uow: uow}).Add(t.Context(), domain.Book{}), storage.ErrInvalidEntity)
	assert.ErrorIs(t, (&authorRepository{uow: uow}).Update(t.Context(), domain.Author{}), storage.ErrInvalidEntity)
	assert.ErrorIs(t, (&genreRepository{uow: uow}).Delete(t.Context(), domain.Genre{}), storage.ErrInvalidEntity)
	assert.ErrorIs(t, (&loanRepository{uow: uow}).Add(t.Context(), domain.Loan{}), storage.ErrInvalidEntity)
	assert.Empty(t, uow.staged)
}
