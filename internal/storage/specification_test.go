package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/storage"
)

func Test_SpecificationBuilder(t *testing.T) {
	tests := []struct {
		name     string
		build    func() storage.Specification
		validate func(t *testing.T, spec storage.Specification)
	}{
		{
			name: "empty_specification_matches_everything",
			build: func() storage.Specification {
				return storage.NewSpecification()
			},
			validate: func(t *testing.T, spec storage.Specification) {
				assert.Empty(t, spec.Criteria())
				assert.Empty(t, spec.Includes())
				assert.False(t, spec.HasOrderBy())
				_, _, hasPaging := spec.Paging()
				assert.False(t, hasPaging)
			},
		},
		{
			name: "chained_criteria_accumulate",
			build: func() storage.Specification {
				return storage.NewSpecification().
					AddCriteria(storage.P(domain.FieldTitle, storage.OpContains, "sea")).
					AddCriteria(storage.P(domain.FieldQuantity, storage.OpGreaterThan, 0))
			},
			validate: func(t *testing.T, spec storage.Specification) {
				assert.Len(t, spec.Criteria(), 2)
				assert.Equal(t, domain.FieldTitle, spec.Criteria()[0].Field())
				assert.Equal(t, domain.FieldQuantity, spec.Criteria()[1].Field())
			},
		},
		{
			name: "criteria_with_empty_field_key_are_dropped",
			build: func() storage.Specification {
				return storage.NewSpecification().
					AddCriteria(storage.P("", storage.OpEqual, 1)).
					AddCriteria(storage.P(domain.FieldISBN, storage.OpEqual, "x"))
			},
			validate: func(t *testing.T, spec storage.Specification) {
				assert.Len(t, spec.Criteria(), 1)
				assert.Equal(t, domain.FieldISBN, spec.Criteria()[0].Field())
			},
		},
		{
			name: "includes_are_sorted_and_deduplicated",
			build: func() storage.Specification {
				return storage.NewSpecification().
					AddInclude(domain.IncludeGenre).
					AddInclude(domain.IncludeAuthor, domain.IncludeGenre)
			},
			validate: func(t *testing.T, spec storage.Specification) {
				assert.Equal(t, []string{domain.IncludeAuthor, domain.IncludeGenre}, spec.Includes())
				assert.True(t, spec.HasInclude(domain.IncludeAuthor))
				assert.False(t, spec.HasInclude(domain.IncludeBook))
			},
		},
		{
			name: "order_key_is_recorded",
			build: func() storage.Specification {
				return storage.NewSpecification().ApplyOrderBy(domain.FieldTitle)
			},
			validate: func(t *testing.T, spec storage.Specification) {
				assert.True(t, spec.HasOrderBy())
				assert.Equal(t, domain.FieldTitle, spec.OrderBy())
			},
		},
		{
			name: "paging_window_is_recorded",
			build: func() storage.Specification {
				return storage.NewSpecification().
					ApplyOrderBy(domain.FieldTitle).
					ApplyPaging(20, 10)
			},
			validate: func(t *testing.T, spec storage.Specification) {
				offset, limit, hasPaging := spec.Paging()
				assert.True(t, hasPaging)
				assert.Equal(t, 20, offset)
				assert.Equal(t, 10, limit)
			},
		},
		{
			name: "negative_paging_values_are_clamped",
			build: func() storage.Specification {
				return storage.NewSpecification().ApplyPaging(-5, -1)
			},
			validate: func(t *testing.T, spec storage.Specification) {
				offset, limit, hasPaging := spec.Paging()
				assert.True(t, hasPaging)
				assert.Equal(t, 0, offset)
				assert.Equal(t, 0, limit)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.validate(t, tc.build())
		})
	}
}

func Test_Specification_BuildersDoNotMutateReceiver(t *testing.T) {
	base := storage.NewSpecification().
		AddCriteria(storage.P(domain.FieldTitle, storage.OpContains, "sea"))

	derivedA := base.AddCriteria(storage.P(domain.FieldQuantity, storage.OpGreaterThan, 0))
	derivedB := base.AddCriteria(storage.P(domain.FieldISBN, storage.OpEqual, "123"))
	derivedC := base.ApplyOrderBy(domain.FieldTitle).ApplyPaging(0, 10)

	assert.Len(t, base.Criteria(), 1)
	assert.False(t, base.HasOrderBy())

	assert.Len(t, derivedA.Criteria(), 2)
	assert.Equal(t, domain.FieldQuantity, derivedA.Criteria()[1].Field())

	assert.Len(t, derivedB.Criteria(), 2)
	assert.Equal(t, domain.FieldISBN, derivedB.Criteria()[1].Field())

	assert.True(t, derivedC.HasOrderBy())
	_, _, hasPaging := base.Paging()
	assert.False(t, hasPaging)
}
