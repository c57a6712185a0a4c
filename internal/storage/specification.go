package storage

import (
	"slices"
)

// CompareOp is the comparison applied by a single criterion.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLessThan
	OpLessOrEqual
	OpGreaterThan
	OpGreaterOrEqual
	// OpContains matches case-insensitive substrings; only meaningful for
	// string-valued fields.
	OpContains
)

// Criterion is one boolean predicate over an entity attribute.
type Criterion struct {
	field string
	op    CompareOp
	value any
}

// P builds a Criterion for the given field key, comparison and value.
func P(field string, op CompareOp, value any) Criterion {
	return Criterion{field: field, op: op, value: value}
}

func (c Criterion) Field() string {
	return c.field
}

func (c Criterion) Op() CompareOp {
	return c.op
}

func (c Criterion) Value() any {
	return c.value
}

// Specification is an immutable description of a read: a conjunction of
// criteria, a set of related-data includes, an optional single ascending
// order key, and an optional (offset, limit) window. It is pure data and
// can be replayed against any storage engine.
//
// All builder methods return a modified copy; the receiver is never changed.
type Specification struct {
	criteria  []Criterion
	includes  []string
	orderBy   string
	offset    int
	limit     int
	hasPaging bool
}

// NewSpecification creates an empty Specification which matches everything.
func NewSpecification() Specification {
	return Specification{}
}

// AddCriteria narrows the result set: every given criterion is ANDed with
// the ones already present. Criteria with an empty field key are dropped.
func (s Specification) AddCriteria(criterion Criterion, criteria ...Criterion) Specification {
	all := append([]Criterion{criterion}, criteria...)
	all = slices.DeleteFunc(all, func(c Criterion) bool { return c.field == "" })

	s.criteria = append(slices.Clone(s.criteria), all...)

	return s
}

// AddInclude declares related entities that must be populated on returned
// rows. Order is irrelevant and duplicates are harmless; the include list
// is kept sorted and deduplicated.
func (s Specification) AddInclude(include string, includes ...string) Specification {
	all := append([]string{include}, includes...)
	all = slices.DeleteFunc(all, func(i string) bool { return i == "" })

	merged := append(slices.Clone(s.includes), all...)
	slices.Sort(merged)
	s.includes = slices.Clip(slices.Compact(merged))

	return s
}

// ApplyOrderBy sets the single ascending sort key. Without an order key the
// result order is engine-defined, and paging is rejected by the engines.
func (s Specification) ApplyOrderBy(field string) Specification {
	s.orderBy = field

	return s
}

// ApplyPaging sets the result window. Callers compute
// offset = (pageNumber-1) * pageSize with pageNumber, pageSize >= 1.
// Negative values are clamped to zero.
func (s Specification) ApplyPaging(offset int, limit int) Specification {
	s.offset = max(offset, 0)
	s.limit = max(limit, 0)
	s.hasPaging = true

	return s
}

// Criteria returns the conjunction of predicates.
func (s Specification) Criteria() []Criterion {
	return s.criteria
}

// Includes returns the sorted, deduplicated include keys.
func (s Specification) Includes() []string {
	return s.includes
}

// HasInclude reports whether the given relation was requested.
func (s Specification) HasInclude(include string) bool {
	return slices.Contains(s.includes, include)
}

// OrderBy returns the ascending sort key, or "" when none was set.
func (s Specification) OrderBy() string {
	return s.orderBy
}

// HasOrderBy reports whether an order key was set.
func (s Specification) HasOrderBy() bool {
	return s.orderBy != ""
}

// Paging returns the window; ok is false when no paging was applied.
func (s Specification) Paging() (offset int, limit int, ok bool) {
	return s.offset, s.limit, s.hasPaging
}
