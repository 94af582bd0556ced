package tables

import (
	"context"
	"slices"
)

type ordering[T any] struct {
	field     Field[T]
	ascending bool
}

// Query accumulates filter, order and limit clauses. Builder methods return a new Query
// and never modify the receiver, so partially built queries can be shared.
type Query[T any] struct {
	filter Filter[T]
	order  *ordering[T]
	limit  int
}

// Select starts an empty query matching every record.
func Select[T any]() Query[T] {
	return Query[T]{}
}

// Where adds a strict equality condition.
func (q Query[T]) Where(field Field[T], value any) Query[T] {
	return q.with(Eq(field, value))
}

// ILike adds a case-insensitive substring condition.
func (q Query[T]) ILike(field Field[T], pattern string) Query[T] {
	return q.with(ILike(field, pattern))
}

// OrderBy sorts results by field. A later call replaces an earlier one.
func (q Query[T]) OrderBy(field Field[T], ascending bool) Query[T] {
	next := q.clone()
	next.order = &ordering[T]{field: field, ascending: ascending}
	return next
}

// Limit truncates results to at most n records. Non-positive n removes the limit.
func (q Query[T]) Limit(n int) Query[T] {
	next := q.clone()
	next.limit = max(n, 0)
	return next
}

// Filter exposes the accumulated conditions, for use with mutations.
func (q Query[T]) Filter() Filter[T] {
	return slices.Clone(q.filter)
}

// Apply evaluates the query against an in-memory sequence: filter, then order, then limit.
func (q Query[T]) Apply(records []T) []T {
	matched := make([]T, 0, len(records))
	for _, record := range records {
		if q.filter.Matches(record) {
			matched = append(matched, record)
		}
	}
	if q.order != nil {
		order := q.order
		slices.SortStableFunc(matched, func(left, right T) int {
			result := compareValues(order.field.Value(left), order.field.Value(right))
			if !order.ascending {
				result = -result
			}
			return result
		})
	}
	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
	}
	return matched
}

// Execute loads the table and evaluates the query. No matches yields an empty slice.
func (q Query[T]) Execute(ctx context.Context, table *Table[T]) ([]T, error) {
	records, err := table.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return q.Apply(records), nil
}

// Single returns the first match or nil. Uniqueness is not enforced.
func (q Query[T]) Single(ctx context.Context, table *Table[T]) (*T, error) {
	results, err := q.Limit(1).Execute(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (q Query[T]) with(condition Condition[T]) Query[T] {
	next := q.clone()
	next.filter = append(next.filter, condition)
	return next
}

func (q Query[T]) clone() Query[T] {
	next := Query[T]{
		filter: slices.Clone(q.filter),
		limit:  q.limit,
	}
	if q.order != nil {
		order := *q.order
		next.order = &order
	}
	return next
}
