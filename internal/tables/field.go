package tables

import (
	"fmt"
	"strings"
	"time"
)

// Field names one column of a record type and extracts its comparable value.
// Optional columns should report a nil interface when unset so Where(field, nil) selects them.
type Field[T any] struct {
	name  string
	value func(T) any
}

// NewField declares a column.
func NewField[T any](name string, value func(T) any) Field[T] {
	return Field[T]{name: name, value: value}
}

// Name returns the persisted column name.
func (f Field[T]) Name() string {
	return f.name
}

// Value extracts the column value from a record.
func (f Field[T]) Value(record T) any {
	if f.value == nil {
		return nil
	}
	return f.value(record)
}

// Counter is an integer column that can be adjusted in place.
type Counter[T any] struct {
	Field[T]
	set func(*T, int)
}

// NewCounter declares an integer column with a setter.
func NewCounter[T any](name string, get func(T) int, set func(*T, int)) Counter[T] {
	return Counter[T]{
		Field: NewField(name, func(record T) any { return get(record) }),
		set:   set,
	}
}

func (c Counter[T]) current(record T) int {
	value, _ := c.Value(record).(int)
	return value
}

// Condition is one predicate of a filter.
type Condition[T any] struct {
	field Field[T]
	match func(any) bool
	desc  string
}

// Matches reports whether the record satisfies the condition.
func (c Condition[T]) Matches(record T) bool {
	return c.match(c.field.Value(record))
}

func (c Condition[T]) String() string {
	return c.desc
}

// Eq matches records whose column is strictly equal (same dynamic type and value) to value.
func Eq[T any](field Field[T], value any) Condition[T] {
	return Condition[T]{
		field: field,
		match: func(candidate any) bool { return strictEqual(candidate, value) },
		desc:  fmt.Sprintf("%s = %v", field.Name(), value),
	}
}

// ILike matches records whose column contains pattern, ignoring case.
// Percent wildcards are stripped rather than interpreted.
func ILike[T any](field Field[T], pattern string) Condition[T] {
	needle := strings.ToLower(strings.ReplaceAll(pattern, "%", ""))
	return Condition[T]{
		field: field,
		match: func(candidate any) bool {
			if candidate == nil {
				return false
			}
			return strings.Contains(strings.ToLower(fmt.Sprint(candidate)), needle)
		},
		desc: fmt.Sprintf("%s ilike %q", field.Name(), pattern),
	}
}

// Filter is a conjunction of conditions. The empty filter matches every record.
type Filter[T any] []Condition[T]

// Where builds a filter of equality conditions.
func Where[T any](field Field[T], value any) Filter[T] {
	return Filter[T]{Eq(field, value)}
}

// And returns a new filter with an additional equality condition.
func (f Filter[T]) And(field Field[T], value any) Filter[T] {
	next := make(Filter[T], 0, len(f)+1)
	next = append(next, f...)
	return append(next, Eq(field, value))
}

// Matches reports whether record satisfies every condition.
func (f Filter[T]) Matches(record T) bool {
	for _, condition := range f {
		if !condition.Matches(record) {
			return false
		}
	}
	return true
}

func strictEqual(left, right any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return left == right
}

// compareValues orders two column values. Unsupported or mixed types compare equal.
func compareValues(left, right any) int {
	switch l := left.(type) {
	case string:
		if r, ok := right.(string); ok {
			return strings.Compare(l, r)
		}
	case int:
		if r, ok := right.(int); ok {
			return compareOrdered(l, r)
		}
	case int64:
		if r, ok := right.(int64); ok {
			return compareOrdered(l, r)
		}
	case uint:
		if r, ok := right.(uint); ok {
			return compareOrdered(l, r)
		}
	case float64:
		if r, ok := right.(float64); ok {
			return compareOrdered(l, r)
		}
	case bool:
		if r, ok := right.(bool); ok {
			switch {
			case l == r:
				return 0
			case !l:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if r, ok := right.(time.Time); ok {
			return l.Compare(r)
		}
	}
	return 0
}

type ordered interface {
	~int | ~int64 | ~uint | ~float64
}

func compareOrdered[V ordered](left, right V) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}
