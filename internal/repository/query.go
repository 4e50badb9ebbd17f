// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "fmt"

// Eq is an equality filter on a column.
type Eq struct {
	Column string
	Value  any
}

// Order sorts by a column.
type Order struct {
	Column string
	Desc   bool
}

// Query narrows a table listing. The zero value selects every row in backend order.
type Query struct {
	Where   []Eq
	OrderBy []Order
	Limit   int // <= 0 means no limit
}

// Filter returns q with an extra equality filter.
func (q Query) Filter(column string, value any) Query {
	q.Where = append(append([]Eq(nil), q.Where...), Eq{Column: column, Value: value})
	return q
}

// Sort returns q with an extra ordering term.
func (q Query) Sort(column string, desc bool) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Column: column, Desc: desc})
	return q
}

// Take returns q limited to n rows.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Validate checks every referenced column against the allowed set.
func (q Query) Validate(allowed map[string]bool) error {
	for _, w := range q.Where {
		if !allowed[w.Column] {
			return fmt.Errorf("query: unknown filter column %q", w.Column)
		}
	}
	for _, o := range q.OrderBy {
		if !allowed[o.Column] {
			return fmt.Errorf("query: unknown order column %q", o.Column)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("query: negative limit %d", q.Limit)
	}
	return nil
}
