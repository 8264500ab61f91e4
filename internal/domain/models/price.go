package models

import (
	"fmt"
	"sort"
	"time"
)

// DateColumn is the required date column of every price table.
const DateColumn = "date"

// Column is a named numeric column of a price table. Missing cells are NaN.
type Column struct {
	Name   string
	Values []float64
}

// PriceSeries is a date-ordered table of daily prices for the primary (_x)
// and secondary (_y) instruments. Rows are indexed positionally 0..N-1 after
// sorting. A PriceSeries never changes after construction; accessors return
// copies.
type PriceSeries struct {
	dates   []time.Time
	columns map[string][]float64
	order   []string
}

// NewPriceSeries sorts rows ascending by date (stable, so duplicate dates keep
// their input order) and re-indexes them contiguously.
func NewPriceSeries(dates []time.Time, cols ...Column) (*PriceSeries, error) {
	n := len(dates)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return dates[perm[a]].Before(dates[perm[b]]) })

	s := &PriceSeries{
		dates:   make([]time.Time, n),
		columns: make(map[string][]float64, len(cols)),
		order:   make([]string, 0, len(cols)),
	}
	for i, p := range perm {
		s.dates[i] = dates[p]
	}
	for _, c := range cols {
		if len(c.Values) != n {
			return nil, fmt.Errorf("column %q: %w", c.Name, &ShapeError{What: "rows", Want: n, Got: len(c.Values)})
		}
		if _, dup := s.columns[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		vals := make([]float64, n)
		for i, p := range perm {
			vals[i] = c.Values[p]
		}
		s.columns[c.Name] = vals
		s.order = append(s.order, c.Name)
	}
	return s, nil
}

// Len returns the number of rows.
func (s *PriceSeries) Len() int { return len(s.dates) }

// Date returns the date at positional row i.
func (s *PriceSeries) Date(i int) time.Time { return s.dates[i] }

// Dates returns a copy of the row dates.
func (s *PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// HasColumn reports whether the named column is present.
func (s *PriceSeries) HasColumn(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Column returns a copy of the named column.
func (s *PriceSeries) Column(name string) ([]float64, bool) {
	vals, ok := s.columns[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(vals))
	copy(out, vals)
	return out, true
}

// Columns returns the column names in input order (date excluded).
func (s *PriceSeries) Columns() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// DuplicateDates counts rows whose date equals the previous row's date.
func (s *PriceSeries) DuplicateDates() int {
	dups := 0
	for i := 1; i < len(s.dates); i++ {
		if s.dates[i].Equal(s.dates[i-1]) {
			dups++
		}
	}
	return dups
}
