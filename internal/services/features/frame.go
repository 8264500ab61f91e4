package features

import (
	"math"
	"time"

	"OilCast/internal/domain/models"
)

// Frame is the result of applying a Schema to a PriceSeries. A full frame
// keeps every input row (undefined cells are NaN); a clean frame keeps only
// rows whose features and target are all defined. Frames are never mutated
// after construction.
type Frame struct {
	schema models.SchemaID
	dates  []time.Time
	source []int
	names  []string
	cols   [][]float64
	target []float64
}

// Schema returns the schema the frame was built with.
func (f *Frame) Schema() models.SchemaID { return f.schema }

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.dates) }

// Date returns the date of row i.
func (f *Frame) Date(i int) time.Time { return f.dates[i] }

// Dates returns a copy of the row dates.
func (f *Frame) Dates() []time.Time {
	out := make([]time.Time, len(f.dates))
	copy(out, f.dates)
	return out
}

// SourceRow returns the position of row i in the full frame (and in the
// originating PriceSeries).
func (f *Frame) SourceRow(i int) int { return f.source[i] }

// FeatureNames returns the ordered feature column names.
func (f *Frame) FeatureNames() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Column returns a copy of a feature column by name, or the target column
// for TargetColumn.
func (f *Frame) Column(name string) ([]float64, bool) {
	if name == TargetColumn {
		return f.Target(), true
	}
	for j, n := range f.names {
		if n == name {
			out := make([]float64, len(f.cols[j]))
			copy(out, f.cols[j])
			return out, true
		}
	}
	return nil, false
}

// Target returns a copy of the next-day close target.
func (f *Frame) Target() []float64 {
	out := make([]float64, len(f.target))
	copy(out, f.target)
	return out
}

// Row returns the feature vector of row i in schema order.
func (f *Frame) Row(i int) []float64 {
	out := make([]float64, len(f.cols))
	for j := range f.cols {
		out[j] = f.cols[j][i]
	}
	return out
}

// Matrix returns all feature rows, row-major.
func (f *Frame) Matrix() [][]float64 {
	out := make([][]float64, f.Len())
	for i := range out {
		out[i] = f.Row(i)
	}
	return out
}

// FeaturesDefined reports whether every feature of row i is defined.
func (f *Frame) FeaturesDefined(i int) bool {
	for j := range f.cols {
		if math.IsNaN(f.cols[j][i]) {
			return false
		}
	}
	return true
}

// Complete reports whether every feature and the target of row i are defined.
func (f *Frame) Complete(i int) bool {
	return !math.IsNaN(f.target[i]) && f.FeaturesDefined(i)
}

// Clean drops every row with an undefined feature or target and re-indexes
// the remainder 0..M-1. Values are copied verbatim from f.
func (f *Frame) Clean() *Frame {
	return f.filter(f.Complete)
}

// Slice returns rows [start, end) as a new frame.
func (f *Frame) Slice(start, end int) *Frame {
	return f.filter(func(i int) bool { return i >= start && i < end })
}

// Between returns the rows whose date falls within [from, to], inclusive.
func (f *Frame) Between(from, to time.Time) *Frame {
	return f.filter(func(i int) bool {
		d := f.dates[i]
		return !d.Before(from) && !d.After(to)
	})
}

func (f *Frame) filter(keep func(i int) bool) *Frame {
	out := &Frame{
		schema: f.schema,
		names:  f.FeatureNames(),
		cols:   make([][]float64, len(f.cols)),
	}
	for i := 0; i < f.Len(); i++ {
		if !keep(i) {
			continue
		}
		out.dates = append(out.dates, f.dates[i])
		out.source = append(out.source, f.source[i])
		out.target = append(out.target, f.target[i])
		for j := range f.cols {
			out.cols[j] = append(out.cols[j], f.cols[j][i])
		}
	}
	return out
}
