package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// shift moves values by n rows along the chronological index. Positive n
// looks backward (row i takes row i-n, a lag); negative n looks forward
// (row i takes row i+|n|, a lead). Rows with nothing to take are NaN.
func shift(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		j := i - n
		if j < 0 || j >= len(vals) {
			out[i] = math.NaN()
			continue
		}
		out[i] = vals[j]
	}
	return out
}

// rollingMean is the trailing simple moving average over w rows. The first
// w-1 rows, and any window containing NaN, are NaN.
func rollingMean(vals []float64, w int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		if i < w-1 {
			out[i] = math.NaN()
			continue
		}
		win := vals[i-w+1 : i+1]
		if floats.HasNaN(win) {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(win, nil)
	}
	return out
}

// difference returns a[i]-b[i].
func difference(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = a[i] - b[i]
	}
	return out
}
