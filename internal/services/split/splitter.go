// Package split partitions row indices into contiguous chronological
// train/validation/test ranges. Rows are never shuffled.
package split

import (
	"fmt"
	"math"

	"OilCast/internal/domain/models"
)

// Default ratios.
const (
	DefaultTrainRatio       = 0.7
	DefaultValRatio         = 0.15
	DefaultTwoWayTrainRatio = 0.8
)

// Split names.
const (
	Train = "train"
	Val   = "val"
	Test  = "test"
)

// Range is the half-open row interval [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of rows in r.
func (r Range) Len() int { return r.End - r.Start }

// Empty reports whether r holds no rows.
func (r Range) Empty() bool { return r.End <= r.Start }

// Part is one named range of a Split.
type Part struct {
	Name  string `json:"name"`
	Range Range  `json:"range"`
}

// EmptySplitWarning flags a split that computed to zero rows. It is not an
// error: callers proceed and show "no data" for that split.
type EmptySplitWarning struct {
	Split string
	N     int
}

func (w EmptySplitWarning) String() string {
	return fmt.Sprintf("split %q is empty for %d rows", w.Split, w.N)
}

// Split is an ordered partition of [0, N).
type Split struct {
	Kind  models.SplitKind
	N     int
	parts []Part
}

// Parts returns the ranges in chronological order.
func (s Split) Parts() []Part {
	out := make([]Part, len(s.parts))
	copy(out, s.parts)
	return out
}

// Get returns the named range.
func (s Split) Get(name string) (Range, bool) {
	for _, p := range s.parts {
		if p.Name == name {
			return p.Range, true
		}
	}
	return Range{}, false
}

// Sizes maps split name to row count.
func (s Split) Sizes() map[string]int {
	out := make(map[string]int, len(s.parts))
	for _, p := range s.parts {
		out[p.Name] = p.Range.Len()
	}
	return out
}

// Warnings lists every empty part.
func (s Split) Warnings() []EmptySplitWarning {
	var out []EmptySplitWarning
	for _, p := range s.parts {
		if p.Range.Empty() {
			out = append(out, EmptySplitWarning{Split: p.Name, N: s.N})
		}
	}
	return out
}

// ThreeWay computes train=[0,trainEnd), val=[trainEnd,valEnd), test=[valEnd,n)
// with trainEnd=floor(n*trainRatio) and valEnd=trainEnd+floor(n*valRatio).
// The test share is the remainder.
func ThreeWay(n int, trainRatio, valRatio float64) (Split, error) {
	if err := checkRatio("train_ratio", trainRatio); err != nil {
		return Split{}, err
	}
	if err := checkRatio("val_ratio", valRatio); err != nil {
		return Split{}, err
	}
	if trainRatio+valRatio >= 1 {
		return Split{}, fmt.Errorf("%w: train_ratio + val_ratio = %g, must be < 1", models.ErrInvalidRatio, trainRatio+valRatio)
	}
	trainEnd := boundary(n, trainRatio)
	valEnd := trainEnd + boundary(n, valRatio)
	return Split{
		Kind: models.SplitThreeWay,
		N:    n,
		parts: []Part{
			{Name: Train, Range: Range{0, trainEnd}},
			{Name: Val, Range: Range{trainEnd, valEnd}},
			{Name: Test, Range: Range{valEnd, n}},
		},
	}, nil
}

// TwoWay computes train=[0,floor(n*trainRatio)) and test=[trainEnd,n).
func TwoWay(n int, trainRatio float64) (Split, error) {
	if err := checkRatio("train_ratio", trainRatio); err != nil {
		return Split{}, err
	}
	trainEnd := boundary(n, trainRatio)
	return Split{
		Kind: models.SplitTwoWay,
		N:    n,
		parts: []Part{
			{Name: Train, Range: Range{0, trainEnd}},
			{Name: Test, Range: Range{trainEnd, n}},
		},
	}, nil
}

// For builds the split kind a model uses with the given ratios.
func For(kind models.SplitKind, n int, r Ratios) (Split, error) {
	switch kind {
	case models.SplitThreeWay:
		return ThreeWay(n, r.Train, r.Val)
	case models.SplitTwoWay:
		return TwoWay(n, r.TwoWayTrain)
	default:
		return Split{}, fmt.Errorf("unknown split kind %q", kind)
	}
}

// Ratios bundles the configurable split ratios.
type Ratios struct {
	Train       float64 `yaml:"train_ratio" default:"0.7"`
	Val         float64 `yaml:"val_ratio" default:"0.15"`
	TwoWayTrain float64 `yaml:"two_way_train_ratio" default:"0.8"`
}

// DefaultRatios returns the standard 0.7/0.15 and 0.8 ratios.
func DefaultRatios() Ratios {
	return Ratios{Train: DefaultTrainRatio, Val: DefaultValRatio, TwoWayTrain: DefaultTwoWayTrainRatio}
}

// Validate checks every ratio the way ThreeWay and TwoWay would.
func (r Ratios) Validate() error {
	if _, err := ThreeWay(0, r.Train, r.Val); err != nil {
		return err
	}
	_, err := TwoWay(0, r.TwoWayTrain)
	return err
}

func checkRatio(name string, r float64) error {
	if math.IsNaN(r) || r <= 0 || r >= 1 {
		return fmt.Errorf("%w: %s = %g, must be in (0,1)", models.ErrInvalidRatio, name, r)
	}
	return nil
}

func boundary(n int, ratio float64) int {
	if n <= 0 {
		return 0
	}
	return int(math.Floor(float64(n) * ratio))
}
