package features

import (
	"fmt"

	"OilCast/internal/domain/models"
)

// Source column names. The _x suffix is the primary asset (Brent), _y the
// secondary asset (WTI).
const (
	OpenX    = "open_x"
	HighX    = "high_x"
	LowX     = "low_x"
	CloseX   = "close_x"
	VolumeX  = "volume_x"
	AverageX = "average_x"
	OpenY    = "open_y"
	HighY    = "high_y"
	LowY     = "low_y"
	CloseY   = "close_y"
	VolumeY  = "volume_y"
	AverageY = "average_y"

	// PrimaryClose is the column the target is derived from.
	PrimaryClose = CloseX
	// TargetColumn names the next-day close target in every schema.
	TargetColumn = "target"
)

// SourceColumns lists every raw price column any schema can read.
func SourceColumns() []string {
	return []string{
		OpenX, HighX, LowX, CloseX, VolumeX, AverageX,
		OpenY, HighY, LowY, CloseY, VolumeY, AverageY,
	}
}

var (
	// Lags are the backward shifts, in rows, used by every schema.
	Lags = []int{1, 3, 5, 7}
	// Windows are the trailing moving-average widths, in rows.
	Windows = []int{5, 10}
)

// column is one derived column: its name, the source columns it reads and
// the pure function computing it.
type column struct {
	name    string
	sources []string
	derive  func(src map[string][]float64) []float64
}

func raw(name string) column {
	return column{name: name, sources: []string{name}, derive: func(src map[string][]float64) []float64 {
		out := make([]float64, len(src[name]))
		copy(out, src[name])
		return out
	}}
}

func lag(name, source string, n int) column {
	return column{name: name, sources: []string{source}, derive: func(src map[string][]float64) []float64 {
		return shift(src[source], n)
	}}
}

func lead(name, source string, n int) column {
	return column{name: name, sources: []string{source}, derive: func(src map[string][]float64) []float64 {
		return shift(src[source], -n)
	}}
}

func movingAverage(name, source string, w int) column {
	return column{name: name, sources: []string{source}, derive: func(src map[string][]float64) []float64 {
		return rollingMean(src[source], w)
	}}
}

func minus(name, a, b string) column {
	return column{name: name, sources: []string{a, b}, derive: func(src map[string][]float64) []float64 {
		return difference(src[a], src[b])
	}}
}

// Schema is a named, ordered list of feature columns plus the target. The
// feature order is the positional contract with a trained model.
type Schema struct {
	ID       models.SchemaID
	features []column
	target   column
}

// FeatureNames returns the ordered feature column names.
func (s Schema) FeatureNames() []string {
	out := make([]string, len(s.features))
	for i, c := range s.features {
		out[i] = c.name
	}
	return out
}

// Required returns the source columns the schema reads, in first-use order.
func (s Schema) Required() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range append(append([]column{}, s.features...), s.target) {
		for _, src := range c.sources {
			if !seen[src] {
				seen[src] = true
				out = append(out, src)
			}
		}
	}
	return out
}

func priceBlock(asset, open, high, low, closeCol, average string) []column {
	cols := []column{raw(closeCol), raw(open), raw(high), raw(low), raw(average)}
	for _, n := range Lags {
		cols = append(cols, lag(fmt.Sprintf("%s_lag_%d", asset, n), closeCol, n))
	}
	for _, w := range Windows {
		cols = append(cols, movingAverage(fmt.Sprintf("%s_ma_%d", asset, w), closeCol, w))
	}
	return cols
}

// JustBrent: primary asset OHLC + average, close lags and moving averages.
var JustBrent = Schema{
	ID:       models.SchemaJustBrent,
	features: priceBlock("brent", OpenX, HighX, LowX, CloseX, AverageX),
	target:   lead(TargetColumn, PrimaryClose, 1),
}

// BrentWTI: JustBrent plus the symmetric block for the secondary asset.
var BrentWTI = Schema{
	ID: models.SchemaBrentWTI,
	features: append(
		priceBlock("brent", OpenX, HighX, LowX, CloseX, AverageX),
		priceBlock("wti", OpenY, HighY, LowY, CloseY, AverageY)...,
	),
	target: lead(TargetColumn, PrimaryClose, 1),
}

// BrentWTIExtended: close and volume lags, moving averages, range/spread
// differences and raw OHLCV+average for both assets.
var BrentWTIExtended = Schema{
	ID:       models.SchemaBrentWTIExtended,
	features: extendedColumns(),
	target:   lead(TargetColumn, PrimaryClose, 1),
}

func extendedColumns() []column {
	var cols []column
	for _, n := range Lags {
		cols = append(cols, lag(fmt.Sprintf("brent_close_lag_%d", n), CloseX, n))
	}
	for _, n := range Lags {
		cols = append(cols, lag(fmt.Sprintf("wti_close_lag_%d", n), CloseY, n))
	}
	for _, n := range Lags {
		cols = append(cols, lag(fmt.Sprintf("brent_volume_lag_%d", n), VolumeX, n))
	}
	for _, w := range Windows {
		cols = append(cols, movingAverage(fmt.Sprintf("brent_close_ma_%d", w), CloseX, w))
	}
	for _, w := range Windows {
		cols = append(cols, movingAverage(fmt.Sprintf("wti_close_ma_%d", w), CloseY, w))
	}
	cols = append(cols,
		minus("brent_high_low_diff", HighX, LowX),
		minus("wti_high_low_diff", HighY, LowY),
		minus("brent_open_close_diff", CloseX, OpenX),
		minus("brent_wti_spread", CloseX, CloseY),
	)
	for _, name := range []string{OpenX, HighX, LowX, CloseX, VolumeX, AverageX, OpenY, HighY, LowY, CloseY, VolumeY, AverageY} {
		cols = append(cols, raw(name))
	}
	return cols
}

// SchemaFor returns the schema registered under id.
func SchemaFor(id models.SchemaID) (Schema, error) {
	switch id {
	case models.SchemaJustBrent:
		return JustBrent, nil
	case models.SchemaBrentWTI:
		return BrentWTI, nil
	case models.SchemaBrentWTIExtended:
		return BrentWTIExtended, nil
	default:
		return Schema{}, fmt.Errorf("unknown feature schema %q", id)
	}
}
