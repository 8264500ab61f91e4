// Package features turns a PriceSeries into model-ready feature frames.
//
// Training and live inference share one code path: Build computes the full
// frame for a schema and the clean frame is always derived from it with
// Frame.Clean, so the two can never disagree on a kept row.
package features

import (
	"OilCast/internal/domain/models"
)

// Build applies schema to series and returns the full frame: one row per
// input row, with NaN where a lag, moving average or the forward-shifted
// target is undefined. It fails with *models.SchemaError naming every
// missing source column. series is not modified.
func Build(series *models.PriceSeries, schema Schema) (*Frame, error) {
	required := schema.Required()
	var missing []string
	for _, name := range required {
		if !series.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &models.SchemaError{Schema: string(schema.ID), Missing: missing}
	}

	src := make(map[string][]float64, len(required))
	for _, name := range required {
		src[name], _ = series.Column(name)
	}

	n := series.Len()
	f := &Frame{
		schema: schema.ID,
		dates:  series.Dates(),
		source: make([]int, n),
		names:  schema.FeatureNames(),
		cols:   make([][]float64, len(schema.features)),
		target: schema.target.derive(src),
	}
	for i := range f.source {
		f.source[i] = i
	}
	for j, c := range schema.features {
		f.cols[j] = c.derive(src)
	}
	return f, nil
}

// BuildClean is Build followed by Frame.Clean.
func BuildClean(series *models.PriceSeries, schema Schema) (*Frame, error) {
	full, err := Build(series, schema)
	if err != nil {
		return nil, err
	}
	return full.Clean(), nil
}
