package repository

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"OilCast/internal/domain/models"
	domrepo "OilCast/internal/domain/repository"
	applogger "OilCast/pkg/logger"
)

// FrameCell is one (row, column) value of a feature frame in long format.
// Undefined cells are stored as nulls.
type FrameCell struct {
	Row     int32    `parquet:"row"`
	Date    string   `parquet:"date"`
	Model   string   `parquet:"model"`
	Schema  string   `parquet:"schema"`
	Feature string   `parquet:"feature"`
	Value   *float64 `parquet:"value,optional"`
}

// ParquetFrameWriter writes clean feature frames to <dir>/<model>_features.parquet.
type ParquetFrameWriter struct {
	dir string
	l   *applogger.Logger
}

func NewParquetFrameWriter(dir string, l *applogger.Logger) *ParquetFrameWriter {
	if l == nil {
		l = applogger.Nop()
	}
	return &ParquetFrameWriter{dir: dir, l: l}
}

// FrameCells flattens a frame into long format, target last for every row.
func FrameCells(model models.ModelID, f domrepo.FeatureTable) []FrameCell {
	names := f.FeatureNames()
	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j], _ = f.Column(name)
	}
	target := f.Target()

	out := make([]FrameCell, 0, f.Len()*(len(names)+1))
	for i := 0; i < f.Len(); i++ {
		base := FrameCell{
			Row:    int32(i),
			Date:   f.Date(i).Format(time.DateOnly),
			Model:  string(model),
			Schema: string(f.Schema()),
		}
		for j, name := range names {
			c := base
			c.Feature = name
			c.Value = nullable(cols[j][i])
			out = append(out, c)
		}
		c := base
		c.Feature = "target"
		c.Value = nullable(target[i])
		out = append(out, c)
	}
	return out
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (w *ParquetFrameWriter) WriteFrame(_ context.Context, model models.ModelID, f domrepo.FeatureTable) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("parquet dir: %w", err)
	}
	path := filepath.Join(w.dir, string(model)+"_features.parquet")
	cells := FrameCells(model, f)
	if err := parquet.WriteFile(path, cells); err != nil {
		return "", fmt.Errorf("write parquet %s: %w", path, err)
	}
	w.l.Info("feature frame exported",
		applogger.String("model", string(model)),
		applogger.String("path", path),
		applogger.Int("rows", f.Len()),
		applogger.Int("cells", len(cells)),
	)
	return path, nil
}
