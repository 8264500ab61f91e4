package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"OilCast/internal/domain/models"
	"OilCast/internal/services/split"
	applogger "OilCast/pkg/logger"
)

const (
	accuracySheet = "Accuracy"
	featureSheet  = "Features"
)

// XLSXReportWriter renders training metadata as a two-sheet workbook.
type XLSXReportWriter struct {
	path string
	l    *applogger.Logger
}

func NewXLSXReportWriter(path string, l *applogger.Logger) *XLSXReportWriter {
	if l == nil {
		l = applogger.Nop()
	}
	return &XLSXReportWriter{path: path, l: l}
}

// BuildReport fills a workbook with one accuracy row per model split and the
// ordered feature list of every model.
func BuildReport(metas []*models.ModelMeta) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", accuracySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(featureSheet); err != nil {
		return nil, err
	}

	header := []interface{}{"model", "schema", "split", "rows", "MSE", "RMSE", "MAE", "R2", "trained_at", "run_id"}
	if err := f.SetSheetRow(accuracySheet, "A1", &header); err != nil {
		return nil, err
	}
	row := 2
	for _, m := range metas {
		for _, name := range []string{split.Train, split.Val, split.Test} {
			met, ok := m.Metrics[name]
			if !ok {
				continue
			}
			rec := []interface{}{
				string(m.Model), string(m.Schema), name, m.SplitSizes[name],
				cellValue(met.MSE), cellValue(met.RMSE), cellValue(met.MAE), cellValue(met.R2),
				m.TrainedAt.UTC().Format(time.RFC3339), m.RunID,
			}
			if err := f.SetSheetRow(accuracySheet, cellName(1, row), &rec); err != nil {
				return nil, err
			}
			row++
		}
	}

	fh := []interface{}{"model", "position", "feature"}
	if err := f.SetSheetRow(featureSheet, "A1", &fh); err != nil {
		return nil, err
	}
	row = 2
	for _, m := range metas {
		for i, name := range m.FeatureCols {
			rec := []interface{}{string(m.Model), i, name}
			if err := f.SetSheetRow(featureSheet, cellName(1, row), &rec); err != nil {
				return nil, err
			}
			row++
		}
	}
	return f, nil
}

func (w *XLSXReportWriter) WriteReport(_ context.Context, metas []*models.ModelMeta) (string, error) {
	f, err := BuildReport(metas)
	if err != nil {
		return "", fmt.Errorf("build report: %w", err)
	}
	defer f.Close()

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("report dir: %w", err)
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return "", fmt.Errorf("save report %s: %w", w.path, err)
	}
	w.l.Info("accuracy report written", applogger.String("path", w.path), applogger.Int("models", len(metas)))
	return w.path, nil
}

// cellValue leaves undefined metrics blank.
func cellValue(v float64) interface{} {
	if p := models.Finite(v); p != nil {
		return *p
	}
	return ""
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
