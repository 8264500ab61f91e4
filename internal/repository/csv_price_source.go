package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"OilCast/internal/domain/models"
	"OilCast/internal/services/features"
	applogger "OilCast/pkg/logger"
	"OilCast/pkg/util"
)

// CSVPriceSource reads the merged Brent/WTI table from a delimited file.
// Columns are looked up by name; unknown columns are ignored.
type CSVPriceSource struct {
	path string
	l    *applogger.Logger
}

func NewCSVPriceSource(path string, l *applogger.Logger) *CSVPriceSource {
	if l == nil {
		l = applogger.Nop()
	}
	return &CSVPriceSource{path: path, l: l}
}

func (s *CSVPriceSource) LoadSeries(ctx context.Context) (*models.PriceSeries, error) {
	start := time.Now()
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open price csv: %w", err)
	}
	defer f.Close()

	series, err := ReadPriceCSV(ctx, f)
	if err != nil {
		s.l.Error("price csv load failed", applogger.String("path", s.path), applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if dup := series.DuplicateDates(); dup > 0 {
		s.l.Warn("price csv has duplicate dates", applogger.String("path", s.path), applogger.Int("duplicates", dup))
	}
	s.l.Info("price csv loaded",
		applogger.String("path", s.path),
		applogger.Int("rows", series.Len()),
		applogger.Strings("columns", series.Columns()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return series, nil
}

// ReadPriceCSV parses a header row plus data rows. Empty and NaN-like cells
// become NaN; any other unparsable value in a known price column is an error.
func ReadPriceCSV(ctx context.Context, r io.Reader) (*models.PriceSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &models.SchemaError{Schema: "price table", Missing: []string{models.DateColumn}}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateIdx := -1
	known := make(map[string]bool)
	for _, name := range features.SourceColumns() {
		known[name] = true
	}
	type colRef struct {
		name string
		idx  int
	}
	var cols []colRef
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case name == models.DateColumn:
			dateIdx = i
		case known[name]:
			cols = append(cols, colRef{name: name, idx: i})
		}
	}
	if dateIdx < 0 {
		return nil, &models.SchemaError{Schema: "price table", Missing: []string{models.DateColumn}}
	}

	var dates []time.Time
	values := make([][]float64, len(cols))
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		d, err := util.ParseDate(cell(rec, dateIdx))
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, models.DateColumn, err)
		}
		dates = append(dates, d)
		for j, c := range cols {
			v, err := parseCell(cell(rec, c.idx))
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, c.name, err)
			}
			values[j] = append(values[j], v)
		}
	}

	out := make([]models.Column, len(cols))
	for j, c := range cols {
		out[j] = models.Column{Name: c.name, Values: values[j]}
		if out[j].Values == nil {
			out[j].Values = []float64{}
		}
	}
	return models.NewPriceSeries(dates, out...)
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseCell(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
