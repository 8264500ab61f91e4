package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"OilCast/internal/domain/models"
	"OilCast/internal/services/features"
	pkgch "OilCast/pkg/clickhouse"
	applogger "OilCast/pkg/logger"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHPriceSource reads the daily price table from ClickHouse. Columns are the
// same as in the CSV; NULL cells become NaN.
type CHPriceSource struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHPriceSource(ch *pkgch.Client, table string, l *applogger.Logger) (*CHPriceSource, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", table)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHPriceSource{db: ch.DB(), table: table, l: l}, nil
}

func priceQuery(table string) string {
	const qtpl = `
        SELECT %s, %s
        FROM %s
        ORDER BY %s ASC
    `
	return fmt.Sprintf(qtpl, models.DateColumn, strings.Join(features.SourceColumns(), ", "), table, models.DateColumn)
}

func (s *CHPriceSource) LoadSeries(ctx context.Context) (*models.PriceSeries, error) {
	start := time.Now()
	names := features.SourceColumns()

	rows, err := s.db.QueryContext(ctx, priceQuery(s.table))
	if err != nil {
		s.l.Error("clickhouse load_series query error",
			applogger.String("table", s.table),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	values := make([][]float64, len(names))
	cells := make([]sql.NullFloat64, len(names))
	dest := make([]any, len(names)+1)
	for i := range cells {
		dest[i+1] = &cells[i]
	}
	for rows.Next() {
		var d time.Time
		dest[0] = &d
		if err := rows.Scan(dest...); err != nil {
			s.l.Error("clickhouse load_series scan error",
				applogger.String("table", s.table),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		dates = append(dates, d.UTC())
		for i, c := range cells {
			v := math.NaN()
			if c.Valid {
				v = c.Float64
			}
			values[i] = append(values[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	cols := make([]models.Column, len(names))
	for i, name := range names {
		cols[i] = models.Column{Name: name, Values: values[i]}
		if cols[i].Values == nil {
			cols[i].Values = []float64{}
		}
	}
	series, err := models.NewPriceSeries(dates, cols...)
	if err != nil {
		return nil, err
	}
	s.l.Info("clickhouse load_series ok",
		applogger.String("table", s.table),
		applogger.Int("rows", series.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return series, nil
}
