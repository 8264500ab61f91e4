package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfRange marks a date selection that matched no rows. It is a
	// recoverable, user-facing condition.
	ErrOutOfRange = errors.New("no data in selected date range")
	// ErrInvalidRange is returned when a range starts after it ends.
	ErrInvalidRange = errors.New("start date must be on or before end date")
	// ErrUnknownModel is returned for a model identity outside the registry.
	ErrUnknownModel = errors.New("unknown model")
	// ErrInvalidRatio is returned for split ratios outside (0,1) or summing to >= 1.
	ErrInvalidRatio = errors.New("invalid split ratio")
	// ErrArtifactNotFound is returned when a model artifact file is absent.
	ErrArtifactNotFound = errors.New("model artifact not found")
)

// SchemaError reports every required source column absent from a price table.
type SchemaError struct {
	Schema  string
	Missing []string
}

func (e *SchemaError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: missing required columns: %s", e.Schema, strings.Join(e.Missing, ", "))
}

// ShapeError reports mismatched vector or matrix lengths.
type ShapeError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	what := e.What
	if what == "" {
		what = "length"
	}
	return fmt.Sprintf("shape mismatch: %s want %d, got %d", what, e.Want, e.Got)
}
