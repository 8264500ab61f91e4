package http

import (
	"time"

	"github.com/labstack/echo/v4"

	xutil "OilCast/pkg/util"
)

// OptionalDate parses a query date. Empty input yields nil; invalid input
// has already been rejected by request validation, so it is reported as a
// bad request naming the field.
func OptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := xutil.ParseDate(s)
	if err != nil {
		return nil, BadRequestError(err.Error()).WithField(field).WithError(err)
	}
	return &t, nil
}

// ClientKey identifies the caller for rate limiting.
func ClientKey(c echo.Context) string {
	return c.RealIP()
}
