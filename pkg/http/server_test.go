package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OilCast/pkg/http/middleware"
)

type pingRequest struct {
	Name  string `query:"name" json:"name" validate:"required"`
	Count int    `query:"count" json:"count" default:"3" validate:"gte=1,lte=5"`
	Day   string `query:"day" json:"day" validate:"omitempty,datetime=2006-01-02"`
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(string, float64, float64) bool {
	d.n--
	return d.n >= 0
}

func testServer(opts ...ServerOption) *Server {
	h := Routes(func(e *echo.Echo) {
		e.GET("/ping", func(c echo.Context) error {
			req := &pingRequest{}
			if verr := ReadAndValidateRequest(c, req); verr != nil {
				return BadRequestResponse(c, verr)
			}
			return SuccessResponse(c, req)
		})
		e.GET("/panic", func(c echo.Context) error { panic("boom") })
		e.GET("/plain-error", func(c echo.Context) error {
			return AppErrorResponse(c, errors.New("db password leaked here"))
		})
		e.GET("/gone", func(c echo.Context) error {
			return AppErrorResponse(c, NotFoundError("nothing here").WithParam("id", 7))
		})
	})
	return NewServer([]Handler{h}, opts...)
}

func do(s *Server, target string, hdr map[string]string) (*httptest.ResponseRecorder, APIResponse) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	var body APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestValidationAndDefaults(t *testing.T) {
	s := testServer()

	rec, body := do(s, "/ping?name=brent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"name": "brent", "count": float64(3), "day": ""}, body.Data)

	rec, body = do(s, "/ping?count=9&day=2024-13-01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, body.Status)
	errs, ok := body.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 3)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, "ERR_REQUIRED", first["code"])
	assert.Equal(t, "name", first["field"])
	last := errs[2].(map[string]interface{})
	assert.Equal(t, "ERR_DATETIME", last["code"])
}

func TestAppErrorResponses(t *testing.T) {
	s := testServer()

	rec, body := do(s, "/gone", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", body.Message)
	assert.Contains(t, rec.Body.String(), `"ERR_NOT_FOUND"`)

	rec, body = do(s, "/plain-error", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Something went wrong", body.Data)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRecoverAndCORS(t *testing.T) {
	s := testServer(WithMetricsPath(""))

	rec, _ := do(s, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = do(s, "/ping?name=x", map[string]string{echo.HeaderOrigin: "http://localhost:3000"})
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	s = testServer(WithCORS(false))
	rec, _ = do(s, "/ping?name=x", map[string]string{echo.HeaderOrigin: "http://localhost:3000"})
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestRateLimitMiddleware(t *testing.T) {
	lim := &denyAfter{n: 2}
	s := testServer(WithMiddleware(middleware.RateLimit(lim, middleware.RateLimitConfig{
		Burst: 2, PerSecond: 1,
		Skip: map[string]bool{"/metrics": true},
	}, nil)))

	for i := 0; i < 2; i++ {
		rec, _ := do(s, "/ping?name=x", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := do(s, "/ping?name=x", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = do(s, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "skipped routes are never limited")
}
