package http

import "github.com/labstack/echo/v4"

// Handler registers a group of routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// Routes adapts a plain function to Handler.
type Routes func(e *echo.Echo)

func (r Routes) RegisterRoutes(e *echo.Echo) { r(e) }
