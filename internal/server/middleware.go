package server

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	appmiddleware "github.com/spotfi/spotfi-cloud/internal/middleware"
	spotfierrors "github.com/spotfi/spotfi-cloud/internal/errors"
)

// ApplyMiddleware configures the global middleware chain shared by the
// captive-portal UAM routes and the operator x-tunnel/admin API: request-ID
// correlation, gzip, optional request logging (ENABLE_LOGGING=true), and
// panic recovery registered last, which makes it the innermost layer: it
// wraps the route handlers, not the middleware registered before it.
func ApplyMiddleware(e *echo.Echo) {
	e.Use(echo.WrapMiddleware(appmiddleware.RequestIDMiddleware))
	e.Use(middleware.Gzip())

	if os.Getenv("ENABLE_LOGGING") == "true" {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogStatus:  true,
			LogMethod:  true,
			LogURI:     true,
			LogError:   true,
			LogLatency: true,
		}))
	}

	e.Use(middleware.Recover())
	e.HTTPErrorHandler = ErrorHandler
}

// ErrorHandler presents errors.SpotfiError-wrapped errors through
// errors.Present (stable code, category, request ID), and falls back to
// Echo's default handler for everything else, so the captive-portal
// handlers' plain echo.NewHTTPError calls are unaffected.
func ErrorHandler(err error, c echo.Context) {
	if _, ok := spotfierrors.As(err); !ok {
		e := c.Echo()
		e.DefaultHTTPErrorHandler(err, c)
		return
	}

	status, presented := spotfierrors.Present(c.Request().Context(), err)
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, presented)
}
