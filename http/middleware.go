package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	relaymw "github.com/trailintercasteller/mailrelay/internal/middleware"
)

// registerMiddleware sets up the middleware chain for all routes.
func (s *Server) registerMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Logger middleware with request ID
	s.echo.Use(s.requestLoggerMiddleware())

	// CORS headers on every response, including errors; preflight
	// short-circuits before any other processing.
	s.echo.Use(s.corsMiddleware())

	// Prometheus metrics
	s.echo.Use(relaymw.MetricsMiddleware())

	// Custom error handler
	s.echo.HTTPErrorHandler = s.httpErrorHandler
}

// corsMiddleware applies the relay's CORS contract: all origins allowed,
// POST and OPTIONS only, Content-Type and x-api-key headers. A preflight
// OPTIONS probe is answered 200 {ok:true} unconditionally.
func (s *Server) corsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
			h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, x-api-key")

			if c.Request().Method == http.MethodOptions {
				return c.JSON(http.StatusOK, map[string]any{"ok": true})
			}

			return next(c)
		}
	}
}

// requestLoggerMiddleware creates a middleware that logs requests with context.
func (s *Server) requestLoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			// Create request-scoped logger
			logger := s.logger.With(
				slog.String("request_id", requestID),
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
			)
			c.Set("logger", logger)

			err := next(c)

			// Log request completion
			duration := time.Since(start)
			status := c.Response().Status

			logAttrs := []any{
				slog.Int("status", status),
				slog.Duration("duration", duration),
			}

			if err != nil {
				logAttrs = append(logAttrs, slog.String("error", err.Error()))
				logger.Error("request failed", logAttrs...)
			} else if status >= 500 {
				logger.Error("request completed with server error", logAttrs...)
			} else if status >= 400 {
				logger.Warn("request completed with client error", logAttrs...)
			} else {
				logger.Info("request completed", logAttrs...)
			}

			return err
		}
	}
}

// log returns the request-scoped logger, falling back to the server logger.
func (s *Server) log(c echo.Context) *slog.Logger {
	if logger, ok := c.Get("logger").(*slog.Logger); ok {
		return logger
	}
	return s.logger
}

// httpErrorHandler handles errors and returns appropriate responses.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	// Echo's own errors (404, 405, body limits) keep the flat shape.
	if he, ok := err.(*echo.HTTPError); ok {
		msg := "Method not allowed"
		if he.Code != http.StatusMethodNotAllowed {
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(he.Code)
			}
		}
		_ = c.JSON(he.Code, ErrorResponse{Error: msg})
		return
	}

	// Handle domain errors
	_ = HandleError(c, s.log(c), err)
}
