package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleHealthCheck(c echo.Context) error {
	provider := ""
	if s.mailer != nil {
		provider = s.mailer.Name()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": provider,
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleLivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadinessCheck reports whether the relay can actually serve: the
// API key secret and a mail transport must both be configured.
func (s *Server) handleReadinessCheck(c echo.Context) error {
	if !s.configured() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
