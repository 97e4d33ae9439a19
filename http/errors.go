package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trailintercasteller/mailrelay"
)

// errorStatusCode maps domain error codes to HTTP status codes.
func errorStatusCode(code string) int {
	switch code {
	case mailrelay.EINVALID, mailrelay.EATTACHMENT:
		return http.StatusBadRequest
	case mailrelay.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case mailrelay.EFORBIDDEN:
		return http.StatusForbidden
	case mailrelay.ERATELIMIT:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the flat JSON error shape used before a message reaches
// the transport: {"error": "..."}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendErrorResponse is the error shape for submission-stage failures:
// {"ok": false, "error": "...", "timestamp": "..."}.
type SendErrorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// SendResponse is the success shape for an accepted submission.
type SendResponse struct {
	OK              bool   `json:"ok"`
	MessageID       string `json:"messageId"`
	Timestamp       string `json:"timestamp"`
	AttachmentCount *int   `json:"attachmentCount,omitempty"`
	TotalSize       string `json:"totalSize,omitempty"`
}

// HandleError converts domain errors to HTTP responses. Internal and
// configuration errors are logged with full detail server-side and
// surfaced to the caller only as a generic message.
func HandleError(c echo.Context, logger *slog.Logger, err error) error {
	code := mailrelay.ErrorCode(err)
	message := mailrelay.ErrorMessage(err)
	status := errorStatusCode(code)

	switch code {
	case mailrelay.EINTERNAL:
		logger.Error("internal error",
			slog.String("error", err.Error()),
			slog.String("path", c.Path()),
			slog.String("method", c.Request().Method),
		)
		// Don't expose internal error details to clients
		message = "Internal server error"
	case mailrelay.ECONFIG:
		logger.Error("server configuration error",
			slog.String("error", err.Error()),
		)
		message = "Server configuration error"
	}

	return c.JSON(status, ErrorResponse{Error: message})
}

// timestamp renders the response timestamp in the wire format.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
