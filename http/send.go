package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trailintercasteller/mailrelay"
	relaymw "github.com/trailintercasteller/mailrelay/internal/middleware"
	"github.com/trailintercasteller/mailrelay/internal/sanitize"
	"github.com/trailintercasteller/mailrelay/internal/sign"
)

// handleSendEmail is the relay endpoint. Control flow is strictly linear:
// configuration check, API key, rate limit, parse, validate, sanitize,
// signature, decode, submit. Every validation failure returns before any
// external call is made.
func (s *Server) handleSendEmail(c echo.Context) error {
	logger := s.log(c)

	if !s.configured() {
		return mailrelay.ConfigError("Server configuration error", nil)
	}

	// API-key check. The response never reveals which part failed.
	apiKey := c.Request().Header.Get("x-api-key")
	if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.apiKey)) != 1 {
		return mailrelay.Unauthorized("Unauthorized")
	}

	// Rate limit, keyed by client address + API key. Bookkeeping errors
	// fail open; an exhausted budget fails closed.
	key := relaymw.CompositeKey(relaymw.ClientIP(c.Request()), apiKey)
	if allowed, err := s.rateLimiter.Allow(key); err != nil {
		logger.Error("rate limiter error", slog.String("error", err.Error()))
	} else if !allowed {
		logger.Warn("rate limit exceeded", slog.String("key", key))
		return mailrelay.RateLimited("Too many requests, please try again later.")
	}

	var req mailrelay.EmailRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return mailrelay.Invalid("Invalid JSON format")
	}

	if err := req.Validate(s.policy); err != nil {
		return err
	}

	sanitized := sanitize.HTML(req.HTML)

	// Signature verification is a request-authenticity check independent
	// of the API key. It covers the caller-supplied body, before
	// sanitization, and applies only in production with a secret set.
	if s.hmacSecret != "" && s.production {
		if req.Signature == "" {
			return mailrelay.Forbidden("Signature required")
		}
		if !sign.Verify(s.hmacSecret, req.To, req.Subject, req.HTML, req.Signature) {
			return mailrelay.Forbidden("Invalid signature")
		}
	}

	// Decode attachments and re-check exact sizes; the base64-length
	// estimate in Validate is only a cheap pre-filter.
	attachments := make([]mailrelay.OutgoingAttachment, 0, len(req.Attachments))
	var totalBytes int64
	for _, att := range req.Attachments {
		raw, err := att.Decode()
		if err != nil {
			return s.sendFailure(c, logger, err)
		}
		if int64(len(raw)) > s.policy.MaxAttachmentBytes {
			return mailrelay.Invalid("Attachment %q too large (max %dMB per file)",
				att.Filename, s.policy.MaxAttachmentBytes/(1024*1024))
		}
		totalBytes += int64(len(raw))
		attachments = append(attachments, mailrelay.OutgoingAttachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Content:     raw,
		})
	}
	if totalBytes > s.policy.MaxTotalBytes {
		return mailrelay.Invalid("Total attachments too large (max %dMB total). Current size: %dMB",
			s.policy.MaxTotalBytes/(1024*1024), (totalBytes+512*1024)/(1024*1024))
	}

	email := &mailrelay.OutgoingEmail{
		From:        s.sender,
		To:          req.To,
		Subject:     req.Subject,
		HTMLBody:    sanitized,
		TextBody:    sanitize.PlainText(req.HTML),
		Attachments: attachments,
		Headers:     mailrelay.AntiSpamHeaders(s.sender),
		MessageID:   mailrelay.NewMessageID(),
	}

	logger.Info("sending email",
		slog.String("to", email.To),
		slog.Int("attachments", len(attachments)),
		slog.Int64("attachment_kb", totalBytes/1024))

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.sendTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.mailer.Send(ctx, email)
	relaymw.RecordMailSend(s.mailer.Name(), time.Since(start).Seconds(), totalBytes, err)
	if err != nil {
		return s.sendFailure(c, logger, err)
	}

	logger.Info("email sent",
		slog.String("message_id", result.MessageID),
		slog.Int("attachments", len(attachments)))

	count := len(attachments)
	return c.JSON(http.StatusOK, SendResponse{
		OK:              true,
		MessageID:       result.MessageID,
		Timestamp:       timestamp(),
		AttachmentCount: &count,
		TotalSize:       fmt.Sprintf("%dKB", (totalBytes+512)/1024),
	})
}

// sendFailure classifies decode and submission errors. Failures whose
// message mentions attachment content, base64 decoding or a timeout are
// attributed to the client's payload; everything else stays a generic
// internal error with no transport detail leaked.
func (s *Server) sendFailure(c echo.Context, logger *slog.Logger, err error) error {
	logger.Error("email submission failed", slog.String("error", err.Error()))

	chain := strings.ToLower(err.Error())
	attributable := mailrelay.IsErrorCode(err, mailrelay.EATTACHMENT) ||
		strings.Contains(chain, "attachment") ||
		strings.Contains(chain, "base64") ||
		strings.Contains(chain, "timeout")

	if attributable {
		return c.JSON(http.StatusBadRequest, SendErrorResponse{
			OK:        false,
			Error:     "Attachment processing error: " + mailrelay.ErrorMessage(err),
			Timestamp: timestamp(),
		})
	}

	return c.JSON(http.StatusInternalServerError, SendErrorResponse{
		OK:        false,
		Error:     "Internal server error",
		Timestamp: timestamp(),
	})
}
