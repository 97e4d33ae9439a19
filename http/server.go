package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trailintercasteller/mailrelay"
)

// DefaultSendTimeout bounds one mail submission end to end, including the
// transport's dial, spacing wait and retries.
const DefaultSendTimeout = 90 * time.Second

// Server represents the HTTP server with all its dependencies.
type Server struct {
	echo   *echo.Echo
	ln     net.Listener
	logger *slog.Logger

	// Configuration
	Addr string

	// APIKey is the shared secret clients present in x-api-key.
	// Empty means the deployment is misconfigured; requests are
	// answered with a configuration error, not served.
	apiKey string

	// HMAC signature enforcement
	hmacSecret string
	production bool

	policy      mailrelay.Policy
	sender      mailrelay.SenderIdentity
	sendTimeout time.Duration

	// External collaborators
	mailer      mailrelay.Mailer
	rateLimiter mailrelay.RateLimiter

	startTime time.Time
}

// Config holds the configuration for creating a new Server.
type Config struct {
	Addr   string
	Logger *slog.Logger

	// APIKey is the x-api-key shared secret. Required for serving.
	APIKey string

	// HMACSecret enables signature verification when set; enforcement
	// additionally requires Production.
	HMACSecret string
	Production bool

	// Policy holds the validation limits; zero value gets defaults.
	Policy mailrelay.Policy

	// Sender is the identity outbound mail is sent as.
	Sender mailrelay.SenderIdentity

	// SendTimeout overrides DefaultSendTimeout when positive.
	SendTimeout time.Duration

	// External collaborators
	Mailer      mailrelay.Mailer
	RateLimiter mailrelay.RateLimiter
}

// NewServer creates a new HTTP server with the given configuration.
func NewServer(cfg Config) *Server {
	s := &Server{
		Addr:        cfg.Addr,
		logger:      cfg.Logger,
		apiKey:      cfg.APIKey,
		hmacSecret:  cfg.HMACSecret,
		production:  cfg.Production,
		policy:      cfg.Policy,
		sender:      cfg.Sender,
		sendTimeout: cfg.SendTimeout,
		mailer:      cfg.Mailer,
		rateLimiter: cfg.RateLimiter,
		startTime:   time.Now(),
	}

	if s.policy.MaxSubjectLength == 0 {
		s.policy = mailrelay.DefaultPolicy()
	}
	if s.sendTimeout <= 0 {
		s.sendTimeout = DefaultSendTimeout
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true

	// Register middleware and routes
	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// Echo returns the underlying Echo instance.
// Use sparingly - prefer registering routes through Server methods.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Open starts the HTTP server.
func (s *Server) Open() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		if err := s.echo.Server.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("server started", slog.String("addr", s.Addr))
	return nil
}

// Close gracefully shuts down the HTTP server.
func (s *Server) Close(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// URL returns the URL of the server.
func (s *Server) URL() string {
	if s.ln == nil {
		return ""
	}
	return fmt.Sprintf("http://%s", s.ln.Addr().String())
}

// configured reports whether the required serving secrets are present:
// the API key and, when the active transport can tell, its credentials.
func (s *Server) configured() bool {
	if s.apiKey == "" || s.mailer == nil {
		return false
	}
	if m, ok := s.mailer.(interface{ Configured() bool }); ok {
		return m.Configured()
	}
	return true
}
