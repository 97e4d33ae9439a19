package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trailintercasteller/mailrelay"
	relayhttp "github.com/trailintercasteller/mailrelay/http"
	"github.com/trailintercasteller/mailrelay/internal/middleware"
)

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Stdout, os.Stderr, os.Args, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point for the application, designed for testability.
// It accepts all external dependencies (IO, args, env) as parameters.
func run(
	ctx context.Context,
	stdout, stderr io.Writer,
	args []string,
	getenv func(string) string,
) error {
	// Load .env when present; real environments set variables directly.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := LoadConfig(getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Configure logger
	logger := newLogger(stderr, cfg)
	slog.SetDefault(logger)
	logger.Debug("logger initialized", slog.String("level", cfg.LogLevel))
	logger.Debug("application configuration",
		slog.String("environment", cfg.Environment),
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("mail_provider", cfg.MailProvider))

	if cfg.APIKey == "" {
		logger.Warn("API_KEY not set; relay requests will be rejected with a configuration error")
	}

	// Register metrics collectors
	middleware.InitMetrics()

	// Initialize services
	services, err := initServices(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer services.RateLimiter.Shutdown()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := relayhttp.NewServer(relayhttp.Config{
		Addr:       addr,
		Logger:     logger,
		APIKey:     cfg.APIKey,
		HMACSecret: cfg.HMACSecret,
		Production: cfg.Production(),
		Policy: mailrelay.Policy{
			MaxSubjectLength:   cfg.MaxSubjectLength,
			MaxAttachmentBytes: cfg.MaxAttachmentBytes,
			MaxTotalBytes:      cfg.MaxTotalBytes,
			AllowedExtensions:  mailrelay.DefaultPolicy().AllowedExtensions,
		},
		Sender: mailrelay.SenderIdentity{
			Name:    cfg.SenderName,
			Address: cfg.SenderAddress,
		},
		SendTimeout: cfg.SendTimeout,
		Mailer:      services.Mailer,
		RateLimiter: services.RateLimiter,
	})

	// Create channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Start server
	if err := server.Open(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Wait for shutdown signal
	sig := <-shutdown
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Close(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

// newLogger creates a configured slog.Logger based on environment.
func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Production() {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("time", a.Value.Time().Format(time.RFC3339Nano))
				}
				return a
			},
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}
