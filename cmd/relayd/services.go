package main

import (
	"log/slog"

	"github.com/trailintercasteller/mailrelay"
	"github.com/trailintercasteller/mailrelay/internal/mail"
	"github.com/trailintercasteller/mailrelay/internal/middleware"
)

// Services holds the relay's external collaborators.
type Services struct {
	Mailer      mailrelay.Mailer
	RateLimiter *middleware.WindowLimiter
}

// initServices initializes the mail transport and the rate limiter.
func initServices(cfg *Config, logger *slog.Logger) (*Services, error) {
	mailer, err := mail.New(logger, mail.Config{
		Provider: cfg.MailProvider,
		Sender: mailrelay.SenderIdentity{
			Name:    cfg.SenderName,
			Address: cfg.SenderAddress,
		},

		SMTPHost:           cfg.SMTPHost,
		SMTPPort:           cfg.SMTPPort,
		SMTPUsername:       cfg.SMTPUsername,
		SMTPPassword:       cfg.SMTPPassword,
		SMTPMaxConnections: cfg.SMTPMaxConnections,
		SMTPMaxMessages:    cfg.SMTPMaxMessages,
		SMTPMinInterval:    cfg.SMTPMinInterval,

		PostmarkServerToken:  cfg.PostmarkServerToken,
		PostmarkAccountToken: cfg.PostmarkAccountToken,

		SESRegion:          cfg.SESRegion,
		SESAccessKeyID:     cfg.SESAccessKeyID,
		SESSecretAccessKey: cfg.SESSecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("mail transport initialized", slog.String("provider", mailer.Name()))

	limiterCfg := middleware.DefaultRateLimitConfig()
	limiterCfg.RequestsPerWindow = cfg.RateLimitRequests
	limiterCfg.Window = cfg.RateLimitWindow
	rateLimiter := middleware.NewWindowLimiter(logger, limiterCfg)
	logger.Info("rate limiter initialized",
		slog.Int("requests_per_window", limiterCfg.RequestsPerWindow),
		slog.Duration("window", limiterCfg.Window))

	return &Services{
		Mailer:      mailer,
		RateLimiter: rateLimiter,
	}, nil
}
