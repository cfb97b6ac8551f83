// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/courier/internal/dispatch"
	"github.com/dmitrymomot/courier/internal/escalation"
	"github.com/dmitrymomot/courier/internal/server"
	"github.com/dmitrymomot/courier/internal/webhook"
	"github.com/dmitrymomot/courier/pkg/db"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/resend"
	"github.com/dmitrymomot/courier/pkg/mailer/ses"
	"github.com/dmitrymomot/courier/pkg/mailer/smtp"
	"github.com/dmitrymomot/courier/pkg/redis"
	"github.com/dmitrymomot/courier/pkg/storage"
)

// ErrInvalid is returned for configuration the service cannot start with.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the complete service configuration.
type Config struct {
	HTTP       server.Config
	Log        logger.Config
	Sentry     logger.SentryConfig
	Database   db.Config
	Redis      redis.Config
	Mailer     mailer.Config
	Resend     resend.Config
	SES        ses.Config
	SMTP       smtp.Config
	Send       dispatch.Config
	RateLimits dispatch.RateLimits
	Webhook    webhook.Config
	Escalation escalation.Config
	Archive    storage.Config

	// CatalogPath overrides the embedded template catalog.
	CatalogPath string `env:"TEMPLATES_CATALOG_PATH"`
	// TemplatesDir overrides the embedded templates. It must contain the
	// "emails" and "layouts" directories.
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

// Load reads a .env file when present, parses the environment and validates
// the result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadPart parses only the struct v points to. Commands that need a single
// dependency use it to avoid requiring unrelated variables.
func LoadPart(v any) error {
	_ = godotenv.Load()
	if err := env.Parse(v); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	return nil
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mailer.Provider {
	case mailer.ProviderResend:
		if c.Resend.APIKey == "" || c.Resend.SenderEmail == "" {
			errs = append(errs, fmt.Errorf("%w: resend requires RESEND_API_KEY and RESEND_FROM_EMAIL", ErrInvalid))
		}
	case mailer.ProviderSES:
		if c.SES.Region == "" || c.SES.SenderEmail == "" {
			errs = append(errs, fmt.Errorf("%w: ses requires SES_REGION and SES_FROM_EMAIL", ErrInvalid))
		}
	case mailer.ProviderSMTP:
		if c.SMTP.Host == "" || c.SMTP.SenderEmail == "" {
			errs = append(errs, fmt.Errorf("%w: smtp requires SMTP_HOST and SMTP_FROM_EMAIL", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown mailer provider %q", ErrInvalid, c.Mailer.Provider))
	}

	if err := c.Send.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Escalation.CriticalEvents) > 0 && len(c.Escalation.Operators) == 0 {
		errs = append(errs, fmt.Errorf("%w: ESCALATION_CRITICAL_EVENTS requires ESCALATION_OPERATORS", ErrInvalid))
	}
	if len(c.Escalation.Operators) > 0 && c.Escalation.AlertSMTP.Host == "" {
		errs = append(errs, fmt.Errorf("%w: ESCALATION_OPERATORS requires ALERT_SMTP_HOST", ErrInvalid))
	}
	if c.Webhook.EventsField == "" {
		errs = append(errs, fmt.Errorf("%w: WEBHOOK_EVENTS_FIELD is empty", ErrInvalid))
	}

	return errors.Join(errs...)
}
