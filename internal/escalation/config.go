package escalation

import (
	"slices"
	"time"

	"github.com/dmitrymomot/courier/pkg/mailer/smtp"
)

// Config holds failure escalation settings.
type Config struct {
	// CriticalEvents are event names whose failures notify operators directly.
	CriticalEvents []string `env:"ESCALATION_CRITICAL_EVENTS" envSeparator:","`
	// Operators receive critical-failure and threshold notifications.
	Operators []string `env:"ESCALATION_OPERATORS" envSeparator:","`
	// HourlyThreshold raises an alert once per hour when the number of failures
	// in the current hour reaches it. Zero disables the alert.
	HourlyThreshold int           `env:"ESCALATION_HOURLY_THRESHOLD" envDefault:"50"`
	NotifyTimeout   time.Duration `env:"ESCALATION_NOTIFY_TIMEOUT" envDefault:"10s"`

	Kafka KafkaConfig
	// AlertSMTP is the operator side channel, read from ALERT_SMTP_* variables.
	AlertSMTP smtp.Config `envPrefix:"ALERT_"`
}

// IsCritical reports whether failures of event notify operators.
func (c Config) IsCritical(event string) bool {
	return slices.Contains(c.CriticalEvents, event)
}

// KafkaConfig configures the domain event publisher. Without brokers, events
// are only logged.
type KafkaConfig struct {
	Brokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string        `env:"KAFKA_TOPIC" envDefault:"courier.email.failed"`
	SASLMechanism string        `env:"KAFKA_SASL_MECHANISM"`
	SASLUsername  string        `env:"KAFKA_SASL_USERNAME"`
	SASLPassword  string        `env:"KAFKA_SASL_PASSWORD"`
	TLS           bool          `env:"KAFKA_TLS" envDefault:"false"`
	WriteTimeout  time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether brokers are configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}
