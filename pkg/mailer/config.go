package mailer

// Provider names accepted by Config.Provider.
const (
	ProviderResend = "resend"
	ProviderSES    = "ses"
	ProviderSMTP   = "smtp"
)

// Config holds mailer configuration.
// Embed this in the app config for env parsing with caarlos0/env.
type Config struct {
	Provider        string `env:"MAILER_PROVIDER" envDefault:"resend"`
	FallbackSubject string `env:"MAILER_FALLBACK_SUBJECT" envDefault:"Notification"`
	DefaultLayout   string `env:"MAILER_DEFAULT_LAYOUT" envDefault:"base.html"`
}
