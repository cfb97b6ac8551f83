package smtp

// Config holds SMTP relay configuration.
type Config struct {
	Host               string `env:"SMTP_HOST"`
	Port               int    `env:"SMTP_PORT" envDefault:"587"`
	User               string `env:"SMTP_USER"`
	Password           string `env:"SMTP_PASSWORD"`
	SenderEmail        string `env:"SMTP_FROM_EMAIL"`
	SenderName         string `env:"SMTP_FROM_NAME"`
	InsecureSkipVerify bool   `env:"SMTP_INSECURE_SKIP_VERIFY" envDefault:"false"`
}
