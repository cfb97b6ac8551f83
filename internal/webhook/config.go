package webhook

// Config controls the inbound webhook endpoint.
type Config struct {
	// Secret is the provider webhook key. Verification is skipped when empty.
	Secret string `env:"WEBHOOK_SECRET"`
	// URL is the exact public URL registered with the provider. It is part of
	// the signed data. When empty, the URL is rebuilt from the request.
	URL          string `env:"WEBHOOK_URL"`
	EventsField  string `env:"WEBHOOK_EVENTS_FIELD" envDefault:"mandrill_events"`
	MaxBodyBytes int64  `env:"WEBHOOK_MAX_BODY_BYTES" envDefault:"5242880"`
}
