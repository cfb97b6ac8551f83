package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/courier/pkg/ratelimit"
)

// Rate limit scopes reported on denial.
const (
	ScopeGlobal         = "global"
	ScopeRecipient      = "recipient"
	ScopeEvent          = "event"
	ScopeRecipientEvent = "recipient_event"
)

// RateLimits are the four quotas every send must pass.
type RateLimits struct {
	Global               int           `env:"RATE_LIMIT_GLOBAL" envDefault:"600"`
	GlobalWindow         time.Duration `env:"RATE_LIMIT_GLOBAL_WINDOW" envDefault:"1m"`
	Recipient            int           `env:"RATE_LIMIT_RECIPIENT" envDefault:"10"`
	RecipientWindow      time.Duration `env:"RATE_LIMIT_RECIPIENT_WINDOW" envDefault:"1m"`
	Event                int           `env:"RATE_LIMIT_EVENT" envDefault:"300"`
	EventWindow          time.Duration `env:"RATE_LIMIT_EVENT_WINDOW" envDefault:"1m"`
	RecipientEvent       int           `env:"RATE_LIMIT_RECIPIENT_EVENT" envDefault:"20"`
	RecipientEventWindow time.Duration `env:"RATE_LIMIT_RECIPIENT_EVENT_WINDOW" envDefault:"1h"`
}

// Validate requires every ceiling and window to be positive.
func (l RateLimits) Validate() error {
	for _, r := range l.Rules("validate@example.com", "validate") {
		if r.Limit <= 0 || r.Window <= 0 {
			return fmt.Errorf("%w: %s rate limit and window must be positive", ErrInvalidConfig, r.Name)
		}
	}
	return nil
}

// Rules builds the rules for one send. The order is the order denials are
// reported in.
func (l RateLimits) Rules(recipient, event string) []ratelimit.Rule {
	recipient = strings.ToLower(strings.TrimSpace(recipient))
	return []ratelimit.Rule{
		{Name: ScopeGlobal, Key: "global", Limit: l.Global, Window: l.GlobalWindow},
		{Name: ScopeRecipient, Key: "recipient:" + recipient, Limit: l.Recipient, Window: l.RecipientWindow},
		{Name: ScopeEvent, Key: "event:" + event, Limit: l.Event, Window: l.EventWindow},
		{Name: ScopeRecipientEvent, Key: "recipient_event:" + recipient + ":" + event, Limit: l.RecipientEvent, Window: l.RecipientEventWindow},
	}
}
