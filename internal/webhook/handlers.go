package webhook

import (
	"time"

	"github.com/dmitrymomot/courier/internal/email"
)

type handlerFunc func(e Event, at time.Time) email.Update

func handlers() map[Kind]handlerFunc {
	return map[Kind]handlerFunc{
		KindSend:       onSend,
		KindDelivered:  onDelivered,
		KindDeferral:   onDeferral,
		KindHardBounce: onHardBounce,
		KindSoftBounce: onSoftBounce,
		KindOpen:       onOpen,
		KindClick:      onClick,
		KindSpam:       onSpam,
		KindUnsub:      onUnsub,
		KindReject:     onReject,
	}
}

func onSend(_ Event, at time.Time) email.Update {
	return email.Update{Status: email.StatusSent, SentAt: &at}
}

func onDelivered(_ Event, at time.Time) email.Update {
	return email.Update{
		Status: email.StatusDelivered,
		Merge:  map[string]any{email.MetaDeliveredAt: stamp(at)},
	}
}

// Deferral means the provider is still trying; only the attempt is recorded.
func onDeferral(e Event, at time.Time) email.Update {
	return email.Update{
		Append: map[string]any{email.MetaDeferral: map[string]any{
			"at":         stamp(at),
			"diagnostic": e.Msg.Diag,
		}},
	}
}

func onHardBounce(e Event, at time.Time) email.Update {
	return email.Update{
		Status: email.StatusBounced,
		Error:  bounceError(e),
		Merge:  bounceMeta(e, "hard"),
	}
}

// Soft bounces are advisory: the provider may still deliver the message.
func onSoftBounce(e Event, _ time.Time) email.Update {
	return email.Update{Merge: bounceMeta(e, "soft")}
}

func onOpen(e Event, at time.Time) email.Update {
	return email.Update{
		Status:    email.StatusOpened,
		OpenedAt:  &at,
		OpenCount: 1,
		Append:    map[string]any{email.MetaOpens: detail(e, at)},
	}
}

// A click implies an open, even when the open pixel was blocked.
func onClick(e Event, at time.Time) email.Update {
	click := detail(e, at)
	click["url"] = e.URL
	return email.Update{
		Status:       email.StatusClicked,
		ClickedAt:    &at,
		OpenedAt:     &at,
		ClickCount:   1,
		MinOpenCount: 1,
		Append:       map[string]any{email.MetaClicks: click},
	}
}

func onSpam(_ Event, at time.Time) email.Update {
	return email.Update{
		Status: email.StatusSpam,
		Merge:  map[string]any{email.MetaSpamAt: stamp(at)},
	}
}

// onUnsub only stamps metadata. The status keeps describing delivery of this
// message; suppressing future sends to the recipient is left to the caller.
func onUnsub(_ Event, at time.Time) email.Update {
	return email.Update{Merge: map[string]any{email.MetaUnsubscribedAt: stamp(at)}}
}

func onReject(e Event, _ time.Time) email.Update {
	reason := e.RejectReason()
	if reason == "" {
		reason = e.Msg.State
	}
	return email.Update{
		Status: email.StatusRejected,
		Error:  "rejected: " + reason,
		Merge:  map[string]any{email.MetaRejectReason: reason},
	}
}

func bounceMeta(e Event, kind string) map[string]any {
	return map[string]any{
		email.MetaBounceType:   kind,
		email.MetaBounceReason: e.Msg.BounceDescription,
		email.MetaDiagnostic:   e.Msg.Diag,
	}
}

func bounceError(e Event) string {
	msg := "hard bounce"
	if e.Msg.BounceDescription != "" {
		msg += ": " + e.Msg.BounceDescription
	}
	if e.Msg.Diag != "" {
		msg += " (" + e.Msg.Diag + ")"
	}
	return msg
}

func detail(e Event, at time.Time) map[string]any {
	d := map[string]any{"at": stamp(at)}
	if e.IP != "" {
		d["ip"] = e.IP
	}
	if e.UserAgent != "" {
		d["user_agent"] = e.UserAgent
	}
	if e.Location != nil {
		d["location"] = e.Location
	}
	return d
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
