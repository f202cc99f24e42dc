package xmpp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/a-bouts/anchor-watch/anchor"
)

// Alerter relays anchor watch notifications to the crew as chat messages.
type Alerter struct {
	Xmpp Xmpp
	// Silenced notifications are not relayed unless Verbose is set.
	Verbose bool

	send func(message string) error
}

func (a Alerter) Notify(ctx context.Context, n anchor.Notification) error {
	if n.Kind == anchor.NotifySilence && !a.Verbose {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	send := a.send
	if send == nil {
		send = a.Xmpp.Send
	}
	return send(Format(n))
}

// Format renders a notification as a short chat line.
func Format(n anchor.Notification) string {
	var b strings.Builder
	at := n.At.Format("15:04")

	switch n.Kind {
	case anchor.NotifyAlarm:
		fmt.Fprintf(&b, "⚓ %s %s: %s", at, strings.ToUpper(n.Level.String()), n.Message)
		if n.Distance != nil {
			fmt.Fprintf(&b, " (%.0fm)", *n.Distance)
		}
	case anchor.NotifyCheckInDue:
		fmt.Fprintf(&b, "⚓ %s check-in required", at)
		if n.Deadline != nil {
			fmt.Fprintf(&b, " within %s", n.Deadline.Sub(n.At).Round(time.Second))
		}
	case anchor.NotifySilence:
		fmt.Fprintf(&b, "⚓ %s alarm acknowledged", at)
	case anchor.NotifyClear:
		fmt.Fprintf(&b, "⚓ %s anchor alarm cleared", at)
	default:
		fmt.Fprintf(&b, "⚓ %s %s", at, n.Kind)
	}
	return b.String()
}
