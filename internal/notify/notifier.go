// Package notify delivers round lifecycle alerts to operator channels
// (Telegram, Discord). The Notifier subscribes to the engine's event bus and
// formats each event into a short human-readable message; event types can be
// filtered so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/events"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier formats engine events and dispatches them to all senders. It
// maintains a set of allowed event types; events outside the set are dropped.
// An empty set allows everything.
type Notifier struct {
	senders []Sender
	allowed map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// whose type appears in eventTypes are forwarded; an empty list forwards all.
func NewNotifier(senders []Sender, eventTypes []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(eventTypes))
	for _, e := range eventTypes {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// SubscribeTo registers the notifier on the event bus.
func (n *Notifier) SubscribeTo(bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, e domain.Event) error {
		return n.handle(ctx, e)
	})
}

func (n *Notifier) handle(ctx context.Context, e domain.Event) error {
	if len(n.allowed) > 0 && !n.allowed[e.EventType()] {
		return nil
	}

	title, message := format(e)
	if title == "" {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// format renders the operator-facing text for an event. Events without an
// operator-facing rendering return an empty title and are dropped.
func format(e domain.Event) (title, message string) {
	switch ev := e.(type) {
	case domain.RoundCreatedEvent:
		return fmt.Sprintf("Round opened: %s #%d", ev.MarketSymbol, ev.RoundNumber),
			fmt.Sprintf("Betting closes %s, settles %s.",
				ev.BettingEndsAt.Format("15:04:05 MST"),
				ev.SettlesAt.Format("15:04:05 MST"))
	case domain.RoundLockedEvent:
		return fmt.Sprintf("Round locked: %s", ev.MarketSymbol),
			fmt.Sprintf("Lock price %s.", ev.LockPrice)
	case domain.RoundSettledEvent:
		return fmt.Sprintf("Round settled: %s (%s)", ev.MarketSymbol, ev.Outcome),
			fmt.Sprintf("Lock %s, end %s.", ev.LockPrice, ev.EndPrice)
	case domain.MarketCreatedEvent:
		return fmt.Sprintf("Market created: %s", ev.Symbol), "First round opens shortly."
	default:
		return "", ""
	}
}

// dispatch sends to every sender. A single sender failure does not prevent
// delivery to the remaining senders; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
