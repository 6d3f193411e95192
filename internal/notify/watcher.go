package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/predictify/engine/internal/domain"
)

// EventSource is the subscription side of the engine event bus.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan domain.Event, error)
}

// Watcher consumes engine events and turns the operator-relevant ones into
// notifications.
type Watcher struct {
	notifier *Notifier
	source   EventSource
	logger   *slog.Logger
}

// NewWatcher creates a Watcher reading from the given event source.
func NewWatcher(notifier *Notifier, source EventSource, logger *slog.Logger) *Watcher {
	return &Watcher{
		notifier: notifier,
		source:   source,
		logger:   logger,
	}
}

// Run consumes events until the context is cancelled. Delivery failures
// are logged and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	events, err := w.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			title, message := render(ev)
			if title == "" {
				continue
			}
			if err := w.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
				w.logger.WarnContext(ctx, "notify: delivery failed",
					slog.String("event_type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// render maps an event to a notification title and body. Events without a
// rendering are not operator-relevant and return an empty title.
func render(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventMarketCreated:
		return "Market created",
			fmt.Sprintf("Market %s was created by %s.", ev.MarketID, ev.Actor)
	case domain.EventMarketResolved:
		return "Market resolved",
			fmt.Sprintf("Market %s resolved to %v (method %v).", ev.MarketID, ev.Data["outcome"], ev.Data["method"])
	case domain.EventMarketDisputed:
		return "Dispute opened",
			fmt.Sprintf("Market %s was disputed by %s with stake %v.", ev.MarketID, ev.Actor, ev.Data["stake"])
	case domain.EventDisputeResolved:
		return "Dispute resolved",
			fmt.Sprintf("Dispute on market %s closed: %v.", ev.MarketID, ev.Data["status"])
	case domain.EventFeesCollected:
		return "Fees collected",
			fmt.Sprintf("Platform fee of %v collected from market %s.", ev.Data["amount"], ev.MarketID)
	case domain.EventMarketCancelled:
		return "Market cancelled",
			fmt.Sprintf("Market %s was cancelled by %s.", ev.MarketID, ev.Actor)
	default:
		return "", ""
	}
}
