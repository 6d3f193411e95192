package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/predictify/engine/internal/domain"
)

type captureSender struct {
	mu     sync.Mutex
	titles []string
}

func (c *captureSender) Send(ctx context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.titles...)
}

type chanSource struct {
	ch chan domain.Event
}

func (s *chanSource) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	return s.ch, nil
}

func TestWatcherForwardsOperatorEvents(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sender := &captureSender{}
	notifier := NewNotifier([]Sender{sender}, nil, logger)
	source := &chanSource{ch: make(chan domain.Event, 8)}

	w := NewWatcher(notifier, source, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	source.ch <- domain.Event{Type: domain.EventMarketDisputed, MarketID: "m1", Actor: "GALICE"}
	source.ch <- domain.Event{Type: domain.EventVoteCast, MarketID: "m1"} // not operator-relevant
	source.ch <- domain.Event{Type: domain.EventFeesCollected, MarketID: "m1", Data: map[string]any{"amount": int64(1)}}

	assert.Eventually(t, func() bool {
		return len(sender.seen()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, []string{"Dispute opened", "Fees collected"}, sender.seen())
}

func TestNotifierEventFilter(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sender := &captureSender{}
	notifier := NewNotifier([]Sender{sender}, []string{"market_disputed"}, logger)

	ctx := context.Background()
	assert.NoError(t, notifier.Notify(ctx, "market_resolved", "Market resolved", "x"))
	assert.NoError(t, notifier.Notify(ctx, "market_disputed", "Dispute opened", "x"))

	assert.Equal(t, []string{"Dispute opened"}, sender.seen())
}
