package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/predictify/engine/internal/domain"
)

const (
	// eventChannel carries live events over Pub/Sub for connected
	// consumers (websocket hub, notifiers).
	eventChannel = "engine:events"

	// eventStream is the durable, trimmed copy of the same events.
	eventStream = "engine:events:stream"

	// streamMaxLen is the approximate maximum stream length, enforced via
	// XADD MAXLEN ~.
	streamMaxLen int64 = 10000
)

// EventBus implements domain.EventBus on Redis: Pub/Sub for live fan-out
// plus a capped stream for consumers that need to catch up.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

var _ domain.EventBus = (*EventBus)(nil)

// Publish writes the event to both the live channel and the stream.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Type, err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.Publish(ctx, eventChannel, payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe returns a channel of decoded events from the live channel. The
// subscription closes when the context is cancelled.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe events: %w", err)
	}

	out := make(chan domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Replay reads up to count events from the stream starting after lastID.
// Use "0" to read from the beginning. It returns an empty slice when no
// events are available.
func (b *EventBus) Replay(ctx context.Context, lastID string, count int) ([]domain.Event, string, error) {
	results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{eventStream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, lastID, nil
		}
		return nil, lastID, fmt.Errorf("redis: replay events: %w", err)
	}

	var events []domain.Event
	nextID := lastID
	for _, s := range results {
		for _, msg := range s.Messages {
			raw, ok := msg.Values["payload"].(string)
			if !ok {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				continue
			}
			events = append(events, ev)
			nextID = msg.ID
		}
	}
	return events, nextID, nil
}
