package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/updownhq/updown/internal/domain"
)

// defaultStreamMaxLen caps the stream when no limit is configured, enforced
// via XADD MAXLEN ~.
const defaultStreamMaxLen int64 = 10000

// EventStream republishes engine events onto a Redis stream so external
// consumers (websocket gateways, analytics) can tail the lifecycle feed
// without a connection into the process.
type EventStream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewEventStream creates an EventStream appending to the named stream,
// trimmed to approximately maxLen entries (0 or negative uses the default).
func NewEventStream(c *Client, stream string, maxLen int64) *EventStream {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &EventStream{rdb: c.rdb, stream: stream, maxLen: maxLen}
}

// Append serializes e as JSON and XADDs it to the stream with an approximate
// MAXLEN for automatic trimming. Suitable for use as a SubscribeAll handler
// on the event bus.
func (es *EventStream) Append(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", e.EventType(), err)
	}

	args := &redis.XAddArgs{
		Stream: es.stream,
		MaxLen: es.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(e.EventType()),
			"payload": payload,
		},
	}
	if err := es.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", es.stream, err)
	}
	return nil
}
