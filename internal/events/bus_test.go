package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/updownhq/updown/internal/domain"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBus_DispatchesByType(t *testing.T) {
	bus := newTestBus()

	var locked []domain.Event
	var settled []domain.Event
	bus.Subscribe(domain.EventRoundLocked, func(_ context.Context, e domain.Event) error {
		locked = append(locked, e)
		return nil
	})
	bus.Subscribe(domain.EventRoundSettled, func(_ context.Context, e domain.Event) error {
		settled = append(settled, e)
		return nil
	})

	bus.Publish(context.Background(), domain.RoundLockedEvent{RoundID: "r1", MarketSymbol: "BTC"})
	bus.Publish(context.Background(), domain.RoundLockedEvent{RoundID: "r2", MarketSymbol: "BTC"})

	assert.Len(t, locked, 2)
	assert.Empty(t, settled)
	assert.Equal(t, "r1", locked[0].(domain.RoundLockedEvent).RoundID)
}

func TestBus_SubscribeAllSeesEveryEvent(t *testing.T) {
	bus := newTestBus()

	var seen []domain.EventType
	bus.SubscribeAll(func(_ context.Context, e domain.Event) error {
		seen = append(seen, e.EventType())
		return nil
	})

	bus.Publish(context.Background(), domain.MarketCreatedEvent{MarketID: "m1", Symbol: "BTC"})
	bus.Publish(context.Background(), domain.RoundSettledEvent{RoundID: "r1"})

	assert.Equal(t, []domain.EventType{domain.EventMarketCreated, domain.EventRoundSettled}, seen)
}

func TestBus_HandlerErrorDoesNotBlockOthers(t *testing.T) {
	bus := newTestBus()

	bus.Subscribe(domain.EventRoundLocked, func(context.Context, domain.Event) error {
		return errors.New("consumer down")
	})
	called := false
	bus.Subscribe(domain.EventRoundLocked, func(context.Context, domain.Event) error {
		called = true
		return nil
	})

	// Must not panic and must still reach the second handler.
	bus.Publish(context.Background(), domain.RoundLockedEvent{RoundID: "r1"})
	assert.True(t, called)
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := newTestBus()
	// Publishing with no subscribers is a no-op.
	bus.Publish(context.Background(), domain.BetPlacedEvent{})
}
