package domain

import (
	"context"
	"time"
)

// EventType names an engine lifecycle event.
type EventType string

const (
	EventMarketCreated EventType = "market.created"
	EventRoundCreated  EventType = "round.created"
	EventRoundLocked   EventType = "round.locked"
	EventRoundSettled  EventType = "round.settled"
	EventBetPlaced     EventType = "bet.placed"
)

// Event is a flat, serializable lifecycle notification. Consumers (realtime
// broadcast, dashboards, operator alerts) subscribe through an EventBus.
type Event interface {
	EventType() EventType
}

// EventBus publishes engine events to in-process subscribers. Publication is
// best-effort: a failing subscriber must never roll back the state change
// that produced the event.
type EventBus interface {
	Publish(ctx context.Context, e Event)
}

// MarketCreatedEvent announces a newly created (or re-activated) market. The
// scheduler reacts to it by seeding the market's first round.
type MarketCreatedEvent struct {
	MarketID string `json:"marketId"`
	Symbol   string `json:"symbol"`
}

func (MarketCreatedEvent) EventType() EventType { return EventMarketCreated }

// RoundCreatedEvent announces a new open round with its three deadlines.
type RoundCreatedEvent struct {
	RoundID       string    `json:"roundId"`
	MarketSymbol  string    `json:"marketSymbol"`
	RoundNumber   int64     `json:"roundNumber"`
	StartsAt      time.Time `json:"startsAt"`
	BettingEndsAt time.Time `json:"bettingEndsAt"`
	SettlesAt     time.Time `json:"settlesAt"`
}

func (RoundCreatedEvent) EventType() EventType { return EventRoundCreated }

// RoundLockedEvent announces that a round stopped accepting bets.
type RoundLockedEvent struct {
	RoundID      string `json:"roundId"`
	MarketSymbol string `json:"marketSymbol"`
	LockPrice    string `json:"lockPrice"`
}

func (RoundLockedEvent) EventType() EventType { return EventRoundLocked }

// RoundSettledEvent announces a settled round and its outcome.
type RoundSettledEvent struct {
	RoundID      string       `json:"roundId"`
	MarketSymbol string       `json:"marketSymbol"`
	Outcome      RoundOutcome `json:"outcome"`
	EndPrice     string       `json:"endPrice"`
	LockPrice    string       `json:"lockPrice"`
}

func (RoundSettledEvent) EventType() EventType { return EventRoundSettled }

// PoolSnapshot is the round's pool state immediately after a bet commit.
type PoolSnapshot struct {
	RoundID       string `json:"roundId"`
	TotalUpPool   string `json:"totalUpPool"`
	TotalDownPool string `json:"totalDownPool"`
	UpCount       int    `json:"upCount"`
	DownCount     int    `json:"downCount"`
}

// BetPlacedEvent announces an accepted bet together with the updated pools.
type BetPlacedEvent struct {
	Bet   Bet          `json:"bet"`
	Round PoolSnapshot `json:"round"`
}

func (BetPlacedEvent) EventType() EventType { return EventBetPlaced }
