package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus is the lifecycle state of a round. Transitions are strictly
// pending -> open -> locked -> settled; cancelled is reserved for operator
// intervention and is never produced by the engine itself. A round whose
// lock and end prices are equal settles with OutcomeNone, it does not become
// cancelled.
type RoundStatus string

const (
	RoundStatusPending   RoundStatus = "pending"
	RoundStatusOpen      RoundStatus = "open"
	RoundStatusLocked    RoundStatus = "locked"
	RoundStatusSettled   RoundStatus = "settled"
	RoundStatusCancelled RoundStatus = "cancelled"
)

// RoundOutcome is the settled direction of a round. OutcomeNone means the
// price did not move between lock and settlement; all bets are refunded.
type RoundOutcome string

const (
	OutcomeNone RoundOutcome = "none"
	OutcomeUp   RoundOutcome = "up"
	OutcomeDown RoundOutcome = "down"
)

// Round is a single betting window of a market. Per market, round numbers
// increase monotonically from 1 and at most one round may be in a
// non-terminal status (the "current round") at any time.
type Round struct {
	ID            string
	MarketID      string
	Number        int64
	Status        RoundStatus
	StartPrice    decimal.NullDecimal
	LockPrice     decimal.NullDecimal
	EndPrice      decimal.NullDecimal
	TotalUpPool   decimal.Decimal
	TotalDownPool decimal.Decimal
	UpCount       int
	DownCount     int
	Outcome       RoundOutcome
	StartsAt      time.Time
	BettingEndsAt time.Time
	SettlesAt     time.Time
	SettledAt     *time.Time
	CreatedAt     time.Time
}

// Current reports whether the round occupies its market's current-round slot.
func (r Round) Current() bool {
	switch r.Status {
	case RoundStatusPending, RoundStatusOpen, RoundStatusLocked:
		return true
	default:
		return false
	}
}

// TotalPool returns the combined up and down pool.
func (r Round) TotalPool() decimal.Decimal {
	return r.TotalUpPool.Add(r.TotalDownPool)
}
