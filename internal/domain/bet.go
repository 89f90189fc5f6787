package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetPosition is the direction a bet is staked on.
type BetPosition string

const (
	PositionUp   BetPosition = "up"
	PositionDown BetPosition = "down"
)

// Valid reports whether p is one of the two allowed positions.
func (p BetPosition) Valid() bool {
	return p == PositionUp || p == PositionDown
}

// BetStatus is the lifecycle state of a bet. A bet stays pending until its
// round settles, moves to won/lost/cancelled exactly once in the settlement
// transaction, and later to claimed when the user collects the payout.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusWon       BetStatus = "won"
	BetStatusLost      BetStatus = "lost"
	BetStatusCancelled BetStatus = "cancelled"
	BetStatusClaimed   BetStatus = "claimed"
)

// Bet is a single user stake on a round. At most one bet may exist per
// (user, round) pair; the bets table carries a matching unique constraint.
type Bet struct {
	ID               string
	UserID           string
	RoundID          string
	Position         BetPosition
	Amount           decimal.Decimal
	Status           BetStatus
	Payout           decimal.NullDecimal
	PayoutMultiplier decimal.NullDecimal
	ClaimedAt        *time.Time
	CreatedAt        time.Time
}

// Claimable reports whether the bet carries funds the user can still collect:
// a won bet pays the pool share, a cancelled bet refunds the stake.
func (b Bet) Claimable() bool {
	return b.Status == BetStatusWon || b.Status == BetStatusCancelled
}
