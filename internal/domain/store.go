package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// BetListOpts filters and paginates per-user bet listings.
type BetListOpts struct {
	Status BetStatus // empty means all statuses
	Limit  int
	Offset int
}

// Store bundles the per-entity stores and transactional execution. InTx runs
// fn against a store view bound to a single database transaction; any error
// from fn rolls the whole transaction back. The GetForUpdate variants take a
// row-level write lock and are only meaningful inside InTx.
type Store interface {
	Markets() MarketStore
	Rounds() RoundStore
	Bets() BetStore
	Users() UserStore
	InTx(ctx context.Context, fn func(Store) error) error
}

// MarketStore persists market configuration. Writes come from the external
// admin surface and from seeding; the engine only reads.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetBySymbol(ctx context.Context, symbol string) (Market, error)
	ListActive(ctx context.Context) ([]Market, error)
}

// RoundStore persists rounds and the scheduler's eligibility queries.
type RoundStore interface {
	Create(ctx context.Context, r Round) error
	Update(ctx context.Context, r Round) error
	GetByID(ctx context.Context, id string) (Round, error)
	GetForUpdate(ctx context.Context, id string) (Round, error)
	// CurrentRound returns the round occupying the market's current-round
	// slot (status pending, open, or locked), or ErrNotFound.
	CurrentRound(ctx context.Context, marketID string) (Round, error)
	// LastNumber returns the highest round number for the market, 0 if none.
	LastNumber(ctx context.Context, marketID string) (int64, error)
	// ListToLock returns open rounds whose betting deadline has passed.
	ListToLock(ctx context.Context, now time.Time) ([]Round, error)
	// ListToSettle returns locked rounds whose settlement time has passed.
	ListToSettle(ctx context.Context, now time.Time) ([]Round, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Round, error)
	// ListSettledBefore returns settled rounds with settledAt before cutoff,
	// oldest first. Used by the cold-storage archiver.
	ListSettledBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]Round, error)
}

// BetStore persists bets.
type BetStore interface {
	Create(ctx context.Context, b Bet) error
	Update(ctx context.Context, b Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	GetByUserAndRound(ctx context.Context, userID, roundID string) (Bet, error)
	ListPendingByRound(ctx context.Context, roundID string) ([]Bet, error)
	ListByRound(ctx context.Context, roundID string) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts BetListOpts) ([]Bet, error)
}

// UserStore persists users and their balances.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetForUpdate(ctx context.Context, id string) (User, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
	UpdateStatus(ctx context.Context, id string, status UserStatus) error
}
