// Package service implements the engine's business operations: round
// lifecycle, bet placement and claims, settlement, and the scheduler that
// drives them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// PriceSource resolves the current price for a market symbol. Satisfied by
// *price.Oracle.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Timing holds the round deadline parameters shared by the round service and
// the scheduler.
type Timing struct {
	// RoundDuration is the full length of an interval-market round.
	RoundDuration time.Duration
	// LockWindow is the tail of an interval round during which betting is
	// closed; betting ends RoundDuration-LockWindow after the round starts.
	LockWindow time.Duration
	// DailyBettingCloseHour is the wall-clock hour betting closes for daily
	// markets.
	DailyBettingCloseHour int
	// DailySettleHour is the next-day wall-clock hour daily markets settle.
	DailySettleHour int
	// Location anchors daily-market deadlines to a timezone.
	Location *time.Location
}

// RoundService manages round creation and locking.
type RoundService struct {
	store  domain.Store
	prices PriceSource
	bus    domain.EventBus
	clock  domain.Clock
	timing Timing
	logger *slog.Logger
}

// NewRoundService creates a RoundService.
func NewRoundService(store domain.Store, prices PriceSource, bus domain.EventBus, clock domain.Clock, timing Timing, logger *slog.Logger) *RoundService {
	return &RoundService{
		store:  store,
		prices: prices,
		bus:    bus,
		clock:  clock,
		timing: timing,
		logger: logger.With(slog.String("component", "round_service")),
	}
}

// EnsureCurrentRound returns the market's current round, creating the next
// one when no round occupies the slot.
func (s *RoundService) EnsureCurrentRound(ctx context.Context, market domain.Market) (domain.Round, error) {
	round, err := s.store.Rounds().CurrentRound(ctx, market.ID)
	if err == nil {
		return round, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, fmt.Errorf("round_service: current round %s: %w", market.Symbol, err)
	}
	return s.CreateNext(ctx, market)
}

// CreateNext opens the market's next round at the current price. The unique
// (market, number) constraint makes concurrent creation attempts collapse to
// one winner; losers receive domain.ErrAlreadyExists.
func (s *RoundService) CreateNext(ctx context.Context, market domain.Market) (domain.Round, error) {
	startPrice, err := s.prices.GetCurrentPrice(ctx, market.Symbol)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: start price %s: %w", market.Symbol, err)
	}

	now := s.clock.Now()
	bettingEndsAt, settlesAt := s.deadlines(market, now)

	last, err := s.store.Rounds().LastNumber(ctx, market.ID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: last number %s: %w", market.Symbol, err)
	}

	round := domain.Round{
		ID:            uuid.NewString(),
		MarketID:      market.ID,
		Number:        last + 1,
		Status:        domain.RoundStatusOpen,
		StartPrice:    decimal.NewNullDecimal(startPrice),
		TotalUpPool:   decimal.Zero,
		TotalDownPool: decimal.Zero,
		Outcome:       domain.OutcomeNone,
		StartsAt:      now,
		BettingEndsAt: bettingEndsAt,
		SettlesAt:     settlesAt,
	}

	if err := s.store.Rounds().Create(ctx, round); err != nil {
		return domain.Round{}, fmt.Errorf("round_service: create round %s #%d: %w", market.Symbol, round.Number, err)
	}

	s.logger.InfoContext(ctx, "round opened",
		slog.String("market", market.Symbol),
		slog.Int64("round", round.Number),
		slog.String("start_price", startPrice.String()),
		slog.Time("betting_ends_at", bettingEndsAt),
		slog.Time("settles_at", settlesAt),
	)

	s.bus.Publish(ctx, domain.RoundCreatedEvent{
		RoundID:       round.ID,
		MarketSymbol:  market.Symbol,
		RoundNumber:   round.Number,
		StartsAt:      round.StartsAt,
		BettingEndsAt: round.BettingEndsAt,
		SettlesAt:     round.SettlesAt,
	})

	return round, nil
}

// Lock transitions an open round to locked at the current price. Locking an
// already locked or settled round returns domain.ErrRoundNotOpen. The lock
// price is fetched at call time, so a delayed sweep locks at the price then,
// not at the betting deadline.
func (s *RoundService) Lock(ctx context.Context, roundID string) (domain.Round, error) {
	peek, err := s.store.Rounds().GetByID(ctx, roundID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: get round %s: %w", roundID, err)
	}
	market, err := s.store.Markets().GetByID(ctx, peek.MarketID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: get market %s: %w", peek.MarketID, err)
	}

	// Fetch the price outside the transaction so a slow upstream does not
	// extend the row lock.
	lockPrice, err := s.prices.GetCurrentPrice(ctx, market.Symbol)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: lock price %s: %w", market.Symbol, err)
	}

	var locked domain.Round
	err = s.store.InTx(ctx, func(tx domain.Store) error {
		round, err := tx.Rounds().GetForUpdate(ctx, roundID)
		if err != nil {
			return fmt.Errorf("get round: %w", err)
		}
		if round.Status != domain.RoundStatusOpen {
			return fmt.Errorf("round %s is %s: %w", roundID, round.Status, domain.ErrRoundNotOpen)
		}

		round.Status = domain.RoundStatusLocked
		round.LockPrice = decimal.NewNullDecimal(lockPrice)
		if err := tx.Rounds().Update(ctx, round); err != nil {
			return fmt.Errorf("update round: %w", err)
		}
		locked = round
		return nil
	})
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: lock round %s: %w", roundID, err)
	}

	s.logger.InfoContext(ctx, "round locked",
		slog.String("market", market.Symbol),
		slog.Int64("round", locked.Number),
		slog.String("lock_price", lockPrice.String()),
	)

	s.bus.Publish(ctx, domain.RoundLockedEvent{
		RoundID:      locked.ID,
		MarketSymbol: market.Symbol,
		LockPrice:    lockPrice.String(),
	})

	return locked, nil
}

// GetRound returns a round by ID.
func (s *RoundService) GetRound(ctx context.Context, roundID string) (domain.Round, error) {
	round, err := s.store.Rounds().GetByID(ctx, roundID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: get round %s: %w", roundID, err)
	}
	return round, nil
}

// CurrentRound returns the current round for a market symbol.
func (s *RoundService) CurrentRound(ctx context.Context, symbol string) (domain.Round, error) {
	market, err := s.store.Markets().GetBySymbol(ctx, symbol)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: get market %s: %w", symbol, err)
	}
	round, err := s.store.Rounds().CurrentRound(ctx, market.ID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: current round %s: %w", symbol, err)
	}
	return round, nil
}

// ListRounds returns a market's rounds, most recent first.
func (s *RoundService) ListRounds(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Round, error) {
	market, err := s.store.Markets().GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("round_service: get market %s: %w", symbol, err)
	}
	rounds, err := s.store.Rounds().ListByMarket(ctx, market.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("round_service: list rounds %s: %w", symbol, err)
	}
	return rounds, nil
}

// deadlines derives the betting and settlement deadlines for a round
// starting now.
func (s *RoundService) deadlines(market domain.Market, now time.Time) (bettingEndsAt, settlesAt time.Time) {
	if market.Type == domain.MarketTypeDaily {
		local := now.In(s.timing.Location)
		closeAt := time.Date(local.Year(), local.Month(), local.Day(), s.timing.DailyBettingCloseHour, 0, 0, 0, s.timing.Location)
		if !closeAt.After(local) {
			closeAt = closeAt.AddDate(0, 0, 1)
		}
		settleAt := time.Date(closeAt.Year(), closeAt.Month(), closeAt.Day(), s.timing.DailySettleHour, 0, 0, 0, s.timing.Location).AddDate(0, 0, 1)
		return closeAt, settleAt
	}

	settlesAt = now.Add(s.timing.RoundDuration)
	bettingEndsAt = settlesAt.Add(-s.timing.LockWindow)
	return bettingEndsAt, settlesAt
}
