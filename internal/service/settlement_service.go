package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

const (
	// payoutScale is the decimal precision payouts are rounded to.
	payoutScale = 18
	// multiplierScale is the decimal precision payout multipliers are
	// rounded to.
	multiplierScale = 6
)

// SettlementService resolves locked rounds: it fixes the end price, decides
// the outcome, and distributes the pool to winning bets in one transaction.
type SettlementService struct {
	store  domain.Store
	prices PriceSource
	bus    domain.EventBus
	clock  domain.Clock
	logger *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(store domain.Store, prices PriceSource, bus domain.EventBus, clock domain.Clock, logger *slog.Logger) *SettlementService {
	return &SettlementService{
		store:  store,
		prices: prices,
		bus:    bus,
		clock:  clock,
		logger: logger.With(slog.String("component", "settlement_service")),
	}
}

// Settle settles a locked round at the current price. Settling a round that
// is not locked returns domain.ErrRoundNotLocked, which makes the operation
// idempotent under scheduler retries.
//
// When the end price moved against the lock price, the losing pool minus the
// market fee is shared among winners pro rata to their stakes. When it did
// not move at all, the round settles with no outcome and every bet is
// cancelled with its stake as the refund.
func (s *SettlementService) Settle(ctx context.Context, roundID string) (domain.Round, error) {
	peek, err := s.store.Rounds().GetByID(ctx, roundID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("settlement_service: get round %s: %w", roundID, err)
	}
	market, err := s.store.Markets().GetByID(ctx, peek.MarketID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("settlement_service: get market %s: %w", peek.MarketID, err)
	}

	// Fetch the price outside the transaction so a slow upstream does not
	// extend the row lock.
	endPrice, err := s.prices.GetCurrentPrice(ctx, market.Symbol)
	if err != nil {
		return domain.Round{}, fmt.Errorf("settlement_service: end price %s: %w", market.Symbol, err)
	}

	var settled domain.Round
	err = s.store.InTx(ctx, func(tx domain.Store) error {
		round, err := tx.Rounds().GetForUpdate(ctx, roundID)
		if err != nil {
			return fmt.Errorf("get round: %w", err)
		}
		if round.Status != domain.RoundStatusLocked {
			return fmt.Errorf("round %s is %s: %w", roundID, round.Status, domain.ErrRoundNotLocked)
		}
		if !round.LockPrice.Valid {
			return fmt.Errorf("round %s has no lock price", roundID)
		}

		outcome := decideOutcome(round.LockPrice.Decimal, endPrice)
		bets, err := tx.Bets().ListPendingByRound(ctx, roundID)
		if err != nil {
			return fmt.Errorf("list bets: %w", err)
		}

		if outcome == domain.OutcomeNone {
			if err := s.refundAll(ctx, tx, bets); err != nil {
				return err
			}
		} else {
			if err := s.distribute(ctx, tx, market, round, outcome, bets); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		round.Status = domain.RoundStatusSettled
		round.EndPrice = decimal.NewNullDecimal(endPrice)
		round.Outcome = outcome
		round.SettledAt = &now
		if err := tx.Rounds().Update(ctx, round); err != nil {
			return fmt.Errorf("update round: %w", err)
		}
		settled = round
		return nil
	})
	if err != nil {
		return domain.Round{}, fmt.Errorf("settlement_service: settle round %s: %w", roundID, err)
	}

	s.logger.InfoContext(ctx, "round settled",
		slog.String("market", market.Symbol),
		slog.Int64("round", settled.Number),
		slog.String("outcome", string(settled.Outcome)),
		slog.String("lock_price", settled.LockPrice.Decimal.String()),
		slog.String("end_price", endPrice.String()),
	)

	s.bus.Publish(ctx, domain.RoundSettledEvent{
		RoundID:      settled.ID,
		MarketSymbol: market.Symbol,
		Outcome:      settled.Outcome,
		EndPrice:     endPrice.String(),
		LockPrice:    settled.LockPrice.Decimal.String(),
	})

	return settled, nil
}

// decideOutcome compares the end price to the lock price.
func decideOutcome(lockPrice, endPrice decimal.Decimal) domain.RoundOutcome {
	switch endPrice.Cmp(lockPrice) {
	case 1:
		return domain.OutcomeUp
	case -1:
		return domain.OutcomeDown
	default:
		return domain.OutcomeNone
	}
}

// refundAll cancels every pending bet with its stake as the claimable payout.
func (s *SettlementService) refundAll(ctx context.Context, tx domain.Store, bets []domain.Bet) error {
	one := decimal.NewFromInt(1)
	for _, bet := range bets {
		bet.Status = domain.BetStatusCancelled
		bet.Payout = decimal.NewNullDecimal(bet.Amount)
		bet.PayoutMultiplier = decimal.NewNullDecimal(one)
		if err := tx.Bets().Update(ctx, bet); err != nil {
			return fmt.Errorf("refund bet %s: %w", bet.ID, err)
		}
	}
	return nil
}

// distribute marks each pending bet won or lost and computes winner payouts.
// The fee is taken from the combined pool; the remainder is split among
// winners pro rata to their stakes.
func (s *SettlementService) distribute(ctx context.Context, tx domain.Store, market domain.Market, round domain.Round, outcome domain.RoundOutcome, bets []domain.Bet) error {
	winningPosition := domain.PositionUp
	winningPool := round.TotalUpPool
	if outcome == domain.OutcomeDown {
		winningPosition = domain.PositionDown
		winningPool = round.TotalDownPool
	}

	totalPool := round.TotalPool()
	fee := totalPool.Mul(market.FeeRate)
	winnerPool := totalPool.Sub(fee)

	if winningPool.IsZero() {
		// Nobody staked the winning side; there is no one to pay and no
		// divisor for the share math.
		s.logger.WarnContext(ctx, "round settled with empty winning pool",
			slog.String("round_id", round.ID),
			slog.String("outcome", string(outcome)),
			slog.String("total_pool", totalPool.String()),
		)
		for _, bet := range bets {
			bet.Status = domain.BetStatusLost
			bet.Payout = decimal.NewNullDecimal(decimal.Zero)
			if err := tx.Bets().Update(ctx, bet); err != nil {
				return fmt.Errorf("update bet %s: %w", bet.ID, err)
			}
		}
		return nil
	}

	for _, bet := range bets {
		if bet.Position != winningPosition {
			bet.Status = domain.BetStatusLost
			bet.Payout = decimal.NewNullDecimal(decimal.Zero)
			if err := tx.Bets().Update(ctx, bet); err != nil {
				return fmt.Errorf("update bet %s: %w", bet.ID, err)
			}
			continue
		}

		payout := winnerPool.Mul(bet.Amount.Div(winningPool)).Round(payoutScale)
		multiplier := winnerPool.Div(winningPool).Round(multiplierScale)

		bet.Status = domain.BetStatusWon
		bet.Payout = decimal.NewNullDecimal(payout)
		bet.PayoutMultiplier = decimal.NewNullDecimal(multiplier)
		if err := tx.Bets().Update(ctx, bet); err != nil {
			return fmt.Errorf("update bet %s: %w", bet.ID, err)
		}
	}
	return nil
}
