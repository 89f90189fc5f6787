package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// BetService handles bet placement, claims, and bet queries. Placement and
// claims run inside a single transaction with the user row write-locked, so
// the balance check and the balance mutation cannot interleave with a
// concurrent request for the same user.
type BetService struct {
	store  domain.Store
	bus    domain.EventBus
	clock  domain.Clock
	logger *slog.Logger
}

// NewBetService creates a BetService.
func NewBetService(store domain.Store, bus domain.EventBus, clock domain.Clock, logger *slog.Logger) *BetService {
	return &BetService{
		store:  store,
		bus:    bus,
		clock:  clock,
		logger: logger.With(slog.String("component", "bet_service")),
	}
}

// PlaceBet stakes amount on position for the user in the given round. The
// stake is deducted from the user's balance and added to the round's pool in
// the same transaction that records the bet.
func (s *BetService) PlaceBet(ctx context.Context, userID, roundID string, position domain.BetPosition, amount decimal.Decimal) (domain.Bet, error) {
	if !position.Valid() {
		return domain.Bet{}, fmt.Errorf("bet_service: position %q: %w", position, domain.ErrInvalidArgument)
	}
	if !amount.IsPositive() {
		return domain.Bet{}, fmt.Errorf("bet_service: amount must be positive: %w", domain.ErrInvalidArgument)
	}

	var (
		bet      domain.Bet
		snapshot domain.PoolSnapshot
	)
	err := s.store.InTx(ctx, func(tx domain.Store) error {
		user, err := tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user.Status == domain.UserStatusSuspended {
			return domain.ErrUserSuspended
		}

		round, err := tx.Rounds().GetForUpdate(ctx, roundID)
		if err != nil {
			return fmt.Errorf("get round: %w", err)
		}
		if round.Status != domain.RoundStatusOpen {
			return domain.ErrRoundNotOpen
		}
		if !s.clock.Now().Before(round.BettingEndsAt) {
			return domain.ErrBettingClosed
		}

		if _, err := tx.Bets().GetByUserAndRound(ctx, userID, roundID); err == nil {
			return domain.ErrDuplicateBet
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("check existing bet: %w", err)
		}

		market, err := tx.Markets().GetByID(ctx, round.MarketID)
		if err != nil {
			return fmt.Errorf("get market: %w", err)
		}
		if amount.LessThan(market.MinBet) || amount.GreaterThan(market.MaxBet) {
			return fmt.Errorf("amount %s outside [%s, %s]: %w",
				amount, market.MinBet, market.MaxBet, domain.ErrAmountOutOfRange)
		}
		if amount.GreaterThan(user.Balance) {
			return domain.ErrInsufficientBalance
		}

		bet = domain.Bet{
			ID:       uuid.NewString(),
			UserID:   userID,
			RoundID:  roundID,
			Position: position,
			Amount:   amount,
			Status:   domain.BetStatusPending,
		}
		if err := tx.Bets().Create(ctx, bet); err != nil {
			return fmt.Errorf("create bet: %w", err)
		}

		if position == domain.PositionUp {
			round.TotalUpPool = round.TotalUpPool.Add(amount)
			round.UpCount++
		} else {
			round.TotalDownPool = round.TotalDownPool.Add(amount)
			round.DownCount++
		}
		if err := tx.Rounds().Update(ctx, round); err != nil {
			return fmt.Errorf("update round: %w", err)
		}

		if err := tx.Users().UpdateBalance(ctx, userID, user.Balance.Sub(amount)); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		snapshot = domain.PoolSnapshot{
			RoundID:       round.ID,
			TotalUpPool:   round.TotalUpPool.String(),
			TotalDownPool: round.TotalDownPool.String(),
			UpCount:       round.UpCount,
			DownCount:     round.DownCount,
		}
		return nil
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: %w", err)
	}

	s.logger.InfoContext(ctx, "bet placed",
		slog.String("user_id", userID),
		slog.String("round_id", roundID),
		slog.String("position", string(position)),
		slog.String("amount", amount.String()),
	)

	s.bus.Publish(ctx, domain.BetPlacedEvent{Bet: bet, Round: snapshot})

	return bet, nil
}

// ClaimWinnings credits the user's balance with every unclaimed payout: won
// bets pay the pool share, cancelled bets refund the stake. It returns the
// total credited, or domain.ErrNothingToClaim when no claimable bet exists.
func (s *BetService) ClaimWinnings(ctx context.Context, userID string) (decimal.Decimal, error) {
	total := decimal.Zero
	err := s.store.InTx(ctx, func(tx domain.Store) error {
		user, err := tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		var claimable []domain.Bet
		for _, status := range []domain.BetStatus{domain.BetStatusWon, domain.BetStatusCancelled} {
			bets, err := tx.Bets().ListByUser(ctx, userID, domain.BetListOpts{Status: status, Limit: 1000})
			if err != nil {
				return fmt.Errorf("list %s bets: %w", status, err)
			}
			claimable = append(claimable, bets...)
		}
		if len(claimable) == 0 {
			return domain.ErrNothingToClaim
		}

		now := s.clock.Now()
		for _, bet := range claimable {
			if !bet.Payout.Valid {
				continue
			}
			total = total.Add(bet.Payout.Decimal)
			bet.Status = domain.BetStatusClaimed
			bet.ClaimedAt = &now
			if err := tx.Bets().Update(ctx, bet); err != nil {
				return fmt.Errorf("update bet %s: %w", bet.ID, err)
			}
		}

		if err := tx.Users().UpdateBalance(ctx, userID, user.Balance.Add(total)); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bet_service: claim winnings: %w", err)
	}

	s.logger.InfoContext(ctx, "winnings claimed",
		slog.String("user_id", userID),
		slog.String("total", total.String()),
	)

	return total, nil
}

// GetUserBetByRound returns the user's bet on a round, if any.
func (s *BetService) GetUserBetByRound(ctx context.Context, userID, roundID string) (domain.Bet, error) {
	bet, err := s.store.Bets().GetByUserAndRound(ctx, userID, roundID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get bet: %w", err)
	}
	return bet, nil
}

// ListUserBets returns the user's bets, newest first, optionally filtered by
// status.
func (s *BetService) ListUserBets(ctx context.Context, userID string, opts domain.BetListOpts) ([]domain.Bet, error) {
	bets, err := s.store.Bets().ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list bets: %w", err)
	}
	return bets, nil
}

// ListRoundBets returns every bet on a round.
func (s *BetService) ListRoundBets(ctx context.Context, roundID string) ([]domain.Bet, error) {
	bets, err := s.store.Bets().ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list round bets: %w", err)
	}
	return bets, nil
}
