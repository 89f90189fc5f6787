package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// UserService manages wallet-derived accounts and balance top-ups. Signature
// verification happens at the edge; by the time a wallet address reaches
// this service it is assumed to belong to the caller.
type UserService struct {
	store  domain.Store
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(store domain.Store, logger *slog.Logger) *UserService {
	return &UserService{
		store:  store,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// Register creates an active user for the wallet address with the given
// starting balance. The address is checksummed before storage; registering
// an already known wallet returns domain.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, walletAddress string, startingBalance decimal.Decimal) (domain.User, error) {
	addr, err := domain.NormalizeWalletAddress(walletAddress)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: %w", err)
	}
	if startingBalance.IsNegative() {
		return domain.User{}, fmt.Errorf("user_service: starting balance is negative: %w", domain.ErrInvalidArgument)
	}

	user := domain.User{
		ID:            uuid.NewString(),
		WalletAddress: addr,
		Status:        domain.UserStatusActive,
		Balance:       startingBalance,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("user_service: register %s: %w", addr, err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("wallet", addr))

	return user, nil
}

// GetUser returns a user by ID.
func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: get user %s: %w", userID, err)
	}
	return user, nil
}

// SetStatus suspends or reinstates a user. Suspended users keep their
// balance and open bets but cannot place new ones.
func (s *UserService) SetStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	if status != domain.UserStatusActive && status != domain.UserStatusSuspended {
		return fmt.Errorf("user_service: status %q: %w", status, domain.ErrInvalidArgument)
	}
	if err := s.store.Users().UpdateStatus(ctx, userID, status); err != nil {
		return fmt.Errorf("user_service: set status: %w", err)
	}
	s.logger.InfoContext(ctx, "user status changed",
		slog.String("user_id", userID),
		slog.String("status", string(status)),
	)
	return nil
}

// Deposit credits amount to the user's balance.
func (s *UserService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("user_service: deposit must be positive: %w", domain.ErrInvalidArgument)
	}

	var balance decimal.Decimal
	err := s.store.InTx(ctx, func(tx domain.Store) error {
		user, err := tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		balance = user.Balance.Add(amount)
		return tx.Users().UpdateBalance(ctx, userID, balance)
	})
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("user_service: deposit: %w", err)
	}
	return balance, nil
}
