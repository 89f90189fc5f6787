package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownhq/updown/internal/domain"
)

func TestPlaceBet_DeductsBalanceAndGrowsPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := f.createMarket(t, "BTC", domain.MarketTypeInterval)
	round := f.openRound(t, market, "65000")
	user := f.createUser(t, walletAlice, 1000)

	bet, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(50))
	require.NoError(t, err)

	assert.Equal(t, domain.BetStatusPending, bet.Status)
	assert.Equal(t, domain.PositionUp, bet.Position)
	assert.True(t, bet.Amount.Equal(decimal.NewFromInt(50)))

	after, err := f.users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(950)), "balance %s", after.Balance)

	updated, err := f.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.True(t, updated.TotalUpPool.Equal(decimal.NewFromInt(50)))
	assert.True(t, updated.TotalDownPool.IsZero())
	assert.Equal(t, 1, updated.UpCount)
	assert.Equal(t, 0, updated.DownCount)

	placed := f.bus.ofType(domain.EventBetPlaced)
	require.Len(t, placed, 1)
	snap := placed[0].(domain.BetPlacedEvent).Round
	assert.Equal(t, "50", snap.TotalUpPool)
}

func TestPlaceBet_RejectsLockedRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := f.createMarket(t, "BTC", domain.MarketTypeInterval)
	round := f.openRound(t, market, "65000")
	user := f.createUser(t, walletAlice, 1000)

	f.clock.Advance(13 * time.Minute)
	_, err := f.rounds.Lock(ctx, round.ID)
	require.NoError(t, err)

	_, err = f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, domain.ErrRoundNotOpen)

	// Balance untouched on rejection.
	after, err := f.users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestPlaceBet_RejectsAfterBettingDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := f.createMarket(t, "BTC", domain.MarketTypeInterval)
	round := f.openRound(t, market, "65000")
	user := f.createUser(t, walletAlice, 1000)

	// Betting ends 12 minutes in; the round is still open until the sweep
	// locks it.
	f.clock.Advance(12 * time.Minute)

	_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionDown, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrBettingClosed)
}

func TestPlaceBet_ValidationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := f.createMarket(t, "BTC", domain.MarketTypeInterval)
	round := f.openRound(t, market, "65000")
	user := f.createUser(t, walletAlice, 1000)

	t.Run("invalid position", func(t *testing.T) {
		_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, "sideways", decimal.NewFromInt(10))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.bets.PlaceBet(ctx, "nope", round.ID, domain.PositionUp, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown round", func(t *testing.T) {
		_, err := f.bets.PlaceBet(ctx, user.ID, "nope", domain.PositionUp, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("below minimum", func(t *testing.T) {
		_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.RequireFromString("0.5"))
		assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	})

	t.Run("above maximum", func(t *testing.T) {
		_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(20000))
		assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(5000))
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	})

	t.Run("duplicate bet", func(t *testing.T) {
		_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(10))
		require.NoError(t, err)
		_, err = f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionDown, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, domain.ErrDuplicateBet)
	})
}

func TestPlaceBet_SuspendedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := f.createMarket(t, "BTC", domain.MarketTypeInterval)
	round := f.openRound(t, market, "65000")
	user := f.createUser(t, walletAlice, 1000)

	require.NoError(t, f.users.SetStatus(ctx, user.ID, domain.UserStatusSuspended))

	_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, domain.ErrUserSuspended)

	// Reinstated users can bet again.
	require.NoError(t, f.users.SetStatus(ctx, user.ID, domain.UserStatusActive))
	_, err = f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(10))
	assert.NoError(t, err)
}

func TestClaimWinnings_CreditsWonAndRefundedBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := f.createMarket(t, "BTC", domain.MarketTypeInterval)
	round := f.openRound(t, market, "65000")
	alice := f.createUser(t, walletAlice, 1000)
	bob := f.createUser(t, walletBob, 1000)

	_, err := f.bets.PlaceBet(ctx, alice.ID, round.ID, domain.PositionUp, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = f.bets.PlaceBet(ctx, bob.ID, round.ID, domain.PositionDown, decimal.NewFromInt(100))
	require.NoError(t, err)

	f.clock.Advance(13 * time.Minute)
	f.prices.set("BTC", decimal.RequireFromString("65100"))
	_, err = f.rounds.Lock(ctx, round.ID)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	f.prices.set("BTC", decimal.RequireFromString("65200"))
	_, err = f.settlement.Settle(ctx, round.ID)
	require.NoError(t, err)

	// Alice won: pool 200, fee 6, winner pool 194, her stake is the whole
	// winning side.
	total, err := f.bets.ClaimWinnings(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(194)), "claimed %s", total)

	after, err := f.users.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(1094)), "balance %s", after.Balance)

	bet, err := f.bets.GetUserBetByRound(ctx, alice.ID, round.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusClaimed, bet.Status)
	require.NotNil(t, bet.ClaimedAt)

	// Claiming twice finds nothing.
	_, err = f.bets.ClaimWinnings(ctx, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	// Bob lost; nothing to claim.
	_, err = f.bets.ClaimWinnings(ctx, bob.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestListUserBets_FiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	market := f.createMarket(t, "BTC", domain.MarketTypeInterval)
	round := f.openRound(t, market, "65000")
	user := f.createUser(t, walletAlice, 1000)

	_, err := f.bets.PlaceBet(ctx, user.ID, round.ID, domain.PositionUp, decimal.NewFromInt(25))
	require.NoError(t, err)

	pending, err := f.bets.ListUserBets(ctx, user.ID, domain.BetListOpts{Status: domain.BetStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	won, err := f.bets.ListUserBets(ctx, user.ID, domain.BetListOpts{Status: domain.BetStatusWon})
	require.NoError(t, err)
	assert.Empty(t, won)
}
