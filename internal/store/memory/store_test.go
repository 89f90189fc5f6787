package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownhq/updown/internal/domain"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	s := NewStore()
	s.now = func() time.Time { return base }
	return s
}

func seedMarket(t *testing.T, s *Store, id, symbol string) domain.Market {
	t.Helper()
	mk := domain.Market{
		ID:       id,
		Symbol:   symbol,
		Name:     symbol + " Up/Down",
		Type:     domain.MarketTypeInterval,
		Category: domain.AssetCrypto,
		MinBet:   decimal.NewFromInt(1),
		MaxBet:   decimal.NewFromInt(10000),
		FeeRate:  decimal.RequireFromString("0.03"),
		Active:   true,
	}
	require.NoError(t, s.Markets().Create(context.Background(), mk))
	return mk
}

func seedRound(t *testing.T, s *Store, id, marketID string, number int64, status domain.RoundStatus) domain.Round {
	t.Helper()
	rd := domain.Round{
		ID:            id,
		MarketID:      marketID,
		Number:        number,
		Status:        status,
		StartsAt:      base,
		BettingEndsAt: base.Add(12 * time.Minute),
		SettlesAt:     base.Add(15 * time.Minute),
	}
	require.NoError(t, s.Rounds().Create(context.Background(), rd))
	return rd
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx domain.Store) error {
		return tx.Users().Create(ctx, domain.User{ID: "u1", WalletAddress: "0xabc", Status: domain.UserStatusActive})
	})
	require.NoError(t, err)

	_, err = s.Users().GetByID(ctx, "u1")
	assert.NoError(t, err)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seedMarket(t, s, "m1", "BTC")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx domain.Store) error {
		if err := tx.Users().Create(ctx, domain.User{ID: "u1", WalletAddress: "0xabc"}); err != nil {
			return err
		}
		if err := tx.Rounds().Create(ctx, domain.Round{ID: "r1", MarketID: "m1", Number: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetByID(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Rounds().GetByID(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInTx_IntermediateReadsSeeWrites(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx domain.Store) error {
		if err := tx.Users().Create(ctx, domain.User{ID: "u1", WalletAddress: "0xabc", Balance: decimal.NewFromInt(100)}); err != nil {
			return err
		}
		usr, err := tx.Users().GetForUpdate(ctx, "u1")
		if err != nil {
			return err
		}
		return tx.Users().UpdateBalance(ctx, "u1", usr.Balance.Sub(decimal.NewFromInt(40)))
	})
	require.NoError(t, err)

	usr, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, usr.Balance.Equal(decimal.NewFromInt(60)))
}

func TestMarkets_SymbolUniqueAndUppercased(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Markets().Create(ctx, domain.Market{ID: "m1", Symbol: "btc", Active: true}))
	err := s.Markets().Create(ctx, domain.Market{ID: "m2", Symbol: "BTC"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	mk, err := s.Markets().GetBySymbol(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", mk.Symbol)
	assert.Equal(t, "m1", mk.ID)
}

func TestMarkets_ListActiveSortedBySymbol(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seedMarket(t, s, "m1", "ETH")
	seedMarket(t, s, "m2", "BTC")
	inactive := domain.Market{ID: "m3", Symbol: "SOL", Active: false}
	require.NoError(t, s.Markets().Create(ctx, inactive))

	markets, err := s.Markets().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "BTC", markets[0].Symbol)
	assert.Equal(t, "ETH", markets[1].Symbol)
}

func TestRounds_NumberUniquePerMarket(t *testing.T) {
	s := newTestStore()
	seedMarket(t, s, "m1", "BTC")
	seedMarket(t, s, "m2", "ETH")
	seedRound(t, s, "r1", "m1", 1, domain.RoundStatusOpen)

	err := s.Rounds().Create(context.Background(), domain.Round{ID: "r2", MarketID: "m1", Number: 1})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Same number on another market is fine.
	err = s.Rounds().Create(context.Background(), domain.Round{ID: "r3", MarketID: "m2", Number: 1})
	assert.NoError(t, err)
}

func TestRounds_CurrentRoundSkipsTerminal(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seedMarket(t, s, "m1", "BTC")
	seedRound(t, s, "r1", "m1", 1, domain.RoundStatusSettled)
	seedRound(t, s, "r2", "m1", 2, domain.RoundStatusLocked)

	rd, err := s.Rounds().CurrentRound(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "r2", rd.ID)

	rd.Status = domain.RoundStatusSettled
	require.NoError(t, s.Rounds().Update(ctx, rd))

	_, err = s.Rounds().CurrentRound(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRounds_LastNumber(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seedMarket(t, s, "m1", "BTC")

	n, err := s.Rounds().LastNumber(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	seedRound(t, s, "r1", "m1", 1, domain.RoundStatusSettled)
	seedRound(t, s, "r2", "m1", 2, domain.RoundStatusOpen)

	n, err = s.Rounds().LastNumber(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRounds_ListToLockAndSettle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seedMarket(t, s, "m1", "BTC")
	seedRound(t, s, "r1", "m1", 1, domain.RoundStatusOpen)
	seedRound(t, s, "r2", "m1", 2, domain.RoundStatusLocked)

	// Before the betting deadline nothing is due.
	due, err := s.Rounds().ListToLock(ctx, base.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.Rounds().ListToLock(ctx, base.Add(12*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "r1", due[0].ID)

	settleDue, err := s.Rounds().ListToSettle(ctx, base.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, settleDue, 1)
	assert.Equal(t, "r2", settleDue[0].ID)
}

func TestRounds_ListSettledBefore(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seedMarket(t, s, "m1", "BTC")
	rd := seedRound(t, s, "r1", "m1", 1, domain.RoundStatusSettled)
	settledAt := base.Add(-48 * time.Hour)
	rd.Status = domain.RoundStatusSettled
	rd.SettledAt = &settledAt
	require.NoError(t, s.Rounds().Update(ctx, rd))
	seedRound(t, s, "r2", "m1", 2, domain.RoundStatusOpen)

	old, err := s.Rounds().ListSettledBefore(ctx, base.Add(-24*time.Hour), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "r1", old[0].ID)

	old, err = s.Rounds().ListSettledBefore(ctx, base.Add(-72*time.Hour), domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestBets_DuplicatePerUserAndRound(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	seedMarket(t, s, "m1", "BTC")
	seedRound(t, s, "r1", "m1", 1, domain.RoundStatusOpen)
	seedRound(t, s, "r2", "m1", 2, domain.RoundStatusOpen)

	bet := domain.Bet{ID: "b1", UserID: "u1", RoundID: "r1", Position: domain.PositionUp, Amount: decimal.NewFromInt(10), Status: domain.BetStatusPending}
	require.NoError(t, s.Bets().Create(ctx, bet))

	dup := bet
	dup.ID = "b2"
	assert.ErrorIs(t, s.Bets().Create(ctx, dup), domain.ErrDuplicateBet)

	// Same user, different round is allowed.
	other := bet
	other.ID = "b3"
	other.RoundID = "r2"
	assert.NoError(t, s.Bets().Create(ctx, other))
}

func TestBets_ListByUserFiltersAndPaginates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status := domain.BetStatusPending
		if i%2 == 0 {
			status = domain.BetStatusWon
		}
		st := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return st }
		require.NoError(t, s.Bets().Create(ctx, domain.Bet{
			ID:      string(rune('a' + i)),
			UserID:  "u1",
			RoundID: string(rune('A' + i)),
			Status:  status,
			Amount:  decimal.NewFromInt(int64(i + 1)),
		}))
	}

	won, err := s.Bets().ListByUser(ctx, "u1", domain.BetListOpts{Status: domain.BetStatusWon})
	require.NoError(t, err)
	assert.Len(t, won, 3)

	page, err := s.Bets().ListByUser(ctx, "u1", domain.BetListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Newest first.
	assert.Equal(t, "e", page[0].ID)

	page, err = s.Bets().ListByUser(ctx, "u1", domain.BetListOpts{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
}

func TestUsers_WalletUnique(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Users().Create(ctx, domain.User{ID: "u1", WalletAddress: "0xabc"}))
	err := s.Users().Create(ctx, domain.User{ID: "u2", WalletAddress: "0xabc"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestUsers_UpdateStatus(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Users().Create(ctx, domain.User{ID: "u1", WalletAddress: "0xabc", Status: domain.UserStatusActive}))
	require.NoError(t, s.Users().UpdateStatus(ctx, "u1", domain.UserStatusSuspended))

	usr, err := s.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserStatusSuspended, usr.Status)

	assert.ErrorIs(t, s.Users().UpdateStatus(ctx, "missing", domain.UserStatusActive), domain.ErrNotFound)
}
