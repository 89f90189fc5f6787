package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWalletAddress(t *testing.T) {
	// Lowercase input comes back EIP-55 checksummed.
	got, err := NormalizeWalletAddress("0x8ba1f109551bd432803012645ac136ddd64dba72")
	require.NoError(t, err)
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", got)

	// Already checksummed input is unchanged.
	got, err = NormalizeWalletAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72")
	require.NoError(t, err)
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", got)

	for _, bad := range []string{"", "0x123", "not-an-address", "8ba1f109551bd432803012645ac136ddd64dba72zz"} {
		_, err := NormalizeWalletAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, "address %q", bad)
	}
}

func TestBetPosition_Valid(t *testing.T) {
	assert.True(t, PositionUp.Valid())
	assert.True(t, PositionDown.Valid())
	assert.False(t, BetPosition("sideways").Valid())
	assert.False(t, BetPosition("").Valid())
}

func TestBet_Claimable(t *testing.T) {
	assert.True(t, Bet{Status: BetStatusWon}.Claimable())
	assert.True(t, Bet{Status: BetStatusCancelled}.Claimable())
	assert.False(t, Bet{Status: BetStatusPending}.Claimable())
	assert.False(t, Bet{Status: BetStatusLost}.Claimable())
	assert.False(t, Bet{Status: BetStatusClaimed}.Claimable())
}

func TestRound_Current(t *testing.T) {
	assert.True(t, Round{Status: RoundStatusPending}.Current())
	assert.True(t, Round{Status: RoundStatusOpen}.Current())
	assert.True(t, Round{Status: RoundStatusLocked}.Current())
	assert.False(t, Round{Status: RoundStatusSettled}.Current())
	assert.False(t, Round{Status: RoundStatusCancelled}.Current())
}

func TestRound_TotalPool(t *testing.T) {
	r := Round{
		TotalUpPool:   decimal.RequireFromString("120.5"),
		TotalDownPool: decimal.RequireFromString("79.5"),
	}
	assert.True(t, r.TotalPool().Equal(decimal.NewFromInt(200)))
}
