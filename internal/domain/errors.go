package domain

import "errors"

// Sentinel errors shared across the engine. Callers match them with
// errors.Is; the external request layer maps each to a stable response
// category (not found, forbidden, conflict, and so on).
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUserSuspended       = errors.New("account suspended")
	ErrRoundNotOpen        = errors.New("round not open for betting")
	ErrRoundNotLocked      = errors.New("round not locked")
	ErrBettingClosed       = errors.New("betting period ended")
	ErrDuplicateBet        = errors.New("already bet on this round")
	ErrAmountOutOfRange    = errors.New("bet amount out of range")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNothingToClaim      = errors.New("no claimable bets")
	ErrPriceUnavailable    = errors.New("no price source available")
)
