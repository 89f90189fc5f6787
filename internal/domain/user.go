package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// UserStatus gates whether a user may place bets.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User is a wallet-derived identity with an engine-managed balance. Identity
// issuance (signature login) happens outside the engine; balance mutation is
// the engine's own responsibility.
type User struct {
	ID            string
	WalletAddress string
	Status        UserStatus
	Balance       decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeWalletAddress validates addr as a hex Ethereum address and returns
// its EIP-55 checksummed form.
func NormalizeWalletAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("domain: %q is not a valid wallet address: %w", addr, ErrInvalidArgument)
	}
	return common.HexToAddress(addr).Hex(), nil
}
