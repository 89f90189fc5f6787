package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	db querier
}

const userCols = `id, wallet_address, status, balance, created_at, updated_at`

// Create inserts a new user. A duplicate wallet address surfaces as
// domain.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, wallet_address, status, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`

	_, err := s.db.Exec(ctx, query,
		u.ID, u.WalletAddress, string(u.Status), u.Balance.String())
	if err != nil {
		if uniqueViolation(err) {
			return fmt.Errorf("postgres: create user %s: %w", u.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create user %s: %w", u.ID, err)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u       domain.User
		status  string
		balance string
	)
	err := row.Scan(&u.ID, &u.WalletAddress, &status, &balance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.Status = domain.UserStatus(status)
	if u.Balance, err = parseDecimal(balance); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// GetByID retrieves a user by its primary key.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// GetForUpdate retrieves a user under a row-level write lock, serializing
// concurrent balance mutations. Only meaningful inside InTx.
func (s *UserStore) GetForUpdate(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1 FOR UPDATE`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s for update: %w", id, err)
	}
	return u, nil
}

// UpdateBalance sets the user's balance.
func (s *UserStore) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET balance = $2, updated_at = NOW() WHERE id = $1`,
		id, balance.String())
	if err != nil {
		return fmt.Errorf("postgres: update balance for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus sets the user's status. Suspension and reinstatement come
// from the external admin surface.
func (s *UserStore) UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update status for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
