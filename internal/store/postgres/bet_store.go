package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/updownhq/updown/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	db querier
}

const betCols = `id, user_id, round_id, position, amount, status,
	payout, payout_multiplier, claimed_at, created_at`

// Create inserts a new bet. The (user_id, round_id) unique constraint backs
// the per-user-per-round uniqueness invariant; a violation surfaces as
// domain.ErrDuplicateBet.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, user_id, round_id, position, amount, status,
			payout, payout_multiplier, claimed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := s.db.Exec(ctx, query,
		b.ID, b.UserID, b.RoundID, string(b.Position),
		b.Amount.String(), string(b.Status),
		nullDecimalString(b.Payout), nullDecimalString(b.PayoutMultiplier), b.ClaimedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return fmt.Errorf("postgres: create bet for user %s round %s: %w",
				b.UserID, b.RoundID, domain.ErrDuplicateBet)
		}
		return fmt.Errorf("postgres: create bet for user %s round %s: %w", b.UserID, b.RoundID, err)
	}
	return nil
}

// Update persists a bet's settlement and claim fields.
func (s *BetStore) Update(ctx context.Context, b domain.Bet) error {
	const query = `
		UPDATE bets SET
			status = $2, payout = $3, payout_multiplier = $4, claimed_at = $5
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		b.ID, string(b.Status),
		nullDecimalString(b.Payout), nullDecimalString(b.PayoutMultiplier), b.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b                  domain.Bet
		position, status   string
		amount             string
		payout, multiplier *string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.RoundID, &position, &amount, &status,
		&payout, &multiplier, &b.ClaimedAt, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Position = domain.BetPosition(position)
	b.Status = domain.BetStatus(status)
	if b.Amount, err = parseDecimal(amount); err != nil {
		return domain.Bet{}, err
	}
	if b.Payout, err = parseNullDecimal(payout); err != nil {
		return domain.Bet{}, err
	}
	if b.PayoutMultiplier, err = parseNullDecimal(multiplier); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}

// GetByID retrieves a bet by its primary key.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// GetByUserAndRound retrieves the user's bet on a round, if any.
func (s *BetStore) GetByUserAndRound(ctx context.Context, userID, roundID string) (domain.Bet, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE user_id = $1 AND round_id = $2`, userID, roundID)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet for user %s round %s: %w", userID, roundID, err)
	}
	return b, nil
}

func (s *BetStore) listWhere(ctx context.Context, suffix string, args ...any) ([]domain.Bet, error) {
	rows, err := s.db.Query(ctx, `SELECT `+betCols+` FROM bets `+suffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// ListPendingByRound returns the round's unsettled bets.
func (s *BetStore) ListPendingByRound(ctx context.Context, roundID string) ([]domain.Bet, error) {
	bets, err := s.listWhere(ctx,
		`WHERE round_id = $1 AND status = 'pending' ORDER BY created_at ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending bets for round %s: %w", roundID, err)
	}
	return bets, nil
}

// ListByRound returns all of a round's bets regardless of status.
func (s *BetStore) ListByRound(ctx context.Context, roundID string) ([]domain.Bet, error) {
	bets, err := s.listWhere(ctx,
		`WHERE round_id = $1 ORDER BY created_at ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for round %s: %w", roundID, err)
	}
	return bets, nil
}

// ListByUser returns a user's bets, newest first, optionally filtered by
// status.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.BetListOpts) ([]domain.Bet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var (
		bets []domain.Bet
		err  error
	)
	if opts.Status != "" {
		bets, err = s.listWhere(ctx,
			`WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
			userID, string(opts.Status), limit, opts.Offset)
	} else {
		bets, err = s.listWhere(ctx,
			`WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			userID, limit, opts.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for user %s: %w", userID, err)
	}
	return bets, nil
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
