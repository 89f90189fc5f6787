package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/updownhq/updown/internal/domain"
)

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	db querier
}

const roundCols = `id, market_id, round_number, status,
	start_price, lock_price, end_price,
	total_up_pool, total_down_pool, up_count, down_count,
	outcome, starts_at, betting_ends_at, settles_at, settled_at, created_at`

// Create inserts a new round. The (market_id, round_number) unique
// constraint is the last line of defence against the periodic sweep and the
// market-created fast path racing to create the same round; a violation
// surfaces as domain.ErrAlreadyExists.
func (s *RoundStore) Create(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (
			id, market_id, round_number, status,
			start_price, lock_price, end_price,
			total_up_pool, total_down_pool, up_count, down_count,
			outcome, starts_at, betting_ends_at, settles_at, settled_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW()
		)`

	_, err := s.db.Exec(ctx, query,
		r.ID, r.MarketID, r.Number, string(r.Status),
		nullDecimalString(r.StartPrice), nullDecimalString(r.LockPrice), nullDecimalString(r.EndPrice),
		r.TotalUpPool.String(), r.TotalDownPool.String(), r.UpCount, r.DownCount,
		string(r.Outcome), r.StartsAt, r.BettingEndsAt, r.SettlesAt, r.SettledAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return fmt.Errorf("postgres: create round %d for market %s: %w",
				r.Number, r.MarketID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create round %d for market %s: %w", r.Number, r.MarketID, err)
	}
	return nil
}

// Update persists all mutable round fields.
func (s *RoundStore) Update(ctx context.Context, r domain.Round) error {
	const query = `
		UPDATE rounds SET
			status = $2, start_price = $3, lock_price = $4, end_price = $5,
			total_up_pool = $6, total_down_pool = $7, up_count = $8, down_count = $9,
			outcome = $10, settled_at = $11
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		r.ID, string(r.Status),
		nullDecimalString(r.StartPrice), nullDecimalString(r.LockPrice), nullDecimalString(r.EndPrice),
		r.TotalUpPool.String(), r.TotalDownPool.String(), r.UpCount, r.DownCount,
		string(r.Outcome), r.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update round %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRound(row pgx.Row) (domain.Round, error) {
	var (
		r                              domain.Round
		status, outcome                string
		startPrice, lockPrice, endPrice *string
		upPool, downPool               string
	)
	err := row.Scan(
		&r.ID, &r.MarketID, &r.Number, &status,
		&startPrice, &lockPrice, &endPrice,
		&upPool, &downPool, &r.UpCount, &r.DownCount,
		&outcome, &r.StartsAt, &r.BettingEndsAt, &r.SettlesAt, &r.SettledAt, &r.CreatedAt,
	)
	if err != nil {
		return domain.Round{}, err
	}
	r.Status = domain.RoundStatus(status)
	r.Outcome = domain.RoundOutcome(outcome)
	if r.StartPrice, err = parseNullDecimal(startPrice); err != nil {
		return domain.Round{}, err
	}
	if r.LockPrice, err = parseNullDecimal(lockPrice); err != nil {
		return domain.Round{}, err
	}
	if r.EndPrice, err = parseNullDecimal(endPrice); err != nil {
		return domain.Round{}, err
	}
	if r.TotalUpPool, err = parseDecimal(upPool); err != nil {
		return domain.Round{}, err
	}
	if r.TotalDownPool, err = parseDecimal(downPool); err != nil {
		return domain.Round{}, err
	}
	return r, nil
}

func (s *RoundStore) getWhere(ctx context.Context, suffix string, args ...any) (domain.Round, error) {
	row := s.db.QueryRow(ctx, `SELECT `+roundCols+` FROM rounds `+suffix, args...)
	r, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, err
	}
	return r, nil
}

// GetByID retrieves a round by its primary key.
func (s *RoundStore) GetByID(ctx context.Context, id string) (domain.Round, error) {
	r, err := s.getWhere(ctx, `WHERE id = $1`, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, err)
	}
	return r, err
}

// GetForUpdate retrieves a round under a row-level write lock. Only
// meaningful inside InTx; bet placement and the scheduler's lock/settle
// serialize on this lock.
func (s *RoundStore) GetForUpdate(ctx context.Context, id string) (domain.Round, error) {
	r, err := s.getWhere(ctx, `WHERE id = $1 FOR UPDATE`, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, fmt.Errorf("postgres: get round %s for update: %w", id, err)
	}
	return r, err
}

// CurrentRound returns the market's round in a non-terminal status.
func (s *RoundStore) CurrentRound(ctx context.Context, marketID string) (domain.Round, error) {
	r, err := s.getWhere(ctx,
		`WHERE market_id = $1 AND status IN ('pending', 'open', 'locked')
		 ORDER BY round_number DESC LIMIT 1`, marketID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, fmt.Errorf("postgres: current round for market %s: %w", marketID, err)
	}
	return r, err
}

// LastNumber returns the highest round number for the market, 0 if none.
func (s *RoundStore) LastNumber(ctx context.Context, marketID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(round_number), 0) FROM rounds WHERE market_id = $1`,
		marketID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: last round number for market %s: %w", marketID, err)
	}
	return n, nil
}

func (s *RoundStore) listWhere(ctx context.Context, suffix string, args ...any) ([]domain.Round, error) {
	rows, err := s.db.Query(ctx, `SELECT `+roundCols+` FROM rounds `+suffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// ListToLock returns open rounds whose betting deadline has passed.
func (s *RoundStore) ListToLock(ctx context.Context, now time.Time) ([]domain.Round, error) {
	rounds, err := s.listWhere(ctx,
		`WHERE status = 'open' AND betting_ends_at <= $1 ORDER BY betting_ends_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds to lock: %w", err)
	}
	return rounds, nil
}

// ListToSettle returns locked rounds whose settlement time has passed.
func (s *RoundStore) ListToSettle(ctx context.Context, now time.Time) ([]domain.Round, error) {
	rounds, err := s.listWhere(ctx,
		`WHERE status = 'locked' AND settles_at <= $1 ORDER BY settles_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds to settle: %w", err)
	}
	return rounds, nil
}

// ListByMarket returns a market's rounds, newest first.
func (s *RoundStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Round, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	rounds, err := s.listWhere(ctx,
		`WHERE market_id = $1 ORDER BY round_number DESC LIMIT $2 OFFSET $3`,
		marketID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds for market %s: %w", marketID, err)
	}
	return rounds, nil
}

// ListSettledBefore returns settled rounds with settledAt before cutoff,
// oldest first.
func (s *RoundStore) ListSettledBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Round, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	rounds, err := s.listWhere(ctx,
		`WHERE status = 'settled' AND settled_at < $1 ORDER BY settled_at ASC LIMIT $2 OFFSET $3`,
		cutoff, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled rounds before %s: %w", cutoff, err)
	}
	return rounds, nil
}

// Compile-time interface check.
var _ domain.RoundStore = (*RoundStore)(nil)
