package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/updownhq/updown/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	db querier
}

const marketCols = `id, symbol, name, category, market_type,
	min_bet, max_bet, fee_rate, is_active, created_at, updated_at`

// Create inserts a new market. A duplicate symbol surfaces as
// domain.ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, symbol, name, category, market_type,
			min_bet, max_bet, fee_rate, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, err := s.db.Exec(ctx, query,
		m.ID, strings.ToUpper(m.Symbol), m.Name,
		string(m.Category), string(m.Type),
		m.MinBet.String(), m.MaxBet.String(), m.FeeRate.String(),
		m.Active,
	)
	if err != nil {
		if uniqueViolation(err) {
			return fmt.Errorf("postgres: create market %s: %w", m.Symbol, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create market %s: %w", m.Symbol, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                         domain.Market
		category, marketType      string
		minBet, maxBet, feeRate   string
	)
	err := row.Scan(
		&m.ID, &m.Symbol, &m.Name, &category, &marketType,
		&minBet, &maxBet, &feeRate, &m.Active,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Category = domain.AssetCategory(category)
	m.Type = domain.MarketType(marketType)
	if m.MinBet, err = parseDecimal(minBet); err != nil {
		return domain.Market{}, err
	}
	if m.MaxBet, err = parseDecimal(maxBet); err != nil {
		return domain.Market{}, err
	}
	if m.FeeRate, err = parseDecimal(feeRate); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetBySymbol retrieves a market by its uppercase symbol.
func (s *MarketStore) GetBySymbol(ctx context.Context, symbol string) (domain.Market, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE symbol = $1`, strings.ToUpper(symbol))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by symbol %s: %w", symbol, err)
	}
	return m, nil
}

// ListActive returns all active markets ordered by symbol.
func (s *MarketStore) ListActive(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE is_active ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets rows: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
