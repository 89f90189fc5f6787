package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownhq/updown/internal/domain"
)

// querier is the subset of pgx operations shared by *pgxpool.Pool and
// pgx.Tx, letting the same store code run pooled or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store. Outside a transaction its sub-stores run on
// the pool; InTx rebinds them to a single pgx.Tx so row locks taken by
// GetForUpdate hold until commit or rollback.
type Store struct {
	db   querier
	pool *pgxpool.Pool // nil inside a transaction
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

func (s *Store) Markets() domain.MarketStore { return &MarketStore{db: s.db} }
func (s *Store) Rounds() domain.RoundStore   { return &RoundStore{db: s.db} }
func (s *Store) Bets() domain.BetStore       { return &BetStore{db: s.db} }
func (s *Store) Users() domain.UserStore     { return &UserStore{db: s.db} }

// InTx runs fn inside a single database transaction. Nested calls reuse the
// surrounding transaction.
func (s *Store) InTx(ctx context.Context, fn func(domain.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// uniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
