package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/updownhq/updown/internal/domain"
)

// archiveBatchSize bounds one archival query; older rounds are picked up by
// subsequent runs.
const archiveBatchSize = 500

// BlobWriter is the upload surface the archiver needs. Satisfied by *Writer.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports settled rounds past the retention window, together with
// their bets, as JSONL objects under archive/rounds/YYYY-MM/.
//
// Deletion of the archived rows from the primary store is intentionally not
// performed here; pruning is a separate, explicit operational step run after
// the archive has been verified.
type Archiver struct {
	writer    BlobWriter
	store     domain.Store
	clock     domain.Clock
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver keeping retention worth of settled rounds
// in the primary store and sweeping every interval.
func NewArchiver(writer BlobWriter, store domain.Store, clock domain.Clock, retention, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		store:     store,
		clock:     clock,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// archivedRound is one JSONL line: a settled round with its bets inlined.
type archivedRound struct {
	Round archivedRoundRecord `json:"round"`
	Bets  []archivedBetRecord `json:"bets"`
}

type archivedRoundRecord struct {
	ID            string     `json:"id"`
	MarketID      string     `json:"marketId"`
	Number        int64      `json:"number"`
	Outcome       string     `json:"outcome"`
	StartPrice    string     `json:"startPrice,omitempty"`
	LockPrice     string     `json:"lockPrice,omitempty"`
	EndPrice      string     `json:"endPrice,omitempty"`
	TotalUpPool   string     `json:"totalUpPool"`
	TotalDownPool string     `json:"totalDownPool"`
	StartsAt      time.Time  `json:"startsAt"`
	BettingEndsAt time.Time  `json:"bettingEndsAt"`
	SettlesAt     time.Time  `json:"settlesAt"`
	SettledAt     *time.Time `json:"settledAt,omitempty"`
}

type archivedBetRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Position  string     `json:"position"`
	Amount    string     `json:"amount"`
	Status    string     `json:"status"`
	Payout    string     `json:"payout,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Run archives once immediately, then on every interval until ctx is
// cancelled. Call in a goroutine.
func (a *Archiver) Run(ctx context.Context) error {
	if _, err := a.ArchiveOnce(ctx); err != nil {
		a.logger.ErrorContext(ctx, "archive sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOnce exports one batch of settled rounds older than the retention
// window and returns the number of rounds archived.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	cutoff := a.clock.Now().Add(-a.retention)
	rounds, err := a.store.Rounds().ListSettledBefore(ctx, cutoff, domain.ListOpts{Limit: archiveBatchSize})
	if err != nil {
		return 0, fmt.Errorf("s3blob: list settled rounds: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, round := range rounds {
		bets, err := a.store.Bets().ListByRound(ctx, round.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: list bets for round %s: %w", round.ID, err)
		}
		if err := enc.Encode(toArchived(round, bets)); err != nil {
			return 0, fmt.Errorf("s3blob: marshal round %s: %w", round.ID, err)
		}
	}

	path := fmt.Sprintf("archive/rounds/%s/%d.jsonl",
		cutoff.UTC().Format("2006-01"), a.clock.Now().UnixNano())
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive: %w", err)
	}

	a.logger.InfoContext(ctx, "rounds archived",
		slog.Int("count", len(rounds)),
		slog.String("path", path),
	)

	return len(rounds), nil
}

func toArchived(round domain.Round, bets []domain.Bet) archivedRound {
	rec := archivedRound{
		Round: archivedRoundRecord{
			ID:            round.ID,
			MarketID:      round.MarketID,
			Number:        round.Number,
			Outcome:       string(round.Outcome),
			TotalUpPool:   round.TotalUpPool.String(),
			TotalDownPool: round.TotalDownPool.String(),
			StartsAt:      round.StartsAt,
			BettingEndsAt: round.BettingEndsAt,
			SettlesAt:     round.SettlesAt,
			SettledAt:     round.SettledAt,
		},
	}
	if round.StartPrice.Valid {
		rec.Round.StartPrice = round.StartPrice.Decimal.String()
	}
	if round.LockPrice.Valid {
		rec.Round.LockPrice = round.LockPrice.Decimal.String()
	}
	if round.EndPrice.Valid {
		rec.Round.EndPrice = round.EndPrice.Decimal.String()
	}

	rec.Bets = make([]archivedBetRecord, 0, len(bets))
	for _, bet := range bets {
		b := archivedBetRecord{
			ID:        bet.ID,
			UserID:    bet.UserID,
			Position:  string(bet.Position),
			Amount:    bet.Amount.String(),
			Status:    string(bet.Status),
			ClaimedAt: bet.ClaimedAt,
			CreatedAt: bet.CreatedAt,
		}
		if bet.Payout.Valid {
			b.Payout = bet.Payout.Decimal.String()
		}
		rec.Bets = append(rec.Bets, b)
	}
	return rec
}
