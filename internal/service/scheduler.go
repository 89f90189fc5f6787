package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/events"
)

// Scheduler drives the round lifecycle. Every tick it locks expired open
// rounds, settles due locked rounds, and opens the next round for any active
// market without a current one, in that order, so a single sweep moves a
// market through lock, settle, and re-open in one pass.
type Scheduler struct {
	store      domain.Store
	rounds     *RoundService
	settlement *SettlementService
	clock      domain.Clock
	interval   time.Duration
	logger     *slog.Logger

	// sweeping rejects overlapping sweeps when a tick outlasts the interval.
	sweeping sync.Mutex
}

// NewScheduler creates a Scheduler sweeping every interval.
func NewScheduler(store domain.Store, rounds *RoundService, settlement *SettlementService, clock domain.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		rounds:     rounds,
		settlement: settlement,
		clock:      clock,
		interval:   interval,
		logger:     logger.With(slog.String("component", "scheduler")),
	}
}

// SubscribeTo registers the scheduler's event interests: a new market gets
// its first round opened immediately instead of waiting for the next sweep.
func (s *Scheduler) SubscribeTo(bus *events.Bus) {
	bus.Subscribe(domain.EventMarketCreated, func(ctx context.Context, e domain.Event) error {
		created, ok := e.(domain.MarketCreatedEvent)
		if !ok {
			return nil
		}
		market, err := s.store.Markets().GetByID(ctx, created.MarketID)
		if err != nil {
			return err
		}
		_, err = s.rounds.EnsureCurrentRound(ctx, market)
		return err
	})
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// Call in a goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one lock/settle/open pass. A sweep already in progress makes
// this call a no-op. Failures are isolated per round and per market; one
// broken market never stalls the others.
func (s *Scheduler) Sweep(ctx context.Context) {
	if !s.sweeping.TryLock() {
		s.logger.WarnContext(ctx, "sweep still running, skipping tick")
		return
	}
	defer s.sweeping.Unlock()

	now := s.clock.Now()
	s.lockDue(ctx, now)
	s.settleDue(ctx, now)
	s.openMissing(ctx)
}

func (s *Scheduler) lockDue(ctx context.Context, now time.Time) {
	due, err := s.store.Rounds().ListToLock(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "list rounds to lock failed", slog.String("error", err.Error()))
		return
	}
	for _, round := range due {
		if _, err := s.rounds.Lock(ctx, round.ID); err != nil {
			// A concurrent instance may have locked it first.
			if errors.Is(err, domain.ErrRoundNotOpen) {
				continue
			}
			s.logger.ErrorContext(ctx, "lock round failed",
				slog.String("round_id", round.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Scheduler) settleDue(ctx context.Context, now time.Time) {
	due, err := s.store.Rounds().ListToSettle(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "list rounds to settle failed", slog.String("error", err.Error()))
		return
	}
	for _, round := range due {
		if _, err := s.settlement.Settle(ctx, round.ID); err != nil {
			if errors.Is(err, domain.ErrRoundNotLocked) {
				continue
			}
			s.logger.ErrorContext(ctx, "settle round failed",
				slog.String("round_id", round.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Scheduler) openMissing(ctx context.Context) {
	markets, err := s.store.Markets().ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list active markets failed", slog.String("error", err.Error()))
		return
	}
	for _, market := range markets {
		if _, err := s.rounds.EnsureCurrentRound(ctx, market); err != nil {
			// A concurrent instance may have created the round first.
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			s.logger.ErrorContext(ctx, "open round failed",
				slog.String("market", market.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}
