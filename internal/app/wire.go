package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/updownhq/updown/internal/blob/s3"
	"github.com/updownhq/updown/internal/cache/redis"
	"github.com/updownhq/updown/internal/config"
	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/events"
	"github.com/updownhq/updown/internal/feed"
	"github.com/updownhq/updown/internal/notify"
	"github.com/updownhq/updown/internal/price"
	"github.com/updownhq/updown/internal/service"
	"github.com/updownhq/updown/internal/store/memory"
	"github.com/updownhq/updown/internal/store/postgres"
)

// Dependencies bundles everything the engine needs to run. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store  domain.Store
	Bus    *events.Bus
	Oracle *price.Oracle

	Markets    *service.MarketService
	Users      *service.UserService
	Bets       *service.BetService
	Rounds     *service.RoundService
	Settlement *service.SettlementService
	Scheduler  *service.Scheduler

	// Feed is nil when the websocket cache warmer is disabled.
	Feed *feed.BinanceWSFeed
	// Archiver is nil when cold-storage archival is disabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Store ---
	switch cfg.Database.Driver {
	case "memory":
		deps.Store = memory.NewStore()
		logger.InfoContext(ctx, "using in-memory store")
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = postgres.NewStore(pgClient.Pool())
	}

	// --- Event bus ---
	deps.Bus = events.NewBus(logger)

	// --- Redis (optional: price cache + outbound event stream) ---
	var priceCache domain.PriceCache
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		priceCache = redis.NewPriceCache(redisClient, cfg.Redis.CacheTTL.Duration)

		stream := redis.NewEventStream(redisClient, cfg.Redis.EventStream, int64(cfg.Redis.StreamMax))
		deps.Bus.SubscribeAll(stream.Append)
	}

	// --- Price oracle ---
	timeout := cfg.Price.RequestTimeout.Duration
	providers := []domain.PriceProvider{
		price.NewBinanceProvider("", timeout),
		price.NewYahooProvider("", timeout),
	}
	var mock domain.PriceProvider
	if cfg.Price.MockFallback {
		mock = price.NewMockProvider()
	}
	deps.Oracle = price.NewOracle(providers, priceCache, mock, timeout, logger)

	// --- Services ---
	loc, err := cfg.Engine.Location()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	timing := service.Timing{
		RoundDuration:         cfg.Engine.RoundDuration.Duration,
		LockWindow:            cfg.Engine.LockWindow.Duration,
		DailyBettingCloseHour: cfg.Engine.DailyBettingCloseHour,
		DailySettleHour:       cfg.Engine.DailySettleHour,
		Location:              loc,
	}
	clock := domain.RealClock{}

	deps.Markets = service.NewMarketService(deps.Store, deps.Bus, logger)
	deps.Users = service.NewUserService(deps.Store, logger)
	deps.Bets = service.NewBetService(deps.Store, deps.Bus, clock, logger)
	deps.Rounds = service.NewRoundService(deps.Store, deps.Oracle, deps.Bus, clock, timing, logger)
	deps.Settlement = service.NewSettlementService(deps.Store, deps.Oracle, deps.Bus, clock, logger)
	deps.Scheduler = service.NewScheduler(deps.Store, deps.Rounds, deps.Settlement, clock, cfg.Engine.TickInterval.Duration, logger)
	deps.Scheduler.SubscribeTo(deps.Bus)

	// --- Websocket cache warmer ---
	if cfg.Feed.Enabled {
		deps.Feed = feed.NewBinanceWSFeed(cfg.Feed.URL, cfg.Feed.Symbols, deps.Oracle, logger)
	}

	// --- Cold-storage archiver ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client), deps.Store, clock,
			retention, cfg.Archive.Interval.Duration, logger,
		)
	}

	// --- Operator notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if len(senders) > 0 {
		deps.Notifier.SubscribeTo(deps.Bus)
	}

	return deps, cleanup, nil
}
