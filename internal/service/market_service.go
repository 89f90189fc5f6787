package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// MarketService manages market configuration. Creation publishes
// market.created, which the scheduler uses to seed the market's first round
// without waiting for the next sweep.
type MarketService struct {
	store  domain.Store
	bus    domain.EventBus
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(store domain.Store, bus domain.EventBus, logger *slog.Logger) *MarketService {
	return &MarketService{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarketParams are the operator-provided fields of a new market.
type CreateMarketParams struct {
	Symbol   string
	Name     string
	Category domain.AssetCategory
	Type     domain.MarketType
	MinBet   decimal.Decimal
	MaxBet   decimal.Decimal
	FeeRate  decimal.Decimal
}

// CreateMarket validates and persists a new active market.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return domain.Market{}, fmt.Errorf("market_service: symbol is required: %w", domain.ErrInvalidArgument)
	}
	if p.Type != domain.MarketTypeInterval && p.Type != domain.MarketTypeDaily {
		return domain.Market{}, fmt.Errorf("market_service: market type %q: %w", p.Type, domain.ErrInvalidArgument)
	}
	if p.Category != domain.AssetCrypto && p.Category != domain.AssetEquityIndex {
		return domain.Market{}, fmt.Errorf("market_service: asset category %q: %w", p.Category, domain.ErrInvalidArgument)
	}
	if !p.MinBet.IsPositive() || p.MaxBet.LessThan(p.MinBet) {
		return domain.Market{}, fmt.Errorf("market_service: bet limits [%s, %s]: %w", p.MinBet, p.MaxBet, domain.ErrInvalidArgument)
	}
	if p.FeeRate.IsNegative() || p.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.Market{}, fmt.Errorf("market_service: fee rate %s must be in [0, 1): %w", p.FeeRate, domain.ErrInvalidArgument)
	}

	market := domain.Market{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Name:     p.Name,
		Category: p.Category,
		Type:     p.Type,
		MinBet:   p.MinBet,
		MaxBet:   p.MaxBet,
		FeeRate:  p.FeeRate,
		Active:   true,
	}
	if err := s.store.Markets().Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market %s: %w", symbol, err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("symbol", symbol),
		slog.String("type", string(market.Type)),
	)

	s.bus.Publish(ctx, domain.MarketCreatedEvent{MarketID: market.ID, Symbol: symbol})

	return market, nil
}

// GetMarket returns a market by symbol.
func (s *MarketService) GetMarket(ctx context.Context, symbol string) (domain.Market, error) {
	market, err := s.store.Markets().GetBySymbol(ctx, symbol)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", symbol, err)
	}
	return market, nil
}

// ListActiveMarkets returns all active markets.
func (s *MarketService) ListActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.store.Markets().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}
