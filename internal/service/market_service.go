package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/engine"
	"github.com/satscex/exchange/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// MarketService
// ──────────────────────────────────────────────────────────────────────────────

// MarketService handles market lifecycle: creation, querying, and the admin
// toggles that don't belong to the engine's own command pipeline. Market
// resolution itself is ResolutionService's job, not this one's.
type MarketService struct {
	marketRepo *repository.MarketRepository
	manager    *engine.Manager
	log        *slog.Logger

	// short-TTL listing cache — the open-markets list is read on every book
	// page load. CreateMarket invalidates it; a market resolved through
	// ResolutionService leaves it only when the TTL expires.
	listMu        sync.RWMutex
	openCache     []*domain.Market
	openCacheTime time.Time
}

func NewMarketService(marketRepo *repository.MarketRepository, manager *engine.Manager, log *slog.Logger) *MarketService {
	return &MarketService{marketRepo: marketRepo, manager: manager, log: log}
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateMarket
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarket opens a new market and immediately starts its engine
// goroutine so it can accept orders without a process restart.
func (s *MarketService) CreateMarket(ctx context.Context, title string, marketType domain.MarketType, grandmasterID *uuid.UUID, botEnabled bool) (*domain.Market, error) {
	if !validMarketType(marketType) {
		return nil, fmt.Errorf("market_service.CreateMarket: invalid market type %q", marketType)
	}

	m := &domain.Market{
		ID:            uuid.New(),
		Title:         title,
		Type:          marketType,
		GrandmasterID: grandmasterID,
		Status:        domain.MarketStatusOpen,
		Resolution:    domain.ResolutionNone,
		BotEnabled:    botEnabled,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.marketRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: db: %w", err)
	}

	if err := s.manager.StartEngine(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: start engine: %w", err)
	}

	s.invalidateOpenCache()
	s.log.Info("market created", "market_id", m.ID, "type", m.Type, "bot_enabled", m.BotEnabled)
	return m, nil
}

func validMarketType(t domain.MarketType) bool {
	switch t {
	case domain.MarketTypeEvent, domain.MarketTypeAttendance, domain.MarketTypeWinner:
		return true
	default:
		return false
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

func (s *MarketService) GetMarket(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	m, err := s.marketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market_service.GetMarket: %w", err)
	}
	return m, nil
}

// ListOpenMarkets is the hot path for the book-listing page — cached for a
// short window since it's read far more often than markets open or close.
func (s *MarketService) ListOpenMarkets(ctx context.Context) ([]*domain.Market, error) {
	const cacheDuration = 2 * time.Second

	s.listMu.RLock()
	if s.openCache != nil && time.Since(s.openCacheTime) < cacheDuration {
		cached := s.openCache
		s.listMu.RUnlock()
		return cached, nil
	}
	s.listMu.RUnlock()

	markets, err := s.marketRepo.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service.ListOpenMarkets: %w", err)
	}

	s.listMu.Lock()
	s.openCache = markets
	s.openCacheTime = time.Now()
	s.listMu.Unlock()

	return markets, nil
}

// ListMarkets returns a paginated, unfiltered view across every lifecycle
// status — used by history/admin pages rather than the live book listing.
func (s *MarketService) ListMarkets(ctx context.Context, limit, offset int) ([]*domain.Market, int, error) {
	markets, total, err := s.marketRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service.ListMarkets: %w", err)
	}
	return markets, total, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin operations
// ──────────────────────────────────────────────────────────────────────────────

// SetBotEnabled toggles Market-Maker Core quoting eligibility for a market.
// Does not itself trigger a reconciliation pass — MMService.Deploy or the
// next config/fill-triggered reconciliation will pick up the change.
func (s *MarketService) SetBotEnabled(ctx context.Context, marketID uuid.UUID, enabled bool) error {
	if err := s.marketRepo.SetBotEnabled(ctx, marketID, enabled); err != nil {
		return fmt.Errorf("market_service.SetBotEnabled: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func (s *MarketService) invalidateOpenCache() {
	s.listMu.Lock()
	s.openCache = nil
	s.openCacheTime = time.Time{}
	s.listMu.Unlock()
}
