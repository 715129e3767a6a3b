package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/engine"
	"github.com/satscex/exchange/internal/repository"
)

// ResolutionService is the thin admin-facing wrapper around the Resolver
// (spec §4.8). The actual settle-bets/cancel-orders/mark-resolved work runs
// as one commit inside the owning market's engine — this service only
// authorises the call and is the entry point the API/backoffice layer uses.
type ResolutionService struct {
	marketRepo *repository.MarketRepository
	manager    *engine.Manager
	log        *slog.Logger
}

func NewResolutionService(marketRepo *repository.MarketRepository, manager *engine.Manager, log *slog.Logger) *ResolutionService {
	return &ResolutionService{marketRepo: marketRepo, manager: manager, log: log}
}

// Resolve settles a market to winningSide (spec §6: ResolveMarket). notes is
// free-form admin commentary persisted alongside the resolution.
func (s *ResolutionService) Resolve(ctx context.Context, marketID uuid.UUID, winningSide domain.Side, notes string) (*engine.ResolveResult, error) {
	if !winningSide.Valid() {
		return nil, domain.ErrInvalidSide
	}

	market, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.Resolve: %w", err)
	}
	if market.Status != domain.MarketStatusOpen && market.Status != domain.MarketStatusPendingResolution {
		return nil, domain.ErrMarketAlreadyResolved
	}

	result, err := s.manager.ResolveMarket(ctx, marketID, winningSide, notes)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.Resolve: %w", err)
	}

	s.log.Info("market resolved",
		"market_id", marketID, "winning_side", winningSide,
		"bets_settled", result.BetsSettled, "orders_cancelled", result.OrdersCancelled)
	return result, nil
}
