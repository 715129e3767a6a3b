package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/repository"
)

// BetService is a read-only query layer over settled/pending bets. Bets
// themselves are never placed directly — they're created in matched pairs
// by a market's engine during order matching (spec §4.3) — so there is no
// PlaceBet here, only the position/history views spec §6 exposes.
type BetService struct {
	betRepo *repository.BetRepository
}

func NewBetService(betRepo *repository.BetRepository) *BetService {
	return &BetService{betRepo: betRepo}
}

// GetPositions returns one row per market the user holds pending bets in,
// with net YES/NO shares and cost basis (spec §6: GetPositions).
func (s *BetService) GetPositions(ctx context.Context, userID uuid.UUID) ([]*domain.Position, error) {
	positions, err := s.betRepo.PositionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.GetPositions: %w", err)
	}
	return positions, nil
}
