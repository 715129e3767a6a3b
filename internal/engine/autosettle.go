package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/satscex/exchange/internal/domain"
)

// autoSettle implements spec §4.5: whenever a fill leaves a user holding
// pending bets on both sides of the same market, the offsetting portion is
// worth exactly its face value regardless of how the market resolves (one
// side always wins), so it is redeemed immediately rather than carried to
// resolution. M = min(pending YES sats, pending NO sats) is extinguished,
// oldest bets first on each side, and the user is credited M sats.
//
// Runs inside the same transaction as the order placement it follows, so a
// rollback of the placement also rolls back the auto-settle.
func (e *MarketEngine) autoSettle(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID, now time.Time) (*AutoSettleResult, error) {
	yesBets, err := e.betRepo.PendingByUserMarket(ctx, tx, userID, marketID, domain.SideYes)
	if err != nil {
		return nil, err
	}
	noBets, err := e.betRepo.PendingByUserMarket(ctx, tx, userID, marketID, domain.SideNo)
	if err != nil {
		return nil, err
	}

	var yesTotal, noTotal int64
	for _, b := range yesBets {
		yesTotal += b.AmountSats
	}
	for _, b := range noBets {
		noTotal += b.AmountSats
	}

	m := yesTotal
	if noTotal < m {
		m = noTotal
	}
	if m <= 0 {
		return nil, nil
	}

	if err := extinguish(ctx, tx, e.betRepo, yesBets, m); err != nil {
		return nil, err
	}
	if err := extinguish(ctx, tx, e.betRepo, noBets, m); err != nil {
		return nil, err
	}

	if _, err := e.ledgerRepo.Credit(ctx, tx, userID, m, domain.TxAutoSettle, &marketID); err != nil {
		return nil, err
	}

	return &AutoSettleResult{PayoutSats: m}, nil
}

// extinguish consumes amountSats worth of face value from bets, oldest
// first, shrinking or deleting each row as it is consumed.
func extinguish(ctx context.Context, tx *sqlx.Tx, betRepo betShrinker, bets []*domain.Bet, amountSats int64) error {
	remaining := amountSats
	for _, b := range bets {
		if remaining <= 0 {
			break
		}
		take := b.AmountSats
		if take > remaining {
			take = remaining
		}
		if err := betRepo.ShrinkAmount(ctx, tx, b.ID, b.AmountSats-take); err != nil {
			return err
		}
		remaining -= take
	}
	return nil
}

// betShrinker is the minimal surface extinguish needs from BetRepository —
// declared here so this file doesn't need to know the repository's full API.
type betShrinker interface {
	ShrinkAmount(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID, newAmountSats int64) error
}
