package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/satscex/exchange/internal/domain"
)

// BetRepository handles database operations for Bets.
type BetRepository struct {
	db *sqlx.DB
}

func NewBetRepository(db *sqlx.DB) *BetRepository {
	return &BetRepository{db: db}
}

// CreatePair inserts the two bet rows produced by a single match (spec P3).
func (r *BetRepository) CreatePair(ctx context.Context, tx *sqlx.Tx, yesBet, noBet *domain.Bet) error {
	query := `
		INSERT INTO bets (id, market_id, side, user_id, counterparty_user_id, price_cents, amount_sats, result, taker_order_id, maker_order_id, created_at)
		VALUES (:id, :market_id, :side, :user_id, :counterparty_user_id, :price_cents, :amount_sats, :result, :taker_order_id, :maker_order_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, yesBet); err != nil {
		return fmt.Errorf("bet_repo.CreatePair: yes bet: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, query, noBet); err != nil {
		return fmt.Errorf("bet_repo.CreatePair: no bet: %w", err)
	}
	return nil
}

// PendingByUserMarket returns the user's still-pending bets in one market,
// FIFO by created_at — the exact input auto-settle walks to find M =
// min(Y,N) and extinguish the oldest offsetting pairs first.
func (r *BetRepository) PendingByUserMarket(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID, side domain.Side) ([]*domain.Bet, error) {
	var bets []*domain.Bet
	err := tx.SelectContext(ctx, &bets, `
		SELECT * FROM bets
		WHERE user_id = $1 AND market_id = $2 AND side = $3 AND result = $4
		ORDER BY created_at ASC
		FOR UPDATE`,
		userID, marketID, side, domain.BetResultPending)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.PendingByUserMarket: %w", err)
	}
	return bets, nil
}

// ShrinkAmount sets a pending bet's face value after auto-settle has
// extinguished part or all of it. A newAmountSats of zero deletes the bet row
// (its whole face was consumed); any other value updates amount_sats in place
// (a partial extinguish of the oldest bet when M doesn't divide evenly across
// bet rows). Auto-settle operates on the aggregate position, so no
// resolution result is written.
func (r *BetRepository) ShrinkAmount(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID, newAmountSats int64) error {
	if newAmountSats == 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM bets WHERE id = $1`, betID)
		if err != nil {
			return fmt.Errorf("bet_repo.ShrinkAmount: delete: %w", err)
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE bets SET amount_sats = $1 WHERE id = $2`, newAmountSats, betID)
	if err != nil {
		return fmt.Errorf("bet_repo.ShrinkAmount: update: %w", err)
	}
	return nil
}

// PendingByMarketForUpdate returns every pending bet in a market, locked —
// used by the Resolver to settle every outstanding bet in one commit.
func (r *BetRepository) PendingByMarketForUpdate(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) ([]*domain.Bet, error) {
	var bets []*domain.Bet
	err := tx.SelectContext(ctx, &bets, `
		SELECT * FROM bets WHERE market_id = $1 AND result = $2 FOR UPDATE`,
		marketID, domain.BetResultPending)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.PendingByMarketForUpdate: %w", err)
	}
	return bets, nil
}

// SetResult finalises a bet's outcome at resolution time.
func (r *BetRepository) SetResult(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID, result domain.BetResult) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bets SET result = $1, settled_at = now() WHERE id = $2 AND result = $3`,
		result, betID, domain.BetResultPending)
	if err != nil {
		return fmt.Errorf("bet_repo.SetResult: %w", err)
	}
	return nil
}

// PositionsByUser aggregates a user's net YES/NO exposure and cost basis per
// market — backs GetPositions.
func (r *BetRepository) PositionsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.db.SelectContext(ctx, &positions, `
		SELECT
			market_id,
			COALESCE(SUM(amount_sats) FILTER (WHERE side = 'yes' AND result = 'pending'), 0) AS yes_shares,
			COALESCE(SUM(amount_sats) FILTER (WHERE side = 'no' AND result = 'pending'), 0) AS no_shares,
			COALESCE(SUM(amount_sats * price_cents) FILTER (WHERE side = 'yes' AND result = 'pending'), 0) / 100 +
			COALESCE(SUM(amount_sats * (100 - price_cents)) FILTER (WHERE side = 'no' AND result = 'pending'), 0) / 100 AS cost_basis
		FROM bets
		WHERE user_id = $1
		GROUP BY market_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.PositionsByUser: %w", err)
	}
	return positions, nil
}

// ExposureByBotMarket returns the bot's worst-case-loss components for one
// market: sum of pending YES-owner face, sum of pending NO-owner face.
func (r *BetRepository) ExposureByBotMarket(ctx context.Context, botUserID, marketID uuid.UUID) (pendingYes, pendingNo int64, err error) {
	row := struct {
		PendingYes int64 `db:"pending_yes"`
		PendingNo  int64 `db:"pending_no"`
	}{}
	err = r.db.GetContext(ctx, &row, `
		SELECT
			COALESCE(SUM(amount_sats) FILTER (WHERE side = 'yes'), 0) AS pending_yes,
			COALESCE(SUM(amount_sats) FILTER (WHERE side = 'no'), 0) AS pending_no
		FROM bets
		WHERE user_id = $1 AND market_id = $2 AND result = 'pending'`,
		botUserID, marketID)
	if err != nil {
		return 0, 0, fmt.Errorf("bet_repo.ExposureByBotMarket: %w", err)
	}
	return row.PendingYes, row.PendingNo, nil
}
