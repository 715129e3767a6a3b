package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/satscex/exchange/internal/domain"
)

// MarketRepository handles database operations for Markets.
type MarketRepository struct {
	db *sqlx.DB
}

func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func (r *MarketRepository) Create(ctx context.Context, m *domain.Market) error {
	query := `
		INSERT INTO markets (id, title, type, grandmaster_id, status, resolution, resolution_notes, bot_enabled, created_at)
		VALUES (:id, :title, :type, :grandmaster_id, :status, :resolution, :resolution_notes, :bot_enabled, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("market_repo.Create: %w", err)
	}
	return nil
}

func (r *MarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := r.db.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetByID: %w", err)
	}
	return &m, nil
}

// GetByIDForUpdate locks the market row. The order pipeline does not call it:
// MarketEngine.processOrder reads the market with GetByID, and per-market
// serialization comes from the engine's single command goroutine.
func (r *MarketRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := tx.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetByIDForUpdate: %w", err)
	}
	return &m, nil
}

// ListOpen returns every market currently accepting orders — used at boot to
// decide which markets need an engine goroutine, and by the bot's Deploy.
func (r *MarketRepository) ListOpen(ctx context.Context) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets, `SELECT * FROM markets WHERE status = $1 ORDER BY created_at`, domain.MarketStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("market_repo.ListOpen: %w", err)
	}
	return markets, nil
}

// ListOpenBotEnabled returns open markets eligible for Market-Maker quoting.
func (r *MarketRepository) ListOpenBotEnabled(ctx context.Context) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets,
		`SELECT * FROM markets WHERE status = $1 AND bot_enabled = true ORDER BY created_at`,
		domain.MarketStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("market_repo.ListOpenBotEnabled: %w", err)
	}
	return markets, nil
}

func (r *MarketRepository) List(ctx context.Context, limit, offset int) ([]*domain.Market, int, error) {
	var markets []*domain.Market
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM markets`); err != nil {
		return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
	}
	if err := r.db.SelectContext(ctx, &markets,
		`SELECT * FROM markets ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
	}
	return markets, total, nil
}

// Resolve marks a market resolved with the winning side, inside tx.
// Status-guarded so a double resolution returns ErrMarketAlreadyResolved.
func (r *MarketRepository) Resolve(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, winningSide domain.Side, notes string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET status = $1, resolution = $2, resolution_notes = $3, resolved_at = now()
		WHERE id = $4 AND status IN ($5, $6)`,
		domain.MarketStatusResolved, string(winningSide), notes, marketID,
		domain.MarketStatusOpen, domain.MarketStatusPendingResolution)
	if err != nil {
		return fmt.Errorf("market_repo.Resolve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketAlreadyResolved
	}
	return nil
}

// SetBotEnabled flips whether the Market-Maker Core quotes this market —
// used by admin tooling independent of per-market override_type (spec
// §4.7's quoting eligibility is bot_enabled AND override_type != disable).
func (r *MarketRepository) SetBotEnabled(ctx context.Context, marketID uuid.UUID, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE markets SET bot_enabled = $1 WHERE id = $2`, enabled, marketID)
	if err != nil {
		return fmt.Errorf("market_repo.SetBotEnabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

// Cancel marks a market cancelled (no winning side).
func (r *MarketRepository) Cancel(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets SET status = $1, resolved_at = now()
		WHERE id = $2 AND status IN ($3, $4)`,
		domain.MarketStatusCancelled, marketID,
		domain.MarketStatusOpen, domain.MarketStatusPendingResolution)
	if err != nil {
		return fmt.Errorf("market_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketAlreadyResolved
	}
	return nil
}
