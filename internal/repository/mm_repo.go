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

// MMRepository persists Market-Maker Core risk state: config, exposure,
// per-market overrides, buy curves, and the activity log.
type MMRepository struct {
	db *sqlx.DB
}

func NewMMRepository(db *sqlx.DB) *MMRepository {
	return &MMRepository{db: db}
}

func (r *MMRepository) GetConfig(ctx context.Context) (*domain.MarketMakerConfig, error) {
	var cfg domain.MarketMakerConfig
	err := r.db.GetContext(ctx, &cfg, `SELECT * FROM bot_config LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("mm_repo.GetConfig: %w", err)
	}
	return &cfg, nil
}

func (r *MMRepository) UpdateConfig(ctx context.Context, cfg *domain.MarketMakerConfig) error {
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE bot_config SET
			max_acceptable_loss_sats = :max_acceptable_loss_sats,
			threshold_percent = :threshold_percent,
			global_multiplier = :global_multiplier,
			is_active = :is_active,
			withdrawal_review_threshold_sats = :withdrawal_review_threshold_sats,
			updated_at = now()
		WHERE bot_user_id = :bot_user_id`, cfg)
	if err != nil {
		return fmt.Errorf("mm_repo.UpdateConfig: %w", err)
	}
	return nil
}

// GetExposureForUpdate locks the single-row bot_exposure table. Nothing in
// this repository calls it: order-pipeline commits that create or fill a bot
// order do not lock bot_exposure, and reconciliation writes the row through
// UpdateExposureDirect.
func (r *MMRepository) GetExposureForUpdate(ctx context.Context, tx *sqlx.Tx) (*domain.BotExposure, error) {
	var exp domain.BotExposure
	err := tx.GetContext(ctx, &exp, `SELECT * FROM bot_exposure LIMIT 1 FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("mm_repo.GetExposureForUpdate: %w", err)
	}
	return &exp, nil
}

func (r *MMRepository) GetExposure(ctx context.Context) (*domain.BotExposure, error) {
	var exp domain.BotExposure
	err := r.db.GetContext(ctx, &exp, `SELECT * FROM bot_exposure LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("mm_repo.GetExposure: %w", err)
	}
	return &exp, nil
}

func (r *MMRepository) UpdateExposure(ctx context.Context, tx *sqlx.Tx, totalAtRisk int64, tier int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bot_exposure SET total_at_risk_sats = $1, current_tier = $2, updated_at = now()`,
		totalAtRisk, tier)
	if err != nil {
		return fmt.Errorf("mm_repo.UpdateExposure: %w", err)
	}
	return nil
}

// UpdateExposureDirect is UpdateExposure without an enclosing transaction —
// the reconciliation pass recomputes exposure from several independent
// reads rather than one locked snapshot, so there is no single tx to share;
// the bot_exposure row itself is still the single-writer-at-a-time summary
// other readers see.
func (r *MMRepository) UpdateExposureDirect(ctx context.Context, totalAtRisk int64, tier int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bot_exposure SET total_at_risk_sats = $1, current_tier = $2, updated_at = now()`,
		totalAtRisk, tier)
	if err != nil {
		return fmt.Errorf("mm_repo.UpdateExposureDirect: %w", err)
	}
	return nil
}

func (r *MMRepository) GetOverride(ctx context.Context, marketID uuid.UUID) (*domain.BotMarketOverride, error) {
	var o domain.BotMarketOverride
	err := r.db.GetContext(ctx, &o, `SELECT * FROM bot_market_overrides WHERE market_id = $1`, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no override is the common case, not an error
		}
		return nil, fmt.Errorf("mm_repo.GetOverride: %w", err)
	}
	return &o, nil
}

func (r *MMRepository) SetOverride(ctx context.Context, o *domain.BotMarketOverride) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO bot_market_overrides (market_id, override_type, multiplier)
		VALUES (:market_id, :override_type, :multiplier)
		ON CONFLICT (market_id) DO UPDATE SET
			override_type = EXCLUDED.override_type,
			multiplier = EXCLUDED.multiplier`, o)
	if err != nil {
		return fmt.Errorf("mm_repo.SetOverride: %w", err)
	}
	return nil
}

func (r *MMRepository) GetBuyCurve(ctx context.Context, marketType domain.MarketType, side domain.Side) ([]domain.BuyCurvePoint, error) {
	var points []domain.BuyCurvePoint
	err := r.db.SelectContext(ctx, &points, `
		SELECT price_cents, weight_sats FROM bot_buy_curves
		WHERE market_type = $1 AND side = $2
		ORDER BY price_cents`, marketType, side)
	if err != nil {
		return nil, fmt.Errorf("mm_repo.GetBuyCurve: %w", err)
	}
	return points, nil
}

// SetBuyCurve replaces the curve for one market type and side atomically.
func (r *MMRepository) SetBuyCurve(ctx context.Context, marketType domain.MarketType, side domain.Side, points []domain.BuyCurvePoint) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("mm_repo.SetBuyCurve: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM bot_buy_curves WHERE market_type = $1 AND side = $2`, marketType, side); err != nil {
		return fmt.Errorf("mm_repo.SetBuyCurve: delete: %w", err)
	}
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bot_buy_curves (market_type, side, price_cents, weight_sats)
			VALUES ($1, $2, $3, $4)`, marketType, side, p.PriceCents, p.WeightSats); err != nil {
			return fmt.Errorf("mm_repo.SetBuyCurve: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mm_repo.SetBuyCurve: commit: %w", err)
	}
	return nil
}

// AppendActivity writes one row to the bot's audit log (spec §4.7).
func (r *MMRepository) AppendActivity(ctx context.Context, log *domain.BotActivityLog) error {
	log.ID = uuid.New()
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO bot_activity_log (id, action, market_id, exposure_before, exposure_after, details, created_at)
		VALUES (:id, :action, :market_id, :exposure_before, :exposure_after, :details, now())`, log)
	if err != nil {
		return fmt.Errorf("mm_repo.AppendActivity: %w", err)
	}
	return nil
}
