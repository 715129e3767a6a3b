package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketMakerConfig is the bot's global risk configuration. Ratios
// (threshold_percent as a whole-number percent such as 10, global_multiplier) are
// dimensionless scaling factors, not money, so they are the one place in the
// domain model that legitimately uses decimal.Decimal rather than int64 sats.
type MarketMakerConfig struct {
	BotUserID                      uuid.UUID       `db:"bot_user_id" json:"bot_user_id"`
	MaxAcceptableLossSats           int64           `db:"max_acceptable_loss_sats" json:"max_acceptable_loss_sats"`
	ThresholdPercent                decimal.Decimal `db:"threshold_percent" json:"threshold_percent"`
	GlobalMultiplier                decimal.Decimal `db:"global_multiplier" json:"global_multiplier"`
	IsActive                        bool            `db:"is_active" json:"is_active"`
	WithdrawalReviewThresholdSats   int64           `db:"withdrawal_review_threshold_sats" json:"withdrawal_review_threshold_sats"`
	UpdatedAt                       time.Time       `db:"updated_at" json:"updated_at"`
}

// BotExposure is the aggregate risk row, written by the Market-Maker Core's
// reconciliation pass under MMService's mutex. Order-pipeline commits that
// create or fill a bot order neither read nor lock it.
type BotExposure struct {
	TotalAtRiskSats int64     `db:"total_at_risk_sats" json:"total_at_risk_sats"`
	CurrentTier     int       `db:"current_tier" json:"current_tier"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ComputeTier returns floor(100 * atRisk / maxLoss / thresholdPercent).
// thresholdPercent is expressed as a whole-number percent (e.g. 10 means
// tiers are 10 percentage points of max_loss wide).
func ComputeTier(atRiskSats, maxLossSats int64, thresholdPercent decimal.Decimal) int {
	if maxLossSats <= 0 || thresholdPercent.IsZero() {
		return 0
	}
	ratio := decimal.NewFromInt(atRiskSats).Div(decimal.NewFromInt(maxLossSats))
	tier := ratio.Mul(decimal.NewFromInt(100)).Div(thresholdPercent)
	return int(tier.Floor().IntPart())
}

// PullbackRatio returns max(0, 1 - atRisk/maxLoss), clamped to [0,1].
func PullbackRatio(atRiskSats, maxLossSats int64) decimal.Decimal {
	if maxLossSats <= 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromInt(1).Sub(
		decimal.NewFromInt(atRiskSats).Div(decimal.NewFromInt(maxLossSats)),
	)
	if ratio.IsNegative() {
		return decimal.Zero
	}
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return ratio
}

// BuyCurvePoint is one (price, weight) pair on a market type's base quote
// shape, "raw sats at full scale" (global_multiplier=1, per-market
// multiplier=1, pullback_ratio=1).
type BuyCurvePoint struct {
	PriceCents int   `db:"price_cents" json:"price_cents"`
	WeightSats int64 `db:"weight_sats" json:"weight_sats"`
}

// BuyCurve is the ordered list of quote points for one market type and side.
type BuyCurve struct {
	MarketType MarketType      `db:"market_type" json:"market_type"`
	Side       Side            `db:"side" json:"side"`
	Points     []BuyCurvePoint `json:"points"`
}

// MarketOverrideType lets an admin exclude a market from bot quoting or
// scale it independently of the global multiplier.
type MarketOverrideType string

const (
	OverrideNone     MarketOverrideType = "none"
	OverrideDisable  MarketOverrideType = "disable"
	OverrideScale    MarketOverrideType = "scale"
)

// BotMarketOverride is a per-market multiplier or disable flag for the bot.
type BotMarketOverride struct {
	MarketID     uuid.UUID          `db:"market_id" json:"market_id"`
	OverrideType MarketOverrideType `db:"override_type" json:"override_type"`
	Multiplier   decimal.Decimal    `db:"multiplier" json:"multiplier"`
}

// BotActivityAction enumerates the events §4.7 requires to be logged.
type BotActivityAction string

const (
	ActivityDeploy        BotActivityAction = "deploy"
	ActivityWithdraw      BotActivityAction = "withdraw"
	ActivityReconcile     BotActivityAction = "reconcile"
	ActivityTierChange    BotActivityAction = "tier_change"
)

// BotActivityLog is an append-only audit row for every deploy, withdraw,
// reconciliation, and tier-change event (spec §4.7 "Activity Log").
type BotActivityLog struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	Action          BotActivityAction `db:"action" json:"action"`
	MarketID        *uuid.UUID        `db:"market_id" json:"market_id,omitempty"`
	ExposureBefore  int64             `db:"exposure_before" json:"exposure_before"`
	ExposureAfter   int64             `db:"exposure_after" json:"exposure_after"`
	Details         string            `db:"details" json:"details"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}
