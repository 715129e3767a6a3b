// Package mm implements the pure scaling arithmetic behind the Market-Maker
// Core's buy curve (spec §4.7). Nothing here touches the database or the
// order pipeline — internal/service.MMService is the stateful orchestrator
// that reads/writes exposure and calls the pipeline; this package only
// answers "how much should the bot be quoting at this price right now."
package mm

import (
	"github.com/satscex/exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// TargetAmount computes A_target(p, m) = floor(w_p * G * mult_m * r), the
// sats the bot should have resting at one curve price point given the
// current global multiplier, per-market multiplier, and pullback ratio.
func TargetAmount(weightSats int64, globalMultiplier, marketMultiplier, pullbackRatio decimal.Decimal) int64 {
	scaled := decimal.NewFromInt(weightSats).
		Mul(globalMultiplier).
		Mul(marketMultiplier).
		Mul(pullbackRatio)
	if scaled.IsNegative() {
		return 0
	}
	return scaled.Floor().IntPart()
}

// EffectiveMultiplier folds a market's override into the multiplier applied
// at that market: disable zeroes the curve entirely, scale substitutes the
// admin-set multiplier, and no-override defaults to 1.
func EffectiveMultiplier(override *domain.BotMarketOverride) decimal.Decimal {
	if override == nil {
		return decimal.NewFromInt(1)
	}
	switch override.OverrideType {
	case domain.OverrideDisable:
		return decimal.Zero
	case domain.OverrideScale:
		return override.Multiplier
	default:
		return decimal.NewFromInt(1)
	}
}

// PlanStep is one price point's reconciliation instruction: how far the
// bot's resting amount at this price needs to move to reach target.
type PlanStep struct {
	PriceCents int
	Current    int64
	Target     int64
}

// Delta is Target - Current; positive means the bot needs to add resting
// sats at this price, negative means it needs to cancel down to Target.
func (p PlanStep) Delta() int64 {
	return p.Target - p.Current
}

// BuildPlan pairs each curve point's target amount against the bot's
// current resting amount at that price, producing the ordered list of
// price-level adjustments a reconciliation pass must apply.
func BuildPlan(curve []domain.BuyCurvePoint, currentByPrice map[int]int64, globalMultiplier, marketMultiplier, pullbackRatio decimal.Decimal) []PlanStep {
	plan := make([]PlanStep, 0, len(curve))
	for _, point := range curve {
		target := TargetAmount(point.WeightSats, globalMultiplier, marketMultiplier, pullbackRatio)
		plan = append(plan, PlanStep{
			PriceCents: point.PriceCents,
			Current:    currentByPrice[point.PriceCents],
			Target:     target,
		})
	}
	return plan
}
