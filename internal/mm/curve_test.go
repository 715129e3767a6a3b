package mm_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/mm"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TestTargetAmount covers P5's scaling formula at full scale and under
// each independent multiplier, plus the floor (never round up bot exposure).
func TestTargetAmount(t *testing.T) {
	cases := []struct {
		name             string
		weightSats       int64
		globalMultiplier decimal.Decimal
		marketMultiplier decimal.Decimal
		pullbackRatio    decimal.Decimal
		want             int64
	}{
		{"full_scale", 1000, dec("1"), dec("1"), dec("1"), 1000},
		{"half_global", 1000, dec("0.5"), dec("1"), dec("1"), 500},
		{"zero_pullback_at_risk_cap", 1000, dec("1"), dec("1"), dec("0"), 0},
		{"market_disabled", 1000, dec("1"), dec("0"), dec("1"), 0},
		{"combined_scaling_floors", 333, dec("0.5"), dec("1"), dec("1"), 166}, // 166.5 -> floor 166
		{"market_scale_up", 1000, dec("1"), dec("1.5"), dec("1"), 1500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mm.TargetAmount(tc.weightSats, tc.globalMultiplier, tc.marketMultiplier, tc.pullbackRatio)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTargetAmount_NeverNegative(t *testing.T) {
	got := mm.TargetAmount(1000, dec("-1"), dec("1"), dec("1"))
	assert.Equal(t, int64(0), got)
}

func TestEffectiveMultiplier_NoOverride(t *testing.T) {
	got := mm.EffectiveMultiplier(nil)
	assert.True(t, dec("1").Equal(got))
}

func TestEffectiveMultiplier_Disable(t *testing.T) {
	got := mm.EffectiveMultiplier(&domain.BotMarketOverride{OverrideType: domain.OverrideDisable})
	assert.True(t, decimal.Zero.Equal(got))
}

func TestEffectiveMultiplier_Scale(t *testing.T) {
	got := mm.EffectiveMultiplier(&domain.BotMarketOverride{
		OverrideType: domain.OverrideScale,
		Multiplier:   dec("2.5"),
	})
	assert.True(t, dec("2.5").Equal(got))
}

func TestEffectiveMultiplier_NoneType(t *testing.T) {
	got := mm.EffectiveMultiplier(&domain.BotMarketOverride{OverrideType: domain.OverrideNone})
	assert.True(t, dec("1").Equal(got))
}

// TestPlanStep_Delta covers the sign convention reconciliation relies on:
// positive delta means add resting size, negative means cancel down.
func TestPlanStep_Delta(t *testing.T) {
	grow := mm.PlanStep{PriceCents: 50, Current: 100, Target: 300}
	assert.Equal(t, int64(200), grow.Delta())

	shrink := mm.PlanStep{PriceCents: 50, Current: 300, Target: 100}
	assert.Equal(t, int64(-200), shrink.Delta())

	steady := mm.PlanStep{PriceCents: 50, Current: 100, Target: 100}
	assert.Equal(t, int64(0), steady.Delta())
}

// TestBuildPlan covers the full reconciliation-plan assembly: one PlanStep
// per curve point, current amounts defaulting to zero when the bot has no
// resting order at a price yet.
func TestBuildPlan(t *testing.T) {
	curve := []domain.BuyCurvePoint{
		{PriceCents: 10, WeightSats: 1000},
		{PriceCents: 50, WeightSats: 2000},
		{PriceCents: 90, WeightSats: 500},
	}
	current := map[int]int64{
		10: 1000, // already at target
		50: 500,  // below target, needs to grow
		// 90 absent entirely — defaults to 0
	}

	plan := mm.BuildPlan(curve, current, dec("1"), dec("1"), dec("1"))
	require.Len(t, plan, 3)

	assert.Equal(t, 10, plan[0].PriceCents)
	assert.Equal(t, int64(0), plan[0].Delta())

	assert.Equal(t, 50, plan[1].PriceCents)
	assert.Equal(t, int64(1500), plan[1].Delta())

	assert.Equal(t, 90, plan[2].PriceCents)
	assert.Equal(t, int64(0), plan[2].Current)
	assert.Equal(t, int64(500), plan[2].Delta())
}

// TestBuildPlan_PullbackShrinksEveryTarget covers P5's risk-pulled quoting
// as it composes with BuildPlan: a reduced pullback ratio scales every
// curve point down uniformly, producing cancel-down deltas across the book.
func TestBuildPlan_PullbackShrinksEveryTarget(t *testing.T) {
	curve := []domain.BuyCurvePoint{
		{PriceCents: 50, WeightSats: 1000},
	}
	current := map[int]int64{50: 1000}

	plan := mm.BuildPlan(curve, current, dec("1"), dec("1"), dec("0.25"))
	require.Len(t, plan, 1)
	assert.Equal(t, int64(250), plan[0].Target)
	assert.Equal(t, int64(-750), plan[0].Delta())
}
