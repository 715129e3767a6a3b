package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satscex/exchange/internal/domain"
)

// TestCostSats_CeilingDivision covers P1 ("cost is always a ceiling-division
// of amount*price/100, never a truncation") across both sides and a spread
// of prices, including the non-divisible cases that actually exercise the
// ceiling.
func TestCostSats_CeilingDivision(t *testing.T) {
	cases := []struct {
		name       string
		side       domain.Side
		amountSats int64
		priceCents int
		wantSats   int64
	}{
		{"yes_exact_division", domain.SideYes, 1000, 50, 500},
		{"yes_exact_at_33", domain.SideYes, 1000, 33, 330},   // 330.0, exact
		{"yes_rounds_up_odd", domain.SideYes, 1001, 33, 331}, // 330.33 -> 331
		{"no_complement_price", domain.SideNo, 1000, 50, 500},
		{"no_rounds_up", domain.SideNo, 1001, 33, 671},    // (100-33)=67; 1001*67/100=670.67 -> 671
		{"min_lot_extreme_price", domain.SideYes, domain.MinLotSats, domain.MinPriceCents, 1},
		{"min_lot_max_price", domain.SideNo, domain.MinLotSats, domain.MaxPriceCents, 1},
		{"zero_amount", domain.SideYes, 0, 50, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.CostSats(tc.side, tc.amountSats, tc.priceCents)
			assert.Equal(t, tc.wantSats, got)
		})
	}
}

// TestCostSats_ComplementarySidesNeverExceedFace covers P3's price
// relationship: a YES@p and NO@(100-p) bet on the same amount cost exactly
// amount_sats in total when amount*price divides evenly, and at most one
// extra sat otherwise — the two independent ceiling divisions can each only
// round up by a fraction of a sat combined, never double-charge.
func TestCostSats_ComplementarySidesNeverExceedFace(t *testing.T) {
	amount := int64(777)
	for p := domain.MinPriceCents; p <= domain.MaxPriceCents; p++ {
		yesCost := domain.CostSats(domain.SideYes, amount, p)
		noCost := domain.CostSats(domain.SideNo, amount, p)
		total := yesCost + noCost
		assert.GreaterOrEqual(t, total, amount, "price=%d", p)
		assert.LessOrEqual(t, total, amount+1, "price=%d", p)
		if (amount*int64(p))%100 == 0 {
			assert.Equal(t, amount, total, "evenly-divisible price=%d should have zero ceiling slack", p)
		}
	}
}

func TestSide_Opposite(t *testing.T) {
	assert.Equal(t, domain.SideNo, domain.SideYes.Opposite())
	assert.Equal(t, domain.SideYes, domain.SideNo.Opposite())
}

func TestSide_Valid(t *testing.T) {
	assert.True(t, domain.SideYes.Valid())
	assert.True(t, domain.SideNo.Valid())
	assert.False(t, domain.Side("maybe").Valid())
	assert.False(t, domain.Side("").Valid())
}

// TestOrderStatus_Terminal covers B3: cancelled/filled orders can never
// accept further fills or cancellation.
func TestOrderStatus_Terminal(t *testing.T) {
	cases := []struct {
		status domain.OrderStatus
		want   bool
	}{
		{domain.OrderStatusOpen, false},
		{domain.OrderStatusPartial, false},
		{domain.OrderStatusFilled, true},
		{domain.OrderStatusCancelled, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.status.Terminal(), "status=%s", tc.status)
	}
}

// TestOrder_RemainingSats covers the partial-fill bookkeeping every resting
// order relies on: remaining is always amount minus filled, down to exactly
// zero on a full fill (B3's "filled_sats never exceeds amount_sats").
func TestOrder_RemainingSats(t *testing.T) {
	o := &domain.Order{AmountSats: 1000, FilledSats: 400}
	assert.Equal(t, int64(600), o.RemainingSats())

	o.FilledSats = 1000
	assert.Equal(t, int64(0), o.RemainingSats())
}

// TestPriceBounds covers B1: price_cents must stay within [1,99] — 0 and
// 100 would make one side of the trade free, which the domain forbids by
// construction (validation lives in the engine's MarketEngine.processOrder;
// these constants are what it validates against).
func TestPriceBounds(t *testing.T) {
	assert.Equal(t, 1, domain.MinPriceCents)
	assert.Equal(t, 99, domain.MaxPriceCents)
}
