package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/satscex/exchange/internal/domain"
)

func TestWithdrawalShortfall(t *testing.T) {
	cases := []struct {
		name    string
		balance int64
		amount  int64
		want    int64
	}{
		{"balance covers it exactly", 1000, 1000, 0},
		{"balance covers it with room", 1000, 400, 0},
		{"balance short", 400, 1000, 600},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, withdrawalShortfall(tc.balance, tc.amount))
		})
	}
}

// TestSelectOrdersToCancel_OldestFirstStopsOnceCovered mirrors
// extinguish's oldest-first consumption test in the matching engine package
// — selectOrdersToCancel must stop as soon as accumulated refund covers the
// requested amount, never touching orders past that point.
func TestSelectOrdersToCancel_OldestFirstStopsOnceCovered(t *testing.T) {
	oldest := &domain.Order{ID: uuid.New(), Side: domain.SideYes, PriceCents: 50, AmountSats: 1000, FilledSats: 0}
	middle := &domain.Order{ID: uuid.New(), Side: domain.SideYes, PriceCents: 50, AmountSats: 1000, FilledSats: 0}
	newest := &domain.Order{ID: uuid.New(), Side: domain.SideYes, PriceCents: 50, AmountSats: 1000, FilledSats: 0}
	orders := []*domain.Order{oldest, middle, newest}

	// oldest alone refunds 500 sats (1000 * 50 / 100) — less than the 600
	// sats needed, so selection must include middle too but stop there.
	selected := selectOrdersToCancel(orders, 600)
	assert.Equal(t, []*domain.Order{oldest, middle}, selected)
}

func TestSelectOrdersToCancel_FirstOrderAloneCoversAmount(t *testing.T) {
	oldest := &domain.Order{ID: uuid.New(), Side: domain.SideNo, PriceCents: 40, AmountSats: 2000, FilledSats: 0}
	newer := &domain.Order{ID: uuid.New(), Side: domain.SideNo, PriceCents: 40, AmountSats: 2000, FilledSats: 0}

	// NO@40: cost = ceil(2000 * 60 / 100) = 1200, more than the 1000 needed.
	selected := selectOrdersToCancel([]*domain.Order{oldest, newer}, 1000)
	assert.Equal(t, []*domain.Order{oldest}, selected)
}

func TestSelectOrdersToCancel_EmptyWhenNothingOwed(t *testing.T) {
	order := &domain.Order{ID: uuid.New(), Side: domain.SideYes, PriceCents: 50, AmountSats: 1000}
	assert.Empty(t, selectOrdersToCancel([]*domain.Order{order}, 0))
}

func TestSelectOrdersToCancel_TakesEveryOrderWhenStillShort(t *testing.T) {
	a := &domain.Order{ID: uuid.New(), Side: domain.SideYes, PriceCents: 10, AmountSats: 100}
	b := &domain.Order{ID: uuid.New(), Side: domain.SideYes, PriceCents: 10, AmountSats: 100}

	selected := selectOrdersToCancel([]*domain.Order{a, b}, 1_000_000)
	assert.Equal(t, []*domain.Order{a, b}, selected)
}
