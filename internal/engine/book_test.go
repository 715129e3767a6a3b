package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscex/exchange/internal/domain"
)

func resting(userID uuid.UUID, price int, remaining int64, seq int64) *RestingOrder {
	return &RestingOrder{
		OrderID:       uuid.New(),
		UserID:        userID,
		PriceCents:    price,
		RemainingSats: remaining,
		Seq:           seq,
	}
}

// TestOrderBook_AddMaintainsDescendingPriceOrder covers S1's book-state
// invariant: each side's price levels are always sorted best-first
// (descending price_cents), regardless of insertion order.
func TestOrderBook_AddMaintainsDescendingPriceOrder(t *testing.T) {
	b := NewOrderBook()
	user := uuid.New()
	b.Add(domain.SideYes, resting(user, 40, 100, 1))
	b.Add(domain.SideYes, resting(user, 70, 100, 2))
	b.Add(domain.SideYes, resting(user, 55, 100, 3))

	levels := b.LevelsFor(domain.SideYes)
	require.Len(t, levels, 3)
	assert.Equal(t, 70, levels[0].PriceCents)
	assert.Equal(t, 55, levels[1].PriceCents)
	assert.Equal(t, 40, levels[2].PriceCents)
}

// TestOrderBook_FIFOWithinLevel covers spec §4.3's time-priority rule: two
// orders resting at the same price fill in arrival order.
func TestOrderBook_FIFOWithinLevel(t *testing.T) {
	b := NewOrderBook()
	first := uuid.New()
	second := uuid.New()
	b.Add(domain.SideNo, resting(first, 50, 100, 1))
	b.Add(domain.SideNo, resting(second, 50, 100, 2))

	matches := b.FindMatches(domain.SideYes, 50, 150, uuid.New())
	require.Len(t, matches, 2)
	assert.Equal(t, first, matches[0].RestingUserID)
	assert.Equal(t, int64(100), matches[0].FillSats)
	assert.Equal(t, second, matches[1].RestingUserID)
	assert.Equal(t, int64(50), matches[1].FillSats)
}

// TestOrderBook_CrossingCondition covers the p_taker + p_maker >= 100 rule
// directly: a taker that doesn't cross the best resting price gets zero
// matches and the book is left untouched.
func TestOrderBook_CrossingCondition(t *testing.T) {
	b := NewOrderBook()
	maker := uuid.New()
	b.Add(domain.SideNo, resting(maker, 40, 500, 1)) // NO@40 needs YES >= 60 to cross

	noCross := b.FindMatches(domain.SideYes, 55, 500, uuid.New())
	assert.Empty(t, noCross, "YES@55 should not cross a resting NO@40 (55+40=95 < 100)")

	doesCross := b.FindMatches(domain.SideYes, 60, 500, uuid.New())
	require.Len(t, doesCross, 1)
	assert.Equal(t, int64(500), doesCross[0].FillSats)
}

// TestOrderBook_SelfTradePrevention covers spec §4.3's self-trade guard: a
// taker's own resting orders are skipped during matching, not cancelled,
// and matching continues past them to the next crossing maker.
func TestOrderBook_SelfTradePrevention(t *testing.T) {
	b := NewOrderBook()
	taker := uuid.New()
	other := uuid.New()
	b.Add(domain.SideNo, resting(taker, 60, 300, 1)) // would cross, but is the taker's own
	b.Add(domain.SideNo, resting(other, 55, 300, 2)) // also crosses, belongs to someone else

	matches := b.FindMatches(domain.SideYes, 60, 300, taker)
	require.Len(t, matches, 1)
	assert.Equal(t, other, matches[0].RestingUserID)
	assert.Equal(t, int64(300), matches[0].FillSats)

	// the skipped self order is still resting afterward — FindMatches never mutates the book.
	assert.Equal(t, 2, b.Size())
}

// TestOrderBook_PriceTimePriorityAcrossLevels covers S1: best price fills
// first even when a worse-priced maker arrived earlier.
func TestOrderBook_PriceTimePriorityAcrossLevels(t *testing.T) {
	b := NewOrderBook()
	worse := uuid.New()
	better := uuid.New()
	b.Add(domain.SideNo, resting(worse, 40, 1000, 1))  // arrived first, worse price
	b.Add(domain.SideNo, resting(better, 65, 1000, 2)) // arrived second, better price for a YES taker

	matches := b.FindMatches(domain.SideYes, 65, 500, uuid.New())
	require.Len(t, matches, 1)
	assert.Equal(t, better, matches[0].RestingUserID, "best price should fill before an earlier, worse-priced order")
}

// TestOrderBook_PartialFillWalksMultipleLevels covers a taker whose size
// exceeds the best level, which must walk down to worse-but-still-crossing
// levels until filled or the book is exhausted.
func TestOrderBook_PartialFillWalksMultipleLevels(t *testing.T) {
	b := NewOrderBook()
	best := uuid.New()
	second := uuid.New()
	b.Add(domain.SideNo, resting(best, 60, 200, 1))
	b.Add(domain.SideNo, resting(second, 50, 200, 2))

	matches := b.FindMatches(domain.SideYes, 60, 350, uuid.New())
	require.Len(t, matches, 2)
	assert.Equal(t, best, matches[0].RestingUserID)
	assert.Equal(t, int64(200), matches[0].FillSats)
	assert.Equal(t, second, matches[1].RestingUserID)
	assert.Equal(t, int64(150), matches[1].FillSats)
}

// TestOrderBook_RemoveAndApplyFill covers the book-mutation half that
// FindMatches deliberately leaves alone: ApplyFill trims remaining size and
// evicts a fully-filled order; Remove evicts on cancellation.
func TestOrderBook_RemoveAndApplyFill(t *testing.T) {
	b := NewOrderBook()
	o := resting(uuid.New(), 50, 100, 1)
	b.Add(domain.SideYes, o)
	require.Equal(t, 1, b.Size())

	remaining := b.ApplyFill(o.OrderID, 40)
	assert.Equal(t, int64(60), remaining)
	assert.Equal(t, 1, b.Size())

	remaining = b.ApplyFill(o.OrderID, 60)
	assert.Equal(t, int64(0), remaining)
	assert.Equal(t, 0, b.Size(), "fully filled order should be evicted from the book")
}

func TestOrderBook_RemoveEmptiesLevel(t *testing.T) {
	b := NewOrderBook()
	o := resting(uuid.New(), 50, 100, 1)
	b.Add(domain.SideYes, o)
	b.Remove(o.OrderID)

	assert.Equal(t, 0, b.Size())
	assert.Empty(t, b.LevelsFor(domain.SideYes))
}

// TestOrderBook_NoMatchOnEmptyBook covers B3-adjacent edge case: matching
// against an empty opposite side returns no matches rather than panicking.
func TestOrderBook_NoMatchOnEmptyBook(t *testing.T) {
	b := NewOrderBook()
	matches := b.FindMatches(domain.SideYes, 99, 1000, uuid.New())
	assert.Empty(t, matches)
}
