// Package engine implements the per-market in-memory order book and the
// single-goroutine-per-market order pipeline that serialises all mutation
// of that book (spec §4.3, §4.4, §5).
package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
)

// RestingOrder is the book's in-memory view of one open/partial order. It
// mirrors domain.Order's lifecycle fields but is intentionally a separate
// type — the book never touches the database directly, and the pipeline is
// the only thing that reconciles the two.
type RestingOrder struct {
	OrderID      uuid.UUID
	UserID       uuid.UUID
	PriceCents   int
	RemainingSats int64
	Seq          int64
}

// Level is one price point's FIFO queue of resting orders.
type Level struct {
	PriceCents int
	Orders     []*RestingOrder
}

// TotalSats sums the remaining payout across every order resting at this level.
func (l *Level) TotalSats() int64 {
	var total int64
	for _, o := range l.Orders {
		total += o.RemainingSats
	}
	return total
}

// Match is one fill produced by walking the book: the resting order it hit,
// how much payout it filled, and at what price that resting order was
// quoting (the maker's own price_cents, before the taker/maker bet-pricing
// transform in the pipeline).
type Match struct {
	RestingOrderID   uuid.UUID
	RestingUserID    uuid.UUID
	MakerPriceCents  int
	FillSats         int64
}

// OrderBook holds one market's two sides, each kept sorted descending by
// price_cents. "Best" is always the highest price_cents resting on either
// side: a higher-priced YES maker implies a lower NO cost (100-p) for a NO
// taker to cross, and symmetrically for a higher-priced NO maker against a
// YES taker (spec §4.3's "best NO offer is the one with the highest price").
type OrderBook struct {
	yesLevels map[int]*Level
	noLevels  map[int]*Level
	yesPrices []int // descending
	noPrices  []int // descending
	index     map[uuid.UUID]*RestingOrder
	sideOf    map[uuid.UUID]domain.Side
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		yesLevels: make(map[int]*Level),
		noLevels:  make(map[int]*Level),
		index:     make(map[uuid.UUID]*RestingOrder),
		sideOf:    make(map[uuid.UUID]domain.Side),
	}
}

func (b *OrderBook) levelsFor(side domain.Side) map[int]*Level {
	if side == domain.SideYes {
		return b.yesLevels
	}
	return b.noLevels
}

func (b *OrderBook) pricesFor(side domain.Side) []int {
	if side == domain.SideYes {
		return b.yesPrices
	}
	return b.noPrices
}

func (b *OrderBook) setPricesFor(side domain.Side, prices []int) {
	if side == domain.SideYes {
		b.yesPrices = prices
	} else {
		b.noPrices = prices
	}
}

// Add inserts a resting order into its side's book, maintaining the
// descending-by-price sort and FIFO-by-arrival order within a level.
func (b *OrderBook) Add(side domain.Side, o *RestingOrder) {
	levels := b.levelsFor(side)
	lvl, ok := levels[o.PriceCents]
	if !ok {
		lvl = &Level{PriceCents: o.PriceCents}
		levels[o.PriceCents] = lvl
		prices := append(b.pricesFor(side), o.PriceCents)
		sort.Sort(sort.Reverse(sort.IntSlice(prices)))
		b.setPricesFor(side, prices)
	}
	lvl.Orders = append(lvl.Orders, o)
	b.index[o.OrderID] = o
	b.sideOf[o.OrderID] = side
}

// Remove deletes a resting order from the book entirely (cancellation or
// full fill).
func (b *OrderBook) Remove(orderID uuid.UUID) {
	o, ok := b.index[orderID]
	if !ok {
		return
	}
	side := b.sideOf[orderID]
	levels := b.levelsFor(side)
	lvl, ok := levels[o.PriceCents]
	if !ok {
		return
	}
	for i, e := range lvl.Orders {
		if e.OrderID == orderID {
			lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
			break
		}
	}
	if len(lvl.Orders) == 0 {
		delete(levels, o.PriceCents)
		prices := b.pricesFor(side)
		for i, p := range prices {
			if p == o.PriceCents {
				prices = append(prices[:i], prices[i+1:]...)
				break
			}
		}
		b.setPricesFor(side, prices)
	}
	delete(b.index, orderID)
	delete(b.sideOf, orderID)
}

// ApplyFill reduces a resting order's remaining amount by fillSats, removing
// it from the book entirely if it is now fully filled. Returns the order's
// remaining amount after the fill (0 if removed).
func (b *OrderBook) ApplyFill(orderID uuid.UUID, fillSats int64) int64 {
	o, ok := b.index[orderID]
	if !ok {
		return 0
	}
	o.RemainingSats -= fillSats
	if o.RemainingSats <= 0 {
		b.Remove(orderID)
		return 0
	}
	return o.RemainingSats
}

// FindMatches walks the opposite side of takerSide looking for makers that
// cross the taker's price, in price/time priority, skipping the taker's own
// resting orders (self-trade prevention, spec §4.3). It does not mutate the
// book — the caller applies fills only after the DB commit succeeds.
//
// Crossing condition (spec §4.3): taker YES@p_t crosses maker NO@p_m iff
// p_t + p_m >= 100. Symmetric for a NO taker crossing YES makers.
func (b *OrderBook) FindMatches(takerSide domain.Side, takerPriceCents int, remainingSats int64, excludeUserID uuid.UUID) []Match {
	makerSide := takerSide.Opposite()
	prices := b.pricesFor(makerSide)
	levels := b.levelsFor(makerSide)

	var matches []Match
	rem := remainingSats

	for _, makerPrice := range prices {
		if rem <= 0 {
			break
		}
		if !crosses(takerSide, takerPriceCents, makerPrice) {
			// Prices are sorted descending; once the best maker price no
			// longer crosses, no worse price will either.
			break
		}
		lvl := levels[makerPrice]
		if lvl == nil {
			continue
		}
		for _, o := range lvl.Orders {
			if rem <= 0 {
				break
			}
			if o.UserID == excludeUserID {
				continue // self-trade prevention: skip, do not cancel
			}
			fq := o.RemainingSats
			if fq > rem {
				fq = rem
			}
			matches = append(matches, Match{
				RestingOrderID:  o.OrderID,
				RestingUserID:   o.UserID,
				MakerPriceCents: o.PriceCents,
				FillSats:        fq,
			})
			rem -= fq
		}
	}
	return matches
}

// crosses reports whether a taker quoting takerPriceCents on takerSide
// crosses a maker resting at makerPriceCents on the opposite side.
func crosses(takerSide domain.Side, takerPriceCents, makerPriceCents int) bool {
	if takerSide == domain.SideYes {
		// taker YES@p_t crosses maker NO@p_m iff p_t + p_m >= 100
		return takerPriceCents+makerPriceCents >= 100
	}
	// taker NO@p_t crosses maker YES@p_m iff p_t + p_m >= 100 (symmetric)
	return takerPriceCents+makerPriceCents >= 100
}

// LevelsFor returns the aggregated (price, total remaining) pairs for one
// side, descending by price — the book-level read model.
func (b *OrderBook) LevelsFor(side domain.Side) []struct {
	PriceCents int
	TotalSats  int64
} {
	levels := b.levelsFor(side)
	prices := b.pricesFor(side)
	out := make([]struct {
		PriceCents int
		TotalSats  int64
	}, 0, len(prices))
	for _, p := range prices {
		lvl := levels[p]
		if lvl == nil {
			continue
		}
		out = append(out, struct {
			PriceCents int
			TotalSats  int64
		}{PriceCents: p, TotalSats: lvl.TotalSats()})
	}
	return out
}

// Size returns the number of resting orders in the book, for diagnostics.
func (b *OrderBook) Size() int {
	return len(b.index)
}
