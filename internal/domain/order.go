package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side is which outcome an order or bet is on.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// OrderStatus is the lifecycle state of a resting/closed order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further fills or cancellation can happen.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// MinLotSats is the minimum amount_sats accepted for a new order (spec B2).
const MinLotSats int64 = 100

// MinPriceCents / MaxPriceCents bound price_cents (spec B1).
const (
	MinPriceCents = 1
	MaxPriceCents = 99
)

// Order is a resting or closed limit order on one side of one market.
type Order struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	UserID           uuid.UUID   `db:"user_id" json:"user_id"`
	MarketID         uuid.UUID   `db:"market_id" json:"market_id"`
	Side             Side        `db:"side" json:"side"`
	PriceCents       int         `db:"price_cents" json:"price_cents"`
	AmountSats       int64       `db:"amount_sats" json:"amount_sats"`
	FilledSats       int64       `db:"filled_sats" json:"filled_sats"`
	Status           OrderStatus `db:"status" json:"status"`
	CostReservedSats int64       `db:"cost_reserved_sats" json:"cost_reserved_sats"`
	Seq              int64       `db:"seq" json:"seq"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// RemainingSats is the unfilled portion of the order's face amount.
func (o *Order) RemainingSats() int64 {
	return o.AmountSats - o.FilledSats
}

// CostSats computes the ceiling-division cost in sats to acquire amountSats
// of payout on the given side at priceCents. This is the one place cost is
// computed so placement and refund/cancellation always agree (spec §9:
// "refunds use the same formula so place+cancel is exactly zero-sum").
//
//	YES@p: cost = ceil(amount * p / 100)
//	NO@p:  cost = ceil(amount * (100-p) / 100)
func CostSats(side Side, amountSats int64, priceCents int) int64 {
	var effectivePrice int64
	if side == SideYes {
		effectivePrice = int64(priceCents)
	} else {
		effectivePrice = int64(100 - priceCents)
	}
	return ceilDiv(amountSats*effectivePrice, 100)
}

// ceilDiv computes ceil(n/d) for non-negative n and positive d using pure
// integer arithmetic — no floating point ever touches monetary values.
func ceilDiv(n, d int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
