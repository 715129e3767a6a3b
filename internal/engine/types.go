package engine

import (
	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
)

// PlaceOrderRequest is a taker intent handed to a MarketEngine.
type PlaceOrderRequest struct {
	UserID     uuid.UUID
	MarketID   uuid.UUID
	Side       domain.Side
	PriceCents int
	AmountSats int64
}

// AutoSettleResult describes an auto-settle credit applied during order
// placement (spec §4.5), nil when no offsetting position existed.
type AutoSettleResult struct {
	PayoutSats int64
}

// PlaceOrderResult is everything PlaceOrder returns to the caller (spec §6).
type PlaceOrderResult struct {
	OrderID      uuid.UUID
	Status       domain.OrderStatus
	FilledSats   int64
	RemainingSats int64
	MatchedCount int
	AutoSettled  *AutoSettleResult
	CostSats     int64
}

// CancelOrderResult is returned by CancelOrder.
type CancelOrderResult struct {
	RefundSats int64
}

// CancelAllResult is returned by CancelAllOrders.
type CancelAllResult struct {
	OrdersCancelled int
	RefundSats      int64
}

// ResolveResult is returned by ResolveMarket.
type ResolveResult struct {
	BetsSettled     int
	OrdersCancelled int
}

// BookSnapshot is the wire shape for GetOrderBook / WS book broadcasts.
type BookSnapshot struct {
	MarketID uuid.UUID               `json:"market_id"`
	Yes      []BookSnapshotLevel     `json:"yes"`
	No       []BookSnapshotLevel     `json:"no"`
}

type BookSnapshotLevel struct {
	PriceCents int   `json:"price_cents"`
	TotalSats  int64 `json:"total_sats"`
}

// TradePrint is one match, broadcast over WS when a commit lands.
type TradePrint struct {
	MarketID     uuid.UUID `json:"market_id"`
	TakerOrderID uuid.UUID `json:"taker_order_id"`
	MakerOrderID uuid.UUID `json:"maker_order_id"`
	PriceCents   int       `json:"price_cents"` // taker-side clearing price
	FillSats     int64     `json:"fill_sats"`
}

// Publisher is the seam the engine uses to broadcast book deltas and trade
// prints. Satisfied by internal/ws.Hub; declared here (not imported from ws)
// to avoid an import cycle, following the teacher's Rebalancer/Broadcaster
// interface-at-the-consumer pattern.
type Publisher interface {
	PublishBookSnapshot(snap BookSnapshot)
	PublishTrade(trade TradePrint)
	PublishResolution(marketID uuid.UUID, winningSide domain.Side, betsSettled, ordersCancelled int)
}

// FillNotifier is notified whenever a match touches the bot's resting
// orders or is taken by the bot — the Market-Maker Core's signal to
// reconcile (spec §4.7 trigger (i): "any bot-facing fill occurred").
// Declared here to avoid an import cycle with internal/service.
type FillNotifier interface {
	NotifyBotFill(marketID uuid.UUID)
}

// noopPublisher/noopNotifier let a Manager run before the real
// Hub/MMService are wired up (e.g. in tests).
type noopPublisher struct{}

func (noopPublisher) PublishBookSnapshot(BookSnapshot)                                  {}
func (noopPublisher) PublishTrade(TradePrint)                                           {}
func (noopPublisher) PublishResolution(uuid.UUID, domain.Side, int, int)                {}

type noopNotifier struct{}

func (noopNotifier) NotifyBotFill(uuid.UUID) {}
