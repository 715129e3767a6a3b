// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/engine"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeBookUpdate MsgType = "book_update"
	MsgTypeTrade      MsgType = "trade"
	MsgTypeResolution MsgType = "resolution"
	MsgTypeError      MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// BookUpdateMessage — broadcast every time a commit changes a market's book.
// ──────────────────────────────────────────────────────────────────────────────

// BookUpdateMessage carries the full aggregated-by-price book for one
// market (spec §6 GetOrderBook's shape, pushed rather than polled).
type BookUpdateMessage struct {
	Type      MsgType             `json:"type"`
	MarketID  uuid.UUID           `json:"market_id"`
	Yes       []engine.BookSnapshotLevel `json:"yes"`
	No        []engine.BookSnapshotLevel `json:"no"`
	Timestamp time.Time           `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// TradeMessage — broadcast for every match a commit produces.
// ──────────────────────────────────────────────────────────────────────────────

// TradeMessage is one fill, pushed at the clearing price (spec §4.3).
type TradeMessage struct {
	Type         MsgType   `json:"type"`
	MarketID     uuid.UUID `json:"market_id"`
	TakerOrderID uuid.UUID `json:"taker_order_id"`
	MakerOrderID uuid.UUID `json:"maker_order_id"`
	PriceCents   int       `json:"price_cents"`
	FillSats     int64     `json:"fill_sats"`
	Timestamp    time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ResolutionMessage — broadcast once per ResolveMarket call.
// ──────────────────────────────────────────────────────────────────────────────

// ResolutionMessage tells clients a market has settled and how many bets
// and resting orders were touched (spec §6 ResolveMarket's return shape).
type ResolutionMessage struct {
	Type            MsgType     `json:"type"`
	MarketID        uuid.UUID   `json:"market_id"`
	WinningSide     domain.Side `json:"winning_side"`
	BetsSettled     int         `json:"bets_settled"`
	OrdersCancelled int         `json:"orders_cancelled"`
	Timestamp       time.Time   `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
