package domain

import (
	"time"

	"github.com/google/uuid"
)

// BetResult is the outcome of a bet, set once its market resolves.
type BetResult string

const (
	BetResultPending BetResult = "pending"
	BetResultWon     BetResult = "won"
	BetResultLost    BetResult = "lost"
)

// Bet is one side of a matched trade: a face-value payout owned by user_id,
// written at the price the owner's side cleared at. A single match between
// a taker and a maker produces exactly two Bet rows — one YES-owner, one
// NO-owner — whose prices sum to 100 and whose amounts are equal (spec P3).
type Bet struct {
	ID                uuid.UUID `db:"id" json:"id"`
	MarketID          uuid.UUID `db:"market_id" json:"market_id"`
	Side              Side      `db:"side" json:"side"`
	UserID            uuid.UUID `db:"user_id" json:"user_id"`
	CounterpartyUserID uuid.UUID `db:"counterparty_user_id" json:"counterparty_user_id"`
	PriceCents        int       `db:"price_cents" json:"price_cents"`
	AmountSats        int64     `db:"amount_sats" json:"amount_sats"`
	Result            BetResult `db:"result" json:"result"`
	TakerOrderID      uuid.UUID `db:"taker_order_id" json:"taker_order_id"`
	MakerOrderID      uuid.UUID `db:"maker_order_id" json:"maker_order_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	SettledAt         *time.Time `db:"settled_at" json:"settled_at,omitempty"`
}

// Position is the read-model GetPositions returns: one row per market
// summarising a user's net YES/NO exposure and what they paid for it.
type Position struct {
	MarketID     uuid.UUID `json:"market_id"`
	YesShares    int64     `json:"yes_shares"`
	NoShares     int64     `json:"no_shares"`
	CostBasis    int64     `json:"cost_basis_sats"`
}
