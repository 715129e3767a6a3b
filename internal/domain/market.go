package domain

import (
	"time"

	"github.com/google/uuid"
)

// MarketType tags what a market resolves about. Carried through from the
// source system's richer market catalogue even though the matching/pricing
// mechanics are identical across types.
type MarketType string

const (
	MarketTypeEvent      MarketType = "event"
	MarketTypeAttendance MarketType = "attendance"
	MarketTypeWinner     MarketType = "winner"
)

// MarketStatus is the lifecycle state of a market. Orders and bets may only
// be created while a market is MarketStatusOpen (spec invariant).
type MarketStatus string

const (
	MarketStatusOpen               MarketStatus = "open"
	MarketStatusPendingResolution  MarketStatus = "pending_resolution"
	MarketStatusResolved           MarketStatus = "resolved"
	MarketStatusCancelled          MarketStatus = "cancelled"
)

// Resolution is the winning side once a market is resolved. Empty/"" before
// resolution.
type Resolution string

const (
	ResolutionYes  Resolution = "yes"
	ResolutionNo   Resolution = "no"
	ResolutionNone Resolution = ""
)

// Market is a single binary (YES/NO) question with its own order book.
//
// pending_resolution is retained as a lifecycle state for forward
// compatibility with a delayed initiate→confirm resolution flow (see
// DESIGN.md open-question note) but this implementation never transitions a
// market into it — resolution is immediate.
type Market struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	Title           string       `db:"title" json:"title"`
	Type            MarketType   `db:"type" json:"type"`
	GrandmasterID   *uuid.UUID   `db:"grandmaster_id" json:"grandmaster_id,omitempty"`
	Status          MarketStatus `db:"status" json:"status"`
	Resolution      Resolution   `db:"resolution" json:"resolution,omitempty"`
	ResolutionNotes string       `db:"resolution_notes" json:"resolution_notes,omitempty"`
	BotEnabled      bool         `db:"bot_enabled" json:"bot_enabled"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsOpen reports whether new orders may be placed against this market.
func (m *Market) IsOpen() bool {
	return m.Status == MarketStatusOpen
}
