package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a ledger-holding account. The market-maker bot is a row in this
// table like any other user — there is no distinguished bot code path in the
// Order Pipeline; self-trade prevention alone keeps the bot from matching
// its own resting orders.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	IsBot        bool      `db:"is_bot" json:"is_bot"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	BalanceSats  int64     `db:"balance_sats" json:"balance_sats"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PublicProfile strips authentication material for API responses.
type PublicProfile struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	BalanceSats int64     `json:"balance_sats"`
	IsAdmin     bool      `json:"is_admin"`
}

func (u *User) ToPublicProfile() *PublicProfile {
	return &PublicProfile{
		ID:          u.ID,
		Username:    u.Username,
		BalanceSats: u.BalanceSats,
		IsAdmin:     u.IsAdmin,
	}
}

// TxType enumerates the reasons a Transaction was written. Every balance
// mutation in the system is tagged with exactly one of these.
type TxType string

const (
	TxDeposit        TxType = "deposit"
	TxWithdrawal     TxType = "withdrawal"
	TxOrderPlaced    TxType = "order_placed"
	TxOrderCancelled TxType = "order_cancelled"
	TxBetWon         TxType = "bet_won"
	TxBetLostPaid    TxType = "bet_lost_paid"
	TxAutoSettle     TxType = "auto_settle"
	TxAdminAdjust    TxType = "admin_adjust"
)

// TxStatus tracks whether an external-facing transaction (withdrawal) has
// settled. Internal transactions (order placement, auto-settle, resolution
// payouts) are always TxStatusComplete the instant they are written.
type TxStatus string

const (
	TxStatusComplete TxStatus = "complete"
	TxStatusPending  TxStatus = "pending"
	TxStatusReversed TxStatus = "reversed"
)

// Transaction is an immutable, append-only ledger row. balance_after is the
// snapshot of the user's balance immediately after this row was applied —
// the running sum invariant (P1) is only meaningful because nothing ever
// rewrites a Transaction after it commits.
type Transaction struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	Type          TxType     `db:"type" json:"type"`
	AmountSats    int64      `db:"amount_sats" json:"amount_sats"` // signed: credit > 0, debit < 0
	BalanceAfter  int64      `db:"balance_after" json:"balance_after"`
	ReferenceID   *uuid.UUID `db:"reference_id" json:"reference_id,omitempty"`
	Status        TxStatus   `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
