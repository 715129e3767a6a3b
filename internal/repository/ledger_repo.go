package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/satscex/exchange/internal/domain"
)

// LedgerRepository is the single place balance mutations happen. Every
// credit/debit writes one Transaction row with balance_after set to the
// post-apply balance, inside the caller's active transaction — this is what
// makes P1 ("transactions.balance_after equals running sum") hold.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetBalanceForUpdate locks the user row and returns the current balance.
// Must be called within tx before any credit/debit so concurrent pipelines
// on the same user serialise on this row.
func (r *LedgerRepository) GetBalanceForUpdate(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `SELECT balance_sats FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("ledger_repo.GetBalanceForUpdate: %w", err)
	}
	return balance, nil
}

// Debit reduces the user's balance by amountSats and writes an audit
// Transaction row. Fails with ErrInsufficientFunds if the resulting balance
// would be negative — it never is written.
func (r *LedgerRepository) Debit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountSats int64, txType domain.TxType, refID *uuid.UUID) (*domain.Transaction, error) {
	if amountSats < 0 {
		return nil, fmt.Errorf("ledger_repo.Debit: negative amount %d", amountSats)
	}
	balance, err := r.GetBalanceForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amountSats {
		return nil, domain.ErrInsufficientFunds
	}
	newBalance := balance - amountSats
	return r.apply(ctx, tx, userID, -amountSats, newBalance, txType, refID, domain.TxStatusComplete)
}

// Credit increases the user's balance by amountSats and writes an audit
// Transaction row. Credits never fail for balance reasons.
func (r *LedgerRepository) Credit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountSats int64, txType domain.TxType, refID *uuid.UUID) (*domain.Transaction, error) {
	if amountSats < 0 {
		return nil, fmt.Errorf("ledger_repo.Credit: negative amount %d", amountSats)
	}
	balance, err := r.GetBalanceForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	newBalance := balance + amountSats
	return r.apply(ctx, tx, userID, amountSats, newBalance, txType, refID, domain.TxStatusComplete)
}

// DebitPending reduces the user's balance exactly like Debit — the reserve
// happens synchronously, in the same commit — but records the Transaction as
// TxStatusPending rather than TxStatusComplete. This is the cash-withdrawal
// leg of spec §5: the debit is synchronous, the external payment dispatch is
// not, so the ledger side must be able to tell "reserved" from "settled"
// apart until MarkWithdrawalSettled (or a reversal) closes it out.
func (r *LedgerRepository) DebitPending(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountSats int64, txType domain.TxType, refID *uuid.UUID) (*domain.Transaction, error) {
	if amountSats < 0 {
		return nil, fmt.Errorf("ledger_repo.DebitPending: negative amount %d", amountSats)
	}
	balance, err := r.GetBalanceForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amountSats {
		return nil, domain.ErrInsufficientFunds
	}
	newBalance := balance - amountSats
	return r.apply(ctx, tx, userID, -amountSats, newBalance, txType, refID, domain.TxStatusPending)
}

// QueueTransaction records a withdrawal awaiting admin approval without
// touching balance_sats — the funds stay where they are until an admin
// either approves it (a normal Debit/DebitPending call follows) or the
// shortfall resolves itself as the bot's resting orders fill or get
// cancelled (spec §5 policy hook path (b)).
func (r *LedgerRepository) QueueTransaction(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amountSats int64, txType domain.TxType) (*domain.Transaction, error) {
	balance, err := r.GetBalanceForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	return r.insertTransaction(ctx, tx, userID, -amountSats, balance, txType, nil, domain.TxStatusPending)
}

// SetTransactionStatus transitions an existing transaction from one status
// to another — MarkWithdrawalSettled moves pending to complete, a failed
// dispatch moves pending to reversed (spec §5: "compensates on failure by
// re-crediting with a paired reversal transaction"). Fails closed with
// ErrInvariantViolation if the row isn't in the expected starting status,
// since that means the caller raced a second settlement/reversal attempt.
func (r *LedgerRepository) SetTransactionStatus(ctx context.Context, tx *sqlx.Tx, transactionID uuid.UUID, from, to domain.TxStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`,
		to, transactionID, from)
	if err != nil {
		return fmt.Errorf("ledger_repo.SetTransactionStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvariantViolation
	}
	return nil
}

// GetTransactionByIDForUpdate fetches and locks a single transaction row —
// MarkWithdrawalSettled and its reversal counterpart both need to read the
// pending withdrawal before transitioning it.
func (r *LedgerRepository) GetTransactionByIDForUpdate(ctx context.Context, tx *sqlx.Tx, transactionID uuid.UUID) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := tx.GetContext(ctx, &txn, `SELECT * FROM transactions WHERE id = $1 FOR UPDATE`, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledger_repo.GetTransactionByIDForUpdate: %w", err)
	}
	return &txn, nil
}

func (r *LedgerRepository) apply(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, signedAmount, newBalance int64, txType domain.TxType, refID *uuid.UUID, status domain.TxStatus) (*domain.Transaction, error) {
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET balance_sats = $1, updated_at = now() WHERE id = $2`,
		newBalance, userID); err != nil {
		return nil, fmt.Errorf("ledger_repo.apply: update balance: %w", err)
	}
	return r.insertTransaction(ctx, tx, userID, signedAmount, newBalance, txType, refID, status)
}

// insertTransaction writes the audit row. Split out of apply so
// QueueTransaction can record a transaction whose balance effect hasn't
// happened yet without duplicating the insert.
func (r *LedgerRepository) insertTransaction(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, signedAmount, balanceAfter int64, txType domain.TxType, refID *uuid.UUID, status domain.TxStatus) (*domain.Transaction, error) {
	txn := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         txType,
		AmountSats:   signedAmount,
		BalanceAfter: balanceAfter,
		ReferenceID:  refID,
		Status:       status,
	}
	query := `
		INSERT INTO transactions (id, user_id, type, amount_sats, balance_after, reference_id, status, created_at)
		VALUES (:id, :user_id, :type, :amount_sats, :balance_after, :reference_id, :status, now())
		RETURNING created_at`
	rows, err := tx.NamedQuery(query, txn)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.insertTransaction: insert transaction: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger_repo.insertTransaction: scan created_at: %w", err)
		}
	}
	return txn, nil
}

// GetBalance reads the user's current balance without locking (read-only
// paths, e.g. profile display).
func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, `SELECT balance_sats FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("ledger_repo.GetBalance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns a user's transaction history, newest first.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns,
		`SELECT * FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.ListTransactions: %w", err)
	}
	return txns, nil
}
