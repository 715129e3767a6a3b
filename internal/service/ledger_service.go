package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/engine"
	"github.com/satscex/exchange/internal/repository"
)

// LedgerService is the seam an external Lightning/on-chain adapter calls
// into (spec §9) — it owns the two operations that touch balance_sats
// outside the order pipeline: crediting a confirmed deposit, and reserving
// then settling a cash withdrawal. Neither has an HTTP route of its own;
// this repo implements the seam, not the adapter that observes payment
// proof and dispatches payouts.
type LedgerService struct {
	db         *sqlx.DB
	ledgerRepo *repository.LedgerRepository
	orderRepo  *repository.OrderRepository
	userRepo   *repository.UserRepository
	manager    *engine.Manager

	minAmountSats                 int64
	withdrawalReviewThresholdSats int64
	serializationRetries          int

	log *slog.Logger
}

func NewLedgerService(
	db *sqlx.DB,
	ledgerRepo *repository.LedgerRepository,
	orderRepo *repository.OrderRepository,
	userRepo *repository.UserRepository,
	manager *engine.Manager,
	cfg *config.Config,
	log *slog.Logger,
) *LedgerService {
	return &LedgerService{
		db:                            db,
		ledgerRepo:                    ledgerRepo,
		orderRepo:                     orderRepo,
		userRepo:                      userRepo,
		manager:                       manager,
		minAmountSats:                 cfg.Ledger.MinLotSats,
		withdrawalReviewThresholdSats: cfg.MM.WithdrawalReviewThresholdSats,
		serializationRetries:          cfg.Ledger.SerializationRetries,
		log:                           log,
	}
}

// WithdrawalResult is returned by InitiateWithdrawal. Queued is true when the
// withdrawal policy hook (spec §5) couldn't free enough cash automatically
// and the request is sitting as a TxStatusPending transaction with no
// balance effect, waiting on an admin.
type WithdrawalResult struct {
	Transaction *domain.Transaction
	Queued      bool
}

// ──────────────────────────────────────────────────────────────────────────────
// CreditDeposit
// ──────────────────────────────────────────────────────────────────────────────

// CreditDeposit credits a confirmed external deposit to userID's balance
// (spec §9 design note). The caller — an external adapter — only calls this
// once it has observed payment proof; CreditDeposit itself never talks to
// payment rails, it only applies the ledger effect. ref identifies the
// external payment (invoice id, on-chain txid hash, etc.) for idempotency at
// the adapter layer and is stored as the transaction's reference id.
func (s *LedgerService) CreditDeposit(ctx context.Context, userID uuid.UUID, amountSats int64, ref uuid.UUID) (*domain.Transaction, error) {
	if amountSats < s.minAmountSats {
		return nil, domain.ErrAmountTooSmall
	}

	var txn *domain.Transaction
	err := s.withRetry(ctx, func(tx *sqlx.Tx) error {
		var err error
		txn, err = s.ledgerRepo.Credit(ctx, tx, userID, amountSats, domain.TxDeposit, &ref)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger_service.CreditDeposit: %w", err)
	}

	s.log.Info("deposit credited", "user_id", userID, "amount_sats", amountSats, "ref", ref)
	return txn, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// InitiateWithdrawal / MarkWithdrawalSettled / ReverseWithdrawal
// ──────────────────────────────────────────────────────────────────────────────

// InitiateWithdrawal reserves amountSats out of userID's balance for an
// external payout (spec §5: "a withdrawal reserves funds (debit)
// synchronously under the pipeline semantics; external payment dispatch is
// asynchronous"). The returned transaction is TxStatusPending — the adapter
// calls MarkWithdrawalSettled once it confirms the payout left the node, or
// ReverseWithdrawal if dispatch fails.
//
// For the bot account specifically, the withdrawal policy hook applies
// first: a withdrawal that would leave the bot unable to cover the reserved
// cost of its own resting orders must either free cash by cancelling those
// orders oldest-first, or queue for admin approval, depending on how large
// the shortfall is relative to withdrawalReviewThresholdSats.
func (s *LedgerService) InitiateWithdrawal(ctx context.Context, userID uuid.UUID, amountSats int64) (*WithdrawalResult, error) {
	if amountSats < s.minAmountSats {
		return nil, domain.ErrAmountTooSmall
	}

	bot, err := s.userRepo.GetBotUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.InitiateWithdrawal: bot user: %w", err)
	}

	if userID == bot.ID {
		queue, err := s.enforceBotWithdrawalPolicy(ctx, userID, amountSats)
		if err != nil {
			return nil, fmt.Errorf("ledger_service.InitiateWithdrawal: %w", err)
		}
		if queue {
			txn, err := s.queueForApproval(ctx, userID, amountSats)
			if err != nil {
				return nil, fmt.Errorf("ledger_service.InitiateWithdrawal: %w", err)
			}
			return &WithdrawalResult{Transaction: txn, Queued: true}, nil
		}
	}

	ref := uuid.New()
	var txn *domain.Transaction
	err = s.withRetry(ctx, func(tx *sqlx.Tx) error {
		var err error
		txn, err = s.ledgerRepo.DebitPending(ctx, tx, userID, amountSats, domain.TxWithdrawal, &ref)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger_service.InitiateWithdrawal: %w", err)
	}

	s.log.Info("withdrawal reserved", "user_id", userID, "amount_sats", amountSats, "transaction_id", txn.ID)
	return &WithdrawalResult{Transaction: txn}, nil
}

// enforceBotWithdrawalPolicy implements spec §5's "Withdrawal policy hook"
// for the bot account. It returns queue=true when the adapter should hold
// the withdrawal for admin approval instead of letting InitiateWithdrawal
// debit immediately.
func (s *LedgerService) enforceBotWithdrawalPolicy(ctx context.Context, botUserID uuid.UUID, amountSats int64) (bool, error) {
	balance, err := s.ledgerRepo.GetBalance(ctx, botUserID)
	if err != nil {
		return false, fmt.Errorf("enforceBotWithdrawalPolicy: balance: %w", err)
	}
	shortfall := withdrawalShortfall(balance, amountSats)
	if shortfall <= 0 {
		return false, nil
	}

	if shortfall > s.withdrawalReviewThresholdSats {
		s.log.Warn("mm: withdrawal shortfall exceeds review threshold, queuing for admin approval",
			"bot_user_id", botUserID, "amount_sats", amountSats, "shortfall_sats", shortfall,
			"threshold_sats", s.withdrawalReviewThresholdSats)
		return true, nil
	}

	orders, err := s.orderRepo.ListOpenByUserAll(ctx, botUserID)
	if err != nil {
		return false, fmt.Errorf("enforceBotWithdrawalPolicy: orders: %w", err)
	}
	s.cancelForCash(ctx, botUserID, orders, shortfall)

	balance, err = s.ledgerRepo.GetBalance(ctx, botUserID)
	if err != nil {
		return false, fmt.Errorf("enforceBotWithdrawalPolicy: balance after pullback: %w", err)
	}
	if balance < amountSats {
		s.log.Warn("mm: cancelling bot orders did not free enough cash, queuing for admin approval",
			"bot_user_id", botUserID, "amount_sats", amountSats, "balance_sats", balance)
		return true, nil
	}
	return false, nil
}

// withdrawalShortfall returns how far short of amountSats the bot's current
// balance is, or 0 if the balance already covers it outright.
func withdrawalShortfall(balance, amountSats int64) int64 {
	if amountSats <= balance {
		return 0
	}
	return amountSats - balance
}

// selectOrdersToCancel walks orders — already oldest-first — accumulating
// each one's refund until amountSats is covered, returning the prefix that
// should be cancelled. Pure so it can be checked without a database; mirrors
// MMService.pullBack's oldest-first consumption (spec §4.7), reused here to
// free cash for a withdrawal instead of for risk pullback.
func selectOrdersToCancel(orders []*domain.Order, amountSats int64) []*domain.Order {
	var selected []*domain.Order
	remaining := amountSats
	for _, o := range orders {
		if remaining <= 0 {
			break
		}
		selected = append(selected, o)
		remaining -= domain.CostSats(o.Side, o.RemainingSats(), o.PriceCents)
	}
	return selected
}

// cancelForCash cancels the bot's own oldest open orders, across every
// market, until the refund they free covers amountSats or none are left.
func (s *LedgerService) cancelForCash(ctx context.Context, botUserID uuid.UUID, orders []*domain.Order, amountSats int64) {
	for _, o := range selectOrdersToCancel(orders, amountSats) {
		if _, err := s.manager.CancelOrder(ctx, o.MarketID, o.ID, botUserID); err != nil {
			s.log.Error("ledger_service: withdrawal pullback cancel failed", "order_id", o.ID, "err", err)
		}
	}
}

// queueForApproval records a pending withdrawal with no balance effect yet —
// it shows up as a pending row in the user's transaction history (plus a
// warning log line) for an admin to act on, and can be retried through InitiateWithdrawal once the
// bot's balance covers it (spec §5 policy hook path (b)).
func (s *LedgerService) queueForApproval(ctx context.Context, userID uuid.UUID, amountSats int64) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := s.withRetry(ctx, func(tx *sqlx.Tx) error {
		var err error
		txn, err = s.ledgerRepo.QueueTransaction(ctx, tx, userID, amountSats, domain.TxWithdrawal)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("queueForApproval: %w", err)
	}
	s.log.Warn("mm: withdrawal queued for admin approval",
		"user_id", userID, "amount_sats", amountSats, "transaction_id", txn.ID)
	return txn, nil
}

// MarkWithdrawalSettled confirms a pending withdrawal's external payout
// dispatched successfully (spec §9: "MarkWithdrawalSettled(id)"). Called by
// the adapter, never by the order pipeline itself.
func (s *LedgerService) MarkWithdrawalSettled(ctx context.Context, transactionID uuid.UUID) error {
	err := s.withRetry(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.ledgerRepo.GetTransactionByIDForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn.Type != domain.TxWithdrawal || txn.Status != domain.TxStatusPending {
			return domain.ErrInvariantViolation
		}
		return s.ledgerRepo.SetTransactionStatus(ctx, tx, transactionID, domain.TxStatusPending, domain.TxStatusComplete)
	})
	if err != nil {
		return fmt.Errorf("ledger_service.MarkWithdrawalSettled: %w", err)
	}
	s.log.Info("withdrawal settled", "transaction_id", transactionID)
	return nil
}

// ReverseWithdrawal compensates a withdrawal whose external dispatch failed
// (spec §5: "compensates on failure by re-crediting with a paired reversal
// transaction") — marks the original debit reversed and credits the same
// amount back, in one commit.
func (s *LedgerService) ReverseWithdrawal(ctx context.Context, transactionID uuid.UUID) error {
	err := s.withRetry(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.ledgerRepo.GetTransactionByIDForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn.Type != domain.TxWithdrawal || txn.Status != domain.TxStatusPending {
			return domain.ErrInvariantViolation
		}
		if err := s.ledgerRepo.SetTransactionStatus(ctx, tx, transactionID, domain.TxStatusPending, domain.TxStatusReversed); err != nil {
			return err
		}
		_, err = s.ledgerRepo.Credit(ctx, tx, txn.UserID, -txn.AmountSats, domain.TxWithdrawal, &transactionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger_service.ReverseWithdrawal: %w", err)
	}
	s.log.Warn("withdrawal reversed", "transaction_id", transactionID)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Serializable commit helper
// ──────────────────────────────────────────────────────────────────────────────

// withRetry runs fn inside a SERIALIZABLE transaction, retrying up to
// serializationRetries times with short jittered backoff on a Postgres
// serialization failure (SQLSTATE 40001) — the same commit idiom
// MarketEngine.withSerializableRetry uses, since a deposit/withdrawal can
// race a concurrent order placement over the same user row.
func (s *LedgerService) withRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.serializationRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(5+rand.Intn(15)) * time.Millisecond * time.Duration(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("ledger_service: begin tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `SET TRANSACTION ISOLATION LEVEL SERIALIZABLE`); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("ledger_service: set isolation: %w", err)
		}

		execErr := fn(tx)
		if execErr != nil {
			_ = tx.Rollback()
			if isSerializationFailure(execErr) {
				lastErr = domain.ErrSerializationFailure
				continue
			}
			return execErr
		}

		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				lastErr = domain.ErrSerializationFailure
				continue
			}
			return fmt.Errorf("ledger_service: commit: %w", err)
		}
		return nil
	}
	s.log.Warn("serialization retries exhausted", "last_err", lastErr)
	return domain.ErrServiceBusy
}

func isSerializationFailure(err error) bool {
	if errors.Is(err, domain.ErrSerializationFailure) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}
