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

// OrderRepository is the source of truth for order lifecycle state. The
// in-memory OrderBook (internal/engine) is only a performance cache of what
// this repository holds durably.
type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order row inside tx.
func (r *OrderRepository) Create(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, market_id, side, price_cents, amount_sats, filled_sats, status, cost_reserved_sats, seq, created_at, updated_at)
		VALUES (:id, :user_id, :market_id, :side, :price_cents, :amount_sats, :filled_sats, :status, :cost_reserved_sats, :seq, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("order_repo.Create: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := r.db.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.GetByID: %w", err)
	}
	return &o, nil
}

// GetByIDForUpdate locks the order row within tx — used by cancellation and
// fill application so concurrent cancel/fill races serialise correctly.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := tx.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.GetByIDForUpdate: %w", err)
	}
	return &o, nil
}

// ListOpenByMarket returns every open/partial order in a market, both sides
// together, in seq (arrival) order — used at boot to reconstruct the
// in-memory OrderBook for a market engine, which places each order at its
// price level and so keeps arrival order within a level.
func (r *OrderRepository) ListOpenByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE market_id = $1 AND status IN ($2, $3)
		ORDER BY seq ASC`,
		marketID, domain.OrderStatusOpen, domain.OrderStatusPartial)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListOpenByMarket: %w", err)
	}
	return orders, nil
}

// ListOpenByUserAll returns every open/partial order owned by a user, across
// all markets, oldest first — unlocked, for the withdrawal policy hook's
// pullback scan (spec §5), which cancels through each order's own market
// engine commit rather than holding one long-lived transaction itself.
func (r *OrderRepository) ListOpenByUserAll(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE user_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC`,
		userID, domain.OrderStatusOpen, domain.OrderStatusPartial)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListOpenByUserAll: %w", err)
	}
	return orders, nil
}

// ListOpenByUser returns every open/partial order owned by a user, across
// all markets — used by CancelAllOrders.
func (r *OrderRepository) ListOpenByUser(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := tx.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE user_id = $1 AND status IN ($2, $3)
		FOR UPDATE`,
		userID, domain.OrderStatusOpen, domain.OrderStatusPartial)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListOpenByUser: %w", err)
	}
	return orders, nil
}

// ListOpenByMarketForUpdate is the resolver's view: every open/partial order
// in a market about to be force-cancelled, locked for update.
func (r *OrderRepository) ListOpenByMarketForUpdate(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := tx.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE market_id = $1 AND status IN ($2, $3)
		FOR UPDATE`,
		marketID, domain.OrderStatusOpen, domain.OrderStatusPartial)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListOpenByMarketForUpdate: %w", err)
	}
	return orders, nil
}

// ApplyFill advances filled_sats and recomputes status (partial vs filled).
func (r *OrderRepository) ApplyFill(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, newFilledSats int64, status domain.OrderStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET filled_sats = $1, status = $2, updated_at = now()
		WHERE id = $3`,
		newFilledSats, status, orderID)
	if err != nil {
		return fmt.Errorf("order_repo.ApplyFill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// Cancel marks an order cancelled. Idempotent guard: only succeeds from a
// non-terminal status.
func (r *OrderRepository) Cancel(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)`,
		domain.OrderStatusCancelled, orderID, domain.OrderStatusOpen, domain.OrderStatusPartial)
	if err != nil {
		return fmt.Errorf("order_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOrderTerminal
	}
	return nil
}

// ListOpenByUserMarketSide returns a user's open/partial orders in one
// market on one side, FIFO by seq — the Market-Maker Core walks this to
// measure its current resting amount per price point and to cancel the
// oldest orders first when pulling back (spec §4.7).
func (r *OrderRepository) ListOpenByUserMarketSide(ctx context.Context, userID, marketID uuid.UUID, side domain.Side) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE user_id = $1 AND market_id = $2 AND side = $3 AND status IN ($4, $5)
		ORDER BY seq ASC`,
		userID, marketID, side, domain.OrderStatusOpen, domain.OrderStatusPartial)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListOpenByUserMarketSide: %w", err)
	}
	return orders, nil
}

// UpdateCostReserved adjusts the sats reserved against an order after a
// price-improvement refund has been credited back to the owner.
func (r *OrderRepository) UpdateCostReserved(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, costReservedSats int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET cost_reserved_sats = $1, updated_at = now() WHERE id = $2`,
		costReservedSats, orderID)
	if err != nil {
		return fmt.Errorf("order_repo.UpdateCostReserved: %w", err)
	}
	return nil
}

// OrderBookLevel is one aggregated price level for the read-model GetOrderBook.
type OrderBookLevel struct {
	PriceCents int   `db:"price_cents" json:"price_cents"`
	TotalSats  int64 `db:"total_sats" json:"total_sats"`
}

// AggregatedBook returns one side of a market's book aggregated by price,
// ascending, straight from durable storage. Nothing in this repository calls
// it; GetOrderBook is served from the in-memory engine.
func (r *OrderRepository) AggregatedBook(ctx context.Context, marketID uuid.UUID, side domain.Side) ([]OrderBookLevel, error) {
	var levels []OrderBookLevel
	err := r.db.SelectContext(ctx, &levels, `
		SELECT price_cents, SUM(amount_sats - filled_sats) AS total_sats
		FROM orders
		WHERE market_id = $1 AND side = $2 AND status IN ($3, $4)
		GROUP BY price_cents
		ORDER BY price_cents`,
		marketID, side, domain.OrderStatusOpen, domain.OrderStatusPartial)
	if err != nil {
		return nil, fmt.Errorf("order_repo.AggregatedBook: %w", err)
	}
	return levels, nil
}

// NextSeq returns a strictly increasing sequence number for a market, used
// as the non-decreasing sort key spec §5 requires ("use commit sequence if
// wall-clock is ambiguous").
func (r *OrderRepository) NextSeq(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) (int64, error) {
	var seq int64
	err := tx.GetContext(ctx, &seq, `
		UPDATE markets SET seq_counter = seq_counter + 1 WHERE id = $1
		RETURNING seq_counter`, marketID)
	if err != nil {
		return 0, fmt.Errorf("order_repo.NextSeq: %w", err)
	}
	return seq, nil
}
