package engine

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
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/repository"
)

// command is one unit of serialized work handled by a MarketEngine's single
// consuming goroutine. This is the mechanism spec §5 calls for: "serial per
// market, parallel across markets" — grounded on wager-marketplace's
// cmdCh/run() pattern.
type command interface {
	exec(e *MarketEngine)
}

// MarketEngine owns one market's in-memory book and is the only goroutine
// allowed to mutate it. All public methods are safe to call concurrently —
// they send a command and block on a reply channel, while run() processes
// commands one at a time.
type MarketEngine struct {
	marketID uuid.UUID
	book     *OrderBook
	cmdCh    chan command

	db         *sqlx.DB
	orderRepo  *repository.OrderRepository
	marketRepo *repository.MarketRepository
	betRepo    *repository.BetRepository
	ledgerRepo *repository.LedgerRepository

	publish      Publisher
	fillNotifier FillNotifier
	botUserID    uuid.UUID // uuid.Nil if no bot provisioned yet

	minLotSats          int64
	serializationRetries int
	log                 *slog.Logger
}

func newMarketEngine(
	ctx context.Context,
	marketID uuid.UUID,
	db *sqlx.DB,
	orderRepo *repository.OrderRepository,
	marketRepo *repository.MarketRepository,
	betRepo *repository.BetRepository,
	ledgerRepo *repository.LedgerRepository,
	publish Publisher,
	fillNotifier FillNotifier,
	botUserID uuid.UUID,
	minLotSats int64,
	serializationRetries int,
	log *slog.Logger,
) (*MarketEngine, error) {
	e := &MarketEngine{
		marketID:             marketID,
		book:                 NewOrderBook(),
		cmdCh:                make(chan command, 64),
		db:                   db,
		orderRepo:            orderRepo,
		marketRepo:           marketRepo,
		betRepo:              betRepo,
		ledgerRepo:           ledgerRepo,
		publish:              publish,
		fillNotifier:         fillNotifier,
		botUserID:            botUserID,
		minLotSats:           minLotSats,
		serializationRetries: serializationRetries,
		log:                  log,
	}

	open, err := orderRepo.ListOpenByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("newMarketEngine: load open orders: %w", err)
	}
	for _, o := range open {
		e.book.Add(o.Side, &RestingOrder{
			OrderID:       o.ID,
			UserID:        o.UserID,
			PriceCents:    o.PriceCents,
			RemainingSats: o.RemainingSats(),
			Seq:           o.Seq,
		})
	}
	return e, nil
}

// Run is the engine's single consuming goroutine. Call it once, as a
// goroutine, before any public method is used.
func (e *MarketEngine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.cmdCh:
			cmd.exec(e)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceOrder
// ──────────────────────────────────────────────────────────────────────────────

type placeCmd struct {
	ctx   context.Context
	req   PlaceOrderRequest
	reply chan placeReply
}

type placeReply struct {
	result *PlaceOrderResult
	err    error
}

func (c *placeCmd) exec(e *MarketEngine) {
	result, err := e.processOrder(c.ctx, c.req)
	c.reply <- placeReply{result: result, err: err}
}

// PlaceOrder validates, reserves, matches, auto-settles, and finalizes an
// order in one serializable commit (spec §4.4). Safe to call from any
// goroutine; blocks until this market's engine has processed the request.
func (e *MarketEngine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	reply := make(chan placeReply, 1)
	select {
	case e.cmdCh <- &placeCmd{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// processOrder runs entirely on the engine's goroutine — no other command
// for this market runs concurrently with it.
func (e *MarketEngine) processOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	// 1. Validate.
	if !req.Side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	if req.PriceCents < domain.MinPriceCents || req.PriceCents > domain.MaxPriceCents {
		return nil, domain.ErrInvalidPrice
	}
	if req.AmountSats < e.minLotSats {
		return nil, domain.ErrAmountTooSmall
	}

	market, err := e.marketRepo.GetByID(ctx, req.MarketID)
	if err != nil {
		return nil, err
	}
	if !market.IsOpen() {
		return nil, domain.ErrMarketUnavailable
	}

	// 2. Compute cost.
	cost := domain.CostSats(req.Side, req.AmountSats, req.PriceCents)
	orderID := uuid.New()
	now := time.Now().UTC()

	var result *PlaceOrderResult
	var appliedFills []appliedFill
	var restResult *restOutcome
	var trades []TradePrint

	err = e.withSerializableRetry(ctx, func(tx *sqlx.Tx) error {
		appliedFills = nil // reset on retry
		trades = nil

		// 3. Reserve.
		if _, err := e.ledgerRepo.Debit(ctx, tx, req.UserID, cost, domain.TxOrderPlaced, &orderID); err != nil {
			return err
		}

		seq, err := e.orderRepo.NextSeq(ctx, tx, req.MarketID)
		if err != nil {
			return err
		}

		order := &domain.Order{
			ID:               orderID,
			UserID:           req.UserID,
			MarketID:         req.MarketID,
			Side:             req.Side,
			PriceCents:       req.PriceCents,
			AmountSats:       req.AmountSats,
			FilledSats:       0,
			Status:           domain.OrderStatusOpen,
			CostReservedSats: cost,
			Seq:              seq,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		// 4. Persist order.
		if err := e.orderRepo.Create(ctx, tx, order); err != nil {
			return err
		}

		// 5. Match (book read is non-mutating; fills apply to the book only
		// after this commit succeeds).
		matches := e.book.FindMatches(req.Side, req.PriceCents, req.AmountSats, req.UserID)

		var filled int64
		var actualFilledCost int64
		botTouched := false

		for _, m := range matches {
			makerOrder, err := e.orderRepo.GetByIDForUpdate(ctx, tx, m.RestingOrderID)
			if err != nil {
				return err
			}
			newMakerFilled := makerOrder.FilledSats + m.FillSats
			makerStatus := domain.OrderStatusPartial
			if newMakerFilled >= makerOrder.AmountSats {
				makerStatus = domain.OrderStatusFilled
			}
			if err := e.orderRepo.ApplyFill(ctx, tx, makerOrder.ID, newMakerFilled, makerStatus); err != nil {
				return err
			}

			// Pricing on fill (spec §4.3): taker bet at (100 - p_m), maker
			// bet at p_m. Taker side = req.Side; maker side = opposite.
			takerBetPrice := 100 - m.MakerPriceCents
			makerBetPrice := m.MakerPriceCents

			yesBet, noBet := buildBetPair(
				req.MarketID, req.Side, req.UserID, m.RestingUserID,
				takerBetPrice, makerBetPrice, m.FillSats,
				orderID, m.RestingOrderID, now,
			)
			if err := e.betRepo.CreatePair(ctx, tx, yesBet, noBet); err != nil {
				return err
			}

			filled += m.FillSats
			actualFilledCost += domain.CostSats(req.Side, m.FillSats, takerBetPrice)
			appliedFills = append(appliedFills, appliedFill{orderID: m.RestingOrderID, fillSats: m.FillSats})
			trades = append(trades, TradePrint{
				MarketID:     req.MarketID,
				TakerOrderID: orderID,
				MakerOrderID: m.RestingOrderID,
				PriceCents:   takerBetPrice,
				FillSats:     m.FillSats,
			})

			if e.botUserID != uuid.Nil && (m.RestingUserID == e.botUserID || req.UserID == e.botUserID) {
				botTouched = true
			}
		}

		remaining := req.AmountSats - filled

		// Price improvement: the portion actually filled may have cost less
		// than the reservation against the limit price. Refund the
		// difference immediately (spec §4.4 step 5).
		reservedForFilled := domain.CostSats(req.Side, filled, req.PriceCents)
		priceImprovement := reservedForFilled - actualFilledCost
		if priceImprovement > 0 {
			if _, err := e.ledgerRepo.Credit(ctx, tx, req.UserID, priceImprovement, domain.TxOrderPlaced, &orderID); err != nil {
				return err
			}
		}

		// 6. Auto-settle across the taker's updated position in this market.
		autoSettle, err := e.autoSettle(ctx, tx, req.UserID, req.MarketID, now)
		if err != nil {
			return err
		}

		// 7. Finalize.
		var status domain.OrderStatus
		switch {
		case remaining <= 0:
			status = domain.OrderStatusFilled
		case filled > 0:
			status = domain.OrderStatusPartial
		default:
			status = domain.OrderStatusOpen
		}
		if err := e.orderRepo.ApplyFill(ctx, tx, orderID, filled, status); err != nil {
			return err
		}
		newCostReserved := cost - priceImprovement
		if err := e.orderRepo.UpdateCostReserved(ctx, tx, orderID, newCostReserved); err != nil {
			return err
		}

		result = &PlaceOrderResult{
			OrderID:       orderID,
			Status:        status,
			FilledSats:    filled,
			RemainingSats: remaining,
			MatchedCount:  len(matches),
			CostSats:      newCostReserved,
		}
		if autoSettle != nil {
			result.AutoSettled = autoSettle
		}

		restResult = &restOutcome{
			shouldRest: status == domain.OrderStatusOpen || status == domain.OrderStatusPartial,
			order: &RestingOrder{
				OrderID:       orderID,
				UserID:        req.UserID,
				PriceCents:    req.PriceCents,
				RemainingSats: remaining,
				Seq:           seq,
			},
			botTouched: botTouched,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Post-commit: mutate the in-memory book and publish.
	for _, f := range appliedFills {
		e.book.ApplyFill(f.orderID, f.fillSats)
	}
	if restResult.shouldRest {
		e.book.Add(req.Side, restResult.order)
	}
	e.publishBookSnapshot()
	if e.publish != nil {
		for _, t := range trades {
			e.publish.PublishTrade(t)
		}
	}
	if restResult.botTouched && e.fillNotifier != nil {
		go e.fillNotifier.NotifyBotFill(e.marketID)
	}

	return result, nil
}

type appliedFill struct {
	orderID  uuid.UUID
	fillSats int64
}

type restOutcome struct {
	shouldRest bool
	order      *RestingOrder
	botTouched bool
}

// buildBetPair constructs the two Bet rows a single match produces. The two
// bets' prices sum to 100 and their amounts are equal (spec P3).
func buildBetPair(
	marketID uuid.UUID,
	takerSide domain.Side, takerUserID, makerUserID uuid.UUID,
	takerBetPrice, makerBetPrice int, fillSats int64,
	takerOrderID, makerOrderID uuid.UUID, now time.Time,
) (yesBet, noBet *domain.Bet) {
	makerSide := takerSide.Opposite()

	taker := &domain.Bet{
		ID:                 uuid.New(),
		MarketID:           marketID,
		Side:               takerSide,
		UserID:             takerUserID,
		CounterpartyUserID: makerUserID,
		PriceCents:         takerBetPrice,
		AmountSats:         fillSats,
		Result:             domain.BetResultPending,
		TakerOrderID:       takerOrderID,
		MakerOrderID:       makerOrderID,
		CreatedAt:          now,
	}
	maker := &domain.Bet{
		ID:                 uuid.New(),
		MarketID:           marketID,
		Side:               makerSide,
		UserID:             makerUserID,
		CounterpartyUserID: takerUserID,
		PriceCents:         makerBetPrice,
		AmountSats:         fillSats,
		Result:             domain.BetResultPending,
		TakerOrderID:       takerOrderID,
		MakerOrderID:       makerOrderID,
		CreatedAt:          now,
	}

	if takerSide == domain.SideYes {
		return taker, maker
	}
	return maker, taker
}

// ──────────────────────────────────────────────────────────────────────────────
// CancelOrder / CancelAllOrders
// ──────────────────────────────────────────────────────────────────────────────

type cancelCmd struct {
	ctx    context.Context
	orderID uuid.UUID
	userID  uuid.UUID
	reply   chan cancelReply
}

type cancelReply struct {
	result *CancelOrderResult
	err    error
}

func (c *cancelCmd) exec(e *MarketEngine) {
	result, err := e.cancelOrder(c.ctx, c.orderID, c.userID)
	c.reply <- cancelReply{result: result, err: err}
}

// CancelOrder cancels a resting order and refunds its unfilled cost (spec §4.6).
func (e *MarketEngine) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*CancelOrderResult, error) {
	reply := make(chan cancelReply, 1)
	select {
	case e.cmdCh <- &cancelCmd{ctx: ctx, orderID: orderID, userID: userID, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *MarketEngine) cancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*CancelOrderResult, error) {
	var refund int64
	err := e.withSerializableRetry(ctx, func(tx *sqlx.Tx) error {
		order, err := e.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return domain.ErrNotOwner
		}
		if order.Status.Terminal() {
			return domain.ErrOrderTerminal
		}
		refund = domain.CostSats(order.Side, order.RemainingSats(), order.PriceCents)
		if err := e.orderRepo.Cancel(ctx, tx, orderID); err != nil {
			return err
		}
		if refund > 0 {
			if _, err := e.ledgerRepo.Credit(ctx, tx, userID, refund, domain.TxOrderCancelled, &orderID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.book.Remove(orderID)
	e.publishBookSnapshot()
	return &CancelOrderResult{RefundSats: refund}, nil
}

type cancelAllCmd struct {
	ctx    context.Context
	userID uuid.UUID
	reply  chan cancelAllReply
}

type cancelAllReply struct {
	result *CancelAllResult
	err    error
}

func (c *cancelAllCmd) exec(e *MarketEngine) {
	result, err := e.cancelAllForUser(c.ctx, c.userID)
	c.reply <- cancelAllReply{result: result, err: err}
}

// CancelAllInMarket cancels every open/partial order this user holds in this
// market, in one commit.
func (e *MarketEngine) CancelAllInMarket(ctx context.Context, userID uuid.UUID) (*CancelAllResult, error) {
	reply := make(chan cancelAllReply, 1)
	select {
	case e.cmdCh <- &cancelAllCmd{ctx: ctx, userID: userID, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *MarketEngine) cancelAllForUser(ctx context.Context, userID uuid.UUID) (*CancelAllResult, error) {
	var cancelled []uuid.UUID
	var totalRefund int64
	err := e.withSerializableRetry(ctx, func(tx *sqlx.Tx) error {
		cancelled = nil
		totalRefund = 0
		orders, err := e.orderRepo.ListOpenByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, order := range orders {
			if order.MarketID != e.marketID {
				continue
			}
			refund := domain.CostSats(order.Side, order.RemainingSats(), order.PriceCents)
			if err := e.orderRepo.Cancel(ctx, tx, order.ID); err != nil {
				return err
			}
			if refund > 0 {
				if _, err := e.ledgerRepo.Credit(ctx, tx, userID, refund, domain.TxOrderCancelled, &order.ID); err != nil {
					return err
				}
			}
			cancelled = append(cancelled, order.ID)
			totalRefund += refund
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, id := range cancelled {
		e.book.Remove(id)
	}
	if len(cancelled) > 0 {
		e.publishBookSnapshot()
	}
	return &CancelAllResult{OrdersCancelled: len(cancelled), RefundSats: totalRefund}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolve
// ──────────────────────────────────────────────────────────────────────────────

type resolveCmd struct {
	ctx         context.Context
	winningSide domain.Side
	notes       string
	reply       chan resolveReply
}

type resolveReply struct {
	result *ResolveResult
	err    error
}

func (c *resolveCmd) exec(e *MarketEngine) {
	result, err := e.resolveMarket(c.ctx, c.winningSide, c.notes)
	c.reply <- resolveReply{result: result, err: err}
}

// ResolveMarket settles every pending bet and cancels every open order in
// this market, in one commit (spec §4.8).
func (e *MarketEngine) ResolveMarket(ctx context.Context, winningSide domain.Side, notes string) (*ResolveResult, error) {
	reply := make(chan resolveReply, 1)
	select {
	case e.cmdCh <- &resolveCmd{ctx: ctx, winningSide: winningSide, notes: notes, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *MarketEngine) resolveMarket(ctx context.Context, winningSide domain.Side, notes string) (*ResolveResult, error) {
	var betsSettled, ordersCancelled int
	var clearedOrderIDs []uuid.UUID

	err := e.withSerializableRetry(ctx, func(tx *sqlx.Tx) error {
		betsSettled, ordersCancelled = 0, 0
		clearedOrderIDs = nil

		if err := e.marketRepo.Resolve(ctx, tx, e.marketID, winningSide, notes); err != nil {
			return err
		}

		bets, err := e.betRepo.PendingByMarketForUpdate(ctx, tx, e.marketID)
		if err != nil {
			return err
		}
		for _, bet := range bets {
			result := domain.BetResultLost
			if bet.Side == winningSide {
				result = domain.BetResultWon
			}
			if err := e.betRepo.SetResult(ctx, tx, bet.ID, result); err != nil {
				return err
			}
			if result == domain.BetResultWon {
				if _, err := e.ledgerRepo.Credit(ctx, tx, bet.UserID, bet.AmountSats, domain.TxBetWon, &bet.ID); err != nil {
					return err
				}
			}
			betsSettled++
		}

		orders, err := e.orderRepo.ListOpenByMarketForUpdate(ctx, tx, e.marketID)
		if err != nil {
			return err
		}
		for _, order := range orders {
			refund := domain.CostSats(order.Side, order.RemainingSats(), order.PriceCents)
			if err := e.orderRepo.Cancel(ctx, tx, order.ID); err != nil {
				return err
			}
			if refund > 0 {
				if _, err := e.ledgerRepo.Credit(ctx, tx, order.UserID, refund, domain.TxOrderCancelled, &order.ID); err != nil {
					return err
				}
			}
			clearedOrderIDs = append(clearedOrderIDs, order.ID)
			ordersCancelled++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range clearedOrderIDs {
		e.book.Remove(id)
	}
	e.publish.PublishResolution(e.marketID, winningSide, betsSettled, ordersCancelled)

	return &ResolveResult{BetsSettled: betsSettled, OrdersCancelled: ordersCancelled}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Read-only snapshots (safe to call from any goroutine — these only touch
// the book's maps, never mutate them, and run outside the command channel
// since a pure read cannot race with the single writer in a way that
// matters for the guarantees spec §5 asks for).
// ──────────────────────────────────────────────────────────────────────────────

// Snapshot returns the current aggregated book for read-model consumers.
func (e *MarketEngine) Snapshot() BookSnapshot {
	toLevels := func(in []struct {
		PriceCents int
		TotalSats  int64
	}) []BookSnapshotLevel {
		out := make([]BookSnapshotLevel, 0, len(in))
		for _, l := range in {
			out = append(out, BookSnapshotLevel{PriceCents: l.PriceCents, TotalSats: l.TotalSats})
		}
		return out
	}
	return BookSnapshot{
		MarketID: e.marketID,
		Yes:      toLevels(e.book.LevelsFor(domain.SideYes)),
		No:       toLevels(e.book.LevelsFor(domain.SideNo)),
	}
}

func (e *MarketEngine) publishBookSnapshot() {
	if e.publish == nil {
		return
	}
	e.publish.PublishBookSnapshot(e.Snapshot())
}

// ──────────────────────────────────────────────────────────────────────────────
// Serializable-transaction retry (spec §7: Conflict taxonomy)
// ──────────────────────────────────────────────────────────────────────────────

// withSerializableRetry runs fn inside a SERIALIZABLE transaction, retrying
// up to e.serializationRetries times with short jittered backoff if
// Postgres reports a serialization failure (SQLSTATE 40001). Exhausting
// retries surfaces ErrServiceBusy per the spec's Conflict taxonomy.
func (e *MarketEngine) withSerializableRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.serializationRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(5+rand.Intn(15)) * time.Millisecond * time.Duration(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		tx, err := e.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("market_engine: begin tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `SET TRANSACTION ISOLATION LEVEL SERIALIZABLE`); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("market_engine: set isolation: %w", err)
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
			return fmt.Errorf("market_engine: commit: %w", err)
		}
		return nil
	}
	e.log.Warn("serialization retries exhausted", "market_id", e.marketID, "last_err", lastErr)
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
