package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/engine"
	"github.com/satscex/exchange/internal/mm"
	"github.com/satscex/exchange/internal/repository"
	"github.com/shopspring/decimal"
)

// MMService implements engine.FillNotifier. It owns the Market-Maker Core's
// risk state (exposure, tier, pullback) and is the only caller that places
// or cancels orders on the bot's behalf — always through the same
// Manager/PlaceOrder/CancelOrder path any other user goes through (spec
// §4.7: "The order goes through the normal Order Pipeline").
type MMService struct {
	mmRepo     *repository.MMRepository
	marketRepo *repository.MarketRepository
	orderRepo  *repository.OrderRepository
	betRepo    *repository.BetRepository
	userRepo   *repository.UserRepository
	manager    *engine.Manager
	log        *slog.Logger

	mu sync.Mutex // one reconciliation pass at a time
}

func NewMMService(
	mmRepo *repository.MMRepository,
	marketRepo *repository.MarketRepository,
	orderRepo *repository.OrderRepository,
	betRepo *repository.BetRepository,
	userRepo *repository.UserRepository,
	manager *engine.Manager,
	log *slog.Logger,
) *MMService {
	return &MMService{
		mmRepo:     mmRepo,
		marketRepo: marketRepo,
		orderRepo:  orderRepo,
		betRepo:    betRepo,
		userRepo:   userRepo,
		manager:    manager,
		log:        log,
	}
}

// NotifyBotFill implements engine.FillNotifier — trigger (i) from spec §4.7:
// "any bot-facing fill occurred ... exposure just rose."
func (s *MMService) NotifyBotFill(marketID uuid.UUID) {
	ctx := context.Background()
	if err := s.reconcileTriggeredBy(ctx, marketID, domain.ActivityReconcile, "bot fill"); err != nil {
		s.log.Error("mm: reconcile after bot fill failed", "market_id", marketID, "err", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Deploy / Withdraw — admin operations (spec §4.7)
// ──────────────────────────────────────────────────────────────────────────────

// Deploy applies reconciliation across every open, bot_enabled market whose
// override is not "disable".
func (s *MMService) Deploy(ctx context.Context) error {
	markets, err := s.quotableMarkets(ctx)
	if err != nil {
		return fmt.Errorf("mm_service.Deploy: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.ID)
	}
	return s.reconcileMany(ctx, ids, domain.ActivityDeploy, "deploy")
}

// Withdraw cancels every open bot order in every market (spec §4.7: "Withdraw
// cancels every open bot order (any market)"). It does not touch buy curve
// or config — a subsequent Deploy re-quotes from scratch.
func (s *MMService) Withdraw(ctx context.Context) error {
	bot, err := s.userRepo.GetBotUser(ctx)
	if err != nil {
		return fmt.Errorf("mm_service.Withdraw: bot user: %w", err)
	}

	before, err := s.mmRepo.GetExposure(ctx)
	if err != nil {
		return fmt.Errorf("mm_service.Withdraw: exposure: %w", err)
	}

	result, err := s.manager.CancelAllOrders(ctx, bot.ID)
	if err != nil {
		return fmt.Errorf("mm_service.Withdraw: cancel all: %w", err)
	}

	after, err := s.mmRepo.GetExposure(ctx)
	if err != nil {
		after = before
	}

	s.logActivity(ctx, domain.ActivityWithdraw, nil, before.TotalAtRiskSats, after.TotalAtRiskSats,
		fmt.Sprintf("cancelled %d orders, refunded %d sats", result.OrdersCancelled, result.RefundSats))
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Config mutation endpoints — each re-triggers reconciliation (spec §4.7
// trigger (ii)/(iii))
// ──────────────────────────────────────────────────────────────────────────────

// SetConfig updates the bot's global risk configuration and reconciles every
// quoted market against the new parameters.
func (s *MMService) SetConfig(ctx context.Context, cfg *domain.MarketMakerConfig) error {
	if err := s.mmRepo.UpdateConfig(ctx, cfg); err != nil {
		return fmt.Errorf("mm_service.SetConfig: %w", err)
	}
	markets, err := s.quotableMarkets(ctx)
	if err != nil {
		return fmt.Errorf("mm_service.SetConfig: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.ID)
	}
	return s.reconcileMany(ctx, ids, domain.ActivityReconcile, "config updated")
}

// SetMarketOverride sets a per-market disable/scale override and reconciles
// just that market.
func (s *MMService) SetMarketOverride(ctx context.Context, marketID uuid.UUID, overrideType domain.MarketOverrideType, multiplier decimal.Decimal) error {
	override := &domain.BotMarketOverride{MarketID: marketID, OverrideType: overrideType, Multiplier: multiplier}
	if err := s.mmRepo.SetOverride(ctx, override); err != nil {
		return fmt.Errorf("mm_service.SetMarketOverride: %w", err)
	}
	return s.reconcileTriggeredBy(ctx, marketID, domain.ActivityReconcile, "market override changed")
}

// SetBuyCurve replaces the base curve for a market type/side and reconciles
// every quoted market of that type.
func (s *MMService) SetBuyCurve(ctx context.Context, marketType domain.MarketType, side domain.Side, points []domain.BuyCurvePoint) error {
	if err := s.mmRepo.SetBuyCurve(ctx, marketType, side, points); err != nil {
		return fmt.Errorf("mm_service.SetBuyCurve: %w", err)
	}
	markets, err := s.quotableMarkets(ctx)
	if err != nil {
		return fmt.Errorf("mm_service.SetBuyCurve: %w", err)
	}
	var ids []uuid.UUID
	for _, m := range markets {
		if m.Type == marketType {
			ids = append(ids, m.ID)
		}
	}
	return s.reconcileMany(ctx, ids, domain.ActivityReconcile, "buy curve updated")
}

// ──────────────────────────────────────────────────────────────────────────────
// Exposure, tier, and the cascading reconciliation decision
// ──────────────────────────────────────────────────────────────────────────────

// reconcileTriggeredBy recomputes total exposure/tier; if the tier did not
// change, only marketID is reconciled. If the tier changed, every quoted
// market is reconciled — the "cascading pullback" the stress tests exercise.
func (s *MMService) reconcileTriggeredBy(ctx context.Context, marketID uuid.UUID, action domain.BotActivityAction, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.mmRepo.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("reconcileTriggeredBy: config: %w", err)
	}
	if !cfg.IsActive {
		return nil
	}

	markets, err := s.quotableMarkets(ctx)
	if err != nil {
		return err
	}

	totalAtRisk, _, err := s.computeExposure(ctx, cfg.BotUserID, markets)
	if err != nil {
		return fmt.Errorf("reconcileTriggeredBy: exposure: %w", err)
	}
	newTier := domain.ComputeTier(totalAtRisk, cfg.MaxAcceptableLossSats, cfg.ThresholdPercent)

	before, err := s.mmRepo.GetExposure(ctx)
	if err != nil {
		return fmt.Errorf("reconcileTriggeredBy: current exposure: %w", err)
	}

	targets := []uuid.UUID{marketID}
	tierChanged := newTier != before.CurrentTier
	if tierChanged {
		targets = make([]uuid.UUID, 0, len(markets))
		for _, m := range markets {
			targets = append(targets, m.ID)
		}
		action = domain.ActivityTierChange
		s.log.Warn("mm: tier change triggers cascading reconciliation",
			"old_tier", before.CurrentTier, "new_tier", newTier, "total_at_risk", totalAtRisk)
	}

	r := domain.PullbackRatio(totalAtRisk, cfg.MaxAcceptableLossSats)
	for _, id := range targets {
		if err := s.reconcileMarket(ctx, cfg, id, r); err != nil {
			s.log.Error("mm: reconcile market failed", "market_id", id, "err", err)
		}
	}

	if err := s.mmRepo.UpdateExposureDirect(ctx, totalAtRisk, newTier); err != nil {
		s.log.Error("mm: update exposure row failed", "err", err)
	}
	s.logActivity(ctx, action, &marketID, before.TotalAtRiskSats, totalAtRisk, details)
	return nil
}

// reconcileMany reconciles an explicit set of markets unconditionally
// (Deploy, SetConfig, SetBuyCurve) — these are themselves the trigger, so
// the tier-change cascade check still runs against the whole quoted set.
func (s *MMService) reconcileMany(ctx context.Context, marketIDs []uuid.UUID, action domain.BotActivityAction, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.mmRepo.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("reconcileMany: config: %w", err)
	}
	if !cfg.IsActive {
		return nil
	}

	markets, err := s.quotableMarkets(ctx)
	if err != nil {
		return err
	}
	totalAtRisk, _, err := s.computeExposure(ctx, cfg.BotUserID, markets)
	if err != nil {
		return fmt.Errorf("reconcileMany: exposure: %w", err)
	}
	newTier := domain.ComputeTier(totalAtRisk, cfg.MaxAcceptableLossSats, cfg.ThresholdPercent)
	before, err := s.mmRepo.GetExposure(ctx)
	if err != nil {
		return fmt.Errorf("reconcileMany: current exposure: %w", err)
	}

	r := domain.PullbackRatio(totalAtRisk, cfg.MaxAcceptableLossSats)
	targets := marketIDs
	if newTier != before.CurrentTier {
		targets = make([]uuid.UUID, 0, len(markets))
		for _, m := range markets {
			targets = append(targets, m.ID)
		}
		action = domain.ActivityTierChange
	}
	for _, id := range targets {
		if err := s.reconcileMarket(ctx, cfg, id, r); err != nil {
			s.log.Error("mm: reconcile market failed", "market_id", id, "err", err)
		}
	}

	if err := s.mmRepo.UpdateExposureDirect(ctx, totalAtRisk, newTier); err != nil {
		s.log.Error("mm: update exposure row failed", "err", err)
	}
	s.logActivity(ctx, action, nil, before.TotalAtRiskSats, totalAtRisk, details)
	return nil
}

// computeExposure implements spec §4.7's per-market worst-case-loss formula
// and sums it across every market the bot is actively quoting:
//
//	worst_case(m) = max(pendingYES_payout, pendingNO_payout) + unfilled_cost_still_reserved
func (s *MMService) computeExposure(ctx context.Context, botUserID uuid.UUID, markets []*domain.Market) (totalAtRisk int64, perMarket map[uuid.UUID]int64, err error) {
	perMarket = make(map[uuid.UUID]int64, len(markets))
	for _, m := range markets {
		pendingYes, pendingNo, err := s.betRepo.ExposureByBotMarket(ctx, botUserID, m.ID)
		if err != nil {
			return 0, nil, err
		}
		worstBets := pendingYes
		if pendingNo > worstBets {
			worstBets = pendingNo
		}

		var reserved int64
		for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
			orders, err := s.orderRepo.ListOpenByUserMarketSide(ctx, botUserID, m.ID, side)
			if err != nil {
				return 0, nil, err
			}
			for _, o := range orders {
				reserved += domain.CostSats(o.Side, o.RemainingSats(), o.PriceCents)
			}
		}

		worst := worstBets + reserved
		perMarket[m.ID] = worst
		totalAtRisk += worst
	}
	return totalAtRisk, perMarket, nil
}

// quotableMarkets returns every open, bot_enabled market whose override is
// not "disable" — the set Deploy and tier-change cascades operate over.
func (s *MMService) quotableMarkets(ctx context.Context) ([]*domain.Market, error) {
	all, err := s.marketRepo.ListOpenBotEnabled(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Market, 0, len(all))
	for _, m := range all {
		override, err := s.mmRepo.GetOverride(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if override != nil && override.OverrideType == domain.OverrideDisable {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Per-market reconciliation (spec §4.7 "Reconciliation")
// ──────────────────────────────────────────────────────────────────────────────

func (s *MMService) reconcileMarket(ctx context.Context, cfg *domain.MarketMakerConfig, marketID uuid.UUID, pullbackRatio decimal.Decimal) error {
	market, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("reconcileMarket: %w", err)
	}
	if !market.IsOpen() {
		return nil
	}

	override, err := s.mmRepo.GetOverride(ctx, marketID)
	if err != nil {
		return fmt.Errorf("reconcileMarket: override: %w", err)
	}
	marketMultiplier := mm.EffectiveMultiplier(override)
	globalMultiplier := cfg.GlobalMultiplier

	for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
		curve, err := s.mmRepo.GetBuyCurve(ctx, market.Type, side)
		if err != nil {
			return fmt.Errorf("reconcileMarket: buy curve: %w", err)
		}
		if len(curve) == 0 {
			continue
		}

		orders, err := s.orderRepo.ListOpenByUserMarketSide(ctx, cfg.BotUserID, marketID, side)
		if err != nil {
			return fmt.Errorf("reconcileMarket: list orders: %w", err)
		}
		currentByPrice := make(map[int]int64, len(curve))
		ordersByPrice := make(map[int][]*domain.Order, len(curve))
		for _, o := range orders {
			currentByPrice[o.PriceCents] += o.RemainingSats()
			ordersByPrice[o.PriceCents] = append(ordersByPrice[o.PriceCents], o)
		}

		plan := mm.BuildPlan(curve, currentByPrice, globalMultiplier, marketMultiplier, pullbackRatio)
		for _, step := range plan {
			delta := step.Delta()
			switch {
			case delta < 0:
				s.pullBack(ctx, cfg.BotUserID, ordersByPrice[step.PriceCents], -delta)
			case delta > 0:
				_, err := s.manager.PlaceOrder(ctx, engine.PlaceOrderRequest{
					UserID:     cfg.BotUserID,
					MarketID:   marketID,
					Side:       side,
					PriceCents: step.PriceCents,
					AmountSats: delta,
				})
				if err != nil {
					if domain.IsInsufficientFunds(err) {
						err = fmt.Errorf("%w: %v", domain.ErrMMReserveInsufficient, err)
					}
					s.log.Warn("mm: bot order placement failed, balance is the hard cap",
						"market_id", marketID, "side", side, "price_cents", step.PriceCents, "amount_sats", delta, "err", err)
				}
			}
		}
	}
	return nil
}

// pullBack cancels the bot's oldest orders at one price point until at
// least amountSats worth of resting size has been freed (spec §4.7: "cancel
// bot orders at p until remaining ≤ target — FIFO oldest first").
func (s *MMService) pullBack(ctx context.Context, botUserID uuid.UUID, orders []*domain.Order, amountSats int64) {
	remaining := amountSats
	for _, o := range orders {
		if remaining <= 0 {
			break
		}
		if _, err := s.manager.CancelOrder(ctx, o.MarketID, o.ID, botUserID); err != nil {
			s.log.Error("mm: pullback cancel failed", "order_id", o.ID, "err", err)
			continue
		}
		remaining -= o.RemainingSats()
	}
}

func (s *MMService) logActivity(ctx context.Context, action domain.BotActivityAction, marketID *uuid.UUID, before, after int64, details string) {
	if err := s.mmRepo.AppendActivity(ctx, &domain.BotActivityLog{
		Action:         action,
		MarketID:       marketID,
		ExposureBefore: before,
		ExposureAfter:  after,
		Details:        details,
	}); err != nil {
		s.log.Error("mm: activity log append failed", "err", err)
	}
}
