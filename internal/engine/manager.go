package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/repository"
)

// Manager owns one MarketEngine per open market and is the facade the rest
// of the system calls (spec §6's external interfaces). It never mutates a
// book itself — every mutation is routed to the owning engine's command
// channel, which is what gives each market serial processing while
// different markets run fully in parallel (spec §5).
type Manager struct {
	mu      sync.RWMutex
	engines map[uuid.UUID]*MarketEngine
	cancel  map[uuid.UUID]context.CancelFunc

	db         *sqlx.DB
	orderRepo  *repository.OrderRepository
	marketRepo *repository.MarketRepository
	betRepo    *repository.BetRepository
	ledgerRepo *repository.LedgerRepository
	userRepo   *repository.UserRepository

	publish      Publisher
	fillNotifier FillNotifier

	minLotSats           int64
	serializationRetries int
	log                  *slog.Logger
}

func NewManager(
	db *sqlx.DB,
	orderRepo *repository.OrderRepository,
	marketRepo *repository.MarketRepository,
	betRepo *repository.BetRepository,
	ledgerRepo *repository.LedgerRepository,
	userRepo *repository.UserRepository,
	cfg *config.LedgerConfig,
	log *slog.Logger,
) *Manager {
	return &Manager{
		engines:              make(map[uuid.UUID]*MarketEngine),
		cancel:               make(map[uuid.UUID]context.CancelFunc),
		db:                   db,
		orderRepo:            orderRepo,
		marketRepo:           marketRepo,
		betRepo:              betRepo,
		ledgerRepo:           ledgerRepo,
		userRepo:             userRepo,
		publish:              noopPublisher{},
		fillNotifier:         noopNotifier{},
		minLotSats:           cfg.MinLotSats,
		serializationRetries: cfg.SerializationRetries,
		log:                  log,
	}
}

// SetPublisher wires the realtime broadcaster in after construction —
// internal/ws.Hub satisfies Publisher. Must be called before Boot if book
// snapshots during boot reconstruction should be observable, though boot
// itself does not publish.
func (m *Manager) SetPublisher(p Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish = p
}

// SetFillNotifier wires the Market-Maker Core's reconciliation trigger in
// after construction — internal/service.MMService satisfies FillNotifier.
func (m *Manager) SetFillNotifier(n FillNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillNotifier = n
}

// Boot loads every open market and starts one engine goroutine per market,
// each reconstructing its in-memory book from durable order rows. Called
// once at process startup.
func (m *Manager) Boot(ctx context.Context) error {
	markets, err := m.marketRepo.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("manager.Boot: list open markets: %w", err)
	}
	for _, mkt := range markets {
		if err := m.StartEngine(ctx, mkt.ID); err != nil {
			return fmt.Errorf("manager.Boot: start engine for market %s: %w", mkt.ID, err)
		}
	}
	m.log.Info("engine manager booted", "markets", len(markets))
	return nil
}

// StartEngine starts a new market's engine goroutine — called at Boot for
// every already-open market, and again whenever a new market is created
// while the process is running.
func (m *Manager) StartEngine(ctx context.Context, marketID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.engines[marketID]; ok {
		return nil // already running
	}

	var botUserID uuid.UUID
	if bot, err := m.userRepo.GetBotUser(ctx); err == nil {
		botUserID = bot.ID
	}

	e, err := newMarketEngine(
		ctx, marketID, m.db,
		m.orderRepo, m.marketRepo, m.betRepo, m.ledgerRepo,
		m.publish, m.fillNotifier, botUserID,
		m.minLotSats, m.serializationRetries, m.log,
	)
	if err != nil {
		return err
	}

	engineCtx, cancel := context.WithCancel(ctx)
	m.engines[marketID] = e
	m.cancel[marketID] = cancel
	go e.Run(engineCtx)
	return nil
}

// StopEngine halts a market's engine goroutine — used when a market
// resolves or is cancelled, since it can no longer accept orders.
func (m *Manager) StopEngine(marketID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancel[marketID]; ok {
		cancel()
		delete(m.cancel, marketID)
		delete(m.engines, marketID)
	}
}

func (m *Manager) engineFor(marketID uuid.UUID) (*MarketEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return e, nil
}

// PlaceOrder routes to the owning market's engine (spec §6: PlaceOrder).
func (m *Manager) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	e, err := m.engineFor(req.MarketID)
	if err != nil {
		return nil, err
	}
	return e.PlaceOrder(ctx, req)
}

// CancelOrder routes to the owning market's engine (spec §6: CancelOrder).
func (m *Manager) CancelOrder(ctx context.Context, marketID, orderID, userID uuid.UUID) (*CancelOrderResult, error) {
	e, err := m.engineFor(marketID)
	if err != nil {
		return nil, err
	}
	return e.CancelOrder(ctx, orderID, userID)
}

// CancelAllOrders cancels a user's resting orders across every market they
// have one open in (spec §6: CancelAllOrders). Every market's command
// channel is independent, so cancellation fans out across all of them
// concurrently rather than serially — a slow or failing market never
// delays the others. Uses a plain (context-less) errgroup.Group so one
// market's error doesn't cancel an in-flight sibling: each commits (or
// doesn't) on its own, and the first error seen is reported once every
// market has had its chance.
func (m *Manager) CancelAllOrders(ctx context.Context, userID uuid.UUID) (*CancelAllResult, error) {
	m.mu.RLock()
	engines := make([]*MarketEngine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.RUnlock()

	var (
		mu    sync.Mutex
		total = &CancelAllResult{}
		g     errgroup.Group
	)
	for _, e := range engines {
		e := e
		g.Go(func() error {
			r, err := e.CancelAllInMarket(ctx, userID)
			if err != nil {
				return err
			}
			mu.Lock()
			total.OrdersCancelled += r.OrdersCancelled
			total.RefundSats += r.RefundSats
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

// GetOrderBook returns the live in-memory book for a market (spec §6:
// GetOrderBook) — read-only, does not go through the command channel.
func (m *Manager) GetOrderBook(marketID uuid.UUID) (BookSnapshot, error) {
	e, err := m.engineFor(marketID)
	if err != nil {
		return BookSnapshot{}, err
	}
	return e.Snapshot(), nil
}

// ResolveMarket settles a market and stops its engine (spec §6: ResolveMarket).
func (m *Manager) ResolveMarket(ctx context.Context, marketID uuid.UUID, winningSide domain.Side, notes string) (*ResolveResult, error) {
	e, err := m.engineFor(marketID)
	if err != nil {
		return nil, err
	}
	result, err := e.ResolveMarket(ctx, winningSide, notes)
	if err != nil {
		return nil, err
	}
	m.StopEngine(marketID)
	return result, nil
}
