// Package main is the entry point for the satscex prediction-market exchange
// server. It wires together repositories, the matching engine manager,
// services, the WebSocket hub, the reconciliation scheduler, and the HTTP
// router, then serves until an interrupt or term signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/satscex/exchange/internal/api"
	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/engine"
	"github.com/satscex/exchange/internal/repository"
	"github.com/satscex/exchange/internal/scheduler"
	"github.com/satscex/exchange/internal/service"
	"github.com/satscex/exchange/internal/ws"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting satscex exchange server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Repositories ───────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	marketRepo := repository.NewMarketRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	betRepo := repository.NewBetRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	mmRepo := repository.NewMMRepository(db)

	// ── 5. Matching engine manager ────────────────────────────────────────────
	manager := engine.NewManager(db, orderRepo, marketRepo, betRepo, ledgerRepo, userRepo, &cfg.Ledger, logger)

	// ── 6. Services (order matters for injection) ─────────────────────────────
	authSvc := service.NewAuthService(userRepo, cfg)
	marketSvc := service.NewMarketService(marketRepo, manager, logger)
	betSvc := service.NewBetService(betRepo)
	mmSvc := service.NewMMService(mmRepo, marketRepo, orderRepo, betRepo, userRepo, manager, logger)
	resolutionSvc := service.NewResolutionService(marketRepo, manager, logger)

	// service.LedgerService (CreditDeposit/InitiateWithdrawal/MarkWithdrawalSettled)
	// is deliberately not constructed here — it is the seam an external
	// Lightning/on-chain adapter calls into, not a route this binary serves.

	// Wire the Market-Maker Core's reconciliation trigger into the matching
	// engine's fill pipeline (spec §4.7 trigger (i): any bot-facing fill).
	manager.SetFillNotifier(mmSvc)

	// ── 7. WebSocket Hub ───────────────────────────────────────────────────────
	jwtSecret := []byte(cfg.JWT.AccessSecret)
	var allowedOrigins []string
	if cfg.Server.AllowedOrigins != "" {
		for _, o := range strings.Split(cfg.Server.AllowedOrigins, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}
	hub := ws.NewHub(jwtSecret, allowedOrigins, logger)

	// Wire the realtime broadcaster into the matching engine (spec §6 realtime
	// feed: book deltas, trade prints, resolutions pushed as they commit).
	manager.SetPublisher(hub)

	// ── 8. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 9. Boot the manager — recover one engine goroutine per open market ────
	if err = manager.Boot(ctx); err != nil {
		logger.Error("engine manager boot failed", "err", err)
		os.Exit(1)
	}
	logger.Info("engine manager booted")

	// ── 10. Start WS Hub ───────────────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	// ── 11. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(mmSvc, cfg, logger)
	sched.Start(ctx)

	// ── 12. HTTP Router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:       authSvc,
		MarketSvc:     marketSvc,
		BetSvc:        betSvc,
		ResolutionSvc: resolutionSvc,
		MMSvc:         mmSvc,
		Manager:       manager,
		UserRepo:      userRepo,
		Hub:           hub,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 13. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 14. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations applies every pending up-migration in dir via golang-migrate,
// using its Postgres driver on the already-open connection. Returns nil (not
// migrate.ErrNoChange) when the schema is already current.
func runMigrations(db *sqlx.DB, dir string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("runMigrations: postgres driver: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: resolve dir %q: %w", dir, err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+absDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("runMigrations: new migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("runMigrations: up: %w", err)
	}
	return nil
}
