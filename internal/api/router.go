package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/satscex/exchange/internal/api/handler"
	"github.com/satscex/exchange/internal/api/middleware"
	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/engine"
	"github.com/satscex/exchange/internal/repository"
	"github.com/satscex/exchange/internal/service"
	"github.com/satscex/exchange/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc       *service.AuthService
	MarketSvc     *service.MarketService
	BetSvc        *service.BetService
	ResolutionSvc *service.ResolutionService
	MMSvc         *service.MMService
	Manager       *engine.Manager
	UserRepo      *repository.UserRepository
	Hub           *ws.Hub
	Cfg           *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(deps.AuthSvc, deps.UserRepo)
	marketH := handler.NewMarketHandler(deps.MarketSvc, deps.Manager)
	orderH := handler.NewOrderHandler(deps.Manager)
	positionH := handler.NewPositionHandler(deps.BetSvc)
	adminH := handler.NewAdminHandler(deps.ResolutionSvc, deps.MMSvc, deps.MarketSvc)

	// ── JWT / admin middleware (shared) ───────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)
	adminMW := middleware.AdminMiddleware()

	// ── Rate limiters ─────────────────────────────────────────────────────────
	authRL := middleware.RateLimitMiddleware(10) // 10 req/s per IP for auth endpoints
	orderRL := middleware.RateLimitMiddleware(30) // 30 req/s per IP for order placement/cancellation

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ─────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", authH.Register)
			auth.POST("/login", authH.Login)
			auth.POST("/refresh", authH.Refresh)
		}

		// ── Markets (public) ─────────────────────────────────────────────────
		markets := api.Group("/markets")
		{
			markets.GET("", marketH.ListOpenMarkets)
			markets.GET("/history", marketH.GetHistory)
			markets.GET("/:id", marketH.GetByID)
			markets.GET("/:id/book", marketH.GetOrderBook)
		}

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			authed.GET("/me", authH.Me)
			authed.GET("/positions", positionH.GetPositions)

			orders := authed.Group("/orders")
			orders.Use(orderRL)
			{
				orders.POST("", orderH.PlaceOrder)
				orders.DELETE("/:id", orderH.CancelOrder)
				orders.DELETE("", orderH.CancelAllOrders)
			}

			// ── Admin ────────────────────────────────────────────────────────
			admin := authed.Group("/admin")
			admin.Use(adminMW)
			{
				admin.POST("/markets", adminH.CreateMarket)
				admin.PUT("/markets/:id/bot", adminH.SetBotEnabled)
				admin.POST("/markets/:id/resolve", adminH.ResolveMarket)

				admin.POST("/mm/deploy", adminH.Deploy)
				admin.POST("/mm/withdraw", adminH.Withdraw)
				admin.PUT("/mm/config", adminH.SetConfig)
				admin.PUT("/mm/markets/:id/override", adminH.SetMarketOverride)
				admin.PUT("/mm/curves/:type", adminH.SetBuyCurve)
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In DEBUG mode all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			if allowedOrigin(cfg, origin) {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// allowedOrigin reports whether origin is in the comma-separated
// ALLOWED_ORIGINS list. An empty list (the dev default) allows none
// in production — corsMiddleware only calls this once IsProd() is true.
func allowedOrigin(cfg *config.Config, origin string) bool {
	if cfg.Server.AllowedOrigins == "" {
		return false
	}
	for _, o := range strings.Split(cfg.Server.AllowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}
