package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/engine"
	"github.com/satscex/exchange/internal/service"
)

// MarketHandler serves market and order-book query endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
	manager   *engine.Manager
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService, manager *engine.Manager) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc, manager: manager}
}

// ListOpenMarkets godoc
// GET /api/markets
func (h *MarketHandler) ListOpenMarkets(c *gin.Context) {
	markets, err := h.marketSvc.ListOpenMarkets(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, markets)
}

// GetHistory godoc
// GET /api/markets/history?page=1&limit=20
func (h *MarketHandler) GetHistory(c *gin.Context) {
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	markets, total, err := h.marketSvc.ListMarkets(c.Request.Context(), limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondList(c, markets, total, page, limit)
}

// GetByID godoc
// GET /api/markets/:id
func (h *MarketHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	market, err := h.marketSvc.GetMarket(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, market)
}

// GetOrderBook godoc
// GET /api/markets/:id/book — spec §6 GetOrderBook.
func (h *MarketHandler) GetOrderBook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	snap, err := h.manager.GetOrderBook(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, snap)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return
}
