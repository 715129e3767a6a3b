package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/api/middleware"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/engine"
)

// OrderHandler serves order placement and cancellation — spec §6's
// PlaceOrder/CancelOrder/CancelAllOrders, routed through the engine Manager
// rather than a service, since the Manager already is the external-facing
// seam for order mutation (spec §5).
type OrderHandler struct {
	manager *engine.Manager
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(manager *engine.Manager) *OrderHandler {
	return &OrderHandler{manager: manager}
}

// PlaceOrder godoc
// POST /api/orders [JWT]
// Body: {"market_id":"uuid","side":"yes","price_cents":55,"amount_sats":10000}
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		MarketID   uuid.UUID   `json:"market_id"   binding:"required"`
		Side       domain.Side `json:"side"         binding:"required"`
		PriceCents int         `json:"price_cents"  binding:"required"`
		AmountSats int64       `json:"amount_sats"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	result, err := h.manager.PlaceOrder(c.Request.Context(), engine.PlaceOrderRequest{
		UserID:     userID,
		MarketID:   body.MarketID,
		Side:       body.Side,
		PriceCents: body.PriceCents,
		AmountSats: body.AmountSats,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, result)
}

// CancelOrder godoc
// DELETE /api/orders/:id?market_id=uuid [JWT]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ORDER_ID", "invalid order id")
		return
	}
	marketID, err := uuid.Parse(c.Query("market_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "market_id query param required")
		return
	}

	result, err := h.manager.CancelOrder(c.Request.Context(), marketID, orderID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// CancelAllOrders godoc
// DELETE /api/orders [JWT]
func (h *OrderHandler) CancelAllOrders(c *gin.Context) {
	userID := middleware.GetUserID(c)

	result, err := h.manager.CancelAllOrders(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}
