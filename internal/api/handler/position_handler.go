package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/satscex/exchange/internal/api/middleware"
	"github.com/satscex/exchange/internal/service"
)

// PositionHandler serves the authenticated caller's cross-market position
// view — spec §6 GetPositions.
type PositionHandler struct {
	betSvc *service.BetService
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(betSvc *service.BetService) *PositionHandler {
	return &PositionHandler{betSvc: betSvc}
}

// GetPositions godoc
// GET /api/positions [JWT]
func (h *PositionHandler) GetPositions(c *gin.Context) {
	userID := middleware.GetUserID(c)

	positions, err := h.betSvc.GetPositions(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, positions)
}
