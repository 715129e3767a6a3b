package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/service"
	"github.com/shopspring/decimal"
)

// AdminHandler gates every route behind middleware.AdminMiddleware — market
// resolution and every Market-Maker Core control knob (spec §6:
// ResolveMarket, MM.Deploy/Withdraw/SetConfig/SetMarketOverride/SetBuyCurve).
type AdminHandler struct {
	resolutionSvc *service.ResolutionService
	mmSvc         *service.MMService
	marketSvc     *service.MarketService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(resolutionSvc *service.ResolutionService, mmSvc *service.MMService, marketSvc *service.MarketService) *AdminHandler {
	return &AdminHandler{resolutionSvc: resolutionSvc, mmSvc: mmSvc, marketSvc: marketSvc}
}

// ──────────────────────────────────────────────────────────────────────────────
// Markets
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarket godoc
// POST /api/admin/markets
func (h *AdminHandler) CreateMarket(c *gin.Context) {
	var body struct {
		Title         string            `json:"title"          binding:"required"`
		Type          domain.MarketType `json:"type"           binding:"required"`
		GrandmasterID *uuid.UUID        `json:"grandmaster_id"`
		BotEnabled    bool              `json:"bot_enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	market, err := h.marketSvc.CreateMarket(c.Request.Context(), body.Title, body.Type, body.GrandmasterID, body.BotEnabled)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, market)
}

// SetBotEnabled godoc
// PUT /api/admin/markets/:id/bot
func (h *AdminHandler) SetBotEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.marketSvc.SetBotEnabled(c.Request.Context(), id, body.Enabled); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"market_id": id, "bot_enabled": body.Enabled})
}

// ResolveMarket godoc
// POST /api/admin/markets/:id/resolve
// Body: {"winning_side":"yes","notes":"..."}
func (h *AdminHandler) ResolveMarket(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	var body struct {
		WinningSide domain.Side `json:"winning_side" binding:"required"`
		Notes       string      `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	result, err := h.resolutionSvc.Resolve(c.Request.Context(), id, body.WinningSide, body.Notes)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// ──────────────────────────────────────────────────────────────────────────────
// Market-Maker Core
// ──────────────────────────────────────────────────────────────────────────────

// Deploy godoc
// POST /api/admin/mm/deploy
func (h *AdminHandler) Deploy(c *gin.Context) {
	if err := h.mmSvc.Deploy(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deployed"})
}

// Withdraw godoc
// POST /api/admin/mm/withdraw
func (h *AdminHandler) Withdraw(c *gin.Context) {
	if err := h.mmSvc.Withdraw(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "withdrawn"})
}

// SetConfig godoc
// PUT /api/admin/mm/config
func (h *AdminHandler) SetConfig(c *gin.Context) {
	var body struct {
		BotUserID                    uuid.UUID       `json:"bot_user_id"                      binding:"required"`
		MaxAcceptableLossSats        int64           `json:"max_acceptable_loss_sats"         binding:"required"`
		ThresholdPercent             decimal.Decimal `json:"threshold_percent"                binding:"required"`
		GlobalMultiplier             decimal.Decimal `json:"global_multiplier"                binding:"required"`
		IsActive                     bool            `json:"is_active"`
		WithdrawalReviewThresholdSats int64          `json:"withdrawal_review_threshold_sats"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	cfg := &domain.MarketMakerConfig{
		BotUserID:                     body.BotUserID,
		MaxAcceptableLossSats:         body.MaxAcceptableLossSats,
		ThresholdPercent:              body.ThresholdPercent,
		GlobalMultiplier:              body.GlobalMultiplier,
		IsActive:                      body.IsActive,
		WithdrawalReviewThresholdSats: body.WithdrawalReviewThresholdSats,
	}
	if err := h.mmSvc.SetConfig(c.Request.Context(), cfg); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, cfg)
}

// SetMarketOverride godoc
// PUT /api/admin/mm/markets/:id/override
// Body: {"override_type":"scale","multiplier":"0.5"}
func (h *AdminHandler) SetMarketOverride(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	var body struct {
		OverrideType domain.MarketOverrideType `json:"override_type" binding:"required"`
		Multiplier   decimal.Decimal           `json:"multiplier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.mmSvc.SetMarketOverride(c.Request.Context(), id, body.OverrideType, body.Multiplier); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"market_id": id, "override_type": body.OverrideType})
}

// SetBuyCurve godoc
// PUT /api/admin/mm/curves/:type
// Body: {"side":"yes","points":[{"price_cents":10,"weight_sats":1000}, ...]}
func (h *AdminHandler) SetBuyCurve(c *gin.Context) {
	marketType := domain.MarketType(c.Param("type"))

	var body struct {
		Side   domain.Side            `json:"side"   binding:"required"`
		Points []domain.BuyCurvePoint `json:"points" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.mmSvc.SetBuyCurve(c.Request.Context(), marketType, body.Side, body.Points); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"market_type": marketType, "side": body.Side, "points": body.Points})
}
