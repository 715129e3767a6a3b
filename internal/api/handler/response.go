package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/satscex/exchange/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondServiceError maps a domain sentinel error to a status code and a
// machine-readable code via the taxonomy predicates in domain/errors.go,
// so handlers don't each re-declare the same switch (spec §7: Validation/
// Resource/Conflict/Invariant/External taxonomy, one response per class).
func respondServiceError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case domain.IsInsufficientFunds(err):
		respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_FUNDS", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case domain.IsAuthError(err):
		if err == domain.ErrForbidden {
			respondError(c, http.StatusForbidden, "ERR_FORBIDDEN", err.Error())
		} else {
			respondError(c, http.StatusUnauthorized, "ERR_UNAUTHORIZED", err.Error())
		}
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "internal error")
	}
}
