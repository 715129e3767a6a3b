package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/satscex/exchange/internal/api/middleware"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/repository"
	"github.com/satscex/exchange/internal/service"
)

// AuthHandler handles registration, login, token refresh, and the
// authenticated caller's own profile.
type AuthHandler struct {
	authSvc  *service.AuthService
	userRepo *repository.UserRepository
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, userRepo *repository.UserRepository) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, userRepo: userRepo}
}

// Register godoc
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailTaken):
			respondError(c, http.StatusConflict, "ERR_EMAIL_TAKEN", err.Error())
		case errors.Is(err, domain.ErrUsernameTaken):
			respondError(c, http.StatusConflict, "ERR_USERNAME_TAKEN", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "registration failed")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, resp)
}

// Login godoc
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"    binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		switch err {
		case domain.ErrInvalidCredentials:
			respondError(c, http.StatusUnauthorized, "ERR_INVALID_CREDENTIALS", err.Error())
		case domain.ErrUserInactive:
			respondError(c, http.StatusForbidden, "ERR_ACCOUNT_DISABLED", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "login failed")
		}
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Refresh godoc
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	access, refresh, err := h.authSvc.RefreshToken(c.Request.Context(), body.RefreshToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "ERR_INVALID_TOKEN", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Me godoc
// GET /api/me [JWT required]
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.GetUserID(c)
	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, user.ToPublicProfile())
}
