package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// RegisterRequest contains the fields required to create a new user account.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	User         *domain.PublicProfile `json:"user"`
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	User         *domain.PublicProfile `json:"user"`
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
}

// TokenPair holds both tokens returned by generateTokenPair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
type AppClaims struct {
	jwt.RegisteredClaims
	IsAdmin   bool   `json:"is_admin"`
	TokenType string `json:"type"` // "access" or "refresh"
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService handles user registration, login, and JWT token operations.
// There is no wallet table in this system — a user row's balance_sats field
// is the account the Ledger debits/credits directly, so registration just
// inserts the user with a zero balance; funding happens via deposit/admin
// adjustment, never at signup.
type AuthService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{userRepo: userRepo, cfg: cfg}
}

// ──────────────────────────────────────────────────────────────────────────────
// Register
// ──────────────────────────────────────────────────────────────────────────────

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: hash: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("auth_service.Register: %w", err)
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: tokens: %w", err)
	}

	return &RegisterResponse{
		User:         user.ToPublicProfile(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// Map not-found to a generic credential error to prevent user enumeration.
		return nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Login: tokens: %w", err)
	}

	return &LoginResponse{
		User:         user.ToPublicProfile(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// RefreshToken
// ──────────────────────────────────────────────────────────────────────────────

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.parseToken(refreshToken, s.cfg.JWT.RefreshSecret)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}
	if claims.TokenType != "refresh" {
		return "", "", domain.ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", "", domain.ErrTokenInvalid
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", "", domain.ErrUserNotFound
	}
	if !user.IsActive {
		return "", "", domain.ErrUserInactive
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return "", "", fmt.Errorf("auth_service.RefreshToken: %w", err)
	}
	return pair.AccessToken, pair.RefreshToken, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// generateTokenPair creates a signed access token (AccessTTL) and a signed
// refresh token (RefreshTTL) for the given user, each signed with its own
// secret so a leaked refresh token can't be replayed as an access token.
func (s *AuthService) generateTokenPair(user *domain.User) (TokenPair, error) {
	now := time.Now().UTC()

	accessClaims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTTL)),
		},
		IsAdmin:   user.IsAdmin,
		TokenType: "access",
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.cfg.JWT.AccessSecret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshClaims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.RefreshTTL)),
		},
		TokenType: "refresh",
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.cfg.JWT.RefreshSecret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// parseToken validates signature, algorithm, and expiry against the secret
// appropriate for the token's own kind — callers must pass AccessSecret or
// RefreshSecret matching the token they're parsing.
func (s *AuthService) parseToken(tokenString, secret string) (*AppClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// ParseAccessToken is exported for use by the JWT middleware.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	return s.parseToken(tokenString, s.cfg.JWT.AccessSecret)
}
