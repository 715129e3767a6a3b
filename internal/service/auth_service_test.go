package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/service"
)

func authTestCfg() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			AccessSecret:  "test-access-secret-abcdefghijklmnop",
			RefreshSecret: "test-refresh-secret-abcdefghijklmnop",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
		},
	}
}

// TestParseAccessToken_MalformedToken covers ParseAccessToken's failure
// path without needing a database: garbage input must come back as
// ErrTokenInvalid, never a parse panic or a bare jwt-library error leaking
// through the domain error taxonomy.
func TestParseAccessToken_MalformedToken(t *testing.T) {
	authSvc := service.NewAuthService(nil, authTestCfg())
	claims, err := authSvc.ParseAccessToken("not.a.valid.jwt")
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestParseAccessToken_EmptyToken(t *testing.T) {
	authSvc := service.NewAuthService(nil, authTestCfg())
	claims, err := authSvc.ParseAccessToken("")
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

// TestAppClaims_TokenTypeDistinguishesAccessFromRefresh covers the zero
// value RefreshToken's TokenType check relies on: a claims struct that
// never had TokenType set must not accidentally read as "refresh" (which
// would let an access token be replayed as a refresh token) or "access".
func TestAppClaims_TokenTypeDistinguishesAccessFromRefresh(t *testing.T) {
	// AppClaims.TokenType is what RefreshToken checks before honoring a
	// token as a refresh credential (service/auth_service.go's
	// RefreshToken rejects claims.TokenType != "refresh") — assert the
	// zero-value claims struct defaults to neither, so a forgotten
	// TokenType assignment would fail closed, not open.
	var claims service.AppClaims
	require.Empty(t, claims.TokenType)
	assert.NotEqual(t, "refresh", claims.TokenType)
	assert.NotEqual(t, "access", claims.TokenType)
}
