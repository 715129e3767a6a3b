// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — they verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - JWT auth middleware (401 without token, 401 with bad token)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satscex/exchange/internal/api"
	"github.com/satscex/exchange/internal/config"
	"github.com/satscex/exchange/internal/service"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
		JWT: config.JWTConfig{
			AccessSecret:  "test-access-secret-abcdefghijklmnop",
			RefreshSecret: "test-refresh-secret-abcdefghijklmnop",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
		},
	}
}

// buildTestRouter creates a Gin engine with a real AuthService (no DB needed
// for token parsing) and nil for everything that requires a DB — every
// route still wires up, it's the handlers touching a nil repo/service that
// would panic, and none of the tests below exercise those paths.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testCfg()
	authSvc := service.NewAuthService(nil, cfg)

	r := api.SetupRouter(api.RouterDeps{
		AuthSvc:       authSvc,
		MarketSvc:     nil,
		BetSvc:        nil,
		ResolutionSvc: nil,
		MMSvc:         nil,
		Manager:       nil,
		UserRepo:      nil,
		Hub:           nil,
		Cfg:           cfg,
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

// ── Auth endpoints — validation layer ─────────────────────────────────────────

func TestRegister_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/register empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("response.success should be false on error, got %v", body["success"])
	}
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"username":"testuser","email":"notanemail","password":"password123"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("register with invalid email = %d, want 400", rr.Code)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"username":"testuser","email":"user@example.com","password":"short"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("register with short password = %d, want 400", rr.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/login", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/login empty = %d, want 400", rr.Code)
	}
}

// ── JWT auth middleware (no token → 401) ──────────────────────────────────────

func TestMe_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/me without token = %d, want 401", rr.Code)
	}
}

func TestPositions_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/positions", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/positions without token = %d, want 401", rr.Code)
	}
}

func TestPlaceOrder_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"market_id":"11111111-1111-1111-1111-111111111111","side":"yes","price_cents":55,"amount_sats":10000}`
	rr := do(t, h, http.MethodPost, "/api/orders", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/orders without token = %d, want 401", rr.Code)
	}
}

func TestCancelAllOrders_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodDelete, "/api/orders", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("DELETE /api/orders without token = %d, want 401", rr.Code)
	}
}

func TestAdminResolve_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"winning_side":"yes","notes":"test"}`
	rr := do(t, h, http.MethodPost, "/api/admin/markets/11111111-1111-1111-1111-111111111111/resolve", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/admin/.../resolve without token = %d, want 401", rr.Code)
	}
}

// ── JWT auth middleware (invalid token → 401) ─────────────────────────────────

func TestMe_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/me", "", map[string]string{
		"Authorization": "Bearer not.a.valid.jwt",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/me with bad JWT = %d, want 401", rr.Code)
	}
}

func TestPlaceOrder_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"market_id":"11111111-1111-1111-1111-111111111111","side":"yes","price_cents":55,"amount_sats":10000}`
	// A well-formed JWT header+payload but wrong signature → ParseAccessToken rejects it
	fakeJWT := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9" +
		".eyJzdWIiOiIxMjM0NTY3ODkwIiwiaXNfYWRtaW4iOmZhbHNlLCJ0eXBlIjoiYWNjZXNzIn0" +
		".BADSIG"
	rr := do(t, h, http.MethodPost, "/api/orders", payload, map[string]string{
		"Authorization": "Bearer " + fakeJWT,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/orders with invalid JWT = %d, want 401", rr.Code)
	}
}

// ── Markets public endpoints ───────────────────────────────────────────────────

func TestMarketsList_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	// No token: should NOT be 401. Will be 500 (nil marketSvc) — that's acceptable.
	rr := do(t, h, http.MethodGet, "/api/markets", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/markets should be a public endpoint (no 401)")
	}
	t.Logf("GET /api/markets = %d (not 401, public route OK)", rr.Code)
}

func TestMarketsHistory_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/markets/history", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/markets/history should be public (no 401)")
	}
}

// ── Error envelope format ─────────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{}`, nil)
	body := decodeBody(t, rr)

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["success"] != false {
		t.Errorf("error envelope.success = %v, want false", body["success"])
	}
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// OPTIONS should return 204 (no content) in dev mode
	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/auth/login = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// In dev mode, CORS origin should be wildcard
	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
