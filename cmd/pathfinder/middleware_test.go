package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/config"
	"github.com/BaSui01/pathfinder/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

// =============================================================================
// Chain / Recovery / RequestID / SecurityHeaders
// =============================================================================

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mark("a"), mark("b"), mark("c"))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "INTERNAL_ERROR", body["error"].(map[string]any)["code"])
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.TraceID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get("X-Request-ID")
		assert.True(t, strings.HasPrefix(id, "req-"))
		assert.Equal(t, id, seen)
	})

	t.Run("preserved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client-42")
		rec := serve(h, req)
		assert.Equal(t, "client-42", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "client-42", seen)
	})

	t.Run("oversized replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		rec := serve(h, req)
		assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req-"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := serve(SecurityHeaders()(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

// =============================================================================
// CORS
// =============================================================================

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(okHandler())

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed string
	}{
		{"allowed origin", http.MethodPost, "https://app.example", http.StatusOK, "https://app.example"},
		{"other origin", http.MethodPost, "https://evil.example", http.StatusOK, ""},
		{"same origin", http.MethodGet, "", http.StatusOK, ""},
		{"allowed preflight", http.MethodOptions, "https://app.example", http.StatusNoContent, "https://app.example"},
		{"rejected preflight", http.MethodOptions, "https://evil.example", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/plan", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := serve(h, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	h := CORS(nil)(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plan", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// =============================================================================
// RateLimiter
// =============================================================================

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimiter(ctx, 0.001, 1, zap.NewNop())(okHandler())

	req := func(path, ip string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.RemoteAddr = ip + ":5000"
		return r
	}

	assert.Equal(t, http.StatusOK, serve(h, req("/api/v1/plan", "10.0.0.1")).Code)
	rec := serve(h, req("/api/v1/plan", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// 不同 IP 独立计数
	assert.Equal(t, http.StatusOK, serve(h, req("/api/v1/plan", "10.0.0.2")).Code)
	// 探针不受限
	assert.Equal(t, http.StatusOK, serve(h, req("/health", "10.0.0.1")).Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	h := RateLimiter(context.Background(), 0, 0, zap.NewNop())(okHandler())
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/plan", nil)).Code)
	}
}

// =============================================================================
// JWTAuth
// =============================================================================

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := types.UserID(r.Context())
		_, _ = w.Write([]byte(uid))
	})
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: testSecret, Issuer: "pathfinder", Required: true}
	h := JWTAuth(cfg, zap.NewNop())(callerEcho())
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantCaller string
	}{
		{"missing header", "/api/v1/plan", "", http.StatusUnauthorized, ""},
		{"not bearer", "/api/v1/plan", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage token", "/api/v1/plan", "Bearer not.a.jwt", http.StatusUnauthorized, ""},
		{"wrong secret", "/api/v1/plan", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "iss": "pathfinder", "exp": exp}, "other"), http.StatusUnauthorized, ""},
		{"wrong issuer", "/api/v1/plan", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "iss": "someone", "exp": exp}, testSecret), http.StatusUnauthorized, ""},
		{"expired", "/api/v1/plan", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "iss": "pathfinder", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret), http.StatusUnauthorized, ""},
		{"no subject", "/api/v1/plan", "Bearer " + signToken(t, jwt.MapClaims{"iss": "pathfinder", "exp": exp}, testSecret), http.StatusUnauthorized, ""},
		{"subject", "/api/v1/plan", "Bearer " + signToken(t, jwt.MapClaims{"sub": "google-oauth2|123", "iss": "pathfinder", "exp": exp}, testSecret), http.StatusOK, "google-oauth2|123"},
		{"user_id wins", "/api/v1/plan", "Bearer " + signToken(t, jwt.MapClaims{"sub": "s", "user_id": "u9", "iss": "pathfinder", "exp": exp}, testSecret), http.StatusOK, "u9"},
		{"public path", "/health", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(h, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantCaller, rec.Body.String())
			} else {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestJWTAuth_Optional(t *testing.T) {
	h := JWTAuth(config.JWTConfig{Secret: testSecret}, zap.NewNop())(callerEcho())

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/plan", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	// 提供了令牌就必须有效
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", nil)
	req.Header.Set("Authorization", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
}

func TestJWTAuth_NoSecretPassesThrough(t *testing.T) {
	h := JWTAuth(config.JWTConfig{Required: true}, zap.NewNop())(callerEcho())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
}

// =============================================================================
// Metrics
// =============================================================================

type httpObservation struct {
	method, path string
	status       int
}

type fakeHTTPRecorder struct {
	mu  sync.Mutex
	obs []httpObservation
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, httpObservation{method, path, status})
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/risks", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/health", func(http.ResponseWriter, *http.Request) {})

	rec := &fakeHTTPRecorder{}
	h := Metrics(rec)(mux)

	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/risks?venue_id=gp_1", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/nope/12345", nil))

	require.Len(t, rec.obs, 3)
	assert.Equal(t, httpObservation{"GET", "/api/v1/risks", http.StatusServiceUnavailable}, rec.obs[0])
	assert.Equal(t, httpObservation{"GET", "/health", http.StatusOK}, rec.obs[1])
	assert.Equal(t, httpObservation{"GET", "unmatched", http.StatusNotFound}, rec.obs[2])
}
