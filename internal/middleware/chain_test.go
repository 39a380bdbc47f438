package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subtodo/internal/logger"
	"github.com/hitoshi/subtodo/internal/model"
)

// newChainRouter は本番と同じ順序でミドルウェアを組み立てたchi.Routerを返す。
// CORS -> Session -> RateLimit -> Handler
func newChainRouter(t *testing.T, rl *RateLimiter) http.Handler {
	t.Helper()
	verifier := tokenVerifierFor("chain-token", &model.Caller{UserID: "user-chain"})

	r := chi.NewRouter()
	r.Use(NewCORSMiddleware("http://localhost:3000"))

	// 認証不要
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(verifier, logger.Discard()))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/todos", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
	})
	return r
}

func TestMiddlewareChain_AuthenticatedRequest_ReachesHandler(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 1), logger.Discard())
	defer rl.Stop()
	router := newChainRouter(t, rl)

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.Header.Set("Authorization", "Bearer chain-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["user_id"] != "user-chain" {
		t.Errorf("user_id = %q, want %q", body["user_id"], "user-chain")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMiddlewareChain_Unauthenticated_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 1), logger.Discard())
	defer rl.Stop()
	router := newChainRouter(t, rl)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	// 未認証のリクエストはリミッターを消費しない
	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", rl.GeneralLimiterCount())
	}
}

func TestMiddlewareChain_PublicRoute_NoSessionRequired(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 1), logger.Discard())
	defer rl.Stop()
	router := newChainRouter(t, rl)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMiddlewareChain_RateLimitAfterSession(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 1), logger.Discard())
	defer rl.Stop()
	router := newChainRouter(t, rl)

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
		req.AddCookie(&http.Cookie{Name: "__session", Value: "chain-token"})
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i+1, w.Code, want)
		}
	}
}
