package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimiter_General(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralPerMinute: 3, ImportPerMinute: 1, CleanupInterval: time.Minute})
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("203.0.113.1:1000"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.1:2000"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra != "20" {
		t.Errorf("Retry-After = %q, want 20", ra)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %s", body.Code)
	}

	// 別クライアントは独立して数える
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("198.51.100.7:1000"))
	if w.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", w.Code)
	}
	if n := rl.GeneralLimiterCount(); n != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", n)
	}
}

func TestRateLimiter_ImportIsIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralPerMinute: 100, ImportPerMinute: 1, CleanupInterval: time.Minute})
	defer rl.Stop()
	imports := rl.ImportMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	imports.ServeHTTP(w, requestFrom("203.0.113.1:1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first import status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	imports.ServeHTTP(w, requestFrom("203.0.113.1:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second import status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom("203.0.113.1:1"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
	if rl.ImportLimiterCount() != 1 {
		t.Errorf("ImportLimiterCount = %d", rl.ImportLimiterCount())
	}
}

func TestRateLimiter_CleanupEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralPerMinute: 10, ImportPerMinute: 10, CleanupInterval: time.Minute})
	defer rl.Stop()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestFrom("203.0.113.9:1"))

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Fatal("recently used limiter must survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestClientKey(t *testing.T) {
	if got := clientKey(requestFrom("[2001:db8::1]:443")); got != "2001:db8::1" {
		t.Errorf("clientKey = %q", got)
	}
	if got := clientKey(requestFrom("10.0.0.1")); got != "10.0.0.1" {
		t.Errorf("clientKey without port = %q", got)
	}
}
