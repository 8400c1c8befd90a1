package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_RateLimiter_AllowsWithinBurst(t *testing.T) {
	t.Parallel()
	rl, stop := newRateLimiter(1, 3, discardLogger())
	defer stop()
	h := rl.middleware(okHandler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/chunks", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: want 200, got %d", i, w.Code)
		}
	}
}

func Test_RateLimiter_RejectsOverBurst(t *testing.T) {
	t.Parallel()
	rl, stop := newRateLimiter(1, 2, discardLogger())
	defer stop()
	h := rl.middleware(okHandler)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/chunks", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429 after burst exhausted, got %d", last.Code)
	}
	if got := last.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
}

func Test_RateLimiter_PerIPIsolation(t *testing.T) {
	t.Parallel()
	rl, stop := newRateLimiter(1, 1, discardLogger())
	defer stop()
	h := rl.middleware(okHandler)

	// Exhaust the first IP's bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/chunks", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	// A different IP still has a full bucket.
	req2 := httptest.NewRequest(http.MethodGet, "/api/chunks", nil)
	req2.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req2)

	if w.Code != http.StatusOK {
		t.Errorf("want 200 for fresh IP, got %d", w.Code)
	}
}

func Test_RateLimiter_EvictRemovesStaleEntries(t *testing.T) {
	t.Parallel()
	rl, stop := newRateLimiter(1, 1, discardLogger())
	defer stop()

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	rl.mu.Lock()
	rl.entries["10.0.0.1"].lastSeen = time.Now().Add(-10 * time.Minute)
	rl.mu.Unlock()

	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["10.0.0.1"]; ok {
		t.Error("stale entry not evicted")
	}
	if _, ok := rl.entries["10.0.0.2"]; !ok {
		t.Error("fresh entry evicted")
	}
}

func Test_ClientIP(t *testing.T) {
	t.Parallel()
	cases := []struct {
		addr string
		want string
	}{
		{"10.0.0.1:1234", "10.0.0.1"},
		{"[::1]:8080", "[::1]"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.addr
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.addr, got, tc.want)
		}
	}
}
