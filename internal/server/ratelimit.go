package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
)

// defaultRateLimit is the sustained per-IP request rate (requests/second)
// when no explicit limit is configured. Chunk requests can trigger a full
// ingest, so the limit is deliberately modest.
const defaultRateLimit = 10

// defaultRateBurst is the per-IP burst size when none is configured.
const defaultRateBurst = 20

// evictInterval is how often stale per-IP limiter entries are swept.
const evictInterval = time.Minute

// staleAfter is how long an IP may stay idle before its entry is dropped.
const staleAfter = 5 * time.Minute

// rateLimiter enforces a per-IP token-bucket limit as HTTP middleware.
// Entries for idle IPs are evicted in the background to bound memory.
type rateLimiter struct {
	rps   rate.Limit
	burst int
	log   *slog.Logger

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

// limiterEntry pairs an IP's token bucket with its last-seen time.
type limiterEntry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter constructs a rateLimiter and starts its eviction goroutine.
// The goroutine exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
		entries: make(map[string]*limiterEntry),
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				rl.evict()
			}
		}
	}()

	return rl, func() { close(stopCh) }
}

// allow reports whether a request from ip may proceed, creating the IP's
// bucket on first sight.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.entries[ip]
	if !ok {
		entry = &limiterEntry{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.entries[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.bucket.Allow()
}

// evict drops entries for IPs idle longer than staleAfter.
func (rl *rateLimiter) evict() {
	cutoff := time.Now().Add(-staleAfter)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, entry := range rl.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.entries, ip)
		}
	}
}

// middleware wraps next with the rate limit. Rejected requests receive 429
// with a Retry-After header and a structured WARN log entry.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is ignored since this server binds to localhost.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
