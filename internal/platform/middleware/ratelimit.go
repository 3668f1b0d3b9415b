package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"
)

// RateLimit is a fixed-window budget.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

func (l RateLimit) Validate() error {
	if l.Requests <= 0 {
		return fmt.Errorf("rate limit requests must be > 0 (got %d)", l.Requests)
	}
	if l.Window <= 0 {
		return fmt.Errorf("rate limit window must be > 0 (got %s)", l.Window)
	}
	return nil
}

// RateLimitStore holds the per-key counters. Implementations may be
// approximate; the limiter is throttling, not a correctness boundary.
type RateLimitStore interface {
	// Allow counts one request for key and reports whether it fits the
	// window, and if not, how long until the window resets.
	Allow(ctx context.Context, key string, limit RateLimit) (allowed bool, retryAfter time.Duration, err error)
}

type window struct {
	count int
	end   time.Time
}

// MemoryRateLimitStore is a per-process RateLimitStore.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *MemoryRateLimitStore) Allow(_ context.Context, key string, limit RateLimit) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		s.windows[key] = &window{count: 1, end: now.Add(limit.Window)}
		return true, 0, nil
	}
	if w.count < limit.Requests {
		w.count++
		return true, 0, nil
	}
	return false, w.end.Sub(now), nil
}

// Sweep drops expired windows and returns how many were removed.
func (s *MemoryRateLimitStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (s *MemoryRateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryRateLimitStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("rate limit sweep", "removed", n)
			}
		}
	}
}

// KeyFunc derives the rate limit identifier for a request.
type KeyFunc func(r *http.Request) string

// IPKey keys requests by peer address within a named bucket. Forwarded
// addresses count only behind a trusted proxy.
func IPKey(bucket string, trusted ...netip.Prefix) KeyFunc {
	return func(r *http.Request) string {
		return bucket + ":" + RemoteIP(r, trusted...)
	}
}

// RateLimiter rejects requests over limit with 429. Store errors fail open.
func RateLimiter(store RateLimitStore, limit RateLimit, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, retryAfter, err := store.Allow(r.Context(), key, limit)
			if err != nil {
				slog.WarnContext(r.Context(), "rate limit store unavailable, allowing request", "error", err)
				metrics.incRateLimitErrors()
				next.ServeHTTP(w, r)
				return
			}
			metrics.incRateLimitChecks(allowed)
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
