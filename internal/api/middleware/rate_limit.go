package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"openfeedback/internal/pkg/errors"
)

type RateLimiter struct {
	store  *sync.Map // map[string]*bucket
	limits map[string]int
	now    func() time.Time
}

type bucket struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	lastAccess time.Time
}

// Requests per minute per client, or per team once the tenant is known.
var defaultRateLimits = map[string]int{
	"tenant_lookup":   300,
	"tenant":          1000,
	"github_callback": 30,
	"github_webhook":  600,
	"api_read":        1000,
	"api_write":       100,
}

// NewRateLimiter uses the default limits with overrides applied on top.
// Non-positive overrides are ignored.
func NewRateLimiter(overrides map[string]int) *RateLimiter {
	limits := make(map[string]int, len(defaultRateLimits))
	for k, v := range defaultRateLimits {
		limits[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			limits[k] = v
		}
	}
	return &RateLimiter{
		store:  &sync.Map{},
		limits: limits,
		now:    time.Now,
	}
}

// StartCleanup drops idle buckets every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(interval)
			}
		}
	}()
}

func (rl *RateLimiter) cleanup(idle time.Duration) {
	now := rl.now()
	rl.store.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if now.Sub(b.lastAccess) > idle {
			rl.store.Delete(key)
		}
		b.mu.Unlock()
		return true
	})
}

// Allow takes one token from the bucket for key. Buckets hold limit tokens
// and refill at limit per minute.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	now := rl.now()

	val, _ := rl.store.LoadOrStore(key, &bucket{
		limiter:    rate.NewLimiter(rate.Limit(float64(limit)/60.0), limit),
		lastAccess: now,
	})

	b := val.(*bucket)
	b.mu.Lock()
	b.lastAccess = now
	b.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Limit(limitType string) func(http.HandlerFunc) http.HandlerFunc {
	limit, ok := rl.limits[limitType]
	if !ok {
		limit = 100
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", clientIP(r), limitType)
			if tc, ok := TenantFromContext(r.Context()); ok {
				key = fmt.Sprintf("%s:%s", tc.TeamID, limitType)
			}

			if !rl.Allow(key, limit) {
				w.Header().Set("Retry-After", "60")
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}

// clientIP takes the last X-Forwarded-For entry, the one appended by the
// nearest proxy. Earlier entries are supplied by the client.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.LastIndex(xff, ","); i >= 0 {
			xff = xff[i+1:]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
