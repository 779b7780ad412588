package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PrincipalLimiter applies a token bucket per caller principal and evicts
// buckets that stay idle longer than idleTTL.
type PrincipalLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	metrics *Metrics

	mu    sync.Mutex
	byKey map[string]*bucket
	hits  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPrincipalLimiter returns nil, which allows everything, when rps or
// burst is not positive.
func NewPrincipalLimiter(rps float64, burst int, metrics *Metrics) *PrincipalLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &PrincipalLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		metrics: metrics,
		byKey:   make(map[string]*bucket),
	}
}

// Allow reports whether key may proceed now.
func (l *PrincipalLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

// Middleware rejects callers over their budget with 429.
func (l *PrincipalLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(PrincipalFromContext(r.Context()).Text()) {
			if l.metrics != nil {
				l.metrics.limited.Inc()
			}
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
