package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "optin/pkg/domain-errors"
	"optin/pkg/platform/httputil"
	"optin/pkg/requestcontext"
)

// DefaultMaxClients bounds the bucket table when no WithMaxClients is given.
const DefaultMaxClients = 10000

// RateLimiter hands out one token bucket per client IP. Buckets idle for
// longer than idleTTL are dropped on the next sweep. Once maxClients buckets
// are live, unseen clients are refused until a sweep frees room.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	idleTTL    time.Duration
	maxClients int
	logger     *slog.Logger

	mu        sync.Mutex
	visitors  map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithMaxClients caps how many client buckets are tracked at once.
// Non-positive values keep DefaultMaxClients.
func WithMaxClients(n int) LimiterOption {
	return func(l *RateLimiter) {
		if n > 0 {
			l.maxClients = n
		}
	}
}

func NewRateLimiter(perSecond float64, burst int, logger *slog.Logger, opts ...LimiterOption) *RateLimiter {
	l := &RateLimiter{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		idleTTL:    10 * time.Minute,
		maxClients: DefaultMaxClients,
		logger:     logger,
		visitors:   make(map[string]*bucket),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idleTTL {
		l.sweep(now)
	}

	b, ok := l.visitors[key]
	if !ok {
		if len(l.visitors) >= l.maxClients {
			l.sweep(now)
			if len(l.visitors) >= l.maxClients {
				l.logger.Warn("rate limiter client table full", "clients", len(l.visitors))
				return false
			}
		}
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *RateLimiter) sweep(now time.Time) {
	for k, b := range l.visitors {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.visitors, k)
		}
	}
	l.lastSweep = now
}

// Middleware rejects requests over the per-IP budget with 429. The key is the
// IP resolved by ClientMetadata, or the direct peer when that did not run.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if ip == "" {
			ip = RemoteIP(r)
		}
		if !l.Allow(ip) {
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"client_ip", ip,
			)
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooMany, "too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
