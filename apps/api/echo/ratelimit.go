package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL = 10 * time.Minute
	limiterMaxIPs  = 10000
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one token bucket per client IP. Idle buckets are dropped when the
// table is full.
type ipRateLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	ips   map[string]*ipLimiter
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipRateLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		ips:   make(map[string]*ipLimiter),
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	lim, ok := rl.ips[ip]
	if !ok {
		if len(rl.ips) >= limiterMaxIPs {
			rl.evict(now)
		}
		lim = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.ips[ip] = lim
	}
	lim.lastSeen = now
	return lim.limiter.AllowN(now, 1)
}

// evict drops the idle buckets, or every bucket when none is idle.
func (rl *ipRateLimiter) evict(now time.Time) {
	for ip, lim := range rl.ips {
		if now.Sub(lim.lastSeen) > limiterIdleTTL {
			delete(rl.ips, ip)
		}
	}
	if len(rl.ips) >= limiterMaxIPs {
		rl.ips = make(map[string]*ipLimiter)
	}
}

func (rl *ipRateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !rl.allow(ctx.RealIP()) {
				ctx.Response().Header().Set("Retry-After", "1")
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
