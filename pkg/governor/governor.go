// Package governor gates every outbound platform call behind token buckets
// and absorbs rate-limit rejections with bounded transparent retries. It is
// the only component allowed to pace or retry remote calls.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatdb/pkg/logger"
	"chatdb/pkg/remote"
	"chatdb/pkg/telemetry"
)

// ErrRateLimitExceeded is surfaced when the retry budget (attempt count or
// total wait) is exhausted without the call succeeding.
var ErrRateLimitExceeded = errors.New("governor: retry budget exhausted")

// Config tunes the governor. Zero fields fall back to conservative
// defaults suitable before any rate feedback has been observed.
type Config struct {
	// RPS and Burst seed the global and per-route buckets.
	RPS   float64
	Burst int
	// MaxRetries bounds transparent retries per call.
	MaxRetries int
	// MaxWait bounds the total time a single call may spend parked across
	// cool-downs and backoffs.
	MaxWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.RPS <= 0 {
		c.RPS = 5
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Second
	}
	return c
}

// Governor owns one token bucket per route plus a global bucket. Buckets
// are refreshed from the rate feedback of completed calls.
type Governor struct {
	cfg Config

	mu     sync.Mutex
	global *rate.Limiter
	routes map[string]*rate.Limiter
}

// New builds a governor. One instance is shared by all remote-calling
// components of a store; it is never a process-wide singleton.
func New(cfg Config) *Governor {
	cfg = cfg.withDefaults()
	return &Governor{
		cfg:    cfg,
		global: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		routes: make(map[string]*rate.Limiter),
	}
}

func (g *Governor) limiter(route string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.routes[route]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(g.cfg.RPS), g.cfg.Burst)
	g.routes[route] = l
	return l
}

// Acquire blocks until both the global and the route bucket grant a token,
// or ctx is done.
func (g *Governor) Acquire(ctx context.Context, route string) error {
	start := time.Now()
	if err := g.global.Wait(ctx); err != nil {
		return err
	}
	if err := g.limiter(route).Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > 0 {
		telemetry.GovernorWait.Add(waited.Seconds())
	}
	return nil
}

// Observe folds the rate feedback of a completed call back into the route
// bucket. The platform reports a request budget per reset window; the
// bucket is retuned to that observed pace.
func (g *Governor) Observe(route string, ri remote.RateInfo) {
	if ri.Zero() || ri.Limit <= 0 {
		return
	}
	window := ri.ResetAfter.Seconds()
	if window <= 0 {
		window = 1
	}
	l := g.limiter(route)
	g.mu.Lock()
	defer g.mu.Unlock()
	l.SetLimit(rate.Limit(ri.Limit / window))
	if b := int(ri.Limit); b > 0 && b < g.cfg.Burst {
		l.SetBurst(b)
	}
}

// Do runs one remote call under the governor: token acquisition, feedback
// observation, and transparent bounded retry on rate-limit rejections and
// transient transport failures. Non-transient errors pass through on the
// first attempt.
func (g *Governor) Do(ctx context.Context, route string, call func(context.Context) (remote.RateInfo, error)) error {
	var waited time.Duration
	for attempt := 0; ; attempt++ {
		if err := g.Acquire(ctx, route); err != nil {
			telemetry.RemoteCalls.WithLabelValues(route, "canceled").Inc()
			return err
		}
		ri, err := call(ctx)
		g.Observe(route, ri)
		if err == nil {
			telemetry.RemoteCalls.WithLabelValues(route, "ok").Inc()
			return nil
		}

		var delay time.Duration
		var reason string
		var rl *remote.RateLimitedError
		switch {
		case errors.As(err, &rl):
			delay = rl.RetryAfter
			if delay <= 0 {
				delay = time.Second
			}
			reason = "rate_limited"
		case errors.Is(err, remote.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
			// transient transport failure; exponential backoff
			delay = (500 * time.Millisecond) << attempt
			reason = "unavailable"
		default:
			telemetry.RemoteCalls.WithLabelValues(route, "error").Inc()
			return err
		}

		waited += delay
		if attempt >= g.cfg.MaxRetries || waited > g.cfg.MaxWait {
			telemetry.RemoteCalls.WithLabelValues(route, reason).Inc()
			if reason == "rate_limited" {
				return fmt.Errorf("%w: route %s after %d attempts: %v", ErrRateLimitExceeded, route, attempt+1, err)
			}
			return fmt.Errorf("route %s failed after %d attempts: %w", route, attempt+1, err)
		}

		telemetry.GovernorRetries.WithLabelValues(route, reason).Inc()
		logger.Debug("governor_retry", "route", route, "reason", reason, "delay", delay, "attempt", attempt+1)
		telemetry.GovernorWait.Add(delay.Seconds())
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
