// Package ratelimit implements the per-client token bucket the
// dispatcher consults before a connection is allowed to proceed past
// the TLS handshake.
package ratelimit

import (
	"sync"
	"time"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/algorithms/ratelimit"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/concurrency"
)

// Config mirrors the rate_limiter section of the proxy configuration.
type Config struct {
	RateLimit  int64         `yaml:"rate_limit" env:"RATE_LIMIT" env-default:"100"`
	PerSeconds time.Duration `yaml:"per_seconds" env:"RATE_LIMIT_PER_SECONDS" env-default:"60s"`
	IdleEvict  time.Duration `yaml:"idle_evict" env:"RATE_LIMIT_IDLE_EVICT" env-default:"10m"`
}

type bucketState struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Limiter is a sharded per-key token bucket. Keys are typically
// client IP addresses. It satisfies the same refill formula as the
// in-memory limiter it is grounded on: tokens are topped up by
// elapsed·(capacity/window) on every check and capped at capacity,
// and an allowed request debits exactly one token.
type Limiter struct {
	capacity  float64
	refillPer float64 // tokens per second
	idleEvict time.Duration
	buckets   *concurrency.ShardedMapString[*bucketState]
}

func New(cfg Config) *Limiter {
	return &Limiter{
		capacity:  float64(cfg.RateLimit),
		refillPer: float64(cfg.RateLimit) / cfg.PerSeconds.Seconds(),
		idleEvict: cfg.IdleEvict,
		buckets:   concurrency.NewShardedMapString[*bucketState](),
	}
}

// Allow reports whether key may perform one more operation right now,
// debiting a token if so.
func (l *Limiter) Allow(key string) ratelimit.Result {
	state, ok := l.buckets.Get(key)
	if !ok {
		state = &bucketState{tokens: l.capacity, lastRefill: time.Now()}
		l.buckets.Set(key, state)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(state.lastRefill).Seconds()
	state.tokens += elapsed * l.refillPer
	if state.tokens > l.capacity {
		state.tokens = l.capacity
	}
	state.lastRefill = now

	if state.tokens >= 1 {
		state.tokens--
		return ratelimit.Result{Allowed: true, Remaining: int64(state.tokens)}
	}

	waitFor := (1 - state.tokens) / l.refillPer
	return ratelimit.Result{Allowed: false, Remaining: 0, Reset: time.Duration(waitFor * float64(time.Second))}
}

// EvictIdle removes buckets whose last refill is older than the
// configured idle window, bounding memory use under high client churn.
func (l *Limiter) EvictIdle() {
	if l.idleEvict <= 0 {
		return
	}
	cutoff := time.Now().Add(-l.idleEvict)
	var stale []string
	l.buckets.Range(func(key string, state *bucketState) bool {
		state.mu.Lock()
		last := state.lastRefill
		state.mu.Unlock()
		if last.Before(cutoff) {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		l.buckets.Delete(key)
	}
}

// Len reports the number of tracked keys, for metrics/diagnostics.
func (l *Limiter) Len() int {
	return l.buckets.Len()
}

// RunJanitor evicts idle buckets every interval until stop is closed.
func (l *Limiter) RunJanitor(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.EvictIdle()
		}
	}
}
