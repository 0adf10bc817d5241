// Package middleware runs the ordered predicate chain the dispatcher
// evaluates once per connection before relaying traffic: rate limit
// first, then bearer-token authentication.
package middleware

import (
	"net"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/auth"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/errors"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/ratelimit"
)

// Context carries the per-connection facts predicates evaluate
// against.
type Context struct {
	RemoteAddr net.Addr
	Token      string
}

// ClientIP extracts the host portion of RemoteAddr for use as the
// rate limiter key.
func (c Context) ClientIP() string {
	host, _, err := net.SplitHostPort(c.RemoteAddr.String())
	if err != nil {
		return c.RemoteAddr.String()
	}
	return host
}

// Verdict is the outcome of evaluating the chain.
type Verdict struct {
	Allowed bool
	Reason  string
	Err     error
}

// Predicate evaluates one stage of the chain.
type Predicate func(cc Context) Verdict

// Chain runs predicates in order, short-circuiting on the first
// denial.
type Chain struct {
	predicates []Predicate
}

func NewChain(predicates ...Predicate) *Chain {
	return &Chain{predicates: predicates}
}

func (c *Chain) Evaluate(cc Context) Verdict {
	for _, p := range c.predicates {
		if v := p(cc); !v.Allowed {
			return v
		}
	}
	return Verdict{Allowed: true}
}

// RateLimitPredicate denies a connection whose client IP has
// exhausted its token bucket.
func RateLimitPredicate(limiter *ratelimit.Limiter) Predicate {
	return func(cc Context) Verdict {
		res := limiter.Allow(cc.ClientIP())
		if !res.Allowed {
			return Verdict{Allowed: false, Reason: "rate_limited", Err: errors.RateLimited("")}
		}
		return Verdict{Allowed: true}
	}
}

// AuthPredicate denies a connection whose bearer token fails
// validation. A connection with no auth configured always passes.
func AuthPredicate(validator *auth.Validator) Predicate {
	return func(cc Context) Verdict {
		if validator == nil {
			return Verdict{Allowed: true}
		}
		if _, err := validator.Validate(cc.Token); err != nil {
			return Verdict{Allowed: false, Reason: "unauthenticated", Err: err}
		}
		return Verdict{Allowed: true}
	}
}

// DefaultChain builds the standard rate-limit-then-auth ordering.
func DefaultChain(limiter *ratelimit.Limiter, validator *auth.Validator) *Chain {
	return NewChain(RateLimitPredicate(limiter), AuthPredicate(validator))
}
