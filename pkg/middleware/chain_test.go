package middleware_test

import (
	"net"
	"testing"
	"time"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/auth"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/middleware"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/ratelimit"
)

func TestChainDeniesOnRateLimitBeforeCheckingAuth(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RateLimit: 1, PerSeconds: time.Minute, IdleEvict: time.Hour})
	validator := auth.New(auth.Config{SecretKey: "s", Algorithm: "HS256"})
	chain := middleware.DefaultChain(limiter, validator)

	cc := middleware.Context{RemoteAddr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1234}, Token: "not-a-token"}

	first := chain.Evaluate(cc)
	if first.Reason != "unauthenticated" {
		t.Fatalf("expected first request to pass the rate limiter and be denied by auth, got allowed=%v reason %q", first.Allowed, first.Reason)
	}

	second := chain.Evaluate(cc)
	if second.Allowed {
		t.Fatalf("expected second request denied by rate limiter")
	}
	if second.Reason != "rate_limited" {
		t.Errorf("expected rate_limited reason, got %q", second.Reason)
	}
}

func TestChainDeniesOnBadToken(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RateLimit: 100, PerSeconds: time.Minute, IdleEvict: time.Hour})
	validator := auth.New(auth.Config{SecretKey: "s", Algorithm: "HS256"})
	chain := middleware.DefaultChain(limiter, validator)

	cc := middleware.Context{RemoteAddr: &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1234}, Token: "garbage"}

	v := chain.Evaluate(cc)
	if v.Allowed {
		t.Fatalf("expected denial for an invalid token")
	}
	if v.Reason != "unauthenticated" {
		t.Errorf("expected unauthenticated reason, got %q", v.Reason)
	}
}

func TestChainAllowsWithNoAuthConfigured(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{RateLimit: 100, PerSeconds: time.Minute, IdleEvict: time.Hour})
	chain := middleware.DefaultChain(limiter, nil)

	cc := middleware.Context{RemoteAddr: &net.TCPAddr{IP: net.ParseIP("10.0.0.3"), Port: 1234}}
	if v := chain.Evaluate(cc); !v.Allowed {
		t.Errorf("expected allowed when no auth validator is configured")
	}
}
