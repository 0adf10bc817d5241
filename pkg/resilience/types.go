package resilience

import (
	"context"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Executor is the protected operation a CircuitBreaker or Retry runs.
type Executor func(ctx context.Context) error

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int64
	SuccessThreshold int64
	Timeout          time.Duration
	OnStateChange    func(name string, from, to State)
}

// DefaultCircuitBreakerConfig returns sane defaults for a named breaker.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}
