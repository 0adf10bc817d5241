package dispatcher

import "github.com/OriginVault/quantum-safe-tls-proxy/pkg/metrics"

// State is a connection's position in its lifecycle. connTracker
// drives it through handle() and relay()'s half-close callbacks into
// the proxy_connections_by_state gauge; it's observability, not
// control flow — nothing branches on it.
type State int

const (
	StateAccepted State = iota
	StateAuthenticated
	StateHandshaken
	StateRelaying
	StateHalfClosedClient
	StateHalfClosedBackend
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateAuthenticated:
		return "authenticated"
	case StateHandshaken:
		return "handshaken"
	case StateRelaying:
		return "relaying"
	case StateHalfClosedClient:
		return "half_closed_client"
	case StateHalfClosedBackend:
		return "half_closed_backend"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connTracker records one connection's current State against the
// proxy_connections_by_state gauge, keeping the gauge consistent by
// decrementing the previous state on every transition.
type connTracker struct {
	m       *metrics.Metrics
	current State
	set     bool
}

func newConnTracker(m *metrics.Metrics) *connTracker {
	return &connTracker{m: m}
}

// enter moves the tracked connection to s, updating the gauge. It is
// also the onStateChange callback relay invokes directly, so its
// signature matches func(State).
func (t *connTracker) enter(s State) {
	prev := ""
	if t.set {
		prev = t.current.String()
	}
	t.m.TransitionState(prev, s.String())
	t.current = s
	t.set = true
}
