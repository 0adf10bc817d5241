package dispatcher

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/metrics"
)

func TestConnTrackerUpdatesStateGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	tr := newConnTracker(m)
	tr.enter(StateAccepted)
	tr.enter(StateHandshaken)
	tr.enter(StateRelaying)

	if got := testutil.ToFloat64(m.ConnectionsByState.WithLabelValues(StateRelaying.String())); got != 1 {
		t.Errorf("expected 1 connection in state %q, got %v", StateRelaying, got)
	}
	if got := testutil.ToFloat64(m.ConnectionsByState.WithLabelValues(StateAccepted.String())); got != 0 {
		t.Errorf("expected the prior state %q to be decremented back to 0, got %v", StateAccepted, got)
	}
	if got := testutil.ToFloat64(m.ConnectionsByState.WithLabelValues(StateHandshaken.String())); got != 0 {
		t.Errorf("expected the prior state %q to be decremented back to 0, got %v", StateHandshaken, got)
	}

	tr.enter(StateClosed)
	if got := testutil.ToFloat64(m.ConnectionsByState.WithLabelValues(StateClosed.String())); got != 1 {
		t.Errorf("expected 1 connection in state %q, got %v", StateClosed, got)
	}
}
