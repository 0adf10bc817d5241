// Package dispatcher runs the proxy's accept loop: it terminates TLS
// on every inbound connection against the currently published
// tlscontext.TlsContext, evaluates the rate-limit/auth predicate
// chain, and relays the connection to the configured backend.
package dispatcher

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/errors"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/logger"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/metrics"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/middleware"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/resilience"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/tlscontext"
)

// authorizationPrefix is the only framing the dispatcher imposes on
// the byte stream, and only when auth.secret_key is configured: the
// client's first framed record after the handshake is a single line
// of this form. No auth configured means no protocol intrusion at
// all — the connection is relayed byte-for-byte from the first byte
// after the handshake.
const authorizationPrefix = "Authorization: "

// Config mirrors the proxy/backend sections of the proxy
// configuration.
type Config struct {
	ListenAddr        string        `env:"PROXY_LISTEN_ADDR" env-default:":8443"`
	BackendAddr       string        `env:"BACKEND_ADDR" env-required:"true"`
	MaxConnections    int           `env:"PROXY_MAX_CONNECTIONS" env-default:"1000"`
	HandshakeTimeout  time.Duration `env:"PROXY_HANDSHAKE_TIMEOUT" env-default:"10s"`
	DialTimeout       time.Duration `env:"PROXY_DIAL_TIMEOUT" env-default:"5s"`
	AdmissionRatePerS float64       `env:"PROXY_ADMISSION_RATE" env-default:"500"`
	AdmissionBurst    int           `env:"PROXY_ADMISSION_BURST" env-default:"100"`
}

// Dispatcher owns the listener and the per-connection pipeline.
type Dispatcher struct {
	cfg          Config
	tlsMgr       *tlscontext.Manager
	chain        *middleware.Chain
	metrics      *metrics.Metrics
	admission    *rate.Limiter
	sem          chan struct{}
	authRequired bool
}

// New builds a Dispatcher. authRequired must be true only when
// auth.secret_key is configured (i.e. chain's auth predicate is not a
// no-op); it gates whether the dispatcher reads an Authorization line
// at all, so an unauthenticated deployment never touches the byte
// stream before relaying it.
func New(cfg Config, tlsMgr *tlscontext.Manager, chain *middleware.Chain, m *metrics.Metrics, authRequired bool) *Dispatcher {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1000
	}
	if cfg.AdmissionRatePerS <= 0 {
		cfg.AdmissionRatePerS = 500
	}
	if cfg.AdmissionBurst <= 0 {
		cfg.AdmissionBurst = 100
	}
	return &Dispatcher{
		cfg:          cfg,
		tlsMgr:       tlsMgr,
		chain:        chain,
		metrics:      m,
		admission:    rate.NewLimiter(rate.Limit(cfg.AdmissionRatePerS), cfg.AdmissionBurst),
		sem:          make(chan struct{}, cfg.MaxConnections),
		authRequired: authRequired,
	}
}

// Run accepts connections until ctx is cancelled. It never returns an
// error on a clean shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", d.cfg.ListenAddr)
	if err != nil {
		return errors.Handshake("failed to bind listen address", err)
	}
	defer l.Close()

	logger.L().InfoContext(ctx, "dispatcher listening", "addr", d.cfg.ListenAddr, "backend", d.cfg.BackendAddr)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.L().ErrorContext(ctx, "accept error", "error", err)
			continue
		}

		select {
		case d.sem <- struct{}{}:
		default:
			logger.L().Warn("rejecting connection: max concurrent connections reached", "remote", conn.RemoteAddr())
			conn.Close()
			d.metrics.RequestsTotal.WithLabelValues("rejected_capacity").Inc()
			continue
		}

		if !d.admission.Allow() {
			<-d.sem
			conn.Close()
			d.metrics.RequestsTotal.WithLabelValues("rejected_admission").Inc()
			continue
		}

		go d.handle(ctx, conn)
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw net.Conn) {
	start := time.Now()

	tracker := newConnTracker(d.metrics)
	tracker.enter(StateAccepted)

	d.metrics.ActiveConnections.Inc()
	defer func() {
		<-d.sem
		d.metrics.ActiveConnections.Dec()
		tracker.enter(StateClosed)
	}()

	snapshot := d.tlsMgr.Snapshot()
	if snapshot == nil {
		raw.Close()
		d.outcome(ctx, "no_tls_context", start)
		return
	}
	defer d.tlsMgr.Release(snapshot)

	tlsConn := tls.Server(raw, snapshot.Config)
	if err := d.handshakeWithTimeout(ctx, tlsConn); err != nil {
		tlsConn.Close()
		logger.L().WarnContext(ctx, "tls handshake failed", "remote", raw.RemoteAddr(), "error", err)
		d.outcome(ctx, "handshake_failed", start)
		return
	}
	tracker.enter(StateHandshaken)

	var client net.Conn = tlsConn
	var token string
	if d.authRequired {
		reader := bufio.NewReader(tlsConn)
		t, err := readAuthorizationLine(reader)
		if err != nil {
			tlsConn.Close()
			d.outcome(ctx, "malformed_request", start)
			return
		}
		token = t
		client = &bufferedConn{Conn: tlsConn, reader: reader}
	}

	cc := middleware.Context{RemoteAddr: raw.RemoteAddr(), Token: token}
	verdict := d.chain.Evaluate(cc)
	if !verdict.Allowed {
		tlsConn.Close()
		logger.L().InfoContext(ctx, "connection denied", "remote", raw.RemoteAddr(), "reason", verdict.Reason)
		if verdict.Reason == "rate_limited" {
			d.metrics.RateLimitedTotal.WithLabelValues(cc.ClientIP()).Inc()
		}
		d.outcome(ctx, "denied_"+verdict.Reason, start)
		return
	}
	if token != "" {
		tracker.enter(StateAuthenticated)
	}

	backend, err := d.dialBackend(ctx)
	if err != nil {
		tlsConn.Close()
		logger.L().ErrorContext(ctx, "failed to reach backend", "error", err)
		d.metrics.ErrorsTotal.WithLabelValues("upstream").Inc()
		d.outcome(ctx, "upstream_unreachable", start)
		return
	}
	defer backend.Close()

	tracker.enter(StateRelaying)
	if err := relay(client, backend, tracker.enter); err != nil {
		logger.L().DebugContext(ctx, "relay ended", "remote", raw.RemoteAddr(), "error", err)
	}

	d.outcome(ctx, "closed", start)
}

func (d *Dispatcher) handshakeWithTimeout(ctx context.Context, conn *tls.Conn) error {
	deadline := time.Now().Add(d.cfg.HandshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		return errors.Handshake("tls handshake failed", err)
	}
	return conn.SetDeadline(time.Time{})
}

func (d *Dispatcher) dialBackend(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		dialer := net.Dialer{Timeout: d.cfg.DialTimeout}
		c, dialErr := dialer.DialContext(ctx, "tcp", d.cfg.BackendAddr)
		if dialErr != nil {
			return dialErr
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, errors.Upstream("", err)
	}
	return conn, nil
}

func (d *Dispatcher) outcome(ctx context.Context, label string, start time.Time) {
	d.metrics.RequestsTotal.WithLabelValues(label).Inc()
	d.metrics.ObserveLatency(label, time.Since(start))
}

// readAuthorizationLine reads the single "Authorization: <token>" line
// the client sends as its first framed record immediately after the
// TLS handshake completes. It is only ever called when auth.secret_key
// is configured. A line without the expected prefix returns an empty
// token rather than an error — the auth predicate, not this function,
// is what rejects it.
func readAuthorizationLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, authorizationPrefix) {
		return "", nil
	}
	return strings.TrimPrefix(line, authorizationPrefix), nil
}

// bufferedConn presents a net.Conn whose Read comes from a bufio.Reader
// that has already consumed the bearer-token line, so relay sees only
// the bytes meant for the backend.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.reader.Read(p)
}
