// Package certlifecycle runs the periodic expiry check, renewal, and
// TLS context rotation signal the dispatcher's active context depends
// on.
package certlifecycle

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/credential"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/logger"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/tlscontext"
)

// State is the per-domain bookkeeping record the worker holds. At
// most one renewal may be in flight per domain at any time.
type State struct {
	mu                sync.Mutex
	Domain            string
	CertPath          string
	KeyPath           string
	RenewalThreshold  time.Duration
	lastCheckedAt     time.Time
	inFlightRenewal   bool
}

// RenewFunc performs the actual certificate renewal (a subprocess or
// ACME client invocation). It must leave the on-disk cert/key files
// updated on success.
type RenewFunc func(ctx context.Context, domain string) error

// Worker is a single long-lived task per managed domain. On each
// tick it checks whether the on-disk certificate changed or is
// nearing expiry, triggers renewal when needed, and publishes a new
// TlsContext on success.
type Worker struct {
	state   *State
	manager *tlscontext.Manager
	renew   RenewFunc
	hybrid  bool

	triggerCh chan struct{}
}

func NewWorker(state *State, manager *tlscontext.Manager, renew RenewFunc, hybrid bool) *Worker {
	state.lastCheckedAt = time.Now()
	return &Worker{
		state:     state,
		manager:   manager,
		renew:     renew,
		hybrid:    hybrid,
		triggerCh: make(chan struct{}, 1),
	}
}

// TriggerNow requests an out-of-band tick without waiting for the
// next scheduled interval. Non-blocking: a pending trigger is
// coalesced with any already queued.
func (w *Worker) TriggerNow() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run ticks every checkInterval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, checkInterval time.Duration) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		case <-w.triggerCh:
			w.tick(ctx)
		}
	}
}

// tick performs one pass: check on-disk mtimes against the previous
// check timestamp (captured before it is advanced — the on-disk mtime
// comparison in the source this worker is modeled on recorded its
// check timestamp before comparing, which made the comparison always
// false; here the comparison happens first), check expiry against
// the renewal threshold, and renew/reload as needed.
func (w *Worker) tick(ctx context.Context) {
	w.state.mu.Lock()
	previousCheck := w.state.lastCheckedAt
	domain := w.state.Domain
	inFlight := w.state.inFlightRenewal
	w.state.mu.Unlock()

	certMtime, keyMtime, err := statMtimes(w.state.CertPath, w.state.KeyPath)
	now := time.Now()

	w.state.mu.Lock()
	w.state.lastCheckedAt = now
	w.state.mu.Unlock()

	if err != nil {
		logger.L().Error("failed to stat certificate files; keeping prior context", "domain", domain, "error", err)
		return
	}

	changed := certMtime.After(previousCheck) || keyMtime.After(previousCheck)
	if changed {
		if rerr := w.reload(); rerr != nil {
			logger.L().Error("certificate changed on disk but failed to parse; keeping prior context", "domain", domain, "error", rerr)
			return
		}
	}

	bundle, err := (&credential.FileSource{CertPath: w.state.CertPath, KeyPath: w.state.KeyPath}).Load(ctx)
	if err != nil {
		logger.L().Error("failed to read current certificate for expiry check", "domain", domain, "error", err)
		return
	}

	needsRenewal := needsRenewalAt(bundle.NotAfter, now, w.state.RenewalThreshold)

	if needsRenewal {
		if inFlight {
			return // concurrent ticks observing the flag are no-ops
		}
		w.state.mu.Lock()
		w.state.inFlightRenewal = true
		w.state.mu.Unlock()

		go w.doRenewal(ctx, domain)
	}
}

func (w *Worker) doRenewal(ctx context.Context, domain string) {
	defer func() {
		w.state.mu.Lock()
		w.state.inFlightRenewal = false
		w.state.mu.Unlock()
	}()

	if err := w.renew(ctx, domain); err != nil {
		logger.L().Error("certificate renewal failed; retrying next tick", "domain", domain, "error", err)
		return
	}

	if err := w.reload(); err != nil {
		logger.L().Error("renewal succeeded but reload failed; retrying next tick", "domain", domain, "error", err)
		return
	}

	logger.L().Info("certificate renewed and TLS context rotated", "domain", domain)
}

// reload re-reads the on-disk material, builds a new TlsContext, and
// publishes it. It never replaces a working published context with a
// broken one: on any error it returns without calling Publish.
func (w *Worker) reload() error {
	bundle, err := (&credential.FileSource{CertPath: w.state.CertPath, KeyPath: w.state.KeyPath}).Load(context.Background())
	if err != nil {
		return err
	}

	var hybridMaterial *tlscontext.HybridMaterial
	if w.hybrid {
		hybridMaterial, err = w.manager.GenerateHybridMaterial()
		if err != nil {
			logger.L().Warn("failed to generate hybrid KEM material; falling back to classical", "domain", w.state.Domain, "error", err)
			hybridMaterial = nil
		}
	}

	ctx, err := w.manager.Build(bundle, w.hybrid, hybridMaterial)
	if err != nil {
		return err
	}

	w.manager.Publish(ctx)
	return nil
}

// needsRenewalAt reports whether a certificate expiring at notAfter,
// as observed at now, falls within threshold of expiry. A certificate
// expiring in exactly threshold is treated as needing renewal, so the
// comparison is <=, not <.
func needsRenewalAt(notAfter, now time.Time, threshold time.Duration) bool {
	return notAfter.Sub(now) <= threshold
}

func statMtimes(certPath, keyPath string) (certMtime, keyMtime time.Time, err error) {
	certInfo, err := os.Stat(certPath)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	keyInfo, err := os.Stat(keyPath)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return certInfo.ModTime(), keyInfo.ModTime(), nil
}
