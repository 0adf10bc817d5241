package certlifecycle_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/certlifecycle"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/tlscontext"
)

func writeCert(t *testing.T, dir string, notAfter time.Time) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "proxy.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	if err != nil {
		t.Fatalf("create cert file: %v", err)
	}
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encode cert: %v", err)
	}
	certOut.Close()

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("create key file: %v", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		t.Fatalf("encode key: %v", err)
	}
	keyOut.Close()

	return certPath, keyPath
}

func TestTickRenewsWhenWithinThreshold(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCert(t, dir, time.Now().Add(2*24*time.Hour))

	manager := tlscontext.NewManager()
	state := &certlifecycle.State{
		Domain:           "proxy.test",
		CertPath:         certPath,
		KeyPath:          keyPath,
		RenewalThreshold: 7 * 24 * time.Hour,
	}

	var renewCalled atomic.Bool
	renew := func(ctx context.Context, domain string) error {
		renewCalled.Store(true)
		// simulate a successful renewal replacing the files with a
		// longer-lived certificate.
		writeCert(t, dir, time.Now().Add(120*24*time.Hour))
		return nil
	}

	w := certlifecycle.NewWorker(state, manager, renew, false)
	w.TriggerNow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go w.Run(ctx, time.Hour)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for renewal to run")
		default:
		}
		if renewCalled.Load() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTriggerNowIsNonBlockingWhenCoalesced(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCert(t, dir, time.Now().Add(120*24*time.Hour))

	manager := tlscontext.NewManager()
	state := &certlifecycle.State{
		Domain:           "proxy.test",
		CertPath:         certPath,
		KeyPath:          keyPath,
		RenewalThreshold: 7 * 24 * time.Hour,
	}
	renew := func(ctx context.Context, domain string) error { return nil }

	w := certlifecycle.NewWorker(state, manager, renew, false)

	done := make(chan struct{})
	go func() {
		w.TriggerNow()
		w.TriggerNow()
		w.TriggerNow()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TriggerNow blocked unexpectedly")
	}
}
