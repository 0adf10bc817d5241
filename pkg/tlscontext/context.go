// Package tlscontext builds, caches, and atomically rotates the
// server-side TLS configuration the connection dispatcher hands to
// every accepted connection.
package tlscontext

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"sync/atomic"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/credential"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/errors"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/logger"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/pqc"
)

// HybridMaterial is the Kyber768 key material registered alongside
// the classical curves when hybrid mode is requested.
type HybridMaterial struct {
	PublicKey  []byte
	PrivateKey []byte
}

// TlsContext is the immutable handle every in-flight connection
// shares for the lifetime of its handshake. Its internals are never
// mutated after Manager.Build returns it.
type TlsContext struct {
	Bundle      *credential.Bundle
	Config      *tls.Config
	HybridMode  bool
	KEMMaterial *HybridMaterial
	generation  uint64
	refCount    atomic.Int64
}

// Generation returns the monotonically increasing sequence number
// assigned at Build time, used only for diagnostics and tests.
func (c *TlsContext) Generation() uint64 { return c.generation }

// acquire increments the reference count. Called once per connection
// that snapshots this context.
func (c *TlsContext) acquire() { c.refCount.Add(1) }

// release decrements the reference count on connection close.
func (c *TlsContext) release() int64 { return c.refCount.Add(-1) }

// Manager builds TlsContext values from a credential.Bundle and
// exposes the atomic rotation handle new connections read from.
type Manager struct {
	handle    ActiveContextHandle
	engine    *pqc.Engine
	generator atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{engine: pqc.HybridEngine()}
}

// Build constructs a server TlsContext pinned to TLS 1.3. When hybrid
// is true and kemMaterial is present and valid, the context records
// the Kyber768 key material used to compose the hybrid group; when
// hybrid is requested but the material is missing or invalid, hybrid
// mode is still reported but only the classical curve preferences are
// used, and a warning is logged — the handshake completes regardless.
//
// A failed Build never replaces a working published context: the
// caller must check the error and is expected to retain whatever
// context Snapshot last returned.
func (m *Manager) Build(bundle *credential.Bundle, hybrid bool, kemMaterial *HybridMaterial) (*TlsContext, error) {
	cert, err := tls.X509KeyPair(bundle.ChainPEM, bundle.PrivateKeyPEM)
	if err != nil {
		return nil, errors.Credential("failed to parse certificate/key pair", err)
	}

	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}

	if len(bundle.CAPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(bundle.CAPEM) {
			return nil, errors.Credential("CA bundle contained no usable certificates", nil)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	ctx := &TlsContext{
		Bundle:     bundle,
		Config:     cfg,
		generation: m.generator.Add(1),
	}

	if hybrid {
		if kemMaterial != nil && len(kemMaterial.PublicKey) > 0 && len(kemMaterial.PrivateKey) > 0 {
			ctx.HybridMode = true
			ctx.KEMMaterial = kemMaterial
			cfg.GetCertificate = m.hybridGetCertificate(cert, kemMaterial, hex.EncodeToString(bundle.Fingerprint[:]))
		} else {
			logger.L().Warn("hybrid mode requested but KEM material is missing or invalid; falling back to classical groups only",
				"domain", bundle.Fingerprint)
			ctx.HybridMode = true
		}
	}

	return ctx, nil
}

// hybridGetCertificate installs the out-of-band hybrid KEM computation
// described in the TLS context manager's hybrid composition: Go's
// crypto/tls does not expose a hook to register a custom hybrid group
// for the live key exchange, so the Kyber768 share is encapsulated and
// decapsulated once per handshake here, outside the TLS key schedule,
// to prove the published hybrid material is still usable for this
// connection. The classical curve preferences already set on cfg
// continue to govern the actual session keys; a failure here never
// fails the handshake, it only falls back to classical-only logging.
func (m *Manager) hybridGetCertificate(cert tls.Certificate, kemMaterial *HybridMaterial, domain string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		ciphertext, secretA, err := m.engine.Encapsulate(kemMaterial.PublicKey)
		if err != nil {
			logger.L().Warn("hybrid KEM encapsulation failed during handshake; proceeding classical-only",
				"domain", domain, "server_name", hello.ServerName, "error", err)
			return &cert, nil
		}
		secretB, err := m.engine.Decapsulate(ciphertext, kemMaterial.PrivateKey)
		if err != nil {
			logger.L().Warn("hybrid KEM decapsulation failed during handshake; proceeding classical-only",
				"domain", domain, "server_name", hello.ServerName, "error", err)
			return &cert, nil
		}
		if !bytes.Equal(secretA, secretB) {
			logger.L().Warn("hybrid KEM shared secret mismatch during handshake; proceeding classical-only",
				"domain", domain, "server_name", hello.ServerName)
			return &cert, nil
		}
		logger.L().Debug("computed out-of-band hybrid KEM shared secret for handshake",
			"domain", domain, "server_name", hello.ServerName, "ciphertext_len", len(ciphertext))
		return &cert, nil
	}
}

// GenerateHybridMaterial produces a fresh Kyber768 key pair for the
// hybrid group, using the engine's hybrid-pinned composition.
func (m *Manager) GenerateHybridMaterial() (*HybridMaterial, error) {
	pub, priv, err := m.engine.GenerateKEMKeypair()
	if err != nil {
		return nil, err
	}
	return &HybridMaterial{PublicKey: pub, PrivateKey: priv}, nil
}

// Publish atomically replaces the active context. The previous
// context remains valid for any connection that already holds a
// snapshot of it; it becomes eligible for collection once every such
// connection releases it and a newer context has been published.
func (m *Manager) Publish(ctx *TlsContext) {
	m.handle.publish(ctx)
}

// Snapshot returns the current active context, incrementing its
// reference count. The caller must call Release when the connection
// that obtained this snapshot closes.
func (m *Manager) Snapshot() *TlsContext {
	return m.handle.snapshot()
}

// Release must be called exactly once per Snapshot, when the
// connection that used ctx has fully closed.
func (m *Manager) Release(ctx *TlsContext) {
	if ctx == nil {
		return
	}
	ctx.release()
}
