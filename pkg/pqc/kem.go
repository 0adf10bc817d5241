package pqc

import (
	"crypto/rand"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/hybrid"
	circlschemes "github.com/cloudflare/circl/kem/schemes"
)

// KEMAlgorithm names a key-encapsulation scheme recognized by this
// engine. The zero value selects Kyber768.
type KEMAlgorithm string

const (
	// KEMKyber768 is the default KEM algorithm (NIST Level 3).
	KEMKyber768 KEMAlgorithm = "Kyber768"
	// KEMHybridX25519Kyber768 composes a classical X25519 share with
	// the Kyber768 share, used when tls.use_hybrid is enabled.
	KEMHybridX25519Kyber768 KEMAlgorithm = "X25519Kyber768"
)

func (a KEMAlgorithm) scheme() (kem.Scheme, error) {
	switch a {
	case "", KEMKyber768:
		s := circlschemes.ByName("Kyber768")
		if s == nil {
			return nil, newCryptoError(string(KEMKyber768), "scheme not registered", nil)
		}
		return s, nil
	case KEMHybridX25519Kyber768:
		return hybrid.Kyber768X25519(), nil
	default:
		return nil, newCryptoError(string(a), "unknown KEM algorithm", nil)
	}
}

// Engine wraps the Kyber/Dilithium primitives behind the operation
// set the TLS context manager and credential source consume. It holds
// no key material; every call takes its keys as arguments.
type Engine struct {
	kemAlgorithm KEMAlgorithm
	sigAlgorithm SigAlgorithm
}

// NewEngine builds an Engine for the configured KEM and signature
// algorithms. An empty KEMAlgorithm defaults to Kyber768; an empty
// SigAlgorithm defaults to Dilithium3, per spec defaults.
func NewEngine(kemAlgorithm KEMAlgorithm, sigAlgorithm SigAlgorithm) *Engine {
	return &Engine{kemAlgorithm: kemAlgorithm, sigAlgorithm: sigAlgorithm}
}

// GenerateKEMKeypair produces a fresh public/private key pair for the
// engine's configured KEM algorithm.
func (e *Engine) GenerateKEMKeypair() (pub, priv []byte, err error) {
	scheme, err := e.kemAlgorithm.scheme()
	if err != nil {
		return nil, nil, err
	}
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, newCryptoError(string(e.kemAlgorithm), "key generation failed", err)
	}
	pubBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, newCryptoError(string(e.kemAlgorithm), "public key marshal failed", err)
	}
	privBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, newCryptoError(string(e.kemAlgorithm), "private key marshal failed", err)
	}
	return pubBytes, privBytes, nil
}

// Encapsulate generates a ciphertext and shared secret against a
// peer's public key.
func (e *Engine) Encapsulate(peerPub []byte) (ciphertext, sharedSecret []byte, err error) {
	scheme, err := e.kemAlgorithm.scheme()
	if err != nil {
		return nil, nil, err
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(peerPub)
	if err != nil {
		return nil, nil, newCryptoError(string(e.kemAlgorithm), "invalid public key", err)
	}
	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, newCryptoError(string(e.kemAlgorithm), "encapsulation failed", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a ciphertext using the
// holder's own private key.
func (e *Engine) Decapsulate(ciphertext, ownPriv []byte) (sharedSecret []byte, err error) {
	scheme, err := e.kemAlgorithm.scheme()
	if err != nil {
		return nil, err
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(ownPriv)
	if err != nil {
		return nil, newCryptoError(string(e.kemAlgorithm), "invalid private key", err)
	}
	ss, err := scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, newCryptoError(string(e.kemAlgorithm), "decapsulation failed", err)
	}
	return ss, nil
}

// HybridEngine returns an Engine pinned to the X25519+Kyber768 hybrid
// group, independent of the receiver's own configured algorithm. The
// TLS context manager uses this when tls.use_hybrid is set.
func HybridEngine() *Engine {
	return NewEngine(KEMHybridX25519Kyber768, "")
}

// randReader is not read by Engine: key generation and encapsulation
// draw their randomness inside circl, which uses crypto/rand.
var randReader = rand.Reader
