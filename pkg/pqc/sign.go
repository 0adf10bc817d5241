package pqc

import (
	"github.com/cloudflare/circl/sign"
	circlsignschemes "github.com/cloudflare/circl/sign/schemes"
)

// SigAlgorithm names a signature scheme recognized by this engine.
// The zero value selects Dilithium3.
type SigAlgorithm string

const (
	// SigDilithium3 is the default signature algorithm (NIST Level 3).
	SigDilithium3 SigAlgorithm = "Dilithium3"
)

func (a SigAlgorithm) scheme() (sign.Scheme, error) {
	switch a {
	case "", SigDilithium3:
		s := circlsignschemes.ByName("Dilithium3")
		if s == nil {
			return nil, newCryptoError(string(SigDilithium3), "scheme not registered", nil)
		}
		return s, nil
	default:
		return nil, newCryptoError(string(a), "unknown signature algorithm", nil)
	}
}

// GenerateSigKeypair produces a fresh public/private signing key pair
// for the engine's configured signature algorithm.
func (e *Engine) GenerateSigKeypair() (pub, priv []byte, err error) {
	scheme, err := e.sigAlgorithm.scheme()
	if err != nil {
		return nil, nil, err
	}
	pk, sk, err := scheme.GenerateKey()
	if err != nil {
		return nil, nil, newCryptoError(string(e.sigAlgorithm), "key generation failed", err)
	}
	pubBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, newCryptoError(string(e.sigAlgorithm), "public key marshal failed", err)
	}
	privBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, newCryptoError(string(e.sigAlgorithm), "private key marshal failed", err)
	}
	return pubBytes, privBytes, nil
}

// Sign produces a signature over message using priv.
func (e *Engine) Sign(message, priv []byte) (signature []byte, err error) {
	scheme, err := e.sigAlgorithm.scheme()
	if err != nil {
		return nil, err
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, newCryptoError(string(e.sigAlgorithm), "invalid private key", err)
	}
	return scheme.Sign(sk, message, nil), nil
}

// Verify reports whether signature is a valid signature over message
// under pub. A malformed public key or signature is reported as a
// CryptoError, not a silent false.
func (e *Engine) Verify(message, signature, pub []byte) (bool, error) {
	scheme, err := e.sigAlgorithm.scheme()
	if err != nil {
		return false, err
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false, newCryptoError(string(e.sigAlgorithm), "invalid public key", err)
	}
	return scheme.Verify(pk, message, signature, nil), nil
}
