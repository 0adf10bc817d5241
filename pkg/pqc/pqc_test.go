package pqc_test

import (
	"bytes"
	"testing"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/pqc"
)

func TestKEMRoundTrip(t *testing.T) {
	e := pqc.NewEngine(pqc.KEMKyber768, "")

	pub, priv, err := e.GenerateKEMKeypair()
	if err != nil {
		t.Fatalf("GenerateKEMKeypair: %v", err)
	}

	ciphertext, ss1, err := e.Encapsulate(pub)
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}

	ss2, err := e.Decapsulate(ciphertext, priv)
	if err != nil {
		t.Fatalf("Decapsulate: %v", err)
	}

	if !bytes.Equal(ss1, ss2) {
		t.Errorf("expected decapsulated shared secret to match encapsulated one")
	}
}

func TestHybridKEMRoundTrip(t *testing.T) {
	e := pqc.HybridEngine()

	pub, priv, err := e.GenerateKEMKeypair()
	if err != nil {
		t.Fatalf("GenerateKEMKeypair: %v", err)
	}

	ciphertext, ss1, err := e.Encapsulate(pub)
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}

	ss2, err := e.Decapsulate(ciphertext, priv)
	if err != nil {
		t.Fatalf("Decapsulate: %v", err)
	}

	if !bytes.Equal(ss1, ss2) {
		t.Errorf("expected decapsulated shared secret to match encapsulated one")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	e := pqc.NewEngine("", pqc.SigDilithium3)

	pub, priv, err := e.GenerateSigKeypair()
	if err != nil {
		t.Fatalf("GenerateSigKeypair: %v", err)
	}

	msg := []byte("tls context generation 42")
	sig, err := e.Sign(msg, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := e.Verify(msg, sig, pub)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Errorf("expected signature to verify")
	}

	ok, err = e.Verify([]byte("different message"), sig, pub)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Errorf("expected signature over a different message to fail verification")
	}
}

func TestDecapsulateRejectsInvalidCiphertext(t *testing.T) {
	e := pqc.NewEngine(pqc.KEMKyber768, "")
	_, priv, err := e.GenerateKEMKeypair()
	if err != nil {
		t.Fatalf("GenerateKEMKeypair: %v", err)
	}
	if _, err := e.Decapsulate([]byte("not a ciphertext"), priv); err == nil {
		t.Errorf("expected an error for a malformed ciphertext")
	}
}
