package credential_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/credential"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/kms"
)

func writeTestCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "proxy.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
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
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encode cert: %v", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("create key file: %v", err)
	}
	defer keyOut.Close()
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		t.Fatalf("encode key: %v", err)
	}

	return certPath, keyPath
}

func TestFileSourceLoad(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeTestCert(t, dir)

	src := &credential.FileSource{CertPath: certPath, KeyPath: keyPath}
	bundle, err := src.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if bundle.NotAfter.Before(bundle.NotBefore) {
		t.Errorf("expected NotAfter after NotBefore")
	}
	if bundle.Fingerprint == ([32]byte{}) {
		t.Errorf("expected a non-zero fingerprint")
	}
}

func TestFileSourceLoadMissingFile(t *testing.T) {
	src := &credential.FileSource{CertPath: "/nonexistent/cert.pem", KeyPath: "/nonexistent/key.pem"}
	if _, err := src.Load(nil); err == nil {
		t.Errorf("expected an error for a missing certificate file")
	}
}

func certAndKeyPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "proxy.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	return certPEM, keyPEM
}

func TestAwsSecretSourceLoadSplitsConcatenatedPEM(t *testing.T) {
	certPEM, keyPEM := certAndKeyPEM(t)

	client := kms.NewMemoryClient()
	client.SetSecret("my-cert", append(append([]byte{}, certPEM...), keyPEM...))

	src := &credential.AwsSecretSource{Client: client, SecretName: "my-cert"}
	bundle, err := src.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bundle.PrivateKeyPEM) == 0 {
		t.Errorf("expected AwsSecretSource to recover the private key PEM block")
	}
	if !bytes.Equal(bundle.PrivateKeyPEM, keyPEM) {
		t.Errorf("expected recovered private key to match the original PEM block")
	}
	if bundle.NotAfter.Before(bundle.NotBefore) {
		t.Errorf("expected NotAfter after NotBefore")
	}
}

func TestAwsSecretSourceLoadMissingPrivateKey(t *testing.T) {
	certPEM, _ := certAndKeyPEM(t)

	client := kms.NewMemoryClient()
	client.SetSecret("cert-only", certPEM)

	src := &credential.AwsSecretSource{Client: client, SecretName: "cert-only"}
	if _, err := src.Load(nil); err == nil {
		t.Errorf("expected an error when the secret contains no private key PEM block")
	}
}
