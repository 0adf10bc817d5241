package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"sync"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/errors"
)

// MemoryClient is an in-process Client used by tests and local
// development. It stores AES-256 wrap keys and secret blobs in plain
// maps; production deployments wire a real provider (AWS KMS, GCP
// KMS, Vault transit) behind the same Client interface instead.
type MemoryClient struct {
	mu      sync.RWMutex
	keys    map[string][]byte // name -> AES-256 key used to "decrypt" ciphertext
	secrets map[string][]byte // name -> stored envelope blob, returned by GetSecret
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		keys:    make(map[string][]byte),
		secrets: make(map[string][]byte),
	}
}

// SetKey registers the AES-256 key used to decrypt ciphertexts passed
// to Decrypt under name.
func (c *MemoryClient) SetKey(name string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[name] = key
}

// SetSecret registers the blob GetSecret(name) returns.
func (c *MemoryClient) SetSecret(name string, blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[name] = blob
}

func (c *MemoryClient) Decrypt(ctx context.Context, name string, ciphertext []byte) ([]byte, error) {
	c.mu.RLock()
	key, ok := c.keys[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Credential("kms: no key registered for "+name, nil)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Crypto("AES", "cipher init failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Crypto("AES-GCM", "gcm init failed", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.Credential("kms: ciphertext too short", nil)
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Credential("kms: decrypt failed", err)
	}
	return plaintext, nil
}

func (c *MemoryClient) GetSecret(ctx context.Context, name string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	blob, ok := c.secrets[name]
	if !ok {
		return nil, errors.Credential("kms: no secret stored for "+name, nil)
	}
	return blob, nil
}

// sealWithKey is a test helper that encrypts plaintext the way
// Decrypt expects to unwrap it (AES-GCM, nonce prefix).
func sealWithKey(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}
