package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/errors"
	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/resilience"
)

// WrappedKey is the on-wire envelope: every field is a base64-encoded
// opaque octet string. encrypted_public_key and encrypted_private_key
// are AES-CBC ciphertexts whose first 16 octets are the IV and whose
// key is obtained by KMS-decrypting encrypted_aes_key.
type WrappedKey struct {
	EncryptedAESKey     string `json:"encrypted_aes_key"`
	EncryptedPublicKey  string `json:"encrypted_public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

// ResolvedKeypair is the PEM-encoded public/private key material
// recovered from a WrappedKey.
type ResolvedKeypair struct {
	PublicKeyPEM  []byte
	PrivateKeyPEM []byte
}

// ResolveKeypair performs the full KMS keypair-recovery sequence:
//
//  1. retrieve the envelope blob stored under wrapKeyName,
//  2. parse it as a WrappedKey,
//  3. KMS-decrypt encrypted_aes_key using aesKeyName to recover the AES key,
//  4. AES-CBC-decrypt the public and private PEM bundles using the
//     leading-16-octet-IV convention.
//
// Every step fails closed: on any error the keypair is never
// partially populated, and the caller must not retain a zero-value
// ResolvedKeypair.
func ResolveKeypair(ctx context.Context, client Client, wrapKeyName, aesKeyName string) (*ResolvedKeypair, error) {
	retry := resilience.DefaultRetryConfig()

	var envelopeBlob []byte
	err := resilience.Retry(ctx, retry, func(ctx context.Context) error {
		blob, err := client.GetSecret(ctx, wrapKeyName)
		if err != nil {
			return err
		}
		envelopeBlob = blob
		return nil
	})
	if err != nil {
		return nil, errors.Credential("kms: failed to retrieve envelope for "+wrapKeyName, err)
	}

	var wrapped WrappedKey
	if err := json.Unmarshal(envelopeBlob, &wrapped); err != nil {
		return nil, errors.Credential("kms: malformed envelope for "+wrapKeyName, err)
	}

	encryptedAESKey, err := base64.StdEncoding.DecodeString(wrapped.EncryptedAESKey)
	if err != nil {
		return nil, errors.Credential("kms: malformed encrypted_aes_key", err)
	}

	var aesKey []byte
	err = resilience.Retry(ctx, retry, func(ctx context.Context) error {
		key, err := client.Decrypt(ctx, aesKeyName, encryptedAESKey)
		if err != nil {
			return err
		}
		aesKey = key
		return nil
	})
	if err != nil {
		return nil, errors.Credential("kms: failed to recover AES key via "+aesKeyName, err)
	}

	publicPEM, err := unwrapCBC(aesKey, wrapped.EncryptedPublicKey)
	if err != nil {
		return nil, errors.Credential("kms: failed to unwrap public key", err)
	}

	privatePEM, err := unwrapCBC(aesKey, wrapped.EncryptedPrivateKey)
	if err != nil {
		return nil, errors.Credential("kms: failed to unwrap private key", err)
	}

	return &ResolvedKeypair{PublicKeyPEM: publicPEM, PrivateKeyPEM: privatePEM}, nil
}

// unwrapCBC decrypts a base64-encoded AES-CBC ciphertext whose first
// 16 bytes are the IV.
func unwrapCBC(key []byte, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, errors.New("KMS_ENVELOPE", "ciphertext is not a whole number of blocks", nil)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("KMS_ENVELOPE", "empty plaintext", nil)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errors.New("KMS_ENVELOPE", "invalid pkcs7 padding", nil)
	}
	return data[:len(data)-padLen], nil
}

// wrapCBC is a test helper mirroring the on-wire convention: it
// pads plaintext with PKCS#7, prepends the given IV, and encrypts with
// AES-CBC.
func wrapCBC(key, iv, plaintext []byte) (string, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, iv...), ciphertext...)), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}
