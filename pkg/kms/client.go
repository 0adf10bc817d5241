// Package kms wraps the remote key-management service the credential
// source depends on, plus the envelope-unwrap logic for KMS-backed
// key material.
package kms

import "context"

// Client is the wire contract a KMS proxy depends on: decrypt(name,
// ciphertext) -> plaintext, plus a GetSecret operation for resolving a
// stored envelope blob by name.
//
// The original source retrieved an envelope by calling Decrypt with
// an empty ciphertext against the wrap-key name — almost certainly a
// placeholder for a proper secret-retrieval call. Production Client
// implementations should back GetSecret with the KMS provider's
// actual secret-storage API (e.g. AWS Secrets Manager, GCP Secret
// Manager) rather than reusing Decrypt with no input.
type Client interface {
	Decrypt(ctx context.Context, name string, ciphertext []byte) ([]byte, error)
	GetSecret(ctx context.Context, name string) ([]byte, error)
}
