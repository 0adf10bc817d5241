// Package pqc wraps the post-quantum key-encapsulation and signature
// primitives the TLS context manager and credential source depend on:
// Kyber768 (ML-KEM) for key encapsulation, Dilithium3 (ML-DSA) for
// signatures, and a hybrid X25519+Kyber768 group for classical/PQ
// composed handshakes.
//
// The engine is stateless across calls: every operation takes its key
// material as an argument rather than holding it on the Engine value.
// Errors are always a *CryptoError carrying the algorithm name and
// reason; callers must not substitute a classical-only fallback on
// error.
package pqc
