package pqc

import "fmt"

// CryptoError reports a KEM or signature primitive failure. It is
// never swallowed or silently downgraded to a classical fallback by
// this package's callers.
type CryptoError struct {
	Algorithm string
	Reason    string
	Err       error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pqc: %s: %s: %v", e.Algorithm, e.Reason, e.Err)
	}
	return fmt.Sprintf("pqc: %s: %s", e.Algorithm, e.Reason)
}

func (e *CryptoError) Unwrap() error { return e.Err }

func newCryptoError(algorithm, reason string, err error) *CryptoError {
	return &CryptoError{Algorithm: algorithm, Reason: reason, Err: err}
}
