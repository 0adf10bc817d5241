package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error kinds recognized by the proxy's error taxonomy. These are
// semantic categories, not Go types: every one of them is carried by
// the same AppError.
const (
	CodeConfig      = "CONFIG_ERROR"
	CodeCredential  = "CREDENTIAL_ERROR"
	CodeCrypto      = "CRYPTO_ERROR"
	CodeHandshake   = "HANDSHAKE_ERROR"
	CodeUpstream    = "UPSTREAM_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeRenewal     = "RENEWAL_ERROR"
)

// AppError carries an error kind, a human message, and the underlying
// cause. Propagation policy (which kinds are fatal at startup vs.
// connection-scoped vs. retried) lives with the callers, not here.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError of the given kind.
func New(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func Config(msg string, err error) *AppError {
	if msg == "" {
		msg = "invalid configuration"
	}
	return New(CodeConfig, msg, err)
}

func Credential(msg string, err error) *AppError {
	if msg == "" {
		msg = "credential load failed"
	}
	return New(CodeCredential, msg, err)
}

func Crypto(algorithm, reason string, err error) *AppError {
	return New(CodeCrypto, fmt.Sprintf("%s: %s", algorithm, reason), err)
}

func Handshake(msg string, err error) *AppError {
	if msg == "" {
		msg = "tls handshake failed"
	}
	return New(CodeHandshake, msg, err)
}

func Upstream(msg string, err error) *AppError {
	if msg == "" {
		msg = "upstream unreachable"
	}
	return New(CodeUpstream, msg, err)
}

func RateLimited(msg string) *AppError {
	if msg == "" {
		msg = "rate limit exceeded"
	}
	return New(CodeRateLimited, msg, nil)
}

func Renewal(msg string, err error) *AppError {
	if msg == "" {
		msg = "certificate renewal failed"
	}
	return New(CodeRenewal, msg, err)
}

// HTTPStatus maps an error kind to the status code used by the health
// and metrics HTTP surface.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeConfig, CodeCredential:
			return http.StatusInternalServerError
		case CodeRateLimited:
			return http.StatusTooManyRequests
		case CodeHandshake, CodeCrypto:
			return http.StatusBadGateway
		case CodeUpstream:
			return http.StatusBadGateway
		case CodeRenewal:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// GRPCStatus maps an error kind to a gRPC status, used by the
// health package's gRPC health-checking server.
func GRPCStatus(err error) *status.Status {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeConfig, CodeCredential:
			return status.New(codes.FailedPrecondition, appErr.Message)
		case CodeCrypto:
			return status.New(codes.Internal, appErr.Message)
		case CodeHandshake:
			return status.New(codes.Aborted, appErr.Message)
		case CodeUpstream:
			return status.New(codes.Unavailable, appErr.Message)
		case CodeRateLimited:
			return status.New(codes.ResourceExhausted, appErr.Message)
		case CodeRenewal:
			return status.New(codes.Internal, appErr.Message)
		}
	}
	return status.New(codes.Unknown, err.Error())
}

// Wrap attaches a message to an error, preserving the chain for errors.Is/As.
func Wrap(err error, msg string) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
