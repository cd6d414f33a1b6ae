package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorKind classifies a fallback inference service failure.
type ErrorKind string

const (
	// KindTransient covers timeouts and 5xx responses; safe to retry.
	KindTransient ErrorKind = "transient"
	// KindRateLimited covers explicit 429 responses from the service;
	// retried with backoff like transient errors.
	KindRateLimited ErrorKind = "rate_limited"
	// KindPermanent covers malformed requests and auth failures; never
	// retried, fails the affected field only.
	KindPermanent ErrorKind = "permanent"
)

// ServiceError is a classified failure from the external inference service.
type ServiceError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err with an explicit kind and optional HTTP status.
func NewServiceError(kind ErrorKind, err error, statusCode int) *ServiceError {
	return &ServiceError{Kind: kind, StatusCode: statusCode, Err: err}
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 429:
		return KindRateLimited
	case statusCode == 408 || statusCode >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// IsRetryable reports whether the error is safe to retry: an explicit
// transient or rate-limited ServiceError, a network timeout, or a
// connection-level failure surfaced by the SDK transport.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind == KindTransient || se.Kind == KindRateLimited
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for errors wrapped by SDK transports.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"overloaded",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsPermanent reports whether the error is an explicit permanent service
// failure that must surface immediately.
func IsPermanent(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == KindPermanent
}
