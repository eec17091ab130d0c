package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TemporaryError marks a failure that may succeed when retried.
type TemporaryError struct {
	Err    error
	Status int // HTTP status, 0 when not an HTTP failure
}

func (e *TemporaryError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("temporary (http %d): %v", e.Status, e.Err)
	}
	return "temporary: " + e.Err.Error()
}

func (e *TemporaryError) Unwrap() error { return e.Err }

// Temporary wraps err as retryable.
func Temporary(err error, status int) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err, Status: status}
}

// Retryable reports whether err is a TemporaryError, a network timeout, or
// a dropped connection.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TemporaryError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection reset", "broken pipe", "i/o timeout", "tls handshake timeout", "server closed idle connection"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status should be retried.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
