package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrExhaustedRetries matches any error returned after the retry budget ran
// out on a retryable failure.
var ErrExhaustedRetries = errors.New("retries exhausted")

// TransientError wraps an error that is safe to retry (e.g., 5xx, network
// timeout, malformed response body).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError marks an upstream payload that reported a quota or rate
// condition. It is retried with exponential backoff.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return e.Err.Error()
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError wraps err as a rate-limit condition.
func NewRateLimitError(err error) *RateLimitError {
	return &RateLimitError{Err: err}
}

// TerminalError is an explicit, non-retryable rejection from the upstream.
type TerminalError struct {
	Err  error
	Code string
}

func (e *TerminalError) Error() string {
	return e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// NewTerminalError wraps err as terminal with the upstream status code.
func NewTerminalError(err error, code string) *TerminalError {
	return &TerminalError{Err: err, Code: code}
}

// ExhaustedError is returned once every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhaustedRetries.Error(), e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports ErrExhaustedRetries as a match so callers can use errors.Is.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

// IsRateLimited returns true if the error chain carries a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTerminal returns true if the error chain carries a TerminalError.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// IsExhausted returns true if err came out of a spent retry budget.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhaustedRetries)
}

// IsRetryable is the default retry predicate: transient failures and
// rate-limit payloads are retried, everything else is not.
func IsRetryable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	return IsRateLimited(err) || IsTransient(err)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
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

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// Cause names the retry class of err for logs and metrics.
func Cause(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsTerminal(err):
		return "terminal"
	case IsRateLimited(err):
		return "rate_limited"
	case IsTransient(err):
		return "transient"
	default:
		return "unknown"
	}
}
