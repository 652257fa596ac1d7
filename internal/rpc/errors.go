package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when the provider has no record for the request.
	ErrNotFound = errors.New("rpc: not found")
	// ErrExhausted is matched by every error returned after all credentials failed.
	ErrExhausted = errors.New("rpc: all credentials exhausted")
	// ErrNoCredentials is returned by NewClient for an empty credential pool.
	ErrNoCredentials = errors.New("rpc: no credentials configured")
)

// Provider-specific JSON-RPC codes that signal throttling.
const (
	codeTooManyRequests = 429
	codeRateLimited     = -32429
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPStatusError is a non-200 response from the provider.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// ExhaustedError carries the last failure seen after every credential was tried.
type ExhaustedError struct {
	Method      string
	Credentials int
	Last        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d credentials exhausted: %v", e.Method, e.Credentials, e.Last)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Last }

// transportError marks connection, timeout and body read failures.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

// IsThrottled reports whether the provider asked us to slow down.
func IsThrottled(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == codeTooManyRequests || rpcErr.Code == codeRateLimited
	}
	return false
}

// IsTransient reports whether retrying the same credential may succeed.
func IsTransient(err error) bool {
	var tErr *transportError
	if errors.As(err, &tErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}
