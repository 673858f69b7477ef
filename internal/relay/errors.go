package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTarget means the caller supplied no usable target URL; no network I/O was attempted.
	ErrInvalidTarget = errors.New("invalid target url")
	// ErrInvalidHeaders means a caller-supplied header name or value cannot be sent on the wire.
	ErrInvalidHeaders = errors.New("invalid request headers")
	// ErrNoProxiesAvailable means the direct attempt (if any) missed and the pool was empty.
	ErrNoProxiesAvailable = errors.New("no proxies available")
	// ErrAllAttemptsFailed means the direct attempt and every budgeted proxy attempt failed.
	ErrAllAttemptsFailed = errors.New("all proxy attempts failed")
)

// FetchError is the only error Fetch returns. It carries the counts the
// serving layer reports back to the caller.
type FetchError struct {
	Kind             error
	Message          string
	ProxiesAvailable int
	ProxiesAttempted int
	TotalProxies     int
	Suggestion       string
	Attempts         []Attempt
}

func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Kind
}

// ProxyAttemptError describes one failed attempt. It is logged and recorded
// on the Attempt, never returned to the caller as is.
type ProxyAttemptError struct {
	Proxy  string // proxy ID, or "direct"
	Status int    // HTTP status if a response arrived
	Err    error
	// Local marks failures the proxy did not cause: building the request, or a
	// response over the body limit. They never lead to Penalize.
	Local bool
}

func (e *ProxyAttemptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Proxy, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Proxy, e.Status)
}

func (e *ProxyAttemptError) Unwrap() error {
	return e.Err
}
