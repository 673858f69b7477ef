package relay

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultHeaders is the browser-like header set every attempt starts from.
func DefaultHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	return h
}

// MergeHeaders applies overrides on top of defaults. Keys are compared
// case-insensitively, so an override replaces the default key for key.
func MergeHeaders(defaults http.Header, overrides map[string]string) http.Header {
	merged := defaults.Clone()
	if merged == nil {
		merged = make(http.Header)
	}
	for k, v := range overrides {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		merged.Set(k, v)
	}
	return merged
}

// ValidateHeaders rejects names and values net/http would refuse to send,
// such as CR/LF in a value or whitespace in a name.
func ValidateHeaders(h http.Header) error {
	for name, values := range h {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("%w: bad header name %q", ErrInvalidHeaders, name)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("%w: bad value for header %q", ErrInvalidHeaders, name)
			}
		}
	}
	return nil
}
