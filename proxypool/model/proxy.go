package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	ProtocolHTTP   = "http"
	ProtocolSOCKS5 = "socks5"

	SourceSeed = "seed"
)

var ErrInvalidEndpoint = errors.New("invalid proxy endpoint")

// Endpoint 是代理池中的单个候选代理。
// 身份 (ID) 只由规范化后的 "host:port" 决定，Protocol 与 Source 不参与去重。
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Source   string `json:"source,omitempty"`
}

// ParseEndpoint parses a "host:port" string as found in proxy lists.
// An optional scheme prefix ("socks5://1.2.3.4:1080") selects the protocol and
// anything after the first whitespace is ignored, since several lists append
// country codes or latency to each line.
func ParseEndpoint(raw string) (Endpoint, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Endpoint{}, fmt.Errorf("%w: empty input", ErrInvalidEndpoint)
	}

	protocol := ProtocolHTTP
	if i := strings.Index(s, "://"); i >= 0 {
		switch scheme := strings.ToLower(s[:i]); scheme {
		case "http", "https":
			protocol = ProtocolHTTP
		case "socks5", "socks5h":
			protocol = ProtocolSOCKS5
		default:
			return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, scheme)
		}
		s = strings.TrimSuffix(s[i+3:], "/")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, raw, err)
	}
	return NewEndpoint(host, portStr, protocol)
}

// NewEndpoint validates host and port coming from structured sources (JSON objects, HTML cells).
func NewEndpoint(host, portStr, protocol string) (Endpoint, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: empty host", ErrInvalidEndpoint)
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: port %q out of range", ErrInvalidEndpoint, portStr)
	}
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "", "https":
		protocol = ProtocolHTTP
	case ProtocolHTTP, ProtocolSOCKS5:
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported protocol %q", ErrInvalidEndpoint, protocol)
	}
	return Endpoint{Host: host, Port: port, Protocol: protocol}, nil
}

// MustParseEndpoint is ParseEndpoint for literals; it panics on bad input.
func MustParseEndpoint(raw string) Endpoint {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		panic(err)
	}
	return ep
}

// ID returns the normalized "host:port" identity.
func (e Endpoint) ID() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.ID()
}

// URL returns the proxy URL used to configure a transport.
func (e Endpoint) URL() *url.URL {
	scheme := e.Protocol
	if scheme == "" {
		scheme = ProtocolHTTP
	}
	return &url.URL{Scheme: scheme, Host: e.ID()}
}

// Dedup returns endpoints with duplicate IDs removed, keeping first occurrences in order.
func Dedup(endpoints ...[]Endpoint) []Endpoint {
	seen := make(map[string]struct{})
	out := make([]Endpoint, 0)
	for _, list := range endpoints {
		for _, ep := range list {
			id := ep.ID()
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, ep)
		}
	}
	return out
}
