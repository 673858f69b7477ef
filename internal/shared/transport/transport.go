package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"georelay/proxypool/model"
)

// Direct returns a transport without any proxy. Environment proxy variables are
// ignored so that "direct" really means direct.
func Direct(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
	}
}

// ForEndpoint builds a single-use transport that routes through ep.
// Keep-alives are disabled because scraped proxies are rarely reused within a pool generation.
func ForEndpoint(ep model.Endpoint, timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: timeout}
	t := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	switch ep.Protocol {
	case "", model.ProtocolHTTP:
		t.Proxy = http.ProxyURL(ep.URL())

	case model.ProtocolSOCKS5:
		socksDialer, err := proxy.SOCKS5("tcp", ep.ID(), nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := socksDialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", ep.ID())
		}
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return contextDialer.DialContext(ctx, network, addr)
		}

	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", ep.Protocol)
	}

	return t, nil
}
