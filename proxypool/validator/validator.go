package validator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"georelay/internal/shared/logger"
	"georelay/internal/shared/transport"
	"georelay/proxypool/model"
)

const defaultProbeURL = "http://www.gstatic.com/generate_204"

// Validator 对新抓取的代理做一次快速可用性检查，只保留通过的代理。
type Validator struct {
	timeout     time.Duration
	concurrency int
	probeURL    string
}

func NewValidator(timeout time.Duration, concurrency int, probeURL string) *Validator {
	if concurrency <= 0 {
		concurrency = 5
	}
	if probeURL == "" {
		probeURL = defaultProbeURL
	}
	return &Validator{
		timeout:     timeout,
		concurrency: concurrency,
		probeURL:    probeURL,
	}
}

// Validate checks proxies concurrently and returns the ones that passed, in input order.
func (v *Validator) Validate(ctx context.Context, proxies []model.Endpoint) []model.Endpoint {
	l := logger.WithComponent("ProxyPool/Validator")
	if len(proxies) == 0 {
		return proxies
	}

	l.Info().Int("count", len(proxies)).Int("concurrency", v.concurrency).Msg("Starting validation batch...")

	passed := make([]bool, len(proxies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	for i, p := range proxies {
		g.Go(func() error {
			start := time.Now()
			err := v.validateSingleProxy(gctx, p)
			if err != nil {
				l.Debug().Err(err).Str("proxy_id", p.ID()).Msg("Proxy failed validation.")
				return nil
			}
			passed[i] = true
			l.Debug().Str("proxy_id", p.ID()).Dur("latency", time.Since(start)).Msg("Proxy passed validation.")
			return nil
		})
	}
	_ = g.Wait()

	validated := make([]model.Endpoint, 0, len(proxies))
	for i, p := range proxies {
		if passed[i] {
			validated = append(validated, p)
		}
	}

	l.Info().Int("passed", len(validated)).Int("checked", len(proxies)).Msg("Validation batch finished.")
	return validated
}

// validateSingleProxy dispatches on the endpoint protocol.
func (v *Validator) validateSingleProxy(ctx context.Context, p model.Endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	switch p.Protocol {
	case model.ProtocolSOCKS5:
		return v.checkSocks5Connect(ctx, p)
	default:
		return v.checkHttpProxy(ctx, p)
	}
}

// checkHttpProxy issues a HEAD for the probe URL through the proxy.
func (v *Validator) checkHttpProxy(ctx context.Context, p model.Endpoint) error {
	tr, err := transport.ForEndpoint(p, v.timeout)
	if err != nil {
		return err
	}
	defer tr.CloseIdleConnections()

	client := &http.Client{
		Transport: tr,
		Timeout:   v.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, v.probeURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

// checkSocks5Connect validates a SOCKS5 proxy by opening a tunnel to the probe host.
func (v *Validator) checkSocks5Connect(ctx context.Context, p model.Endpoint) error {
	target, err := probeHostPort(v.probeURL)
	if err != nil {
		return err
	}
	tr, err := transport.ForEndpoint(p, v.timeout)
	if err != nil {
		return err
	}
	conn, err := tr.DialContext(ctx, "tcp", target)
	if err != nil {
		return err
	}
	return conn.Close()
}

func probeHostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid probe url: %w", err)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
