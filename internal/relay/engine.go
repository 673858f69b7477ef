package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"georelay/internal/shared/logger"
	"georelay/internal/shared/metrics"
	"georelay/internal/shared/transport"
	"georelay/internal/shared/types"
	"georelay/proxypool/model"
)

const (
	MethodDirect = "direct"
	MethodProxy  = "proxy"

	defaultContentType = "text/plain"
)

// PoolProvider is the view of the proxy pool the engine needs.
type PoolProvider interface {
	GetPool(ctx context.Context) []model.Endpoint
	Penalize(ep model.Endpoint) bool
	Size() int
}

// TransportFunc builds the round tripper for one attempt. ep is nil for the direct attempt.
type TransportFunc func(ep *model.Endpoint, timeout time.Duration) (http.RoundTripper, error)

// Options 控制单次转发请求的尝试序列。
type Options struct {
	DirectFirst    bool
	DirectTimeout  time.Duration
	AttemptTimeout time.Duration
	MaxAttempts    int
	PenalizeFailed bool
	UserAgent      string
	MaxBodyBytes   int64
}

// OptionsFromConfig converts the ini section into Options.
func OptionsFromConfig(c types.RelayConf) Options {
	return Options{
		DirectFirst:    c.DirectFirst,
		DirectTimeout:  time.Duration(c.DirectTimeoutSeconds) * time.Second,
		AttemptTimeout: time.Duration(c.AttemptTimeoutSeconds) * time.Second,
		MaxAttempts:    c.MaxAttempts,
		PenalizeFailed: c.PenalizeFailed,
		UserAgent:      c.UserAgent,
		MaxBodyBytes:   c.MaxBodyBytes,
	}
}

// Request is one relay request as handed over by the serving layer.
type Request struct {
	TargetURL string
	Headers   map[string]string
}

// Attempt records a single direct or proxied try.
type Attempt struct {
	Transport string        `json:"transport"`
	Proxy     string        `json:"proxy,omitempty"`
	Status    int           `json:"status,omitempty"`
	Err       string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Result is a successful relay response.
type Result struct {
	Body        []byte
	Status      int
	ContentType string
	Method      string // MethodDirect or MethodProxy
	Proxy       string // proxy ID when Method is MethodProxy
	Attempts    []Attempt
}

// Engine runs the fetch fallback sequence: an optional direct attempt, then the
// pool in order until one proxy returns 200 with a body or the budget runs out.
type Engine struct {
	opts         Options
	pool         PoolProvider
	newTransport TransportFunc
	direct       http.RoundTripper
}

type EngineOption func(*Engine)

// WithTransportFunc replaces how attempt transports are built.
func WithTransportFunc(fn TransportFunc) EngineOption {
	return func(e *Engine) { e.newTransport = fn }
}

func NewEngine(opts Options, pool PoolProvider, options ...EngineOption) *Engine {
	if opts.DirectTimeout <= 0 {
		opts.DirectTimeout = 10 * time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	e := &Engine{
		opts: opts,
		pool: pool,
	}
	for _, o := range options {
		o(e)
	}
	if e.newTransport == nil {
		e.direct = transport.Direct(opts.DirectTimeout)
		e.newTransport = e.defaultTransport
	}
	return e
}

func (e *Engine) defaultTransport(ep *model.Endpoint, timeout time.Duration) (http.RoundTripper, error) {
	if ep == nil {
		return e.direct, nil
	}
	return transport.ForEndpoint(*ep, timeout)
}

// ValidateTarget checks that raw is an absolute http(s) URL with a host.
func ValidateTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing url", ErrInvalidTarget)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	return u, nil
}

// Fetch relays req. On failure the error is always a *FetchError.
func (e *Engine) Fetch(ctx context.Context, req Request) (*Result, error) {
	l := logger.WithComponent("Relay/Engine")

	target, err := ValidateTarget(req.TargetURL)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("invalid").Inc()
		return nil, &FetchError{
			Kind:       ErrInvalidTarget,
			Message:    err.Error(),
			Suggestion: "Pass an absolute http(s) url, e.g. /fetch?url=https://example.com",
		}
	}

	headers := MergeHeaders(DefaultHeaders(e.opts.UserAgent), req.Headers)
	if err := ValidateHeaders(headers); err != nil {
		metrics.FetchRequests.WithLabelValues("invalid").Inc()
		return nil, &FetchError{
			Kind:       ErrInvalidHeaders,
			Message:    err.Error(),
			Suggestion: "Header names must be tokens and values must not contain control characters",
		}
	}
	var attempts []Attempt

	if e.opts.DirectFirst {
		res, att, _ := e.attempt(ctx, target, headers, nil, e.opts.DirectTimeout)
		attempts = append(attempts, att)
		if res != nil {
			res.Method = MethodDirect
			res.Attempts = attempts
			metrics.FetchRequests.WithLabelValues(MethodDirect).Inc()
			l.Info().Str("target", target.Host).Msg("Served by direct fetch.")
			return res, nil
		}
	}

	pool := e.pool.GetPool(ctx)
	if len(pool) == 0 {
		metrics.FetchRequests.WithLabelValues("no_proxies").Inc()
		l.Warn().Str("target", target.Host).Msg("No proxies available.")
		return nil, &FetchError{
			Kind:       ErrNoProxiesAvailable,
			Message:    "No proxies available",
			Suggestion: "Try again later, or force a refresh via /status?refresh=true",
			Attempts:   attempts,
		}
	}

	budget := min(e.opts.MaxAttempts, len(pool))
	l.Debug().Str("target", target.Host).Int("pool_size", len(pool)).Int("budget", budget).Msg("Starting proxy attempts.")

	proxiesAttempted := 0
	for i := 0; i < budget; i++ {
		if ctx.Err() != nil {
			l.Debug().Err(ctx.Err()).Msg("Request cancelled, abandoning remaining attempts.")
			break
		}
		ep := pool[i]
		proxiesAttempted++

		res, att, err := e.attempt(ctx, target, headers, &ep, e.opts.AttemptTimeout)
		attempts = append(attempts, att)
		if res != nil {
			res.Method = MethodProxy
			res.Proxy = ep.ID()
			res.Attempts = attempts
			metrics.FetchRequests.WithLabelValues(MethodProxy).Inc()
			l.Info().Str("target", target.Host).Str("proxy_id", ep.ID()).Int("attempt", i+1).Msg("Served through proxy.")
			return res, nil
		}
		if e.opts.PenalizeFailed && blamesProxy(ctx, err) {
			e.pool.Penalize(ep)
		}
	}

	metrics.FetchRequests.WithLabelValues("failed").Inc()
	l.Warn().Str("target", target.Host).Int("attempted", proxiesAttempted).Int("total", len(pool)).Msg("All proxy attempts failed.")
	return nil, &FetchError{
		Kind:             ErrAllAttemptsFailed,
		Message:          fmt.Sprintf("All proxy attempts failed (%d of %d proxies tried)", proxiesAttempted, len(pool)),
		ProxiesAvailable: e.pool.Size(),
		ProxiesAttempted: proxiesAttempted,
		TotalProxies:     len(pool),
		Suggestion:       "Try again - proxies are being refreshed",
		Attempts:         attempts,
	}
}

// blamesProxy reports whether a failed attempt counts against the proxy.
// A caller that went away or a local failure says nothing about the proxy.
func blamesProxy(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var pae *ProxyAttemptError
	if errors.As(err, &pae) && pae.Local {
		return false
	}
	return true
}

// attempt performs one GET. It returns a non-nil Result only for status 200 with a non-empty body.
func (e *Engine) attempt(ctx context.Context, target *url.URL, headers http.Header, ep *model.Endpoint, timeout time.Duration) (*Result, Attempt, error) {
	l := logger.WithComponent("Relay/Engine")

	att := Attempt{Transport: MethodDirect}
	label := MethodDirect
	if ep != nil {
		att.Transport = MethodProxy
		att.Proxy = ep.ID()
		label = ep.ID()
	}

	start := time.Now()
	res, err := e.roundTrip(ctx, target, headers, ep, timeout)
	att.Duration = time.Since(start)

	if err != nil {
		var status int
		var pae *ProxyAttemptError
		if errors.As(err, &pae) {
			status = pae.Status
		}
		att.Status = status
		att.Err = err.Error()
		metrics.FetchAttempts.WithLabelValues(att.Transport, "failure").Inc()
		l.Debug().Err(err).Str("via", label).Dur("duration", att.Duration).Msg("Attempt missed.")
		return nil, att, err
	}

	att.Status = res.Status
	metrics.FetchAttempts.WithLabelValues(att.Transport, "success").Inc()
	return res, att, nil
}

func (e *Engine) roundTrip(ctx context.Context, target *url.URL, headers http.Header, ep *model.Endpoint, timeout time.Duration) (*Result, error) {
	label := MethodDirect
	if ep != nil {
		label = ep.ID()
	}

	rt, err := e.newTransport(ep, timeout)
	if err != nil {
		return nil, &ProxyAttemptError{Proxy: label, Err: err}
	}
	if ep != nil {
		if tr, ok := rt.(*http.Transport); ok {
			defer tr.CloseIdleConnections()
		}
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &ProxyAttemptError{Proxy: label, Err: err, Local: true}
	}
	req.Header = headers.Clone()
	if host := headers.Get("Host"); host != "" {
		req.Host = host
	}

	client := &http.Client{Transport: rt, Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProxyAttemptError{Proxy: label, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProxyAttemptError{Proxy: label, Status: resp.StatusCode}
	}
	// one extra byte tells a body of exactly MaxBodyBytes from a longer one
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, &ProxyAttemptError{Proxy: label, Status: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > e.opts.MaxBodyBytes {
		return nil, &ProxyAttemptError{
			Proxy:  label,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("response exceeds max_body_bytes (%d)", e.opts.MaxBodyBytes),
			Local:  true,
		}
	}
	if len(body) == 0 {
		return nil, &ProxyAttemptError{Proxy: label, Status: resp.StatusCode, Err: fmt.Errorf("empty body")}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Result{
		Body:        body,
		Status:      resp.StatusCode,
		ContentType: contentType,
	}, nil
}
