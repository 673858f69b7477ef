package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"georelay/internal/relay"
	"georelay/internal/shared/logger"
	"georelay/internal/shared/types"
	manager "georelay/proxypool"
	"georelay/proxypool/model"
)

// PoolView 定义了 web 层需要的代理池操作，与 manager 包解耦。
type PoolView interface {
	GetPool(ctx context.Context) []model.Endpoint
	ForceRefresh(ctx context.Context) error
	Stats() manager.PoolStats
	Size() int
}

// Fetcher runs one relay request.
type Fetcher interface {
	Fetch(ctx context.Context, req relay.Request) (*relay.Result, error)
}

var errInvalidCustomHeaders = errors.New("customHeaders must be valid JSON string")

var availableEndpoints = []string{
	"GET /",
	"GET /fetch?url=TARGET_URL[&customHeaders=JSON]",
	"GET /status[?refresh=true]",
	"GET /metrics",
	"GET /ws",
}

type Handler struct {
	cfg       types.ServerConf
	pool      PoolView
	fetcher   Fetcher
	hub       *Hub
	startedAt time.Time
}

func NewHandler(cfg types.ServerConf, pool PoolView, fetcher Fetcher, hub *Hub) *Handler {
	return &Handler{
		cfg:       cfg,
		pool:      pool,
		fetcher:   fetcher,
		hub:       hub,
		startedAt: time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logger.WithComponent("Web/Handler")
		l.Warn().Err(err).Msg("Failed to write JSON response.")
	}
}

// parseCustomHeaders 解析 customHeaders 查询参数。
// 必须是 JSON 对象；标量值转成字符串，null 被忽略，嵌套值按原始 JSON 文本传递。
func parseCustomHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, errInvalidCustomHeaders
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, errInvalidCustomHeaders
	}

	headers := make(map[string]string)
	parsed.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Null:
		case gjson.JSON:
			headers[key.String()] = value.Raw
		default:
			headers[key.String()] = value.String()
		}
		return true
	})
	return headers, nil
}

// HandleFetch 处理 GET /fetch?url=...&customHeaders=...
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	target := q.Get("url")
	if strings.TrimSpace(target) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Missing url parameter",
			"usage":   "/fetch?url=YOUR_TARGET_URL",
			"example": "/fetch?url=https://example.com",
		})
		return
	}

	headers, err := parseCustomHeaders(q.Get("customHeaders"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid customHeaders parameter",
			"message": err.Error(),
		})
		return
	}

	requestID := RequestIDFromContext(r.Context())
	l := logger.WithComponent("Web/Handler")
	start := time.Now()

	res, err := h.fetcher.Fetch(r.Context(), relay.Request{TargetURL: target, Headers: headers})
	ev := &RelayEvent{
		Timestamp:  start.UTC(),
		RequestID:  requestID,
		TargetHost: targetHost(target),
		Duration:   time.Since(start),
	}

	if err != nil {
		var fe *relay.FetchError
		if !errors.As(err, &fe) {
			fe = &relay.FetchError{Kind: err, Message: err.Error()}
		}
		ev.Error = fe.Error()
		ev.Attempts = len(fe.Attempts)
		h.broadcast(ev)

		if errors.Is(err, relay.ErrInvalidTarget) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "Invalid url parameter",
				"message": fe.Error(),
				"example": "/fetch?url=https://example.com",
			})
			return
		}
		if errors.Is(err, relay.ErrInvalidHeaders) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "Invalid customHeaders parameter",
				"message": fe.Error(),
			})
			return
		}

		l.Warn().Str("request_id", requestID).Str("target", ev.TargetHost).Err(err).Msg("Relay request failed.")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":            "Proxy request failed",
			"message":          fe.Error(),
			"proxiesAvailable": fe.ProxiesAvailable,
			"proxiesAttempted": fe.ProxiesAttempted,
			"totalProxies":     fe.TotalProxies,
			"suggestion":       fe.Suggestion,
		})
		return
	}

	ev.Success = true
	ev.Method = res.Method
	ev.Proxy = res.Proxy
	ev.Attempts = len(res.Attempts)
	h.broadcast(ev)

	proxyIP := res.Proxy
	if res.Method == relay.MethodDirect {
		proxyIP = relay.MethodDirect
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.Header().Set("X-Proxied-From", h.cfg.CountryLabel)
	w.Header().Set("X-Proxy-IP", proxyIP)
	w.Header().Set("X-Proxy-Status", "Success")
	w.Header().Set("X-Proxy-Method", res.Method)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(res.Body); err != nil {
		l.Debug().Str("request_id", requestID).Err(err).Msg("Client went away while writing body.")
	}
}

func (h *Handler) broadcast(ev *RelayEvent) {
	if h.hub != nil {
		h.hub.BroadcastRelayResult(ev)
	}
}

// HandleRoot serves the health document on "/" and a JSON 404 elsewhere.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.HandleNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "online",
		"service": h.cfg.ServiceName,
		"version": types.Version,
		"endpoints": map[string]string{
			"fetch":   "/fetch?url=TARGET_URL",
			"status":  "/status",
			"metrics": "/metrics",
			"ws":      "/ws",
		},
		"usage":   "Proxy any URL through a " + h.cfg.CountryLabel + " IP: /fetch?url=https://example.com",
		"proxies": h.pool.Size(),
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// HandleStatus 处理 GET /status，refresh=true 时强制刷新代理池。
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if force, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); force {
		if err := h.pool.ForceRefresh(context.WithoutCancel(r.Context())); err != nil {
			l := logger.WithComponent("Web/Handler")
			l.Warn().Err(err).Msg("Forced refresh left the pool empty.")
		}
	} else {
		h.pool.GetPool(r.Context())
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proxies": h.pool.Stats(),
		"server": map[string]interface{}{
			"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]uint64{
				"heapAlloc": mem.HeapAlloc,
				"sys":       mem.Sys,
			},
			"goVersion": runtime.Version(),
		},
	})
}

func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":              "Endpoint not found",
		"availableEndpoints": availableEndpoints,
		"yourRequest":        fmt.Sprintf("%s %s", r.Method, r.URL.Path),
	})
}

func targetHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
