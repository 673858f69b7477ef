package manager

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"georelay/internal/shared/logger"
	"georelay/internal/shared/metrics"
	"georelay/internal/shared/types"
	"georelay/proxypool/model"
	"georelay/proxypool/scraper"
)

// ErrNoProxiesAvailable is returned by a refresh that ends with an empty pool:
// every source failed, there was no previous pool and no seed list.
var ErrNoProxiesAvailable = errors.New("no proxies available")

const sampleSize = 3

// Options 控制代理池的刷新策略。
type Options struct {
	RefreshInterval time.Duration // 缓存的代理池超过该时长即视为过期
	SourceTimeout   time.Duration // 单个来源的抓取超时
	MinRefreshGap   time.Duration // 两次惰性刷新之间的最小间隔
	MinPoolSize     int           // 低于该数量即触发刷新
	MaxPoolSize     int           // 远程来源最多保留的代理数，0 表示不限制
	RetainSeeds     bool          // 刷新结果中始终保留种子列表
}

// OptionsFromConfig converts the ini section into Options.
func OptionsFromConfig(c types.ProxyPoolConf) Options {
	return Options{
		RefreshInterval: time.Duration(c.RefreshIntervalSeconds) * time.Second,
		SourceTimeout:   time.Duration(c.SourceTimeoutSeconds) * time.Second,
		MinRefreshGap:   time.Duration(c.MinRefreshGapSeconds) * time.Second,
		MinPoolSize:     c.MinPoolSize,
		MaxPoolSize:     c.MaxPoolSize,
		RetainSeeds:     c.RetainSeeds,
	}
}

// Validator filters freshly scraped endpoints before they enter the pool.
type Validator interface {
	Validate(ctx context.Context, proxies []model.Endpoint) []model.Endpoint
}

// SourceStatus is the outcome of the latest scrape of one source.
type SourceStatus struct {
	Name        string    `json:"name"`
	LastCount   int       `json:"lastCount"`
	LastError   string    `json:"lastError,omitempty"`
	LastFetched time.Time `json:"lastFetched"`
}

// PoolStats is a point-in-time view of the pool for status reporting.
type PoolStats struct {
	Count       int            `json:"count"`
	Sample      []string       `json:"sample"`
	LastRefresh time.Time      `json:"lastFetch"`
	LastAttempt time.Time      `json:"lastAttempt"`
	Generation  uint64         `json:"generation"`
	Sources     []SourceStatus `json:"sources"`
}

// Manager 是代理池模块的总控制器。
// 代理池是一个有序切片，刷新时整体替换，失败的代理可被单独移除。
type Manager struct {
	opts      Options
	scrapers  []scraper.Scraper
	validator Validator
	seeds     []model.Endpoint

	mu          sync.RWMutex
	pool        []model.Endpoint
	lastRefresh time.Time
	lastAttempt time.Time
	generation  uint64
	sources     map[string]SourceStatus

	listenersMu sync.Mutex
	listeners   []func(PoolStats)

	now func() time.Time

	// 调度器与生命周期管理
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager whose pool starts out as the seed list.
// v may be nil to skip validation.
func NewManager(opts Options, seeds []model.Endpoint, v Validator) *Manager {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 5 * time.Second
	}
	seeds = model.Dedup(seeds)
	m := &Manager{
		opts:      opts,
		validator: v,
		seeds:     seeds,
		pool:      slices.Clone(seeds),
		sources:   make(map[string]SourceStatus),
		now:       time.Now,
	}
	metrics.PoolSize.Set(float64(len(m.pool)))
	return m
}

// AddScraper 添加一个抓取器到管理器。
func (m *Manager) AddScraper(s scraper.Scraper) {
	m.scrapers = append(m.scrapers, s)
}

// OnRefresh registers fn to be called with the pool stats after every refresh run.
func (m *Manager) OnRefresh(fn func(PoolStats)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// GetPool returns a copy of the current pool, refreshing first when it is
// stale or below the minimum size. A failed refresh still returns whatever pool is left.
// The refresh is detached from ctx cancellation: a caller that disconnects must
// not abort the scrape for everyone else or burn the refresh gap.
func (m *Manager) GetPool(ctx context.Context) []model.Endpoint {
	if err := m.Refresh(context.WithoutCancel(ctx)); err != nil {
		l := logger.WithComponent("ProxyPool/Manager")
		l.Warn().Err(err).Msg("Lazy refresh left the pool empty.")
	}
	return m.Snapshot()
}

// Refresh runs a refresh only when the pool needs one. Within the refresh
// interval, and within MinRefreshGap of the last attempt, it makes no remote calls.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.needsRefresh() {
		return nil
	}
	return m.refresh(ctx)
}

// ForceRefresh re-queries every source regardless of the pool's age.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	return m.refresh(ctx)
}

func (m *Manager) needsRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	stale := m.lastRefresh.IsZero() ||
		now.Sub(m.lastRefresh) > m.opts.RefreshInterval ||
		len(m.pool) < m.opts.MinPoolSize
	if !stale {
		return false
	}
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < m.opts.MinRefreshGap {
		return false
	}
	return true
}

// refresh 执行一个完整的 "并行抓取 -> 去重 -> (可选) 验证 -> 替换" 周期。
func (m *Manager) refresh(ctx context.Context) error {
	l := logger.WithComponent("ProxyPool/Manager")

	m.mu.Lock()
	m.lastAttempt = m.now()
	m.mu.Unlock()

	l.Info().Int("sources", len(m.scrapers)).Msg("Refreshing proxy pool...")

	results := make([][]model.Endpoint, len(m.scrapers))
	statuses := make([]SourceStatus, len(m.scrapers))

	var g errgroup.Group
	for i, s := range m.scrapers {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, m.opts.SourceTimeout)
			defer cancel()

			proxies, err := s.Scrape(sctx)
			status := SourceStatus{Name: s.Name(), LastCount: len(proxies), LastFetched: m.now()}
			if err != nil {
				var sfe *scraper.SourceFetchError
				if !errors.As(err, &sfe) {
					err = &scraper.SourceFetchError{Source: s.Name(), Err: err}
				}
				l.Warn().Err(err).Str("source", s.Name()).Msg("Source failed, skipping.")
				metrics.SourceFailures.WithLabelValues(s.Name()).Inc()
				status.LastError = err.Error()
				status.LastCount = 0
				proxies = nil
			}
			results[i] = proxies
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	remote := model.Dedup(results...)
	if m.opts.MaxPoolSize > 0 && len(remote) > m.opts.MaxPoolSize {
		remote = remote[:m.opts.MaxPoolSize]
	}
	if m.validator != nil && len(remote) > 0 {
		remote = m.validator.Validate(ctx, remote)
	}

	m.mu.Lock()
	for _, st := range statuses {
		m.sources[st.Name] = st
	}

	var result string
	switch {
	case len(remote) > 0:
		if m.opts.RetainSeeds {
			m.pool = model.Dedup(remote, m.seeds)
		} else {
			m.pool = remote
		}
		m.lastRefresh = m.now()
		m.generation++
		result = "replaced"
	case len(m.pool) > 0:
		// 所有来源均失败: 保留旧的代理池 (并补回种子)
		m.pool = model.Dedup(m.pool, m.seeds)
		result = "retained"
	default:
		m.pool = slices.Clone(m.seeds)
		result = "seeded"
	}
	size := len(m.pool)
	generation := m.generation
	m.mu.Unlock()

	if size == 0 {
		result = "empty"
	}
	metrics.PoolSize.Set(float64(size))
	metrics.PoolRefreshes.WithLabelValues(result).Inc()

	l.Info().
		Str("result", result).
		Int("remote", len(remote)).
		Int("pool_size", size).
		Int("generation", int(generation)).
		Msg("Proxy pool refresh finished.")

	m.notify()

	if size == 0 {
		return ErrNoProxiesAvailable
	}
	return nil
}

func (m *Manager) notify() {
	m.listenersMu.Lock()
	listeners := slices.Clone(m.listeners)
	m.listenersMu.Unlock()
	if len(listeners) == 0 {
		return
	}
	stats := m.Stats()
	for _, fn := range listeners {
		fn(stats)
	}
}

// Penalize removes ep from the live pool. It reports whether ep was present.
// Snapshots handed out earlier are unaffected.
func (m *Manager) Penalize(ep model.Endpoint) bool {
	id := ep.ID()

	m.mu.Lock()
	idx := slices.IndexFunc(m.pool, func(p model.Endpoint) bool { return p.ID() == id })
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.pool = slices.Delete(m.pool, idx, idx+1)
	size := len(m.pool)
	m.mu.Unlock()

	metrics.Penalized.Inc()
	metrics.PoolSize.Set(float64(size))
	l := logger.WithComponent("ProxyPool/Manager")
	l.Debug().Str("proxy_id", id).Int("pool_size", size).Msg("Proxy evicted from pool.")
	return true
}

// Snapshot returns a copy of the pool without triggering a refresh.
func (m *Manager) Snapshot() []model.Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.pool)
}

// Size returns the current pool size.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pool)
}

// Stats returns a point-in-time view of the pool.
func (m *Manager) Stats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sample := make([]string, 0, sampleSize)
	for i := 0; i < len(m.pool) && i < sampleSize; i++ {
		sample = append(sample, m.pool[i].ID())
	}
	sources := make([]SourceStatus, 0, len(m.scrapers))
	for _, s := range m.scrapers {
		if st, ok := m.sources[s.Name()]; ok {
			sources = append(sources, st)
		} else {
			sources = append(sources, SourceStatus{Name: s.Name()})
		}
	}
	return PoolStats{
		Count:       len(m.pool),
		Sample:      sample,
		LastRefresh: m.lastRefresh,
		LastAttempt: m.lastAttempt,
		Generation:  m.generation,
		Sources:     sources,
	}
}

// Start 启动后台刷新循环：立即刷新一次，之后按固定间隔刷新。
func (m *Manager) Start(ctx context.Context) {
	l := logger.WithComponent("ProxyPool/Manager")
	ctx, m.cancel = context.WithCancel(ctx)

	l.Info().
		Dur("refresh_interval", m.opts.RefreshInterval).
		Dur("source_timeout", m.opts.SourceTimeout).
		Int("seeds", len(m.seeds)).
		Msg("Manager starting...")

	m.wg.Add(1)
	go m.schedulerLoop(ctx)
}

// schedulerLoop 是后台调度循环，监听 Ticker 和停止信号。
func (m *Manager) schedulerLoop(ctx context.Context) {
	defer m.wg.Done()
	l := logger.WithComponent("ProxyPool/Manager")

	if err := m.ForceRefresh(ctx); err != nil {
		l.Warn().Err(err).Msg("Initial refresh produced an empty pool.")
	}

	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Debug().Msg("Refresh ticker triggered.")
			if err := m.ForceRefresh(ctx); err != nil {
				l.Warn().Err(err).Msg("Scheduled refresh produced an empty pool.")
			}
		case <-ctx.Done():
			l.Info().Msg("Stop signal received. Shutting down scheduler.")
			return
		}
	}
}

// Stop 停止后台刷新循环并等待其退出。
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
	})
	m.wg.Wait()
	logger.Info().Msg("ProxyPool Manager gracefully stopped.")
}
