package types

// ServerConf 包含对外 HTTP 服务的配置
type ServerConf struct {
	Host         string `ini:"host"`
	Port         int    `ini:"port"`
	CORSOrigin   string `ini:"cors_origin"`
	CountryLabel string `ini:"country_label"` // 写入 X-Proxied-From 响应头
	ServiceName  string `ini:"service_name"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// ProxyPoolConf 控制代理池的刷新策略与来源。
type ProxyPoolConf struct {
	RefreshIntervalSeconds int      `ini:"refresh_interval_seconds"`
	SourceTimeoutSeconds   int      `ini:"source_timeout_seconds"`
	MinRefreshGapSeconds   int      `ini:"min_refresh_gap_seconds"`
	MinPoolSize            int      `ini:"min_pool_size"`
	MaxPoolSize            int      `ini:"max_pool_size"` // 0 表示不限制
	RetainSeeds            bool     `ini:"retain_seeds"`
	Seeds                  []string `ini:"seeds" delim:","`
	SeedFile               string   `ini:"seed_file"`
	SourcesFile            string   `ini:"sources_file"`

	ValidateOnRefresh        bool   `ini:"validate_on_refresh"`
	ValidationTimeoutSeconds int    `ini:"validation_timeout_seconds"`
	ValidationConcurrency    int    `ini:"validation_concurrency"`
	ProbeURL                 string `ini:"probe_url"`
}

// RelayConf 控制单次转发请求的尝试序列。
type RelayConf struct {
	DirectFirst           bool   `ini:"direct_first"`
	DirectTimeoutSeconds  int    `ini:"direct_timeout_seconds"`
	AttemptTimeoutSeconds int    `ini:"attempt_timeout_seconds"`
	MaxAttempts           int    `ini:"max_attempts"`
	PenalizeFailed        bool   `ini:"penalize_failed"`
	UserAgent             string `ini:"user_agent"`
	MaxBodyBytes          int64  `ini:"max_body_bytes"`
}

// Config 是 relay 项目的统一配置结构体
type Config struct {
	ServerConf    `ini:"server"`
	LogConf       `ini:"log"`
	ProxyPoolConf `ini:"proxypool"`
	RelayConf     `ini:"relay"`
}

// NewDefaultConfig returns a Config populated with the built-in defaults.
// Values read from the ini file and the environment are layered on top.
func NewDefaultConfig() *Config {
	return &Config{
		ServerConf: ServerConf{
			Host:         "0.0.0.0",
			Port:         10000,
			CORSOrigin:   "*",
			CountryLabel: "India",
			ServiceName:  "Indian IP Proxy Relay",
		},
		LogConf: LogConf{
			Level: "info",
		},
		ProxyPoolConf: ProxyPoolConf{
			RefreshIntervalSeconds:   300,
			SourceTimeoutSeconds:     5,
			MinRefreshGapSeconds:     30,
			MinPoolSize:              5,
			MaxPoolSize:              20,
			RetainSeeds:              true,
			ValidateOnRefresh:        false,
			ValidationTimeoutSeconds: 8,
			ValidationConcurrency:    10,
			ProbeURL:                 "http://www.gstatic.com/generate_204",
		},
		RelayConf: RelayConf{
			DirectFirst:           true,
			DirectTimeoutSeconds:  10,
			AttemptTimeoutSeconds: 15,
			MaxAttempts:           5,
			PenalizeFailed:        true,
			UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			MaxBodyBytes:          32 << 20,
		},
	}
}
