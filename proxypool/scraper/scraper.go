package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"georelay/proxypool/model"
)

// Format 标识代理源返回内容的格式，每种格式对应一个专用解析器。
type Format string

const (
	// FormatLines is newline-delimited "host:port" text.
	FormatLines Format = "lines"
	// FormatJSONList is a JSON array of {ip, port} objects or "host:port" strings,
	// either at the top level or under a data/proxies/list key.
	FormatJSONList Format = "json"
	// FormatHTMLTable is an HTML page whose table rows carry ip and port in the first two cells.
	FormatHTMLTable Format = "html"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Source 描述一个远程代理列表来源，可从 sources.json 加载。
type Source struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Format   Format `json:"format"`
	Protocol string `json:"protocol,omitempty"` // 该来源代理的协议提示: "http" (默认) 或 "socks5"
}

// Scraper 接口定义了从代理源抓取代理信息的行为。
type Scraper interface {
	// Scrape 执行抓取操作，并返回解析后的代理列表。
	// 实现者只负责抓取和初步解析，不进行验证。
	Scrape(ctx context.Context) ([]model.Endpoint, error)

	// Name 返回抓取器的名称，用于日志记录。
	Name() string
}

// SourceFetchError reports that a single source could not be fetched or parsed.
// The manager logs and skips it; it never fails a whole refresh.
type SourceFetchError struct {
	Source string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// DefaultSources are used when no sources file is configured.
func DefaultSources() []Source {
	return []Source{
		{
			Name:     "proxyscrape",
			URL:      "https://api.proxyscrape.com/v2/?request=get&protocol=http&timeout=10000&country=IN&ssl=all",
			Format:   FormatLines,
			Protocol: model.ProtocolHTTP,
		},
		{
			Name:     "proxy-list.download",
			URL:      "https://www.proxy-list.download/api/v1/get?type=http&anon=elite&country=IN",
			Format:   FormatLines,
			Protocol: model.ProtocolHTTP,
		},
	}
}

// New builds the scraper matching src.Format. timeout bounds a single scrape.
func New(src Source, timeout time.Duration) (Scraper, error) {
	if strings.TrimSpace(src.URL) == "" {
		return nil, fmt.Errorf("source %q has no url", src.Name)
	}
	if src.Name == "" {
		src.Name = src.URL
	}
	switch Format(strings.ToLower(string(src.Format))) {
	case "", FormatLines:
		src.Format = FormatLines
		return newHTTPScraper(src, timeout), nil
	case FormatJSONList:
		src.Format = FormatJSONList
		return newHTTPScraper(src, timeout), nil
	case FormatHTMLTable:
		src.Format = FormatHTMLTable
		return newHTMLTableScraper(src, timeout), nil
	default:
		return nil, fmt.Errorf("source %q has unknown format %q", src.Name, src.Format)
	}
}
