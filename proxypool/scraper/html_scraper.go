package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"georelay/internal/shared/logger"
	"georelay/proxypool/model"
)

// htmlTableScraper 抓取以 HTML 表格形式发布代理的网站。
type htmlTableScraper struct {
	src     Source
	timeout time.Duration
}

func newHTMLTableScraper(src Source, timeout time.Duration) *htmlTableScraper {
	return &htmlTableScraper{src: src, timeout: timeout}
}

func (s *htmlTableScraper) Name() string {
	return s.src.Name
}

// Scrape uses a fresh collector per run so colly's visited-URL tracking never
// suppresses the next refresh.
func (s *htmlTableScraper) Scrape(ctx context.Context) ([]model.Endpoint, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Debug().Str("source", s.Name()).Msg("Starting scrape...")

	if err := ctx.Err(); err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: err}
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	c := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
		colly.AllowURLRevisit(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	var (
		raws      []string
		scrapeErr error
		mu        sync.Mutex
	)

	c.OnHTML("table tr", func(e *colly.HTMLElement) {
		if addr := rowAddress(e.DOM); addr != "" {
			mu.Lock()
			raws = append(raws, addr)
			mu.Unlock()
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		l.Warn().Err(err).Int("status_code", r.StatusCode).Str("source", s.Name()).Msg("Scrape request failed.")
		mu.Lock()
		scrapeErr = err
		mu.Unlock()
	})

	if err := c.Visit(s.src.URL); err != nil && scrapeErr == nil {
		scrapeErr = err
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: scrapeErr}
	}

	proxies := toEndpoints(raws, s.src, l)
	l.Info().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}
