package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"georelay/internal/shared/logger"
	"georelay/proxypool/model"
)

// maxSourceBytes caps how much of a proxy list is read.
const maxSourceBytes = 4 << 20

// httpScraper fetches plain-text and JSON proxy lists.
type httpScraper struct {
	src    Source
	client *http.Client
}

func newHTTPScraper(src Source, timeout time.Duration) *httpScraper {
	return &httpScraper{
		src: src,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *httpScraper) Name() string {
	return s.src.Name
}

func (s *httpScraper) Scrape(ctx context.Context) ([]model.Endpoint, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Debug().Str("source", s.Name()).Str("format", string(s.src.Format)).Msg("Starting scrape...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.src.URL, nil)
	if err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: fmt.Errorf("failed to fetch list: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceFetchError{Source: s.Name(), Err: fmt.Errorf("received non-200 status code (%d)", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, &SourceFetchError{Source: s.Name(), Err: fmt.Errorf("failed to read body: %w", err)}
	}

	var raws []string
	switch s.src.Format {
	case FormatJSONList:
		raws = ParseJSONList(body)
	default:
		raws = ParseLines(body)
	}

	proxies := toEndpoints(raws, s.src, l)
	l.Info().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}
