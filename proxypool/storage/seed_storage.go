package storage

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"georelay/internal/shared/logger"
	"georelay/proxypool/model"
)

// SeedStorage 从纯文本文件加载静态种子代理列表 (每行一个 "host:port")。
// 种子列表是远程来源全部失败时的兜底，只读，不做持久化。
type SeedStorage struct {
	filePath string
	inline   []string
	mu       sync.RWMutex
}

// NewSeedStorage creates a store for filePath. inline entries (from config)
// are loaded ahead of the file's entries. An empty filePath means inline only.
func NewSeedStorage(filePath string, inline []string) *SeedStorage {
	return &SeedStorage{
		filePath: filePath,
		inline:   inline,
	}
}

// Load returns the deduplicated seed list. A missing file is not an error.
func (fs *SeedStorage) Load() ([]model.Endpoint, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("ProxyPool/Storage")

	seeds := make([]model.Endpoint, 0, len(fs.inline))
	for _, raw := range fs.inline {
		ep, err := model.ParseEndpoint(raw)
		if err != nil {
			l.Warn().Err(err).Str("seed", raw).Msg("Skipping malformed inline seed.")
			continue
		}
		ep.Source = model.SourceSeed
		seeds = append(seeds, ep)
	}

	if fs.filePath == "" {
		return model.Dedup(seeds), nil
	}

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Str("path", fs.filePath).Msg("Seed file not found, using inline seeds only.")
			return model.Dedup(seeds), nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ep, err := model.ParseEndpoint(line)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("Skipping malformed line in seed file.")
			continue
		}
		ep.Source = model.SourceSeed
		seeds = append(seeds, ep)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	seeds = model.Dedup(seeds)
	l.Info().Int("count", len(seeds)).Str("path", fs.filePath).Msg("Loaded seed proxies.")
	return seeds, nil
}
