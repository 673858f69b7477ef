package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"georelay/internal/shared/types"
	"georelay/proxypool/scraper"
)

// LoadIni 加载 relay.ini 行为配置文件，然后用环境变量覆盖。
// 文件不存在时保留 cfg 中已有的默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	if fileName != "" {
		iniFile, err := ini.Load(fileName)
		switch {
		case err == nil:
			if err := iniFile.MapTo(cfg); err != nil {
				return fmt.Errorf("failed to map %s: %w", fileName, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployments ship without an ini file
		default:
			return err
		}
	}
	applyEnvOverrides(cfg)
	return nil
}

// LoadDotEnv reads KEY=VALUE pairs from fileName into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(fileName string) error {
	if err := godotenv.Load(fileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", fileName, err)
	}
	return nil
}

func applyEnvOverrides(cfg *types.Config) {
	overrideFromEnvInt(&cfg.ServerConf.Port, "PORT")
	overrideFromEnvString(&cfg.ServerConf.CORSOrigin, "CORS_ORIGIN")
	overrideFromEnvString(&cfg.LogConf.Level, "LOG_LEVEL")
	overrideFromEnvInt(&cfg.ProxyPoolConf.RefreshIntervalSeconds, "PROXY_REFRESH_INTERVAL")
	overrideFromEnvInt(&cfg.ProxyPoolConf.SourceTimeoutSeconds, "PROXY_SOURCE_TIMEOUT")
	overrideFromEnvInt(&cfg.ProxyPoolConf.MinPoolSize, "PROXY_MIN_POOL_SIZE")
	overrideFromEnvList(&cfg.ProxyPoolConf.Seeds, "PROXY_SEEDS")
	overrideFromEnvInt(&cfg.RelayConf.MaxAttempts, "PROXY_MAX_ATTEMPTS")
	overrideFromEnvInt(&cfg.RelayConf.AttemptTimeoutSeconds, "PROXY_ATTEMPT_TIMEOUT")
}

// LoadSources 加载 sources.json 代理源列表。
// 文件不存在时返回内置的默认来源。
func LoadSources(fileName string) ([]scraper.Source, error) {
	if fileName == "" {
		return scraper.DefaultSources(), nil
	}
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return scraper.DefaultSources(), nil
		}
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sources []scraper.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources.json: %w", err)
	}
	for i, src := range sources {
		if strings.TrimSpace(src.URL) == "" {
			return nil, fmt.Errorf("source #%d (%s) has no url", i, src.Name)
		}
		if src.Name == "" {
			sources[i].Name = src.URL
		}
	}
	return sources, nil
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := strings.TrimSpace(os.Getenv(envName)); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvList(target *[]string, envName string) {
	envValue := os.Getenv(envName)
	if strings.TrimSpace(envValue) == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(envValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*target = items
}
