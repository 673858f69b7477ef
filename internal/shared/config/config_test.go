package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georelay/internal/shared/types"
	"georelay/proxypool/scraper"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadIni_FileAndDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "relay.ini", `
[server]
port = 8080
country_label = IN

[proxypool]
min_pool_size = 3
seeds = 1.2.3.4:80, 5.6.7.8:3128

[relay]
max_attempts = 7
direct_first = false
`)
	cfg := types.NewDefaultConfig()
	require.NoError(t, LoadIni(cfg, p))

	assert.Equal(t, 8080, cfg.ServerConf.Port)
	assert.Equal(t, "IN", cfg.ServerConf.CountryLabel)
	assert.Equal(t, "*", cfg.ServerConf.CORSOrigin, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.ProxyPoolConf.MinPoolSize)
	assert.Equal(t, 20, cfg.ProxyPoolConf.MaxPoolSize)
	assert.Equal(t, []string{"1.2.3.4:80", "5.6.7.8:3128"}, cfg.ProxyPoolConf.Seeds)
	assert.Equal(t, 7, cfg.RelayConf.MaxAttempts)
	assert.False(t, cfg.RelayConf.DirectFirst)
	assert.Equal(t, 15, cfg.RelayConf.AttemptTimeoutSeconds)
}

func TestLoadIni_MissingFileKeepsDefaults(t *testing.T) {
	cfg := types.NewDefaultConfig()
	require.NoError(t, LoadIni(cfg, filepath.Join(t.TempDir(), "absent.ini")))
	defaults := types.NewDefaultConfig()
	assert.Equal(t, defaults.ServerConf.CountryLabel, cfg.ServerConf.CountryLabel)
	assert.Equal(t, defaults.ProxyPoolConf.MaxPoolSize, cfg.ProxyPoolConf.MaxPoolSize)
	assert.Equal(t, defaults.RelayConf, cfg.RelayConf)
}

func TestLoadIni_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PROXY_MAX_ATTEMPTS", "2")
	t.Setenv("PROXY_REFRESH_INTERVAL", "not-a-number")
	t.Setenv("PROXY_SEEDS", " 9.9.9.9:80 ,, 8.8.8.8:8080 ")

	cfg := types.NewDefaultConfig()
	require.NoError(t, LoadIni(cfg, ""))

	assert.Equal(t, 9999, cfg.ServerConf.Port)
	assert.Equal(t, "debug", cfg.LogConf.Level)
	assert.Equal(t, 2, cfg.RelayConf.MaxAttempts)
	assert.Equal(t, 300, cfg.ProxyPoolConf.RefreshIntervalSeconds, "unparsable values are ignored")
	assert.Equal(t, []string{"9.9.9.9:80", "8.8.8.8:8080"}, cfg.ProxyPoolConf.Seeds)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "GEORELAY_TEST_A=from-file\nGEORELAY_TEST_B=from-file\n")
	t.Setenv("GEORELAY_TEST_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("GEORELAY_TEST_A") })

	require.NoError(t, LoadDotEnv(p))
	assert.Equal(t, "from-file", os.Getenv("GEORELAY_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("GEORELAY_TEST_B"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()

	sources, err := LoadSources("")
	require.NoError(t, err)
	assert.Equal(t, scraper.DefaultSources(), sources)

	sources, err = LoadSources(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, scraper.DefaultSources(), sources)

	p := writeFile(t, dir, "sources.json", `[
		{"name": "a", "url": "http://a.example/list", "format": "json"},
		{"url": "http://b.example/table", "format": "html", "protocol": "socks5"}
	]`)
	sources, err = LoadSources(p)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, scraper.FormatJSONList, sources[0].Format)
	assert.Equal(t, "http://b.example/table", sources[1].Name)
	assert.Equal(t, "socks5", sources[1].Protocol)

	bad := writeFile(t, dir, "bad.json", `[{"name": "nourl"}]`)
	_, err = LoadSources(bad)
	assert.Error(t, err)

	broken := writeFile(t, dir, "broken.json", `{`)
	_, err = LoadSources(broken)
	assert.Error(t, err)
}
