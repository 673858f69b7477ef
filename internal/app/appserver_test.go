package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georelay/internal/shared/types"
	"georelay/proxypool/scraper"
)

func testConfig() *types.Config {
	cfg := types.NewDefaultConfig()
	cfg.ServerConf.Host = "127.0.0.1"
	cfg.ServerConf.Port = 0
	cfg.ProxyPoolConf.Seeds = []string{"10.255.0.1:3128"}
	cfg.ProxyPoolConf.SeedFile = ""
	cfg.ProxyPoolConf.SourcesFile = ""
	cfg.ProxyPoolConf.ValidateOnRefresh = false
	return cfg
}

func TestAppServer_EndToEnd(t *testing.T) {
	list := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "10.255.0.2:8080\n10.255.0.3:8080\n")
	}))
	defer list.Close()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "reachable")
	}))
	defer target.Close()

	s, err := New(testConfig(), []scraper.Source{{Name: "local", URL: list.URL, Format: scraper.FormatLines}})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	base := "http://" + s.Addr()

	// initial scheduled refresh merges the source with the seed
	require.Eventually(t, func() bool { return s.proxyPoolManager.Size() == 3 }, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/fetch?url=" + target.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reachable", string(body))
	assert.Equal(t, "direct", resp.Header.Get("X-Proxy-IP"))

	resp, err = http.Get(base + "/status")
	require.NoError(t, err)
	var status struct {
		Proxies struct {
			Count  int      `json:"count"`
			Sample []string `json:"sample"`
		} `json:"proxies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, 3, status.Proxies.Count)
	assert.Equal(t, []string{"10.255.0.2:8080", "10.255.0.3:8080", "10.255.0.1:3128"}, status.Proxies.Sample)
}

func TestAppServer_BindFailure(t *testing.T) {
	first, err := New(testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	cfg := testConfig()
	addr, err := net.ResolveTCPAddr("tcp", first.Addr())
	require.NoError(t, err)
	cfg.ServerConf.Port = addr.Port

	second, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, second.Start(context.Background()))
}

func TestNew_RejectsUnknownSourceFormat(t *testing.T) {
	_, err := New(testConfig(), []scraper.Source{{Name: "bad", URL: "http://127.0.0.1:1/", Format: "xml"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}
