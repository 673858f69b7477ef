package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georelay/proxypool/model"
)

func TestForEndpoint_HTTPConfiguresProxyURL(t *testing.T) {
	tr, err := ForEndpoint(model.MustParseEndpoint("127.0.0.1:9000"), time.Second)
	require.NoError(t, err)
	require.NotNil(t, tr.Proxy)
	assert.True(t, tr.DisableKeepAlives)
	if tr.TLSClientConfig != nil {
		assert.False(t, tr.TLSClientConfig.InsecureSkipVerify, "target certificates must be verified through proxies")
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	proxyURL, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "http", proxyURL.Scheme)
	assert.Equal(t, "127.0.0.1:9000", proxyURL.Host)
}

func TestForEndpoint_SOCKS5UsesDialer(t *testing.T) {
	tr, err := ForEndpoint(model.MustParseEndpoint("socks5://127.0.0.1:1080"), time.Second)
	require.NoError(t, err)
	assert.Nil(t, tr.Proxy, "socks proxies dial directly instead of using the Proxy hook")
	assert.NotNil(t, tr.DialContext)
}

func TestForEndpoint_UnknownProtocol(t *testing.T) {
	_, err := ForEndpoint(model.Endpoint{Host: "1.1.1.1", Port: 80, Protocol: "socks4"}, time.Second)
	require.Error(t, err)
}

func TestDirect_IgnoresEnvironmentProxy(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://10.0.0.1:3128")
	assert.Nil(t, Direct(time.Second).Proxy)
}

func TestForEndpoint_VerifiesTargetCertificates(t *testing.T) {
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer target.Close()

	// Proxy hook cleared: the request reaches the self-signed target with this transport's TLS settings.
	tr, err := ForEndpoint(model.MustParseEndpoint("127.0.0.1:9"), time.Second)
	require.NoError(t, err)
	tr.Proxy = nil

	client := &http.Client{Transport: tr, Timeout: 2 * time.Second}
	_, err = client.Get(target.URL)
	require.Error(t, err, "self-signed target must be rejected")
}
