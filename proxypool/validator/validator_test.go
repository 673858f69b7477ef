package validator

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georelay/proxypool/model"
)

// endpointFor turns an httptest server into a pool endpoint.
func endpointFor(t *testing.T, srv *httptest.Server) model.Endpoint {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return model.Endpoint{Host: host, Port: p, Protocol: model.ProtocolHTTP}
}

func TestValidate_KeepsPassingProxiesInOrder(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer good.Close()
	good2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good2.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	v := NewValidator(2*time.Second, 2, "http://probe.invalid/generate_204")
	input := []model.Endpoint{endpointFor(t, good2), endpointFor(t, bad), endpointFor(t, good)}

	got := v.Validate(context.Background(), input)
	require.Len(t, got, 2)
	assert.Equal(t, input[0].ID(), got[0].ID())
	assert.Equal(t, input[2].ID(), got[1].ID())
}

func TestValidate_UnreachableProxyFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	ep := endpointFor(t, srv)
	srv.Close()

	v := NewValidator(500*time.Millisecond, 1, "")
	assert.Empty(t, v.Validate(context.Background(), []model.Endpoint{ep}))
}

func TestProbeHostPort(t *testing.T) {
	hp, err := probeHostPort("https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "example.com:443", hp)

	hp, err = probeHostPort("http://example.com:8080/")
	require.NoError(t, err)
	assert.Equal(t, "example.com:8080", hp)
}
