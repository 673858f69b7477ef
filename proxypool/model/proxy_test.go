package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		id       string
		protocol string
	}{
		{"1.2.3.4:8080", "1.2.3.4:8080", ProtocolHTTP},
		{"  1.2.3.4:8080\r", "1.2.3.4:8080", ProtocolHTTP},
		{"1.2.3.4:3128 IN elite", "1.2.3.4:3128", ProtocolHTTP},
		{"http://proxy.example.com:80", "proxy.example.com:80", ProtocolHTTP},
		{"SOCKS5://10.0.0.1:1080/", "10.0.0.1:1080", ProtocolSOCKS5},
		{"Proxy.Example.COM:443", "proxy.example.com:443", ProtocolHTTP},
		{"[2001:db8::1]:8080", "[2001:db8::1]:8080", ProtocolHTTP},
	}

	for _, tc := range cases {
		ep, err := ParseEndpoint(tc.raw)
		require.NoError(t, err, "ParseEndpoint(%q)", tc.raw)
		assert.Equal(t, tc.id, ep.ID(), "ParseEndpoint(%q)", tc.raw)
		assert.Equal(t, tc.protocol, ep.Protocol, "ParseEndpoint(%q)", tc.raw)
	}
}

func TestParseEndpoint_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"1.2.3.4",
		":8080",
		"1.2.3.4:0",
		"1.2.3.4:65536",
		"1.2.3.4:http",
		"ftp://1.2.3.4:21",
	} {
		_, err := ParseEndpoint(raw)
		require.Error(t, err, "ParseEndpoint(%q) should fail", raw)
		assert.True(t, errors.Is(err, ErrInvalidEndpoint), "ParseEndpoint(%q) error should wrap ErrInvalidEndpoint", raw)
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://1.2.3.4:8080", MustParseEndpoint("1.2.3.4:8080").URL().String())
	assert.Equal(t, "socks5://1.2.3.4:1080", MustParseEndpoint("socks5://1.2.3.4:1080").URL().String())
}

func TestDedup_KeepsFirstOccurrenceOrder(t *testing.T) {
	a := []Endpoint{MustParseEndpoint("1.1.1.1:80"), MustParseEndpoint("2.2.2.2:80")}
	b := []Endpoint{MustParseEndpoint("socks5://2.2.2.2:80"), MustParseEndpoint("3.3.3.3:80"), MustParseEndpoint("1.1.1.1:80")}

	got := Dedup(a, b)
	require.Len(t, got, 3)
	assert.Equal(t, "1.1.1.1:80", got[0].ID())
	assert.Equal(t, "2.2.2.2:80", got[1].ID())
	assert.Equal(t, ProtocolHTTP, got[1].Protocol, "first occurrence wins")
	assert.Equal(t, "3.3.3.3:80", got[2].ID())
}
