package proxy

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHostHTTP1(t *testing.T) {
	r := &http.Request{
		ProtoMajor: 1,
		Host:       "example.com:8080",
		URL:        &url.URL{},
	}
	shp, domain, err := ResolveHost(r, "http")
	require.Nil(t, err)
	assert.Equal(t, "example.com", shp.Host)
	assert.Equal(t, 8080, shp.Port)
	assert.Equal(t, "http", shp.Scheme)
	assert.Equal(t, RequestDomain("example.com"), domain)
}

func TestResolveHostHTTP1NoPort(t *testing.T) {
	r := &http.Request{
		ProtoMajor: 1,
		Host:       "example.com",
		URL:        &url.URL{Scheme: "https"},
	}
	shp, domain, err := ResolveHost(r, "http")
	require.Nil(t, err)
	assert.Equal(t, "example.com", shp.Host)
	assert.Equal(t, 0, shp.Port)
	assert.Equal(t, "https", shp.Scheme)
	assert.Equal(t, RequestDomain("example.com"), domain)
}

func TestResolveHostHTTP1EmptyHost(t *testing.T) {
	r := &http.Request{ProtoMajor: 1, URL: &url.URL{}}
	_, _, err := ResolveHost(r, "http")
	assert.Equal(t, ErrMalformedRequest, err)
}

func TestResolveHostHTTP2UsesAuthority(t *testing.T) {
	r := &http.Request{
		ProtoMajor: 2,
		Host:       "example.com:443",
		URL:        &url.URL{Scheme: "https"},
		Header:     http.Header{},
	}
	shp, domain, err := ResolveHost(r, "https")
	require.Nil(t, err)
	assert.Equal(t, "example.com", shp.Host)
	assert.Equal(t, 443, shp.Port)
	assert.Equal(t, RequestDomain("example.com"), domain)
}

func TestResolveHostHTTP2HostHeaderOverridesDomain(t *testing.T) {
	r := &http.Request{
		ProtoMajor: 2,
		Host:       "origin.example.com",
		URL:        &url.URL{},
		Header:     http.Header{"Host": []string{"virtual.example.com"}},
	}
	_, domain, err := ResolveHost(r, "https")
	require.Nil(t, err)
	assert.Equal(t, RequestDomain("virtual.example.com"), domain)
}

func TestResolveHostHTTP2FallsBackToURLHost(t *testing.T) {
	r := &http.Request{
		ProtoMajor: 2,
		URL:        &url.URL{Host: "example.com", Scheme: "https"},
		Header:     http.Header{},
	}
	shp, domain, err := ResolveHost(r, "http")
	require.Nil(t, err)
	assert.Equal(t, "example.com", shp.Host)
	assert.Equal(t, RequestDomain("example.com"), domain)
}

func TestSplitHostPortRejectsEmptyHost(t *testing.T) {
	_, _, err := splitHostPort(":8080")
	assert.Equal(t, ErrMalformedRequest, err)
}

func TestSplitHostPortRejectsBadPort(t *testing.T) {
	_, _, err := splitHostPort("example.com:notaport")
	assert.Equal(t, ErrMalformedRequest, err)
}

func TestSplitHostPortNoPort(t *testing.T) {
	host, port, err := splitHostPort("example.com")
	require.Nil(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, 0, port)
}
