package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestReverseProxyEngineServeRewritesPathAndStripsForwardingHeaders(t *testing.T) {
	var gotPath string
	var gotXFF string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotXFF = r.Header.Get("X-Forwarded-For")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	engine := NewReverseProxyEngine()
	rule := LocationRule{PathPrefix: "/api/", UpstreamBase: upstream.URL + "/backend/"}

	r := httptest.NewRequest(http.MethodGet, "/api/users/42", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	w := httptest.NewRecorder()

	engine.Serve(w, r, rule)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/backend/users/42", gotPath)
	assert.Empty(t, gotXFF, "X-Forwarded-For must be stripped, not forwarded from the client")
}

func TestReverseProxyEngineServeUnreachableUpstream(t *testing.T) {
	engine := NewReverseProxyEngine()
	rule := LocationRule{PathPrefix: "/", UpstreamBase: "http://127.0.0.1:1/"}

	r := httptest.NewRequest(http.MethodGet, "/anything", nil)
	w := httptest.NewRecorder()

	engine.Serve(w, r, rule)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestJoinUpstreamPathPreservesRemainder(t *testing.T) {
	upstream := mustParseURL(t, "https://backend.internal/svc")
	path, rawPath := joinUpstreamPath(upstream, "/api/", "/api/v1/widgets")
	assert.Equal(t, "/svc/v1/widgets", path)
	assert.Equal(t, "", rawPath)
}

func TestJoinUpstreamPathRootFallback(t *testing.T) {
	upstream := mustParseURL(t, "https://backend.internal")
	path, _ := joinUpstreamPath(upstream, "/api/", "/api/")
	assert.Equal(t, "/", path)
}
