package proxy

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hijackableRecorder is an httptest.ResponseRecorder that also implements
// http.Hijacker, for exercising the silent-drop path.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	client, server := net.Pipe()
	go server.Close()
	return client, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

type stubStaticFiles struct {
	status int
}

func (s stubStaticFiles) ServeFile(w http.ResponseWriter, r *http.Request) int {
	w.WriteHeader(s.status)
	return s.status
}

func TestDispatcherProxyStageRequiresAuth(t *testing.T) {
	d := NewDispatcher(Config{
		Credentials: CredentialTable{"Basic xyz": "alice"},
	})
	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusProxyAuthRequired, w.Code)
}

func TestDispatcherProxyStageNeverAskForAuthDrops(t *testing.T) {
	d := NewDispatcher(Config{
		Credentials:     CredentialTable{"Basic xyz": "alice"},
		NeverAskForAuth: true,
	})
	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	w := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}

	d.ServeHTTP(w, r)

	assert.True(t, w.hijacked)
}

func TestDispatcherConnectRequiresAuth(t *testing.T) {
	d := NewDispatcher(Config{
		Credentials: CredentialTable{"Basic xyz": "alice"},
	})
	r := httptest.NewRequest(http.MethodConnect, "example.com:443", nil)
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusProxyAuthRequired, w.Code)
}

func TestDispatcherRejectsUnresolvableHostWithoutReachingProxyStage(t *testing.T) {
	d := NewDispatcher(Config{})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = ""
	r.URL.Host = ""
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatcherReverseProxyRequiresAuthReturns401(t *testing.T) {
	rpCfg := NewReverseProxyConfig()
	rpCfg.AddRule("api.example.com", LocationRule{PathPrefix: "/", UpstreamBase: "http://upstream/", RequireAuth: true})
	d := NewDispatcher(Config{
		ReverseProxy: rpCfg,
		Credentials:  CredentialTable{"Basic xyz": "alice"},
	})

	r := httptest.NewRequest(http.MethodGet, "http://api.example.com/secret", nil)
	r.Host = "api.example.com"
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
}

func TestDispatcherStaticServingProhibitedDrops(t *testing.T) {
	d := NewDispatcher(Config{
		ServingPolicy: ServingPolicy{ProhibitServing: true},
		StaticFiles:   stubStaticFiles{status: http.StatusOK},
	})
	r := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	r.ProtoMajor = 2
	r.Host = "localhost"
	w := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}

	d.ServeHTTP(w, r)

	assert.True(t, w.hijacked)
}

func TestDispatcherStaticFileHitReturns(t *testing.T) {
	d := NewDispatcher(Config{StaticFiles: stubStaticFiles{status: http.StatusOK}})
	r := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	r.ProtoMajor = 2
	r.Host = "localhost"
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDispatcherStaticFileMissFallsThroughToNext(t *testing.T) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusTeapot)
	})
	d := NewDispatcher(Config{StaticFiles: stubStaticFiles{status: http.StatusNotFound}, Next: next})
	r := httptest.NewRequest(http.MethodGet, "/missing.html", nil)
	r.ProtoMajor = 2
	r.Host = "localhost"
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	assert.True(t, nextCalled)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestDispatcherNoStaticFilesFallsThroughToNext(t *testing.T) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})
	d := NewDispatcher(Config{Next: next})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ProtoMajor = 2
	r.Host = "localhost"
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	assert.True(t, nextCalled)
}

func TestHijackAndDropClosesConnection(t *testing.T) {
	w := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	hijackAndDrop(w)
	assert.True(t, w.hijacked)
}

func TestClientIPOfStripsPort(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIPOf(r))
}

func TestClientIPOfHandlesBareHost(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1"
	assert.Equal(t, "192.0.2.1", clientIPOf(r))
}

func TestServingAllowedIntegratesWithParsedClientIP(t *testing.T) {
	ip, err := netip.ParseAddr("192.0.2.1")
	require.NoError(t, err)
	policy := ServingPolicy{AllowedNetworks: []CIDRNetwork{netip.MustParsePrefix("192.0.2.0/24")}}
	assert.True(t, ServingAllowed(policy, ip))
}
