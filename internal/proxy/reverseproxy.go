package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// forwardingIdentityHeaders disclose proxy-chain identity and are stripped
// from outbound reverse-proxy requests.
var forwardingIdentityHeaders = []string{
	"Forwarded",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Forwarded-Port",
	"Via",
	"X-Real-IP",
}

func stripForwardingIdentityHeaders(header http.Header) {
	for _, h := range forwardingIdentityHeaders {
		header.Del(h)
	}
	// httputil.ReverseProxy's Director auto-populates X-Forwarded-For
	// unless the header key exists with a nil value.
	header["X-Forwarded-For"] = nil
}

// ReverseProxyEngine serves requests matched by LocationMatcher, proxying
// them to the rule's upstream base with the matched path prefix replaced.
type ReverseProxyEngine struct{}

// NewReverseProxyEngine builds a ReverseProxyEngine.
func NewReverseProxyEngine() *ReverseProxyEngine {
	return &ReverseProxyEngine{}
}

// Serve proxies r to rule's upstream. Any AuthGate check for rule.RequireAuth
// has already happened in Dispatcher before this is called — a rule that
// doesn't opt in stays anonymously reachable by design.
func (e *ReverseProxyEngine) Serve(w http.ResponseWriter, r *http.Request, rule LocationRule) {
	upstream, err := url.Parse(rule.UpstreamBase)
	if err != nil {
		writeProxyError(w, ErrMalformedRequest)
		return
	}

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = upstream.Scheme
			req.URL.Host = upstream.Host
			req.Host = upstream.Host
			req.URL.Path, req.URL.RawPath = joinUpstreamPath(upstream, rule.PathPrefix, req.URL.Path)
			stripForwardingIdentityHeaders(req.Header)
		},
		ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
			proxyErr := classifyUpstreamError(err)
			if proxyErr == nil {
				return
			}
			writeProxyError(rw, proxyErr)
		},
	}
	proxy.ServeHTTP(w, r)
}

// joinUpstreamPath replaces the matched rule prefix in reqPath with the
// upstream base's own path, preserving whatever remains after the prefix.
func joinUpstreamPath(upstream *url.URL, prefix, reqPath string) (string, string) {
	remainder := strings.TrimPrefix(reqPath, prefix)
	joined := strings.TrimSuffix(upstream.Path, "/") + "/" + strings.TrimPrefix(remainder, "/")
	if joined == "" {
		joined = "/"
	}
	return joined, ""
}
