package proxy

import "net/http"

// RewriteForUpstream mutates a simple (non-CONNECT, non-reverse-proxy)
// forward-proxy request in place so it is valid on the wire to the upstream
// origin: strips proxy-specific headers, canonicalizes Host, and converts
// the URI to origin-form. Call once per request — the origin-form rewrite
// clears r.URL.Host, so a second call has nothing left to resolve.
func RewriteForUpstream(r *http.Request) *ProxyError {
	r.Header.Del("Proxy-Authorization")
	r.Header.Del("Proxy-Connection")

	host := r.URL.Hostname()
	if host == "" {
		return ErrMalformedRequest
	}

	hostHeader := host
	if portStr := r.URL.Port(); portStr != "" {
		shp := SchemeHostPort{Scheme: r.URL.Scheme, Host: host}
		if port, perr := parsePort(portStr); perr == nil {
			shp.Port = port
			if shp.Port != shp.DefaultPort() {
				hostHeader = host + ":" + portStr
			}
		}
	}
	r.Host = hostHeader
	r.Header.Set("Host", hostHeader)

	if r.URL.Path == "" || r.URL.Path == "/" {
		r.URL.Path = "/"
		r.URL.RawPath = ""
	}
	r.URL.Scheme = ""
	r.URL.Host = ""
	r.URL.Opaque = ""
	r.RequestURI = ""

	return nil
}

func parsePort(s string) (int, *ProxyError) {
	_, port, err := splitHostPort("x:" + s)
	return port, err
}
