package proxy

import (
	"net/http"
	"strconv"
	"strings"
)

// ResolveHost derives (SchemeHostPort, RequestDomain) from a request,
// version-aware. defaultScheme is "https" when the listener terminates TLS,
// "http" otherwise. CONNECT requests must not be passed here — the
// Dispatcher reads their target directly from the URI authority.
func ResolveHost(r *http.Request, defaultScheme string) (SchemeHostPort, RequestDomain, *ProxyError) {
	if r.ProtoMajor >= 2 {
		return resolveHostHTTP2(r, defaultScheme)
	}
	return resolveHostHTTP1(r, defaultScheme)
}

// resolveHostHTTP2 trusts the URI authority. Go's HTTP/2 server places the
// :authority pseudo-header into r.Host; a literal "host" header sent
// alongside it (permitted by RFC 7540 §8.1.2.3) survives in r.Header,
// distinct from r.Host, which is exactly the Host-header/URI-authority
// distinction the original draws.
func resolveHostHTTP2(r *http.Request, defaultScheme string) (SchemeHostPort, RequestDomain, *ProxyError) {
	authority := r.Host
	if authority == "" {
		authority = r.URL.Host
	}
	if authority == "" {
		return SchemeHostPort{}, "", ErrMalformedRequest
	}
	host, port, err := splitHostPort(authority)
	if err != nil {
		return SchemeHostPort{}, "", ErrMalformedRequest
	}

	scheme := defaultScheme
	if r.URL.Scheme != "" {
		scheme = r.URL.Scheme
	}

	domain := host
	if headerHost := r.Header.Get("Host"); headerHost != "" {
		if h, _, ferr := splitHostPort(headerHost); ferr == nil {
			domain = h
		} else {
			domain = headerHost
		}
	}

	return SchemeHostPort{Scheme: scheme, Host: host, Port: port}, RequestDomain(domain), nil
}

// resolveHostHTTP1 trusts the Host header. Go's HTTP/1.1 server places the
// Host header's value into r.Host (never into r.Header), so this reads the
// same field as resolveHostHTTP2 but the field means something different by
// version.
func resolveHostHTTP1(r *http.Request, defaultScheme string) (SchemeHostPort, RequestDomain, *ProxyError) {
	if r.Host == "" {
		return SchemeHostPort{}, "", ErrMalformedRequest
	}
	host, port, err := splitHostPort(r.Host)
	if err != nil {
		return SchemeHostPort{}, "", ErrMalformedRequest
	}

	scheme := defaultScheme
	if r.URL.Scheme != "" {
		scheme = r.URL.Scheme
	}

	return SchemeHostPort{Scheme: scheme, Host: host, Port: port}, RequestDomain(host), nil
}

// splitHostPort parses "host[:port]" on the first colon, matching the
// original's str::split(':').next() behavior (not IPv6-bracket aware — a
// bracketed IPv6 literal in Host is out of scope here, same as upstream).
// An empty host is rejected; a present port must parse as u16.
func splitHostPort(hostport string) (string, int, *ProxyError) {
	idx := strings.IndexByte(hostport, ':')
	if idx < 0 {
		if hostport == "" {
			return "", 0, ErrMalformedRequest
		}
		return hostport, 0, nil
	}
	host := hostport[:idx]
	portStr := hostport[idx+1:]
	if host == "" {
		return "", 0, ErrMalformedRequest
	}
	if portStr == "" {
		return host, 0, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, ErrMalformedRequest
	}
	return host, int(port), nil
}
