// Package proxy implements the multi-mode HTTP proxy data plane: request
// classification and dispatch, CONNECT tunneling, simple forward-proxy
// relaying, and host/path based reverse proxying.
package proxy

import "net/netip"

// CIDRNetwork is a parsed CIDR block used by ServingPolicy membership
// checks.
type CIDRNetwork = netip.Prefix

// SchemeHostPort is the resolved (scheme, host, port) triple for a request,
// derived by HostResolver. Port is 0 when the request carried no explicit
// port.
type SchemeHostPort struct {
	Scheme string
	Host   string
	Port   int
}

// HasPort reports whether an explicit port was present on the wire.
func (s SchemeHostPort) HasPort() bool {
	return s.Port != 0
}

// DefaultPort returns the scheme's default port (80 for http/ws, 443 for
// https/wss), or 0 if the scheme has no well-known default.
func (s SchemeHostPort) DefaultPort() int {
	switch s.Scheme {
	case "https", "wss":
		return 443
	case "http", "ws":
		return 80
	default:
		return 0
	}
}

// RequestDomain is the normalized per-request lookup key used by
// LocationMatcher and by metric/log cardinality reduction.
type RequestDomain string

// DefaultHost is the sentinel ReverseProxyConfig host key consulted when no
// exact host match exists.
const DefaultHost = "DEFAULT_HOST"

// CredentialTable maps the literal header value "Basic <base64(user:pass)>"
// to the configured username. Built once at startup, read-only thereafter.
// An empty table means anonymous access is allowed everywhere AuthGate is
// consulted.
type CredentialTable map[string]string

// AnonymousUsername is returned by AuthGate when the table is empty and no
// credentials were required.
const AnonymousUsername = "unknown"

// LocationRule maps one path prefix, within a host bucket, to an upstream
// base URL. Rules within a bucket are tried in insertion order; the first
// whose prefix matches the request path wins.
type LocationRule struct {
	PathPrefix   string
	UpstreamBase string
	// RequireAuth opts this rule into an AuthGate check against the
	// Authorization header; a miss answers 401 instead of proxying
	// anonymously.
	RequireAuth bool
}

// ReverseProxyConfig is a mapping from host key to an ordered sequence of
// LocationRules. The DefaultHost key is the fallback bucket consulted when
// no exact host match exists.
type ReverseProxyConfig struct {
	Hosts map[string][]LocationRule
}

// NewReverseProxyConfig returns an empty, ready-to-populate config.
func NewReverseProxyConfig() *ReverseProxyConfig {
	return &ReverseProxyConfig{Hosts: make(map[string][]LocationRule)}
}

// AddRule appends a rule to the host's bucket, preserving insertion order.
func (c *ReverseProxyConfig) AddRule(host string, rule LocationRule) {
	if c.Hosts == nil {
		c.Hosts = make(map[string][]LocationRule)
	}
	c.Hosts[host] = append(c.Hosts[host], rule)
}

// ServingPolicy decides whether static-file serving is permitted for a
// client IP. If ProhibitServing is true, AllowedNetworks is ignored. If
// AllowedNetworks is empty and ProhibitServing is false, all IPs are
// permitted.
type ServingPolicy struct {
	ProhibitServing bool
	AllowedNetworks []CIDRNetwork
}

// AccessLabel tags a tunneled or forwarded connection's byte counters with
// its client, target, and resolved username. Lifetime equals the
// connection.
type AccessLabel struct {
	Client   string
	Target   string
	Username string
}

func (a AccessLabel) String() string {
	return a.Client + " -> " + a.Target
}
