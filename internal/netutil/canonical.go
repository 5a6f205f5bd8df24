package netutil

import (
	"net"
	"net/netip"
)

// CanonicalIP returns the IPv4 form of an IPv4-mapped IPv6 address, and the
// address unchanged otherwise. Used so CIDR membership checks behave
// consistently regardless of whether a client arrived over an IPv4 or a
// dual-stack IPv6 socket.
func CanonicalIP(addr netip.Addr) netip.Addr {
	return addr.Unmap()
}

// ParseClientIP extracts and canonicalizes the IP from a "host:port" or bare
// host remote address string, as found in http.Request.RemoteAddr.
func ParseClientIP(remoteAddr string) (netip.Addr, bool) {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return CanonicalIP(addr), true
}

// SplitHostPortLoose splits "host:port" like net.SplitHostPort, but falls
// back to returning the whole input as host when it carries no port (e.g. a
// bare RemoteAddr from a unix socket or test harness).
func SplitHostPortLoose(hostport string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(hostport)
	if err != nil {
		return hostport, "", nil
	}
	return host, port, nil
}
