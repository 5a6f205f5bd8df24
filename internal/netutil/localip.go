package netutil

import "net"

// LocalIP returns the best-effort outbound-facing local IP address as a
// string, used to pad CONNECT responses against TCP length fingerprinting.
// Falls back to "127.0.0.1" if no route to the outside world can be
// determined (offline build/test environments).
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
