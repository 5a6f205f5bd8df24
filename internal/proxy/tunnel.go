package proxy

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// TunnelEngine implements the CONNECT protocol: synchronous 200-OK reply
// with anti-fingerprinting padding, connection upgrade, upstream TCP
// connect, and full-duplex byte splice with an idle timeout.
type TunnelEngine struct {
	LocalIP     string
	MetricsSink MetricsEventSink
	IdleTimeout time.Duration
	Dial        func(network, address string) (net.Conn, error)
}

// NewTunnelEngine builds a TunnelEngine with the given local IP (used for
// response padding) and metrics sink.
func NewTunnelEngine(localIP string, sink MetricsEventSink) *TunnelEngine {
	return &TunnelEngine{
		LocalIP:     localIP,
		MetricsSink: sink,
		IdleTimeout: IdleTimeout,
		Dial:        net.Dial,
	}
}

// Serve handles one CONNECT request. The URI authority (r.Host for a
// CONNECT request) is the target host:port.
func (e *TunnelEngine) Serve(w http.ResponseWriter, r *http.Request, clientIP, username string) {
	target := r.Host
	if !isSocketAddress(target) {
		log.Printf("CONNECT host is not a socket address: %q", target)
		writeProxyError(w, ErrConnectAuthorityInvalid)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		writeProxyError(w, ErrUpstreamIO)
		return
	}
	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		log.Printf("CONNECT hijack error: %v", err)
		return
	}

	if err := writeConnectEstablished(clientBuf, e.LocalIP); err != nil {
		clientConn.Close()
		return
	}

	clientReader, err := drainBufferedBytes(clientConn, clientBuf.Reader)
	if err != nil {
		clientConn.Close()
		return
	}

	label := AccessLabel{Client: clientIP, Target: target, Username: username}
	go e.splice(clientConn, clientReader, label, uuid.NewString())
}

// splice dials the upstream target and copies bytes bidirectionally until
// either half closes or the idle timer fires. No response is ever written
// after the initial 200 — all failures here simply tear the connection
// down. correlationID ties this tunnel's establish/teardown log lines
// together.
func (e *TunnelEngine) splice(clientConn net.Conn, clientReader io.Reader, label AccessLabel, correlationID string) {
	defer clientConn.Close()

	upstream, err := e.Dial("tcp", label.Target)
	if err != nil {
		kind := "CANCELED"
		if pe := classifyConnectError(err); pe != nil {
			kind = pe.Kind
		}
		log.Printf("[tunnel establish error] [%s] [%s] [%s]: %v", correlationID, label, kind, err)
		return
	}

	if e.MetricsSink != nil {
		e.MetricsSink.OnConnectionLifecycle(ConnectionOutbound, ConnectionOpen)
		upstream = newCountingConn(upstream, e.MetricsSink, label, ConnectionOutbound)
	}
	timeout := e.IdleTimeout
	if timeout <= 0 {
		timeout = IdleTimeout
	}
	timedUpstream := newIdleTimeoutConn(upstream, timeout)
	defer timedUpstream.Close()

	log.Printf("[tunnel established] [%s] [%s]", correlationID, label)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := io.Copy(timedUpstream, clientReader); err != nil {
			log.Printf("[tunnel io error] [%s] [%s] client->upstream: %v", correlationID, label, err)
		}
	}()
	if _, err := io.Copy(clientConn, timedUpstream); err != nil {
		log.Printf("[tunnel io error] [%s] [%s] upstream->client: %v", correlationID, label, err)
	}
	<-done
}

// writeConnectEstablished writes the raw "200 Connection Established"
// status line padded with N repeated Server headers, N uniformly random in
// [1, 2048/len(localIP)). The padding defeats TCP segment-length
// fingerprinting of the handshake response; it is computed, not a fixed
// count, matching the upstream original's sizing exactly.
func writeConnectEstablished(buf *bufio.ReadWriter, localIP string) error {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 200 Connection Established\r\n")
	maxCount := 2048 / len(localIP)
	if maxCount < 2 {
		maxCount = 2
	}
	count := 1 + rand.Intn(maxCount-1)
	for i := 0; i < count; i++ {
		b.WriteString("Server: ")
		b.WriteString(localIP)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	if _, err := buf.Write(b.Bytes()); err != nil {
		return err
	}
	return buf.Flush()
}

// drainBufferedBytes returns a reader for client->upstream copy that
// preserves any bytes net/http already buffered before Hijack, so the
// tunnel stays byte-transparent.
func drainBufferedBytes(clientConn net.Conn, buffered *bufio.Reader) (io.Reader, error) {
	if buffered == nil {
		return clientConn, nil
	}
	n := buffered.Buffered()
	if n == 0 {
		return clientConn, nil
	}
	prefetched := make([]byte, n)
	if _, err := io.ReadFull(buffered, prefetched); err != nil {
		return nil, err
	}
	return io.MultiReader(bytes.NewReader(prefetched), clientConn), nil
}

// isSocketAddress reports whether target parses as a plain host:port
// authority, as required for a CONNECT target.
func isSocketAddress(target string) bool {
	host, port, err := net.SplitHostPort(target)
	if err != nil || host == "" || port == "" {
		return false
	}
	return true
}
