package proxy

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"
)

const (
	simpleProxyPoolIdleTimeout     = 90 * time.Second
	simpleProxyMaxIdleConnsPerHost = 5
	simpleProxyKeepAlive           = 90 * time.Second
)

// SimpleProxyEngine forwards a rewritten HTTP/1.1 request through a pooled
// HTTP/HTTPS client and streams the response body back to the caller. One
// transport is kept per origin host so keep-alive pools are reused across
// requests to the same upstream.
type SimpleProxyEngine struct {
	MetricsSink MetricsEventSink
	transports  *xsync.Map[uint64, *http.Transport]
}

// NewSimpleProxyEngine builds a SimpleProxyEngine with an empty transport
// pool.
func NewSimpleProxyEngine(sink MetricsEventSink) *SimpleProxyEngine {
	return &SimpleProxyEngine{
		MetricsSink: sink,
		transports:  xsync.NewMap[uint64, *http.Transport](),
	}
}

func (e *SimpleProxyEngine) transportFor(host string, label AccessLabel) *http.Transport {
	key := xxh3.HashString(host)
	transport, _ := e.transports.LoadOrCompute(key, func() (*http.Transport, bool) {
		return e.newTransport(label), false
	})
	return transport
}

func (e *SimpleProxyEngine) newTransport(label AccessLabel) *http.Transport {
	dialer := &net.Dialer{KeepAlive: simpleProxyKeepAlive}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if e.MetricsSink != nil {
				e.MetricsSink.OnConnectionLifecycle(ConnectionOutbound, ConnectionOpen)
				conn = newCountingConn(conn, e.MetricsSink, label, ConnectionOutbound)
			}
			return conn, nil
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        0,
		MaxIdleConnsPerHost: simpleProxyMaxIdleConnsPerHost,
		IdleConnTimeout:     simpleProxyPoolIdleTimeout,
	}
}

// Serve forwards r (already run through RewriteForUpstream) and streams the
// response back to w.
func (e *SimpleProxyEngine) Serve(w http.ResponseWriter, r *http.Request, clientIP, username string) {
	label := AccessLabel{Client: clientIP, Target: r.Host, Username: username}
	transport := e.transportFor(r.Host, label)

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	outReq.Close = false
	// RewriteForUpstream leaves URL in origin-form (Scheme/Host cleared) for
	// wire serialization; Transport.RoundTrip needs an absolute URL to know
	// where to dial. Absolute-URI forward-proxy requests are always plain
	// HTTP — an HTTPS target arrives as a CONNECT tunnel instead.
	outReq.URL.Scheme = "http"
	outReq.URL.Host = outReq.Host

	resp, err := transport.RoundTrip(outReq)
	if err != nil {
		proxyErr := classifyUpstreamError(err)
		if proxyErr == nil {
			return
		}
		writeProxyError(w, proxyErr)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("[simple proxy copy error] [%s]: %v", label, err)
	}
}
