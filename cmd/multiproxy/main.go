// Command multiproxy runs the multi-mode HTTP proxy server: CONNECT tunnel,
// forward-proxy, reverse-proxy, and static-file dispatch behind one listener
// per configured port.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloor/multiproxy/internal/accesslog"
	"github.com/arloor/multiproxy/internal/buildinfo"
	"github.com/arloor/multiproxy/internal/config"
	"github.com/arloor/multiproxy/internal/metrics"
	"github.com/arloor/multiproxy/internal/netutil"
	"github.com/arloor/multiproxy/internal/proxy"
	"github.com/arloor/multiproxy/internal/staticserve"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fatalf("%v", err)
	}
	cfg, err := config.Resolve(flags)
	if err != nil {
		fatalf("%v", err)
	}

	log.Printf("multiproxy %s (commit %s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	accessLogger, err := accesslog.New(cfg.LogDir, cfg.LogFile)
	if err != nil {
		fatalf("access log: %v", err)
	}

	registry := prometheus.NewRegistry()
	metricsSink := metrics.NewSink(registry)

	var staticFiles proxy.StaticFileResponder
	if cfg.ServingPolicy.ProhibitServing {
		log.Println("static file serving disabled (--prohibit-serving)")
	} else if cfg.WebContentPath != "" {
		staticFiles = staticserve.New(cfg.WebContentPath, cfg.RefererKeywords, registry)
		log.Printf("serving static content from %q", cfg.WebContentPath)
	}

	localIP := netutil.LocalIP()
	log.Printf("local IP for CONNECT padding: %s", localIP)

	tunnel := proxy.NewTunnelEngine(localIP, metricsSink)
	simpleProxy := proxy.NewSimpleProxyEngine(metricsSink)
	reverseProxy := proxy.NewReverseProxyEngine()

	defaultScheme := "http"
	if cfg.OverTLS {
		defaultScheme = "https"
	}

	dispatcher := proxy.NewDispatcher(proxy.Config{
		DefaultScheme:    defaultScheme,
		NeverAskForAuth:  cfg.NeverAskForAuth,
		Credentials:      cfg.Credentials,
		ReverseProxy:     cfg.ReverseProxy,
		ServingPolicy:    cfg.ServingPolicy,
		StaticFiles:      staticFiles,
		Tunnel:           tunnel,
		SimpleProxy:      simpleProxy,
		ReverseProxyHTTP: reverseProxy,
		Events:           accessLogger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", dispatcher)

	var tlsConfig *tls.Config
	if cfg.OverTLS {
		cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
		if err != nil {
			fatalf("load TLS cert/key: %v", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
		}
	}

	var handler http.Handler = mux
	if !cfg.OverTLS {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	servers := make([]*http.Server, 0, len(cfg.Ports))
	listeners := make([]net.Listener, 0, len(cfg.Ports))
	serverErrCh := make(chan error, len(cfg.Ports))

	for _, port := range cfg.Ports {
		addr := fmt.Sprintf(":%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			fatalf("listen on %s: %v", addr, err)
		}
		ln = proxy.NewCountingListener(ln, metricsSink)
		if tlsConfig != nil {
			ln = tls.NewListener(ln, tlsConfig)
		}

		srv := &http.Server{Handler: handler}
		servers = append(servers, srv)
		listeners = append(listeners, ln)

		go func(port int, ln net.Listener, srv *http.Server) {
			log.Printf("listening on :%d (tls=%v)", port, cfg.OverTLS)
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				serverErrCh <- fmt.Errorf("listener :%d: %w", port, err)
			}
		}(port, ln, srv)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runtimeErr error
	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-serverErrCh:
		runtimeErr = err
		log.Printf("server error, shutting down: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("listener :%d shutdown error: %v", cfg.Ports[i], err)
		}
	}
	log.Println("server stopped")

	if runtimeErr != nil {
		fatalf("runtime error: %v", runtimeErr)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
