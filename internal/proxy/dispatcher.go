package proxy

import (
	"net/http"

	"github.com/arloor/multiproxy/internal/netutil"
)

// StaticFileResponder serves the local static-file branch. It is an
// external collaborator per the dispatch contract: ServeFile writes
// directly to w and reports the status it wrote, so the Dispatcher can
// detect the "not mine" 404 case and emit Continue.
type StaticFileResponder interface {
	ServeFile(w http.ResponseWriter, r *http.Request) (status int)
}

// Config holds the shared, read-only-after-init state the Dispatcher
// consults on every request.
type Config struct {
	DefaultScheme    string // "https" if the listener terminates TLS, else "http"
	NeverAskForAuth  bool
	Credentials      CredentialTable
	ReverseProxy     *ReverseProxyConfig
	ServingPolicy    ServingPolicy
	StaticFiles      StaticFileResponder
	Tunnel           *TunnelEngine
	SimpleProxy      *SimpleProxyEngine
	ReverseProxyHTTP *ReverseProxyEngine
	Events           EventEmitter
	// Next is invoked when the Dispatcher emits Continue (the static
	// responder declined with 404). Defaults to http.NotFound.
	Next http.Handler
}

// Dispatcher implements the per-request classify/route decision tree. It is
// an http.Handler: one instance serves every accepted connection on a
// listener.
type Dispatcher struct {
	cfg Config
}

// NewDispatcher builds a Dispatcher from cfg, filling in defaults.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Events == nil {
		cfg.Events = NoOpEventEmitter{}
	}
	if cfg.Next == nil {
		cfg.Next = http.HandlerFunc(http.NotFound)
	}
	return &Dispatcher{cfg: cfg}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := clientIPOf(r)
	lifecycle := newRequestLifecycle(d.cfg.Events, r)
	defer lifecycle.finish()

	if r.Method == http.MethodConnect {
		d.dispatchConnect(w, r, clientIP, lifecycle)
		return
	}

	shp, domain, rerr := ResolveHost(r, d.cfg.DefaultScheme)
	if rerr != nil {
		lifecycle.setOutcome(OutcomeReturn)
		lifecycle.setHTTPStatus(ErrMalformedRequest.HTTPCode)
		writeProxyError(w, ErrMalformedRequest)
		return
	}
	lifecycle.setTarget(string(domain), r.URL.String())

	if rule, ok := MatchLocation(d.cfg.ReverseProxy, domain, r.URL.Path); ok {
		lifecycle.setProxyType(ProxyTypeReverse)
		if rule.RequireAuth {
			auth := CheckAuth(r.Header, "Authorization", d.cfg.Credentials)
			if !auth.Authenticated {
				lifecycle.setOutcome(OutcomeReturn)
				lifecycle.setHTTPStatus(http.StatusUnauthorized)
				writeUnauthorized(w)
				return
			}
			lifecycle.setAccount(auth.Username)
		}
		lifecycle.setOutcome(OutcomeReturn)
		d.cfg.ReverseProxyHTTP.Serve(w, r, rule)
		lifecycle.setHTTPStatus(0) // reverse proxy writes its own status
		return
	}

	addressedToThisServer := r.ProtoMajor >= 2 || r.URL.Host == ""
	if addressedToThisServer {
		d.dispatchStatic(w, r, clientIP, lifecycle)
		return
	}

	_ = shp
	d.dispatchProxyStage(w, r, clientIP, lifecycle)
}

func (d *Dispatcher) dispatchStatic(w http.ResponseWriter, r *http.Request, clientIP string, lifecycle *requestLifecycle) {
	lifecycle.setProxyType(ProxyTypeStatic)
	ip, ok := netutil.ParseClientIP(clientIP)
	if !ok || !ServingAllowed(d.cfg.ServingPolicy, ip) {
		lifecycle.setOutcome(OutcomeDrop)
		hijackAndDrop(w)
		return
	}
	if d.cfg.StaticFiles == nil {
		lifecycle.setOutcome(OutcomeContinue)
		d.cfg.Next.ServeHTTP(w, r)
		return
	}
	status := d.cfg.StaticFiles.ServeFile(w, r)
	lifecycle.setHTTPStatus(status)
	if status == http.StatusNotFound {
		lifecycle.setOutcome(OutcomeContinue)
		d.cfg.Next.ServeHTTP(w, r)
		return
	}
	lifecycle.setOutcome(OutcomeReturn)
}

func (d *Dispatcher) dispatchProxyStage(w http.ResponseWriter, r *http.Request, clientIP string, lifecycle *requestLifecycle) {
	auth := CheckAuth(r.Header, "Proxy-Authorization", d.cfg.Credentials)
	if !auth.Authenticated {
		if d.cfg.NeverAskForAuth {
			lifecycle.setOutcome(OutcomeDrop)
			hijackAndDrop(w)
			return
		}
		lifecycle.setOutcome(OutcomeReturn)
		lifecycle.setHTTPStatus(http.StatusProxyAuthRequired)
		writeProxyAuthRequired(w)
		return
	}
	lifecycle.setAccount(auth.Username)
	lifecycle.setProxyType(ProxyTypeForward)

	if rerr := RewriteForUpstream(r); rerr != nil {
		lifecycle.setOutcome(OutcomeReturn)
		lifecycle.setHTTPStatus(rerr.HTTPCode)
		writeProxyError(w, rerr)
		return
	}
	d.cfg.SimpleProxy.Serve(w, r, clientIP, auth.Username)
	lifecycle.setOutcome(OutcomeReturn)
}

func (d *Dispatcher) dispatchConnect(w http.ResponseWriter, r *http.Request, clientIP string, lifecycle *requestLifecycle) {
	lifecycle.setTarget(r.Host, "")
	lifecycle.setProxyType(ProxyTypeForward)

	auth := CheckAuth(r.Header, "Proxy-Authorization", d.cfg.Credentials)
	if !auth.Authenticated {
		if d.cfg.NeverAskForAuth {
			lifecycle.setOutcome(OutcomeDrop)
			hijackAndDrop(w)
			return
		}
		lifecycle.setOutcome(OutcomeReturn)
		lifecycle.setHTTPStatus(http.StatusProxyAuthRequired)
		writeProxyAuthRequired(w)
		return
	}
	lifecycle.setAccount(auth.Username)
	lifecycle.setOutcome(OutcomeReturn)
	d.cfg.Tunnel.Serve(w, r, clientIP, auth.Username)
}

// hijackAndDrop closes the connection with zero response bytes, per the
// Forbidden/silent-auth-failure policy: the client must never learn a proxy
// is here.
func hijackAndDrop(w http.ResponseWriter) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

func clientIPOf(r *http.Request) string {
	if host, _, err := netutil.SplitHostPortLoose(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
