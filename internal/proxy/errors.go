package proxy

import (
	"context"
	"errors"
	"net/http"
	"os"
)

// ProxyError is a structured error that can be turned directly into an HTTP
// response. Kind mirrors the taxonomy of errors the Dispatcher can surface;
// it never leaks upstream error text into the response body.
type ProxyError struct {
	HTTPCode int
	Kind     string
	Message  string
}

func (e *ProxyError) Error() string {
	return e.Message
}

// Predefined proxy errors. Kind names the error-taxonomy kind each belongs
// to; several errors can share one kind.
var (
	ErrMalformedRequest = &ProxyError{
		HTTPCode: http.StatusBadRequest,
		Kind:     "MALFORMED_REQUEST",
		Message:  "malformed request",
	}
	ErrConnectAuthorityInvalid = &ProxyError{
		HTTPCode: http.StatusBadRequest,
		Kind:     "MALFORMED_REQUEST",
		Message:  "CONNECT must be to a socket address",
	}
	ErrUpstreamConnectFailed = &ProxyError{
		HTTPCode: http.StatusBadGateway,
		Kind:     "UPSTREAM_CONNECT",
		Message:  "failed to connect to upstream",
	}
	ErrUpstreamTimeout = &ProxyError{
		HTTPCode: http.StatusGatewayTimeout,
		Kind:     "UPSTREAM_CONNECT",
		Message:  "upstream connection or response timed out",
	}
	ErrUpstreamIO = &ProxyError{
		HTTPCode: http.StatusBadGateway,
		Kind:     "UPSTREAM_IO",
		Message:  "upstream request failed",
	}
)

// authChallengeBody is the literal response body sent with both 407 and 401
// authentication challenges.
const authChallengeBody = "auth need"

// authRealm is the challenge value for both the 407 Proxy-Authenticate and
// the 401 WWW-Authenticate header; changing it would alter the wire-visible
// challenge clients parse.
const authRealm = `Basic realm="are you kidding me"`

// writeProxyAuthRequired writes a 407 Proxy Authentication Required
// response with the proxy realm challenge.
func writeProxyAuthRequired(w http.ResponseWriter) {
	w.Header().Set("Proxy-Authenticate", authRealm)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusProxyAuthRequired)
	w.Write([]byte(authChallengeBody))
}

// writeUnauthorized writes a 401 Unauthorized response with the
// reverse-proxy realm challenge (used only when reverse-proxy auth is
// configured against the Authorization header).
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", authRealm)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(authChallengeBody))
}

// writeProxyError writes a generic, infrastructure-detail-free error
// response for a ProxyError.
func writeProxyError(w http.ResponseWriter, pe *ProxyError) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(pe.HTTPCode)
	w.Write([]byte(pe.Message))
}

// classifyUpstreamError maps an upstream error from the simple-proxy or
// reverse-proxy path to a ProxyError. Returns nil for context.Canceled,
// since client-initiated cancellation is not an upstream failure worth
// reporting.
func classifyUpstreamError(err error) *ProxyError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	return ErrUpstreamIO
}

// classifyConnectError classifies errors from the CONNECT dial path. All
// non-timeout, non-canceled errors are connect failures, never generic I/O
// failures, since nothing has been read or written yet at this point.
func classifyConnectError(err error) *ProxyError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	return ErrUpstreamConnectFailed
}
