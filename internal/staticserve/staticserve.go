// Package staticserve implements the Dispatcher's static-file branch:
// serving files from a web root, Referer-based image hotlink protection, and
// an external-referral counter for HTML resources.
package staticserve

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

var htmlExtensions = map[string]bool{
	".html": true, ".htm": true, "": true, // extension-less requests resolve to index.html
}

// Server serves static files from Root, applying Referer-based hotlink
// protection to image requests and counting external referrals to HTML
// resources.
type Server struct {
	Root             string
	RefererKeywords  []string
	fileHandler      http.Handler
	externalReferral *prometheus.CounterVec
}

// New builds a Server rooted at dir, registering its external-referral
// counter on reg.
func New(dir string, refererKeywords []string, reg prometheus.Registerer) *Server {
	return &Server{
		Root:            dir,
		RefererKeywords: refererKeywords,
		fileHandler:     http.FileServer(http.Dir(dir)),
		externalReferral: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiproxy",
			Name:      "static_external_referrals_total",
			Help:      "HTML requests whose Referer did not match any configured self keyword.",
		}, []string{"ext"}),
	}
}

// ServeFile implements proxy.StaticFileResponder. It returns the status
// actually written so the Dispatcher can detect the 404-continue case.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request) int {
	ext := strings.ToLower(filepath.Ext(r.URL.Path))
	referer := r.Header.Get("Referer")
	isSelfReferral := referer == "" || s.matchesSelfKeyword(referer)

	if imageExtensions[ext] && !isSelfReferral {
		http.Error(w, "hotlinking forbidden", http.StatusForbidden)
		return http.StatusForbidden
	}
	if htmlExtensions[ext] && !isSelfReferral {
		s.externalReferral.WithLabelValues(ext).Inc()
	}

	rec := &statusRecordingWriter{ResponseWriter: w, status: http.StatusOK}
	s.fileHandler.ServeHTTP(rec, r)
	return rec.status
}

func (s *Server) matchesSelfKeyword(referer string) bool {
	if len(s.RefererKeywords) == 0 {
		return true
	}
	for _, keyword := range s.RefererKeywords {
		if strings.Contains(referer, keyword) {
			return true
		}
	}
	return false
}

// statusRecordingWriter captures the status code http.FileServer writes so
// the Dispatcher's 404-continue contract can observe it without http.FileServer
// knowing about Outcome.
type statusRecordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecordingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecordingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
