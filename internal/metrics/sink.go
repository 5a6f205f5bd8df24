// Package metrics implements proxy.MetricsEventSink with Prometheus counter
// and gauge families, exposed on a /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arloor/multiproxy/internal/netutil"
	"github.com/arloor/multiproxy/internal/proxy"
)

const namespace = "multiproxy"

// directionLabel renders a ConnectionDirection as a metric label value.
func directionLabel(d proxy.ConnectionDirection) string {
	if d == proxy.ConnectionInbound {
		return "inbound"
	}
	return "outbound"
}

// Sink implements proxy.MetricsEventSink backed by Prometheus metric
// families. Target cardinality is bounded by reducing AccessLabel.Target to
// its registrable domain before labeling — raw per-IP or per-host labels
// would grow unbounded with every client or upstream ever seen.
type Sink struct {
	trafficBytes     *prometheus.CounterVec
	connectionsTotal *prometheus.CounterVec
	connectionsOpen  *prometheus.GaugeVec
}

// NewSink registers and returns a Sink on the given registerer.
// cmd/multiproxy passes the registry it serves on /metrics.
func NewSink(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		trafficBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traffic_bytes_total",
			Help:      "Bytes transferred per connection direction and traffic direction.",
		}, []string{"conn_direction", "traffic_direction", "target_domain"}),
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connection open/close events by direction.",
		}, []string{"conn_direction", "op"}),
		connectionsOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Currently open connections by direction.",
		}, []string{"conn_direction"}),
	}
}

// OnTrafficDelta implements proxy.MetricsEventSink.
func (s *Sink) OnTrafficDelta(label proxy.AccessLabel, ingressBytes, egressBytes int64) {
	domain := netutil.ExtractDomain(label.Target)
	if ingressBytes > 0 {
		s.trafficBytes.WithLabelValues("outbound", "ingress", domain).Add(float64(ingressBytes))
	}
	if egressBytes > 0 {
		s.trafficBytes.WithLabelValues("outbound", "egress", domain).Add(float64(egressBytes))
	}
}

// OnConnectionLifecycle implements proxy.MetricsEventSink.
func (s *Sink) OnConnectionLifecycle(direction proxy.ConnectionDirection, op proxy.ConnectionOp) {
	dir := directionLabel(direction)
	switch op {
	case proxy.ConnectionOpen:
		s.connectionsTotal.WithLabelValues(dir, "open").Inc()
		s.connectionsOpen.WithLabelValues(dir).Inc()
	case proxy.ConnectionClose:
		s.connectionsTotal.WithLabelValues(dir, "close").Inc()
		s.connectionsOpen.WithLabelValues(dir).Dec()
	}
}
