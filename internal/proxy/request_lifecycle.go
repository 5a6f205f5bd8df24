package proxy

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// requestLifecycle accumulates the fields of one RequestLogEntry as the
// Dispatcher walks its decision tree, emitting it exactly once on finish.
type requestLifecycle struct {
	startedAt time.Time
	events    EventEmitter
	log       RequestLogEntry
}

func newRequestLifecycle(events EventEmitter, r *http.Request) *requestLifecycle {
	method, proto := "", ""
	if r != nil {
		method = r.Method
		proto = r.Proto
	}
	now := time.Now()
	return &requestLifecycle{
		startedAt: now,
		events:    events,
		log: RequestLogEntry{
			RequestID:   uuid.NewString(),
			StartedAtNs: now.UnixNano(),
			HTTPMethod:  method,
			HTTPProto:   proto,
			ClientIP:    clientIPOf(r),
		},
	}
}

func (l *requestLifecycle) finish() {
	l.log.DurationNs = time.Since(l.startedAt).Nanoseconds()
	l.events.EmitRequestLog(l.log)
}

func (l *requestLifecycle) setProxyType(pt ProxyType) { l.log.ProxyType = pt }
func (l *requestLifecycle) setOutcome(k OutcomeKind)   { l.log.Outcome = k }
func (l *requestLifecycle) setHTTPStatus(code int)     { l.log.HTTPStatus = code }
func (l *requestLifecycle) setAccount(account string)  { l.log.Account = account }

func (l *requestLifecycle) setTarget(host, rawURL string) {
	l.log.TargetHost = host
	l.log.TargetURL = rawURL
}
