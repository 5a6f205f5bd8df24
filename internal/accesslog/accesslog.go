// Package accesslog implements proxy.EventEmitter, writing one line per
// completed request: "request_id client_ip user METHOD target proto
// status=... outcome=... proxy=... dur=...us".
package accesslog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/arloor/multiproxy/internal/proxy"
)

// Logger emits one access-log line per proxy.RequestLogEntry.
type Logger struct {
	out *log.Logger
}

// New builds a Logger writing to logDir/logFile. An empty logDir writes to
// stderr instead of opening a file, matching the teacher's fall-through
// default when no log directory is configured.
func New(logDir, logFile string) (*Logger, error) {
	var w io.Writer = os.Stderr
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %q: %w", logDir, err)
		}
		f, err := os.OpenFile(filepath.Join(logDir, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
	}
	return &Logger{out: log.New(w, "", log.LstdFlags)}, nil
}

// EmitRequestLog implements proxy.EventEmitter.
func (l *Logger) EmitRequestLog(entry proxy.RequestLogEntry) {
	target := entry.TargetURL
	if target == "" {
		target = entry.TargetHost
	}
	account := entry.Account
	if account == "" {
		account = proxy.AnonymousUsername
	}
	l.out.Printf("%s %s %s %s %s %s status=%d outcome=%s proxy=%s dur=%dus",
		entry.RequestID,
		entry.ClientIP,
		account,
		entry.HTTPMethod,
		target,
		entry.HTTPProto,
		entry.HTTPStatus,
		outcomeLabel(entry.Outcome),
		entry.ProxyType,
		entry.DurationNs/1000,
	)
}

func outcomeLabel(k proxy.OutcomeKind) string {
	switch k {
	case proxy.OutcomeDrop:
		return "drop"
	case proxy.OutcomeReturn:
		return "return"
	case proxy.OutcomeContinue:
		return "continue"
	default:
		return "unknown"
	}
}
