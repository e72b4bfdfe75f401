package observability

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Audit emits one structured record per security-relevant action (login,
// lockout, verification, password change). Attrs must never contain secrets
// or raw proofs.
func Audit(r *http.Request, event string, attrs ...any) {
	ctx := r.Context()
	fields := make([]any, 0, 8+len(attrs))
	fields = append(fields,
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	)
	fields = append(fields, attrs...)

	msg := "audit"
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		msg = "audit trace_id=" + sc.TraceID().String() + " span_id=" + sc.SpanID().String()
	}
	slog.InfoContext(ctx, msg, fields...)
}
