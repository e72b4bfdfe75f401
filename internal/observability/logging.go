package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/resumekit/resumekit/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otlploggrpc "go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

// teeHandler duplicates every record to each wrapped handler, so stdout and
// the OTLP bridge observe the same stream.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range t.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{handlers: mapHandlers(t.handlers, func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{handlers: mapHandlers(t.handlers, func(h slog.Handler) slog.Handler { return h.WithGroup(name) })}
}

func mapHandlers(hs []slog.Handler, f func(slog.Handler) slog.Handler) []slog.Handler {
	out := make([]slog.Handler, len(hs))
	for i, h := range hs {
		out[i] = f(h)
	}
	return out
}

// spanAttrHandler stamps the active trace and span IDs onto every record.
// Records outside a span carry empty IDs so log queries stay shape-stable.
type spanAttrHandler struct {
	next slog.Handler
}

func (h *spanAttrHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *spanAttrHandler) Handle(ctx context.Context, r slog.Record) error {
	var traceID, spanID string
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}
	r.AddAttrs(slog.String("trace_id", traceID), slog.String("span_id", spanID))
	return h.next.Handle(ctx, r)
}

func (h *spanAttrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanAttrHandler{next: h.next.WithAttrs(attrs)}
}

func (h *spanAttrHandler) WithGroup(name string) slog.Handler {
	return &spanAttrHandler{next: h.next.WithGroup(name)}
}

var (
	loggerMu     sync.RWMutex
	globalLogger *slog.Logger
)

func NewLogger() *slog.Logger {
	loggerMu.RLock()
	l := globalLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewBootstrapLogger covers the window before the OTel pipeline is up.
func NewBootstrapLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.OTELLogLevel)}))
}

func InitLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.OTELLogLevel)})

	var sink slog.Handler = stdout
	if cfg.OTELLogsEnabled && lp != nil {
		bridge := otelslog.NewHandler(cfg.OTELServiceName, otelslog.WithLoggerProvider(lp))
		sink = &teeHandler{handlers: []slog.Handler{stdout, bridge}}
	}

	l := slog.New(&spanAttrHandler{next: sink})
	loggerMu.Lock()
	globalLogger = l
	loggerMu.Unlock()
	slog.SetDefault(l)
	return l
}

func InitLogs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdklog.LoggerProvider, error) {
	if !cfg.OTELLogsEnabled {
		logger.Info("otel logs disabled")
		return nil, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp log exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	logger.Info("otel logs initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return lp, nil
}

func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
