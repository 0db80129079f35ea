package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"

	"verdict.app/engine/core/config"
)

// Setup installs the default slog logger on stdout.
func Setup(cfg config.Config) {
	SetupWriter(cfg, os.Stdout)
}

// SetupWriter installs the default slog logger with local output going to w.
// The CLI passes stderr so rendered verdicts stay pipeable.
func SetupWriter(cfg config.Config, w io.Writer) {
	slog.SetDefault(slog.New(NewHandler(cfg, w)))
}

// NewHandler picks the handler for the environment. Production with an OTLP
// endpoint ships records through the otelslog bridge; production without one
// writes JSON; everything else writes text.
func NewHandler(cfg config.Config, w io.Writer) slog.Handler {
	if cfg.IsProduction() && cfg.OTel.Enabled() {
		return otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)
	}

	opts := &slog.HandlerOptions{Level: Level(cfg)}
	if cfg.IsProduction() {
		return NewTraceHandler(slog.NewJSONHandler(w, opts))
	}
	return NewTraceHandler(slog.NewTextHandler(w, opts))
}

// Level resolves LOG_LEVEL, falling back to debug in development and info
// elsewhere. Unknown values fall back the same way.
func Level(cfg config.Config) slog.Level {
	if cfg.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err == nil {
			return lvl
		}
	}
	if cfg.IsDevelopment() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// TraceHandler adds the active trace and the context's LogFields to records.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	r.AddAttrs(fieldLogAttrs(GetLogFields(ctx))...)
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

func fieldLogAttrs(f LogFields) []slog.Attr {
	attrs := make([]slog.Attr, 0, 6)
	if f.SubmissionID != nil {
		attrs = append(attrs, slog.Int64("submission_id", *f.SubmissionID))
	}
	if f.EvaluationID != nil {
		attrs = append(attrs, slog.Int64("evaluation_id", *f.EvaluationID))
	}
	if f.ReportKind != nil {
		attrs = append(attrs, slog.String("report_kind", *f.ReportKind))
	}
	if f.Identifier != nil {
		attrs = append(attrs, slog.String("identifier", *f.Identifier))
	}
	if f.MessageID != nil {
		attrs = append(attrs, slog.String("message_id", *f.MessageID))
	}
	if f.Component != "" {
		attrs = append(attrs, slog.String("component", f.Component))
	}
	return attrs
}
