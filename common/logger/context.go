package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so the submission and report kind a log line
// belongs to never have to be passed by hand.
type LogFields struct {
	SubmissionID *int64  // Snowflake id assigned when an idea is accepted
	EvaluationID *int64  // Persisted evaluation row id
	ReportKind   *string // MARKET, TECH, RISK or FEEDBACK
	Identifier   *string // Rate-limit identifier of the caller
	MessageID    *string // Redis stream message ID
	Component    string  // Component name (OTel semantic convention style, e.g., "verdict.brain.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.SubmissionID != nil {
		result.SubmissionID = next.SubmissionID
	}
	if next.EvaluationID != nil {
		result.EvaluationID = next.EvaluationID
	}
	if next.ReportKind != nil {
		result.ReportKind = next.ReportKind
	}
	if next.Identifier != nil {
		result.Identifier = next.Identifier
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{SubmissionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen runes, appending "..." if truncated.
// Useful for logging idea text or provider error bodies.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
