package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// The orchestrator enriches the context once per cycle and once per step, so every
// log line emitted by a collaborator carries the cycle it belongs to.
type LogFields struct {
	CycleID   *int64  // Snowflake id of the running cycle
	Step      *string // Cycle step (e.g., "reply_mentions", "post")
	Strategy  *string // Content strategy chosen for the post step
	PostID    *string // Platform post id being replied to or just created
	Component string  // Component name (OTel semantic convention style, e.g., "agent.cycle.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
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

	if next.CycleID != nil {
		result.CycleID = next.CycleID
	}
	if next.Step != nil {
		result.Step = next.Step
	}
	if next.Strategy != nil {
		result.Strategy = next.Strategy
	}
	if next.PostID != nil {
		result.PostID = next.PostID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{PostID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to at most maxLen runes, appending "..." if truncated.
// Generated text is logged through this so a runaway completion cannot flood the log.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
