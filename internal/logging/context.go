package logging

import (
	"context"
	"log/slog"

	"tmcore/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobGUID is the standardized key for translation job identifiers.
	FieldJobGUID = "job_guid"
	// FieldPair is the standardized key for "src|tgt" language pairs.
	FieldPair = "lang_pair"
	// FieldChannel is the standardized key for snapshot channel names.
	FieldChannel = "channel"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if guid, ok := services.JobGUIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobGUID, guid))
	}
	if pair, ok := services.PairFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPair, pair))
	}
	if channel, ok := services.ChannelFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldChannel, channel))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
