package logging

import (
	"context"
	"log/slog"

	"captionminer/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. caption_changed, card_queued).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDeckID is the standardized structured logging key for the study deck.
	FieldDeckID = "deck_id"
	// FieldMode is the standardized structured logging key for card modes.
	FieldMode = "mode"
	// FieldCaption carries the caption text a log line refers to.
	FieldCaption = "caption"
	// FieldTarget carries the selected text a card is built from.
	FieldTarget = "target"
	// FieldTokens is the token count of the current caption.
	FieldTokens = "tokens"
	// FieldSelected lists the selected token indices.
	FieldSelected = "selected"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if deckID, ok := services.DeckIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDeckID, deckID))
	}
	if mode, ok := services.ModeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMode, mode))
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
	return logger.With(Args(fields...)...)
}
