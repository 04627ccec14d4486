package services

import "context"

type contextKey string

const (
	deckIDKey    contextKey = "deck_id"
	modeKey      contextKey = "mode"
	requestIDKey contextKey = "request_id"
)

// WithDeckID annotates context with the active study deck.
func WithDeckID(ctx context.Context, deckID string) context.Context {
	if deckID == "" {
		return ctx
	}
	return context.WithValue(ctx, deckIDKey, deckID)
}

// DeckIDFromContext returns the deck identifier if present.
func DeckIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(deckIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithMode annotates context with the card mode being submitted.
func WithMode(ctx context.Context, mode string) context.Context {
	if mode == "" {
		return ctx
	}
	return context.WithValue(ctx, modeKey, mode)
}

// ModeFromContext returns the card mode if present.
func ModeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(modeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
