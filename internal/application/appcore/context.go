package appcore

import (
	"context"

	"github.com/lllypuk/eventcore/internal/domain/event"
)

// Context keys
type contextKey string

const (
	userIDKey        contextKey = "userID"
	correlationIDKey contextKey = "correlationID"
	causationIDKey   contextKey = "causationID"
)

// WithUserID adds the acting user id to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithCorrelationID adds the correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// WithCausationID adds the causing command or event id to the context
func WithCausationID(ctx context.Context, causationID string) context.Context {
	return context.WithValue(ctx, causationIDKey, causationID)
}

// CorrelationID extracts the correlation ID from the context
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// MetadataFromContext builds event metadata from the values set on ctx.
// The second result is false when ctx carries none of them.
func MetadataFromContext(ctx context.Context) (event.Metadata, bool) {
	userID, _ := ctx.Value(userIDKey).(string)
	correlationID, _ := ctx.Value(correlationIDKey).(string)
	causationID, _ := ctx.Value(causationIDKey).(string)

	if userID == "" && correlationID == "" && causationID == "" {
		return event.Metadata{}, false
	}
	return event.NewMetadata(userID, correlationID, causationID), true
}
