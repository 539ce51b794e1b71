package xlog

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	connIDKey ctxKey = "conn_id"
)

// ContextWithConnID stores the provided network-session connection id in the context.
func ContextWithConnID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, connIDKey, id)
}

// ConnIDFromContext extracts the connection id from context if present.
func ConnIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(connIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with the connection id from context, if any.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	if cid := ConnIDFromContext(ctx); cid != "" {
		return logger.With().Str("conn_id", cid).Logger()
	}
	return logger
}
