package booking

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const operationIDKey contextKey = "operationID"

func NewContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

func OperationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(operationIDKey).(string)

	return id, ok
}

// ensureOperationID keeps the operation id set by the caller or creates a new one.
func ensureOperationID(ctx context.Context) (context.Context, string) {
	if id, ok := OperationIDFromContext(ctx); ok && id != "" {
		return ctx, id
	}

	id := uuid.NewString()

	return NewContextWithOperationID(ctx, id), id
}
