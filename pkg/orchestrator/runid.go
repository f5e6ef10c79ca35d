package orchestrator

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const turnIDKey contextKey = "orchestrator_turn_id"

// withTurnID stamps ctx with a fresh turn ID if it does not already carry
// one, so a single GenerateWithTools call keeps the same ID across every
// round's span and event.
func withTurnID(ctx context.Context) context.Context {
	if ctx.Value(turnIDKey) != nil {
		return ctx
	}
	return context.WithValue(ctx, turnIDKey, uuid.New().String())
}

// turnIDFrom returns the turn ID stamped by withTurnID, or "" if none.
func turnIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(turnIDKey).(string)
	return id
}
