package shared

import (
	"context"
	"strings"
)

// SystemActor is recorded for decisions taken by background processes.
const SystemActor = "system"

type actorContextKey struct{}

// ContextWithActor stores the authenticated login identifier in context.
func ContextWithActor(ctx context.Context, identifier string) context.Context {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, identifier)
}

// ActorFromContext extracts the authenticated login identifier from context.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorContextKey{}).(string)
	return actor, ok && actor != ""
}
