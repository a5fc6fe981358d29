package auth

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated subject on whose behalf a movement runs.
// Identity is verified upstream; the engine only attributes audit records
// to it.
type Actor struct {
	ID   uuid.UUID
	Role string
}

type actorKey struct{}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
