package github

import "context"

// Actor identifies who triggered an operation, for the audit trail.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
