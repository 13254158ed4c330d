package actorx

import "context"

type contextKey struct{}

type Actor struct {
	ID   string
	Role string
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func FromContext(ctx context.Context) (Actor, bool) {
	if v := ctx.Value(contextKey{}); v != nil {
		if a, ok := v.(Actor); ok {
			return a, true
		}
	}
	return Actor{}, false
}

func ActorIDFromContext(ctx context.Context) string {
	if a, ok := FromContext(ctx); ok {
		return a.ID
	}
	return ""
}
