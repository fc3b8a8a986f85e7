package access

import "context"

type contextKey int

const (
	ctxKeyAppID contextKey = iota
	ctxKeyActorID
)

// WithActor returns a context carrying the app scope and the acting user id.
// The actor is recorded as change_user_id on every mutation. Use this for
// standalone mode (without Forge).
func WithActor(ctx context.Context, appID, actorUserID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyAppID, appID)
	ctx = context.WithValue(ctx, ctxKeyActorID, actorUserID)
	return ctx
}

func appIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyAppID).(string)
	if !ok {
		return ""
	}
	return v
}

func actorIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyActorID).(string)
	if !ok {
		return ""
	}
	return v
}
