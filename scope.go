package access

import (
	"context"

	"github.com/xraph/forge"
)

type actorScope struct {
	appID   string
	actorID string
}

// scopeFromContext extracts the app scope from forge.Scope when present and
// falls back to the standalone context values. The acting user always comes
// from WithActor.
func scopeFromContext(ctx context.Context) actorScope {
	if s, ok := forge.ScopeFrom(ctx); ok {
		return actorScope{
			appID:   s.AppID(),
			actorID: actorIDFromContext(ctx),
		}
	}
	return actorScope{
		appID:   appIDFromContext(ctx),
		actorID: actorIDFromContext(ctx),
	}
}
