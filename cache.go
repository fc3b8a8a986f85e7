package access

import (
	"context"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/resource"
)

// Cache is the process-local keyed cache for lookup results. It has no TTL;
// staleness is bounded purely by invalidation completeness, so every
// mutation path must pair with a Clear of the keys it can affect. Clear is
// idempotent — out-of-order or repeated invalidation deliveries are
// harmless.
type Cache interface {
	// Get returns the cached value for key, if present.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores a value under key.
	Set(ctx context.Context, key string, value any)

	// Clear removes the entry for key.
	Clear(ctx context.Context, key string)
}

// Notifier broadcasts cache-clear keys to sibling processes. Delivery is
// at-least-once and best-effort: the engine clears locally first and only
// then publishes, and a publish failure is logged, never propagated.
type Notifier interface {
	// Publish broadcasts one cache-clear key.
	Publish(ctx context.Context, key string) error

	// Subscribe invokes fn for every key broadcast by a sibling process
	// until ctx is done.
	Subscribe(ctx context.Context, fn func(key string)) error
}

// cachedMiss marks a cached negative lookup so repeated misses skip the
// store.
type cachedMiss struct{}

// Cache key builders. One shape per cached lookup.

func resCacheKey(ident resource.Identity) string {
	return "res:" + ident.OwnerUserID + ":" + ident.AppID + ":" + ident.ResType + ":" + ident.ResData
}

func opCacheKey(ident operation.Identity) string {
	return "op:" + ident.OwnerUserID + ":" + ident.AppID + ":" + ident.OpKey
}

// roleCacheKey is the coarse key covering a role's computed grant set. Role
// mutations whose blast radius is not enumerable clear this one key.
func roleCacheKey(roleID id.RoleID) string {
	return "role:" + roleID.String()
}

// accessCacheKey covers the computed role list for one caller under one
// resource owner scope.
func accessCacheKey(ownerUserID, userID string) string {
	return "acc:" + ownerUserID + ":" + userID
}

// sessionCacheKey covers the session-range role list of one owner.
func sessionCacheKey(ownerUserID string) string {
	return "sess:" + ownerUserID
}
