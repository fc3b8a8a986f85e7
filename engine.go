package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shanliu/lsys-access/changelog"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/plugin"
	"github.com/shanliu/lsys-access/store"
)

// Engine is the central authorization core. It composes the catalog, the
// role registry, the tag index, and the checker over one store, one cache,
// and one invalidation transport.
type Engine struct {
	store     store.Store
	cache     Cache
	notifier  Notifier
	plugins   *plugin.Registry
	logger    *slog.Logger
	config    Config
	relations map[string]Relation
}

// NewEngine creates a new access engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("access: store is required")
	}
	if e.config.MaxDependDepth <= 0 {
		e.config.MaxDependDepth = DefaultConfig().MaxDependDepth
	}
	if err := validateRelations(e.relations); err != nil {
		return nil, err
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Catalog returns the resource/operation catalog facade.
func (e *Engine) Catalog() *Catalog { return &Catalog{e: e} }

// Registry returns the role registry facade.
func (e *Engine) Registry() *Registry { return &Registry{e: e} }

// Tags returns the tag index facade.
func (e *Engine) Tags() *TagIndex { return &TagIndex{e: e} }

// Changes returns the facade for reading the mutation audit trail.
func (e *Engine) Changes() *Changes { return &Changes{e: e} }

// Start begins consuming sibling invalidation broadcasts. It returns after
// the subscription is set up; delivery runs until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	if e.notifier == nil || e.cache == nil {
		return nil
	}
	return e.notifier.Subscribe(ctx, func(key string) {
		e.cache.Clear(context.WithoutCancel(ctx), key)
	})
}

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// cacheGet reads through the cache unless caching is disabled.
func (e *Engine) cacheGet(ctx context.Context, key string) (any, bool) {
	if e.cache == nil || e.config.DisableCache {
		return nil, false
	}
	return e.cache.Get(ctx, key)
}

// cacheSet stores through the cache unless caching is disabled.
func (e *Engine) cacheSet(ctx context.Context, key string, value any) {
	if e.cache == nil || e.config.DisableCache {
		return
	}
	e.cache.Set(ctx, key, value)
}

// invalidate clears keys locally, then broadcasts each clear to sibling
// processes. Runs only after the owning transaction committed; a broadcast
// failure is logged, never propagated — correctness does not depend on it
// completing synchronously. Broadcasts are NOT gated on DisableCache: a
// process running with caching off still announces its writes so caching
// siblings stay coherent.
func (e *Engine) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if e.cache != nil {
			e.cache.Clear(ctx, key)
		}
		if e.notifier == nil {
			continue
		}
		if err := e.notifier.Publish(ctx, key); err != nil {
			e.logger.WarnContext(ctx, "access: invalidation broadcast failed",
				slog.String("key", key), slog.Any("error", err))
		}
	}
}

// audit writes one change entry. Fire-and-forget: a failure is logged at
// warning level and does not fail the call.
func (e *Engine) audit(ctx context.Context, action, entityKind string, entityID id.ID, before, after string) {
	scope := scopeFromContext(ctx)
	entry := &changelog.Entry{
		ID:         id.NewChangeID(),
		Action:     action,
		ActorID:    scope.actorID,
		AppID:      scope.appID,
		EntityKind: entityKind,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateChange(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "access: change log write failed",
			slog.String("action", action),
			slog.String("entity", entityID.String()),
			slog.Any("error", err))
	}
}
