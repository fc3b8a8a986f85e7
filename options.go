package access

import (
	"log/slog"

	"github.com/shanliu/lsys-access/plugin"
	"github.com/shanliu/lsys-access/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithCache sets the lookup cache.
func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithNotifier sets the cross-process invalidation transport.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithRelation registers a named check relation. Dependency declarations
// across all registered relations are validated for cycles by NewEngine.
func WithRelation(r Relation) Option {
	return func(e *Engine) {
		if e.relations == nil {
			e.relations = make(map[string]Relation)
		}
		e.relations[r.Name()] = r
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) {
		if e.plugins == nil {
			e.plugins = plugin.NewRegistry(e.logger)
		}
		e.plugins.Register(x)
	}
}
