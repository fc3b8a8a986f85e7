package plugin

import (
	"context"
	"log/slog"

	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/role"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type resourceChangedEntry struct {
	name string
	hook ResourceChanged
}
type operationChangedEntry struct {
	name string
	hook OperationChanged
}
type roleChangedEntry struct {
	name string
	hook RoleChanged
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck      []beforeCheckEntry
	afterCheck       []afterCheckEntry
	resourceChanged  []resourceChangedEntry
	operationChanged []operationChangedEntry
	roleChanged      []roleChangedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(ResourceChanged); ok {
		r.resourceChanged = append(r.resourceChanged, resourceChangedEntry{name, h})
	}
	if h, ok := p.(OperationChanged); ok {
		r.operationChanged = append(r.operationChanged, operationChangedEntry{name, h})
	}
	if h, ok := p.(RoleChanged); ok {
		r.roleChanged = append(r.roleChanged, roleChangedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, userID string) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, userID); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, userID string, result error) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, userID, result); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// EmitResourceChanged notifies all plugins that implement ResourceChanged.
func (r *Registry) EmitResourceChanged(ctx context.Context, res *resource.Resource) {
	for _, e := range r.resourceChanged {
		if err := e.hook.OnResourceChanged(ctx, res); err != nil {
			r.logHookError("OnResourceChanged", e.name, err)
		}
	}
}

// EmitOperationChanged notifies all plugins that implement OperationChanged.
func (r *Registry) EmitOperationChanged(ctx context.Context, op *operation.Operation) {
	for _, e := range r.operationChanged {
		if err := e.hook.OnOperationChanged(ctx, op); err != nil {
			r.logHookError("OnOperationChanged", e.name, err)
		}
	}
}

// EmitRoleChanged notifies all plugins that implement RoleChanged.
func (r *Registry) EmitRoleChanged(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleChanged {
		if err := e.hook.OnRoleChanged(ctx, rl); err != nil {
			r.logHookError("OnRoleChanged", e.name, err)
		}
	}
}

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
