// Package plugin defines lifecycle hooks for the access engine.
// Plugins are notified of lifecycle events (check performed, resource
// mutated, role mutated, etc.) and can react with logging, metrics, or
// tracing.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before an authorization check is evaluated.
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, userID string) error
}

// AfterCheck is called after an authorization check completes. The result
// is nil on allow and the deny or lookup error otherwise.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, userID string, result error) error
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// ResourceChanged is called after a resource is created, edited, or deleted.
type ResourceChanged interface {
	OnResourceChanged(ctx context.Context, r *resource.Resource) error
}

// OperationChanged is called after an operation is created, edited, or
// deleted.
type OperationChanged interface {
	OnOperationChanged(ctx context.Context, o *operation.Operation) error
}

// ──────────────────────────────────────────────────
// Registry lifecycle hooks
// ──────────────────────────────────────────────────

// RoleChanged is called after a role is created, edited, or deleted.
type RoleChanged interface {
	OnRoleChanged(ctx context.Context, r *role.Role) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
