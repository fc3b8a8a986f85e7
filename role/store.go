package role

import (
	"context"
	"time"

	"github.com/shanliu/lsys-access/id"
)

// Store defines persistence operations for roles.
type Store interface {
	// CreateRole persists a new role.
	CreateRole(ctx context.Context, r *Role) error

	// GetRole retrieves a role by ID, regardless of status.
	GetRole(ctx context.Context, roleID id.RoleID) (*Role, error)

	// GetRoleByKey retrieves the Enabled role with the given key under one
	// owner. Session-range lookup path.
	GetRoleByKey(ctx context.Context, ownerUserID, roleKey string) (*Role, error)

	// FindRoleConflict returns Enabled roles of one owner whose RoleName
	// equals name or, when key is non-empty, whose RoleKey equals key.
	// Single combined lookup covering both uniqueness constraints.
	FindRoleConflict(ctx context.Context, ownerUserID, name, key string) ([]*Role, error)

	// UpdateRole persists changes to a role.
	UpdateRole(ctx context.Context, r *Role) error

	// DeleteRoleCascade soft-deletes the role, its Perm rows, and its
	// Binding rows, atomically.
	DeleteRoleCascade(ctx context.Context, roleID id.RoleID, changeUserID string) error

	// ListRoles returns Enabled roles matching the filter.
	ListRoles(ctx context.Context, filter *ListFilter) ([]*Role, error)

	// CountRoles returns the number of Enabled roles matching the filter.
	CountRoles(ctx context.Context, filter *ListFilter) (int64, error)

	// ListSessionRoles returns Enabled session-range roles for one owner,
	// ordered by priority descending.
	ListSessionRoles(ctx context.Context, ownerUserID string) ([]*Role, error)

	// CountUsersPerRole counts Enabled bindings per role. When onlyLive is
	// set, bindings expired before now are excluded.
	CountUsersPerRole(ctx context.Context, roleIDs []id.RoleID, onlyLive bool, now time.Time) ([]UserCount, error)
}
