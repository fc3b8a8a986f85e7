package permission

import (
	"context"

	"github.com/shanliu/lsys-access/id"
)

// Store defines persistence operations for permission grants.
type Store interface {
	// SetRolePerms replaces the Enabled grant set of a role via diff:
	// pairs in the new set but not granted are inserted, granted pairs
	// absent from the new set are soft-deleted. One transaction.
	SetRolePerms(ctx context.Context, roleID id.RoleID, entries []Entry, changeUserID string) error

	// ListPermsForRole returns Enabled grants of a role.
	ListPermsForRole(ctx context.Context, roleID id.RoleID) ([]*Perm, error)

	// ListPermsForRoles returns Enabled grants of many roles in one trip.
	ListPermsForRoles(ctx context.Context, roleIDs []id.RoleID) ([]*Perm, error)

	// ListPermsForResource returns Enabled grants referencing a resource.
	ListPermsForResource(ctx context.Context, resID id.ResourceID) ([]*Perm, error)
}
