package binding

import (
	"context"
	"time"

	"github.com/shanliu/lsys-access/id"
)

// Store defines persistence operations for role-user bindings.
type Store interface {
	// SetRoleUsers replaces the Enabled membership of a role via diff:
	// users in the new set but not bound are inserted, bound users absent
	// from the new set are soft-deleted, and timeout changes rewrite the
	// row. One transaction.
	SetRoleUsers(ctx context.Context, roleID id.RoleID, users []UserEntry, changeUserID string) error

	// ListUsersForRole returns Enabled bindings of a role.
	ListUsersForRole(ctx context.Context, roleID id.RoleID) ([]*Binding, error)

	// ListBindingsForUser returns the user's Enabled, unexpired bindings
	// at now. Timeouts ride along so callers can re-check expiry later.
	ListBindingsForUser(ctx context.Context, userID string, now time.Time) ([]*Binding, error)

	// PurgeExpiredBindings soft-deletes Enabled bindings expired before now
	// and reports how many rows changed.
	PurgeExpiredBindings(ctx context.Context, now time.Time, changeUserID string) (int64, error)
}
