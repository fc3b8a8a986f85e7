package resource

import (
	"context"

	"github.com/shanliu/lsys-access/id"
)

// Store defines persistence operations for resources.
//
// DeleteResourceCascade and DisableOtherResources run multiple statements;
// backends execute them inside a single transaction.
type Store interface {
	// CreateResource persists a new resource.
	CreateResource(ctx context.Context, r *Resource) error

	// GetResource retrieves a resource by ID, regardless of status.
	GetResource(ctx context.Context, resID id.ResourceID) (*Resource, error)

	// GetResourceByIdentity retrieves the Enabled resource with the given
	// identity tuple.
	GetResourceByIdentity(ctx context.Context, ident Identity) (*Resource, error)

	// UpdateResource persists changes to a resource.
	UpdateResource(ctx context.Context, r *Resource) error

	// DisableOtherResources soft-deletes every Enabled resource sharing the
	// identity tuple except keep. Closes the insert race window after a
	// uniqueness pre-check.
	DisableOtherResources(ctx context.Context, ident Identity, keep id.ResourceID, changeUserID string) error

	// DeleteResourceCascade soft-deletes the resource and every permission
	// grant referencing it, atomically.
	DeleteResourceCascade(ctx context.Context, resID id.ResourceID, changeUserID string) error

	// ListResources returns Enabled resources matching the filter.
	ListResources(ctx context.Context, filter *ListFilter) ([]*Resource, error)

	// CountResources returns the number of Enabled resources matching the filter.
	CountResources(ctx context.Context, filter *ListFilter) (int64, error)
}
