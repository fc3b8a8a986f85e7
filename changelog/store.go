package changelog

import (
	"context"
	"time"

	"github.com/shanliu/lsys-access/id"
)

// Store defines persistence operations for the change audit trail.
type Store interface {
	// CreateChange persists a new change entry.
	CreateChange(ctx context.Context, e *Entry) error

	// GetChange retrieves a change entry by ID.
	GetChange(ctx context.Context, chgID id.ChangeID) (*Entry, error)

	// ListChanges returns change entries matching the filter, newest first.
	ListChanges(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountChanges returns the number of entries matching the filter.
	CountChanges(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeChanges removes change entries older than the given time.
	PurgeChanges(ctx context.Context, before time.Time) (int64, error)
}
