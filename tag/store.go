package tag

import (
	"context"

	"github.com/shanliu/lsys-access/id"
)

// Store defines persistence operations for tags.
//
// SetTags applies the symmetric difference against the currently Enabled
// tags for (fromID, source): names in the new set but not stored are
// inserted, names stored but absent are soft-deleted. Both run in one
// transaction; a delete-only diff still commits its deletions.
type Store interface {
	// SetTags replaces the Enabled tag set for one entity via diff.
	SetTags(ctx context.Context, fromID id.ID, source Source, ownerUserID string, names []string, changeUserID string) error

	// DeleteTags soft-deletes every Enabled tag for one entity.
	DeleteTags(ctx context.Context, fromID id.ID, source Source, changeUserID string) error

	// ListTags returns the Enabled tags for one entity.
	ListTags(ctx context.Context, fromID id.ID, source Source) ([]*Tag, error)

	// FindTagsByName returns Enabled tags with any of the given names under
	// one owner and source. An empty names slice returns an empty result
	// without querying.
	FindTagsByName(ctx context.Context, ownerUserID string, source Source, names []string) ([]*Tag, error)

	// FindTagsByIDs returns Enabled tags attached to any of the given entity
	// ids under one source. An empty ids slice returns an empty result
	// without querying.
	FindTagsByIDs(ctx context.Context, source Source, fromIDs []id.ID) ([]*Tag, error)

	// GroupTagsByOwner aggregates Enabled tag names to counts for one owner
	// and source.
	GroupTagsByOwner(ctx context.Context, ownerUserID string, source Source) ([]GroupCount, error)

	// CountTagsByName returns the number of Enabled tags with the given name
	// under one owner and source.
	CountTagsByName(ctx context.Context, ownerUserID string, source Source, name string) (int64, error)
}
