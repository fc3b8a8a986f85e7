package access

import (
	"context"
	"fmt"
	"time"

	"github.com/shanliu/lsys-access/changelog"
	"github.com/shanliu/lsys-access/id"
)

// Changes reads the mutation audit trail written by the catalog and
// registry facades.
type Changes struct {
	e *Engine
}

// Get retrieves one change entry by id.
func (c *Changes) Get(ctx context.Context, chgID id.ChangeID) (*changelog.Entry, error) {
	entry, err := c.e.store.GetChange(ctx, chgID)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, fmt.Errorf("change %s: %w", chgID, ErrNotFound)
		}
		return nil, fmt.Errorf("access: get change: %w", err)
	}
	return entry, nil
}

// List returns change entries matching the filter, newest first.
func (c *Changes) List(ctx context.Context, filter *changelog.QueryFilter) ([]*changelog.Entry, error) {
	entries, err := c.e.store.ListChanges(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("access: list changes: %w", err)
	}
	return entries, nil
}

// Count returns the number of change entries matching the filter.
func (c *Changes) Count(ctx context.Context, filter *changelog.QueryFilter) (int64, error) {
	n, err := c.e.store.CountChanges(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("access: count changes: %w", err)
	}
	return n, nil
}

// Purge removes change entries older than before and reports how many
// rows went away.
func (c *Changes) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := c.e.store.PurgeChanges(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("access: purge changes: %w", err)
	}
	return n, nil
}
