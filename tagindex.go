package access

import (
	"context"
	"fmt"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/tag"
)

// TagIndex manages the labels attached to resources and roles. Tags drive
// categorized search and aggregation only; they never influence a check.
type TagIndex struct {
	e *Engine
}

// SetTags replaces the tag set of one entity via diff. Names are trimmed,
// deduplicated, and length-checked; an empty set clears every tag. Tags do
// not affect cached decisions, so nothing is invalidated.
func (t *TagIndex) SetTags(ctx context.Context, fromID id.ID, source tag.Source, ownerUserID string, names []string) error {
	if !source.Valid() {
		return &ValidationError{Field: "from_source", Reason: "unknown value"}
	}
	clean := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name, err := trimField("tag_name", name, tag.MaxNameLen)
		if err != nil {
			return err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		clean = append(clean, name)
	}

	scope := scopeFromContext(ctx)
	if err := t.e.store.SetTags(ctx, fromID, source, ownerUserID, clean, scope.actorID); err != nil {
		return fmt.Errorf("access: set tags: %w", err)
	}
	t.e.audit(ctx, "set_tags", string(source), fromID, "", fmt.Sprintf("%d tags", len(clean)))
	return nil
}

// DelTags removes every tag from one entity.
func (t *TagIndex) DelTags(ctx context.Context, fromID id.ID, source tag.Source) error {
	if !source.Valid() {
		return &ValidationError{Field: "from_source", Reason: "unknown value"}
	}
	scope := scopeFromContext(ctx)
	if err := t.e.store.DeleteTags(ctx, fromID, source, scope.actorID); err != nil {
		return fmt.Errorf("access: delete tags: %w", err)
	}
	t.e.audit(ctx, "del_tags", string(source), fromID, "", "")
	return nil
}

// ListTags returns the tags attached to one entity.
func (t *TagIndex) ListTags(ctx context.Context, fromID id.ID, source tag.Source) ([]*tag.Tag, error) {
	tags, err := t.e.store.ListTags(ctx, fromID, source)
	if err != nil {
		return nil, fmt.Errorf("access: list tags: %w", err)
	}
	return tags, nil
}

// FindByName returns the tags carrying any of the given names under one
// owner and source.
func (t *TagIndex) FindByName(ctx context.Context, ownerUserID string, source tag.Source, names []string) ([]*tag.Tag, error) {
	tags, err := t.e.store.FindTagsByName(ctx, ownerUserID, source, names)
	if err != nil {
		return nil, fmt.Errorf("access: find tags by name: %w", err)
	}
	return tags, nil
}

// FindByIDs returns the tags attached to any of the given entities.
func (t *TagIndex) FindByIDs(ctx context.Context, source tag.Source, fromIDs []id.ID) ([]*tag.Tag, error) {
	tags, err := t.e.store.FindTagsByIDs(ctx, source, fromIDs)
	if err != nil {
		return nil, fmt.Errorf("access: find tags by ids: %w", err)
	}
	return tags, nil
}

// GroupByOwner aggregates tag names to usage counts for one owner.
func (t *TagIndex) GroupByOwner(ctx context.Context, ownerUserID string, source tag.Source) ([]tag.GroupCount, error) {
	counts, err := t.e.store.GroupTagsByOwner(ctx, ownerUserID, source)
	if err != nil {
		return nil, fmt.Errorf("access: group tags: %w", err)
	}
	return counts, nil
}

// CountByName returns how many entities under one owner carry the tag.
func (t *TagIndex) CountByName(ctx context.Context, ownerUserID string, source tag.Source, name string) (int64, error) {
	n, err := t.e.store.CountTagsByName(ctx, ownerUserID, source, name)
	if err != nil {
		return 0, fmt.Errorf("access: count tags: %w", err)
	}
	return n, nil
}
