package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/status"
	"github.com/shanliu/lsys-access/store"
	"github.com/shanliu/lsys-access/tag"
)

// Catalog owns resources, operations, and the links between an operation
// and the resource types it applies to. All mutations follow the same
// ordered sequence: validate, store write(s) in one transaction, cache
// invalidation, audit entry.
type Catalog struct {
	e *Engine
}

// AddResource validates and inserts a new Enabled resource. A live row with
// the same identity tuple fails with a ConflictError carrying its name.
// After the insert, any other Enabled row sharing the identity tuple that a
// concurrent call slipped in is disabled in the same statement set.
func (c *Catalog) AddResource(ctx context.Context, ownerUserID, resType, resData, resName string) (*resource.Resource, error) {
	var err error
	if resType, err = trimField("res_type", resType, resource.MaxFieldLen); err != nil {
		return nil, err
	}
	if resData, err = trimField("res_data", resData, resource.MaxFieldLen); err != nil {
		return nil, err
	}
	if resName, err = trimField("res_name", resName, resource.MaxFieldLen); err != nil {
		return nil, err
	}

	scope := scopeFromContext(ctx)
	ident := resource.Identity{
		OwnerUserID: ownerUserID,
		AppID:       scope.appID,
		ResType:     resType,
		ResData:     resData,
	}

	existing, err := c.e.store.GetResourceByIdentity(ctx, ident)
	if err != nil && !isStoreNotFound(err) {
		return nil, fmt.Errorf("access: lookup resource identity: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{Kind: "resource", Name: existing.ResName}
	}

	r := &resource.Resource{
		ID:           id.NewResourceID(),
		OwnerUserID:  ownerUserID,
		AppID:        scope.appID,
		ResType:      resType,
		ResData:      resData,
		ResName:      resName,
		Status:       status.Enable,
		ChangeUserID: scope.actorID,
		ChangeTime:   time.Now().UTC(),
	}
	if err := c.e.store.CreateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("access: create resource: %w", err)
	}
	// Concurrent adds race on the identity pre-check; disable any duplicate
	// row that won the race so at most one Enabled row keeps the tuple.
	if err := c.e.store.DisableOtherResources(ctx, ident, r.ID, scope.actorID); err != nil {
		return nil, fmt.Errorf("access: disable duplicate resources: %w", err)
	}

	c.e.invalidate(ctx, resCacheKey(ident))
	c.e.audit(ctx, "add_resource", "resource", r.ID, "", r.ResType+"/"+r.ResData+" "+r.ResName)
	if c.e.plugins != nil {
		c.e.plugins.EmitResourceChanged(ctx, r)
	}
	return r, nil
}

// EditResource rewrites the type, data, and name fields. Unset fields do
// not survive: the caller resends the full desired state, and empty input
// fails validation rather than meaning "keep". Both the old and new
// identity cache keys are cleared.
func (c *Catalog) EditResource(ctx context.Context, resID id.ResourceID, resType, resData, resName string) (*resource.Resource, error) {
	var err error
	if resType, err = trimField("res_type", resType, resource.MaxFieldLen); err != nil {
		return nil, err
	}
	if resData, err = trimField("res_data", resData, resource.MaxFieldLen); err != nil {
		return nil, err
	}
	if resName, err = trimField("res_name", resName, resource.MaxFieldLen); err != nil {
		return nil, err
	}

	r, err := c.e.store.GetResource(ctx, resID)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, fmt.Errorf("resource %s: %w", resID, ErrNotFound)
		}
		return nil, fmt.Errorf("access: get resource: %w", err)
	}
	if !r.Status.Enabled() {
		return nil, fmt.Errorf("resource %s: %w", resID, ErrNotFound)
	}

	scope := scopeFromContext(ctx)
	oldIdent := r.Identity()
	newIdent := resource.Identity{
		OwnerUserID: r.OwnerUserID,
		AppID:       r.AppID,
		ResType:     resType,
		ResData:     resData,
	}
	if newIdent != oldIdent {
		existing, err := c.e.store.GetResourceByIdentity(ctx, newIdent)
		if err != nil && !isStoreNotFound(err) {
			return nil, fmt.Errorf("access: lookup resource identity: %w", err)
		}
		if existing != nil && existing.ID != r.ID {
			return nil, &ConflictError{Kind: "resource", Name: existing.ResName}
		}
	}

	before := r.ResType + "/" + r.ResData + " " + r.ResName
	r.ResType = resType
	r.ResData = resData
	r.ResName = resName
	r.ChangeUserID = scope.actorID
	r.ChangeTime = time.Now().UTC()
	if err := c.e.store.UpdateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("access: update resource: %w", err)
	}

	c.e.invalidate(ctx, resCacheKey(oldIdent), resCacheKey(newIdent))
	c.e.audit(ctx, "edit_resource", "resource", r.ID, before, r.ResType+"/"+r.ResData+" "+r.ResName)
	if c.e.plugins != nil {
		c.e.plugins.EmitResourceChanged(ctx, r)
	}
	return r, nil
}

// DeleteResource soft-deletes the resource and strips every permission
// grant referencing it in one transaction. Any failure rolls back both.
func (c *Catalog) DeleteResource(ctx context.Context, resID id.ResourceID) error {
	r, err := c.e.store.GetResource(ctx, resID)
	if err != nil {
		if isStoreNotFound(err) {
			return fmt.Errorf("resource %s: %w", resID, ErrNotFound)
		}
		return fmt.Errorf("access: get resource: %w", err)
	}
	if !r.Status.Enabled() {
		return fmt.Errorf("resource %s: %w", resID, ErrNotFound)
	}

	scope := scopeFromContext(ctx)
	if err := c.e.store.DeleteResourceCascade(ctx, resID, scope.actorID); err != nil {
		return fmt.Errorf("access: delete resource: %w", err)
	}

	c.e.invalidate(ctx, resCacheKey(r.Identity()))
	c.e.audit(ctx, "delete_resource", "resource", r.ID, r.ResType+"/"+r.ResData+" "+r.ResName, "")
	if c.e.plugins != nil {
		c.e.plugins.EmitResourceChanged(ctx, r)
	}
	return nil
}

// GetResource resolves the Enabled resource with the given identity tuple
// through the cache. Misses are cached too so repeated lookups of an
// unregistered resource skip the store.
func (c *Catalog) GetResource(ctx context.Context, ownerUserID, resType, resData string) (*resource.Resource, error) {
	scope := scopeFromContext(ctx)
	ident := resource.Identity{
		OwnerUserID: ownerUserID,
		AppID:       scope.appID,
		ResType:     resType,
		ResData:     resData,
	}
	key := resCacheKey(ident)
	if v, ok := c.e.cacheGet(ctx, key); ok {
		if r, ok := v.(*resource.Resource); ok {
			return r, nil
		}
		return nil, fmt.Errorf("resource %s/%s: %w", resType, resData, ErrNotFound)
	}

	r, err := c.e.store.GetResourceByIdentity(ctx, ident)
	if err != nil {
		if isStoreNotFound(err) {
			c.e.cacheSet(ctx, key, cachedMiss{})
			return nil, fmt.Errorf("resource %s/%s: %w", resType, resData, ErrNotFound)
		}
		return nil, fmt.Errorf("access: get resource by identity: %w", err)
	}
	c.e.cacheSet(ctx, key, r)
	return r, nil
}

// ListResources returns Enabled resources matching the filter. A tag
// restriction resolves through the tag index first; when it or any other
// filter can only match the empty set the store is never queried.
func (c *Catalog) ListResources(ctx context.Context, filter *resource.ListFilter) ([]*resource.Resource, error) {
	filter, empty, err := c.resolveResourceFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	if empty {
		return []*resource.Resource{}, nil
	}
	rows, err := c.e.store.ListResources(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("access: list resources: %w", err)
	}
	return rows, nil
}

// CountResources returns the number of Enabled resources matching the filter.
func (c *Catalog) CountResources(ctx context.Context, filter *resource.ListFilter) (int64, error) {
	filter, empty, err := c.resolveResourceFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	if empty {
		return 0, nil
	}
	n, err := c.e.store.CountResources(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("access: count resources: %w", err)
	}
	return n, nil
}

// resolveResourceFilter folds a tag restriction into an id allow-list and
// reports whether the filter short-circuits to the empty set.
func (c *Catalog) resolveResourceFilter(ctx context.Context, filter *resource.ListFilter) (*resource.ListFilter, bool, error) {
	if filter == nil {
		return nil, false, nil
	}
	if filter.Empty() {
		return filter, true, nil
	}
	if len(filter.Tags) == 0 {
		return filter, false, nil
	}

	tags, err := c.e.store.FindTagsByName(ctx, filter.OwnerUserID, tag.SourceResource, filter.Tags)
	if err != nil {
		return nil, false, fmt.Errorf("access: resolve tag filter: %w", err)
	}
	ids := intersectIDs(filter.IDs, tagFromIDs(tags))
	if len(ids) == 0 {
		return filter, true, nil
	}
	resolved := *filter
	resolved.Tags = nil
	resolved.IDs = ids
	return &resolved, false, nil
}

// AddOperation validates and inserts a new Enabled operation, mirroring
// AddResource including the duplicate-disable race guard.
func (c *Catalog) AddOperation(ctx context.Context, ownerUserID, opKey, opName string) (*operation.Operation, error) {
	var err error
	if opKey, err = trimField("op_key", opKey, operation.MaxFieldLen); err != nil {
		return nil, err
	}
	if opName, err = trimField("op_name", opName, operation.MaxFieldLen); err != nil {
		return nil, err
	}

	scope := scopeFromContext(ctx)
	ident := operation.Identity{
		OwnerUserID: ownerUserID,
		AppID:       scope.appID,
		OpKey:       opKey,
	}

	existing, err := c.e.store.GetOperationByIdentity(ctx, ident)
	if err != nil && !isStoreNotFound(err) {
		return nil, fmt.Errorf("access: lookup operation identity: %w", err)
	}
	if existing != nil {
		return nil, &ConflictError{Kind: "operation", Name: existing.OpName, Key: existing.OpKey}
	}

	o := &operation.Operation{
		ID:           id.NewOperationID(),
		OwnerUserID:  ownerUserID,
		AppID:        scope.appID,
		OpKey:        opKey,
		OpName:       opName,
		Status:       status.Enable,
		ChangeUserID: scope.actorID,
		ChangeTime:   time.Now().UTC(),
	}
	if err := c.e.store.CreateOperation(ctx, o); err != nil {
		return nil, fmt.Errorf("access: create operation: %w", err)
	}
	if err := c.e.store.DisableOtherOperations(ctx, ident, o.ID, scope.actorID); err != nil {
		return nil, fmt.Errorf("access: disable duplicate operations: %w", err)
	}

	c.e.invalidate(ctx, opCacheKey(ident))
	c.e.audit(ctx, "add_operation", "operation", o.ID, "", o.OpKey+" "+o.OpName)
	if c.e.plugins != nil {
		c.e.plugins.EmitOperationChanged(ctx, o)
	}
	return o, nil
}

// EditOperation rewrites the key and name fields with full-state semantics,
// clearing both the old and new identity cache keys.
func (c *Catalog) EditOperation(ctx context.Context, opID id.OperationID, opKey, opName string) (*operation.Operation, error) {
	var err error
	if opKey, err = trimField("op_key", opKey, operation.MaxFieldLen); err != nil {
		return nil, err
	}
	if opName, err = trimField("op_name", opName, operation.MaxFieldLen); err != nil {
		return nil, err
	}

	o, err := c.e.store.GetOperation(ctx, opID)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, fmt.Errorf("operation %s: %w", opID, ErrNotFound)
		}
		return nil, fmt.Errorf("access: get operation: %w", err)
	}
	if !o.Status.Enabled() {
		return nil, fmt.Errorf("operation %s: %w", opID, ErrNotFound)
	}

	scope := scopeFromContext(ctx)
	oldIdent := o.Identity()
	newIdent := operation.Identity{OwnerUserID: o.OwnerUserID, AppID: o.AppID, OpKey: opKey}
	if newIdent != oldIdent {
		existing, err := c.e.store.GetOperationByIdentity(ctx, newIdent)
		if err != nil && !isStoreNotFound(err) {
			return nil, fmt.Errorf("access: lookup operation identity: %w", err)
		}
		if existing != nil && existing.ID != o.ID {
			return nil, &ConflictError{Kind: "operation", Name: existing.OpName, Key: existing.OpKey}
		}
	}

	before := o.OpKey + " " + o.OpName
	o.OpKey = opKey
	o.OpName = opName
	o.ChangeUserID = scope.actorID
	o.ChangeTime = time.Now().UTC()
	if err := c.e.store.UpdateOperation(ctx, o); err != nil {
		return nil, fmt.Errorf("access: update operation: %w", err)
	}

	c.e.invalidate(ctx, opCacheKey(oldIdent), opCacheKey(newIdent))
	c.e.audit(ctx, "edit_operation", "operation", o.ID, before, o.OpKey+" "+o.OpName)
	if c.e.plugins != nil {
		c.e.plugins.EmitOperationChanged(ctx, o)
	}
	return o, nil
}

// DeleteOperation soft-deletes the operation and strips its resource-type
// links in one transaction.
func (c *Catalog) DeleteOperation(ctx context.Context, opID id.OperationID) error {
	o, err := c.e.store.GetOperation(ctx, opID)
	if err != nil {
		if isStoreNotFound(err) {
			return fmt.Errorf("operation %s: %w", opID, ErrNotFound)
		}
		return fmt.Errorf("access: get operation: %w", err)
	}
	if !o.Status.Enabled() {
		return fmt.Errorf("operation %s: %w", opID, ErrNotFound)
	}

	scope := scopeFromContext(ctx)
	if err := c.e.store.DeleteOperationCascade(ctx, opID, scope.actorID); err != nil {
		return fmt.Errorf("access: delete operation: %w", err)
	}

	c.e.invalidate(ctx, opCacheKey(o.Identity()))
	c.e.audit(ctx, "delete_operation", "operation", o.ID, o.OpKey+" "+o.OpName, "")
	if c.e.plugins != nil {
		c.e.plugins.EmitOperationChanged(ctx, o)
	}
	return nil
}

// ListOperations returns Enabled operations matching the filter.
func (c *Catalog) ListOperations(ctx context.Context, filter *operation.ListFilter) ([]*operation.Operation, error) {
	if filter != nil && filter.Empty() {
		return []*operation.Operation{}, nil
	}
	rows, err := c.e.store.ListOperations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("access: list operations: %w", err)
	}
	return rows, nil
}

// CountOperations returns the number of Enabled operations matching the filter.
func (c *Catalog) CountOperations(ctx context.Context, filter *operation.ListFilter) (int64, error) {
	if filter != nil && filter.Empty() {
		return 0, nil
	}
	n, err := c.e.store.CountOperations(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("access: count operations: %w", err)
	}
	return n, nil
}

// LinkOperation associates an operation with a resource type it may act on.
func (c *Catalog) LinkOperation(ctx context.Context, opID id.OperationID, resType string) error {
	var err error
	if resType, err = trimField("res_type", resType, resource.MaxFieldLen); err != nil {
		return err
	}
	o, err := c.e.store.GetOperation(ctx, opID)
	if err != nil {
		if isStoreNotFound(err) {
			return fmt.Errorf("operation %s: %w", opID, ErrNotFound)
		}
		return fmt.Errorf("access: get operation: %w", err)
	}
	if !o.Status.Enabled() {
		return fmt.Errorf("operation %s: %w", opID, ErrNotFound)
	}

	scope := scopeFromContext(ctx)
	l := &operation.ResLink{
		ID:           id.NewResLinkID(),
		OpID:         opID,
		ResType:      resType,
		OwnerUserID:  o.OwnerUserID,
		AppID:        o.AppID,
		Status:       status.Enable,
		ChangeUserID: scope.actorID,
		ChangeTime:   time.Now().UTC(),
	}
	if err := c.e.store.CreateResLink(ctx, l); err != nil {
		return fmt.Errorf("access: link operation: %w", err)
	}
	c.e.audit(ctx, "link_operation", "operation", o.ID, "", o.OpKey+" -> "+resType)
	return nil
}

// UnlinkOperation removes the association between an operation and a
// resource type.
func (c *Catalog) UnlinkOperation(ctx context.Context, opID id.OperationID, resType string) error {
	scope := scopeFromContext(ctx)
	if err := c.e.store.DeleteResLink(ctx, opID, resType, scope.actorID); err != nil {
		return fmt.Errorf("access: unlink operation: %w", err)
	}
	c.e.audit(ctx, "unlink_operation", "operation", opID, opID.String()+" -> "+resType, "")
	return nil
}

// ListLinksForOperation returns the Enabled resource-type links of an
// operation, the reverse of ListOperationsForResType.
func (c *Catalog) ListLinksForOperation(ctx context.Context, opID id.OperationID) ([]*operation.ResLink, error) {
	links, err := c.e.store.ListResLinksForOp(ctx, opID)
	if err != nil {
		return nil, fmt.Errorf("access: list links for operation: %w", err)
	}
	return links, nil
}

// UnlinkResType removes every operation link of a resource type under one
// owner scope, for retiring a type wholesale.
func (c *Catalog) UnlinkResType(ctx context.Context, ownerUserID, resType string) error {
	var err error
	if resType, err = trimField("res_type", resType, resource.MaxFieldLen); err != nil {
		return err
	}
	scope := scopeFromContext(ctx)
	if err := c.e.store.DeleteResLinksByResType(ctx, ownerUserID, scope.appID, resType, scope.actorID); err != nil {
		return fmt.Errorf("access: unlink res type: %w", err)
	}
	c.e.audit(ctx, "unlink_res_type", "operation", id.Nil, resType, "")
	return nil
}

// ListOperationsForResType returns Enabled operations linked to a resource
// type under one owner scope.
func (c *Catalog) ListOperationsForResType(ctx context.Context, ownerUserID, resType string) ([]*operation.Operation, error) {
	scope := scopeFromContext(ctx)
	ops, err := c.e.store.ListOpsForResType(ctx, ownerUserID, scope.appID, resType)
	if err != nil {
		return nil, fmt.Errorf("access: list operations for res type: %w", err)
	}
	return ops, nil
}

// isStoreNotFound matches the shared backend not-found sentinel.
func isStoreNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// tagFromIDs collects the attached-entity ids out of tag rows.
func tagFromIDs(tags []*tag.Tag) []id.ID {
	ids := make([]id.ID, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		k := t.FromID.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ids = append(ids, t.FromID)
	}
	return ids
}

// intersectIDs returns restrict ∩ found; a nil restrict means no base
// allow-list, so found is returned as-is.
func intersectIDs(restrict, found []id.ID) []id.ID {
	if restrict == nil {
		return found
	}
	allowed := make(map[string]struct{}, len(restrict))
	for _, r := range restrict {
		allowed[r.String()] = struct{}{}
	}
	out := make([]id.ID, 0, len(found))
	for _, f := range found {
		if _, ok := allowed[f.String()]; ok {
			out = append(out, f)
		}
	}
	return out
}
