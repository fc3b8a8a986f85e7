package access

import (
	"context"
	"fmt"
	"time"

	"github.com/shanliu/lsys-access/binding"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/status"
	"github.com/shanliu/lsys-access/tag"
)

// Registry owns roles, their user bindings, and their permission grants.
type Registry struct {
	e *Engine
}

// RoleView is a role row optionally joined with its tags, users, and grants.
type RoleView struct {
	Role  *role.Role         `json:"role"`
	Tags  []string           `json:"tags,omitempty"`
	Users []*binding.Binding `json:"users,omitempty"`
	Perms []*permission.Perm `json:"perms,omitempty"`
}

// RoleDataOpts selects the joins RoleData performs per returned role.
type RoleDataOpts struct {
	WithTags  bool
	WithUsers bool
	WithPerms bool
}

// AddRole validates name and key and inserts a new Enabled role. Name must
// be unique per owner; key too when non-empty — both checked in a single
// combined lookup. UserRange, ResRange, and Priority are fixed at creation.
func (g *Registry) AddRole(ctx context.Context, ownerUserID, roleKey, roleName string, userRange role.UserRange, resRange role.ResRange, priority int) (*role.Role, error) {
	var err error
	if roleName, err = trimField("role_name", roleName, role.MaxFieldLen); err != nil {
		return nil, err
	}
	if roleKey != "" {
		if roleKey, err = trimField("role_key", roleKey, role.MaxFieldLen); err != nil {
			return nil, err
		}
	}
	if !userRange.Valid() {
		return nil, &ValidationError{Field: "user_range", Reason: "unknown value"}
	}
	if !resRange.Valid() {
		return nil, &ValidationError{Field: "res_range", Reason: "unknown value"}
	}

	conflicts, err := g.e.store.FindRoleConflict(ctx, ownerUserID, roleName, roleKey)
	if err != nil {
		return nil, fmt.Errorf("access: role conflict lookup: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, &ConflictError{Kind: "role", Name: conflicts[0].RoleName, Key: conflicts[0].RoleKey}
	}

	scope := scopeFromContext(ctx)
	r := &role.Role{
		ID:           id.NewRoleID(),
		OwnerUserID:  ownerUserID,
		AppID:        scope.appID,
		RoleKey:      roleKey,
		RoleName:     roleName,
		UserRange:    userRange,
		ResRange:     resRange,
		Priority:     priority,
		Status:       status.Enable,
		ChangeUserID: scope.actorID,
		ChangeTime:   time.Now().UTC(),
	}
	if err := g.e.store.CreateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("access: create role: %w", err)
	}

	// A brand-new role has nothing cached under its own key yet; the
	// session list of its owner may.
	keys := []string{roleCacheKey(r.ID)}
	if r.UserRange == role.UserRangeSession {
		keys = append(keys, sessionCacheKey(r.OwnerUserID))
	}
	g.e.invalidate(ctx, keys...)
	g.e.audit(ctx, "add_role", "role", r.ID, "", r.RoleName+"/"+r.RoleKey)
	if g.e.plugins != nil {
		g.e.plugins.EmitRoleChanged(ctx, r)
	}
	return r, nil
}

// EditRole updates the key, name, and priority only. UserRange and ResRange
// are immutable after creation; passing a non-empty range different from
// the stored one fails with ErrImmutableRange. Changing grant breadth goes
// through delete + recreate.
func (g *Registry) EditRole(ctx context.Context, roleID id.RoleID, roleKey, roleName string, priority int, userRange role.UserRange, resRange role.ResRange) (*role.Role, error) {
	var err error
	if roleName, err = trimField("role_name", roleName, role.MaxFieldLen); err != nil {
		return nil, err
	}
	if roleKey != "" {
		if roleKey, err = trimField("role_key", roleKey, role.MaxFieldLen); err != nil {
			return nil, err
		}
	}

	r, err := g.e.store.GetRole(ctx, roleID)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
		}
		return nil, fmt.Errorf("access: get role: %w", err)
	}
	if !r.Status.Enabled() {
		return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
	}
	if userRange != "" && userRange != r.UserRange {
		return nil, fmt.Errorf("role %s user_range: %w", roleID, ErrImmutableRange)
	}
	if resRange != "" && resRange != r.ResRange {
		return nil, fmt.Errorf("role %s res_range: %w", roleID, ErrImmutableRange)
	}

	if roleName != r.RoleName || (roleKey != "" && roleKey != r.RoleKey) {
		conflicts, err := g.e.store.FindRoleConflict(ctx, r.OwnerUserID, roleName, roleKey)
		if err != nil {
			return nil, fmt.Errorf("access: role conflict lookup: %w", err)
		}
		for _, other := range conflicts {
			if other.ID != r.ID {
				return nil, &ConflictError{Kind: "role", Name: other.RoleName, Key: other.RoleKey}
			}
		}
	}

	scope := scopeFromContext(ctx)
	before := r.RoleName + "/" + r.RoleKey
	r.RoleKey = roleKey
	r.RoleName = roleName
	r.Priority = priority
	r.ChangeUserID = scope.actorID
	r.ChangeTime = time.Now().UTC()
	if err := g.e.store.UpdateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("access: update role: %w", err)
	}

	keys := []string{roleCacheKey(r.ID)}
	if r.UserRange == role.UserRangeSession {
		keys = append(keys, sessionCacheKey(r.OwnerUserID))
	}
	g.e.invalidate(ctx, keys...)
	g.e.audit(ctx, "edit_role", "role", r.ID, before, r.RoleName+"/"+r.RoleKey)
	if g.e.plugins != nil {
		g.e.plugins.EmitRoleChanged(ctx, r)
	}
	return r, nil
}

// DeleteRole soft-deletes the role, its permission grants, and its user
// bindings in one transaction. The broad role cache key is cleared — a
// role's removal can affect arbitrarily many cached decisions — along with
// the access rows of every bound user.
func (g *Registry) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	r, err := g.e.store.GetRole(ctx, roleID)
	if err != nil {
		if isStoreNotFound(err) {
			return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
		}
		return fmt.Errorf("access: get role: %w", err)
	}
	if !r.Status.Enabled() {
		return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
	}

	bound, err := g.e.store.ListUsersForRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("access: list role users: %w", err)
	}

	scope := scopeFromContext(ctx)
	if err := g.e.store.DeleteRoleCascade(ctx, roleID, scope.actorID); err != nil {
		return fmt.Errorf("access: delete role: %w", err)
	}

	keys := []string{roleCacheKey(r.ID)}
	if r.UserRange == role.UserRangeSession {
		keys = append(keys, sessionCacheKey(r.OwnerUserID))
	}
	for _, b := range bound {
		keys = append(keys, accessCacheKey(r.OwnerUserID, b.UserID))
	}
	g.e.invalidate(ctx, keys...)
	g.e.audit(ctx, "delete_role", "role", r.ID, r.RoleName+"/"+r.RoleKey, "")
	if g.e.plugins != nil {
		g.e.plugins.EmitRoleChanged(ctx, r)
	}
	return nil
}

// FindRoleByKey resolves the Enabled role with the given stable key under
// one owner. This is the session-range lookup path used from code.
func (g *Registry) FindRoleByKey(ctx context.Context, ownerUserID, roleKey string) (*role.Role, error) {
	r, err := g.e.store.GetRoleByKey(ctx, ownerUserID, roleKey)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, fmt.Errorf("role key %q: %w", roleKey, ErrNotFound)
		}
		return nil, fmt.Errorf("access: get role by key: %w", err)
	}
	return r, nil
}

// RoleData returns Enabled roles matching the filter, optionally joined
// with their tags, users, and grants.
func (g *Registry) RoleData(ctx context.Context, filter *role.ListFilter, opts RoleDataOpts) ([]*RoleView, error) {
	filter, empty, err := g.resolveRoleFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	if empty {
		return []*RoleView{}, nil
	}
	roles, err := g.e.store.ListRoles(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("access: list roles: %w", err)
	}

	// Grants are joined in one trip for the whole page.
	var permsByRole map[string][]*permission.Perm
	if opts.WithPerms && len(roles) > 0 {
		roleIDs := make([]id.RoleID, len(roles))
		for i, r := range roles {
			roleIDs[i] = r.ID
		}
		perms, err := g.e.store.ListPermsForRoles(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("access: list role perms: %w", err)
		}
		permsByRole = make(map[string][]*permission.Perm, len(roles))
		for _, p := range perms {
			k := p.RoleID.String()
			permsByRole[k] = append(permsByRole[k], p)
		}
	}

	views := make([]*RoleView, len(roles))
	for i, r := range roles {
		v := &RoleView{Role: r}
		if opts.WithTags {
			tags, err := g.e.store.ListTags(ctx, r.ID, tag.SourceRole)
			if err != nil {
				return nil, fmt.Errorf("access: list role tags: %w", err)
			}
			v.Tags = make([]string, len(tags))
			for j, t := range tags {
				v.Tags[j] = t.Name
			}
		}
		if opts.WithUsers {
			users, err := g.e.store.ListUsersForRole(ctx, r.ID)
			if err != nil {
				return nil, fmt.Errorf("access: list role users: %w", err)
			}
			v.Users = users
		}
		if opts.WithPerms {
			v.Perms = permsByRole[r.ID.String()]
		}
		views[i] = v
	}
	return views, nil
}

// RoleCount returns the number of Enabled roles matching the filter.
func (g *Registry) RoleCount(ctx context.Context, filter *role.ListFilter) (int64, error) {
	filter, empty, err := g.resolveRoleFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	if empty {
		return 0, nil
	}
	n, err := g.e.store.CountRoles(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("access: count roles: %w", err)
	}
	return n, nil
}

// resolveRoleFilter folds a tag restriction into an id allow-list and
// reports whether the filter short-circuits to the empty set.
func (g *Registry) resolveRoleFilter(ctx context.Context, filter *role.ListFilter) (*role.ListFilter, bool, error) {
	if filter == nil {
		return nil, false, nil
	}
	if filter.Empty() {
		return filter, true, nil
	}
	if len(filter.Tags) == 0 {
		return filter, false, nil
	}

	tags, err := g.e.store.FindTagsByName(ctx, filter.OwnerUserID, tag.SourceRole, filter.Tags)
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

// SetRoleUsers replaces the role's Enabled membership with the given set
// via diff, in one transaction. The access rows of every user entering or
// leaving the set are cleared.
func (g *Registry) SetRoleUsers(ctx context.Context, roleID id.RoleID, users []binding.UserEntry) error {
	r, err := g.e.store.GetRole(ctx, roleID)
	if err != nil {
		if isStoreNotFound(err) {
			return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
		}
		return fmt.Errorf("access: get role: %w", err)
	}
	if !r.Status.Enabled() {
		return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
	}

	before, err := g.e.store.ListUsersForRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("access: list role users: %w", err)
	}

	scope := scopeFromContext(ctx)
	if err := g.e.store.SetRoleUsers(ctx, roleID, users, scope.actorID); err != nil {
		return fmt.Errorf("access: set role users: %w", err)
	}

	affected := make(map[string]struct{}, len(before)+len(users))
	for _, b := range before {
		affected[b.UserID] = struct{}{}
	}
	for _, u := range users {
		affected[u.UserID] = struct{}{}
	}
	keys := make([]string, 0, len(affected)+1)
	keys = append(keys, roleCacheKey(roleID))
	for userID := range affected {
		keys = append(keys, accessCacheKey(r.OwnerUserID, userID))
	}
	g.e.invalidate(ctx, keys...)
	g.e.audit(ctx, "set_role_users", "role", roleID,
		fmt.Sprintf("%d users", len(before)), fmt.Sprintf("%d users", len(users)))
	return nil
}

// SetRolePerms replaces the role's Enabled grant set with the given pairs
// via diff, in one transaction. Grants are only consulted for custom-range
// roles; storing them on other ranges is allowed but inert. Only the broad
// role cache key needs clearing — access rows reference the role by id.
func (g *Registry) SetRolePerms(ctx context.Context, roleID id.RoleID, entries []permission.Entry) error {
	r, err := g.e.store.GetRole(ctx, roleID)
	if err != nil {
		if isStoreNotFound(err) {
			return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
		}
		return fmt.Errorf("access: get role: %w", err)
	}
	if !r.Status.Enabled() {
		return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
	}

	scope := scopeFromContext(ctx)
	if err := g.e.store.SetRolePerms(ctx, roleID, entries, scope.actorID); err != nil {
		return fmt.Errorf("access: set role perms: %w", err)
	}

	g.e.invalidate(ctx, roleCacheKey(roleID))
	g.e.audit(ctx, "set_role_perms", "role", roleID, "", fmt.Sprintf("%d grants", len(entries)))
	return nil
}

// PermsForResource returns every Enabled grant referencing a resource,
// across all roles. The reverse of the role-side grant views, for auditing
// a resource before retiring it.
func (g *Registry) PermsForResource(ctx context.Context, resID id.ResourceID) ([]*permission.Perm, error) {
	perms, err := g.e.store.ListPermsForResource(ctx, resID)
	if err != nil {
		return nil, fmt.Errorf("access: list perms for resource: %w", err)
	}
	return perms, nil
}

// RoleGroupUsers counts Enabled bindings per role. With onlyLive set,
// bindings expired before now are excluded.
func (g *Registry) RoleGroupUsers(ctx context.Context, roleIDs []id.RoleID, onlyLive bool) ([]role.UserCount, error) {
	counts, err := g.e.store.CountUsersPerRole(ctx, roleIDs, onlyLive, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("access: count users per role: %w", err)
	}
	return counts, nil
}

// PurgeExpiredBindings soft-deletes Enabled bindings whose timeout passed.
func (g *Registry) PurgeExpiredBindings(ctx context.Context) (int64, error) {
	scope := scopeFromContext(ctx)
	n, err := g.e.store.PurgeExpiredBindings(ctx, time.Now().UTC(), scope.actorID)
	if err != nil {
		return 0, fmt.Errorf("access: purge expired bindings: %w", err)
	}
	return n, nil
}
