package access

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/tag"
)

// roleGrant is the cached computed view of one role: the row plus its grant
// set keyed by "resID|opID". Cached under the role's coarse key and treated
// read-only once stored.
type roleGrant struct {
	role  *role.Role
	perms map[string]struct{}
}

func permKey(resID id.ResourceID, opID id.OperationID) string {
	return resID.String() + "|" + opID.String()
}

// Check reports whether userID may perform every requirement in reqs (AND
// semantics). It returns nil on allow and a *DenyError naming the failed
// requirement on deny. When scopes is non-empty the caller runs under a
// delegated token: a requirement whose ResKey is not in scopes is denied
// before any role lookup.
func (e *Engine) Check(ctx context.Context, userID string, scopes []string, reqs []Requirement) error {
	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, userID)
	}
	err := e.checkAll(ctx, userID, scopes, reqs)
	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, userID, err)
	}
	return err
}

// ListCheck takes alternative requirement sets and passes if ANY one set
// fully passes under Check's AND semantics. When every set fails, the deny
// reason of the last-evaluated set is returned.
func (e *Engine) ListCheck(ctx context.Context, userID string, scopes []string, alts [][]Requirement) error {
	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, userID)
	}
	// Zero alternatives means nothing can pass; never fall through to allow.
	err := error(&ValidationError{Field: "alts", Reason: "must not be empty"})
	for _, reqs := range alts {
		err = e.checkAll(ctx, userID, scopes, reqs)
		if err == nil {
			break
		}
	}
	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, userID, err)
	}
	return err
}

func (e *Engine) checkAll(ctx context.Context, userID string, scopes []string, reqs []Requirement) error {
	var scopeSet map[string]struct{}
	if len(scopes) > 0 {
		scopeSet = make(map[string]struct{}, len(scopes))
		for _, s := range scopes {
			scopeSet[s] = struct{}{}
		}
	}
	for i := range reqs {
		req := &reqs[i]
		if len(req.Ops) == 0 {
			return &ValidationError{Field: "ops", Reason: "must not be empty"}
		}
		if scopeSet != nil {
			if _, ok := scopeSet[req.ResKey()]; !ok {
				return &DenyError{Requirement: req, Reason: "outside delegated token scope"}
			}
		}
		if err := e.checkOne(ctx, userID, req); err != nil {
			return err
		}
	}
	return nil
}

// checkOne evaluates a single requirement. Candidate roles are the caller's
// custom-range roles under the requirement's owner scope plus that owner's
// session-range roles, ordered by priority descending with bound roles
// winning ties. A matching deny-all candidate denies immediately; otherwise
// the first candidate whose grant covers every requested operation allows.
func (e *Engine) checkOne(ctx context.Context, userID string, req *Requirement) error {
	res, err := e.lookupResource(ctx, req)
	if err != nil {
		return err
	}
	if len(req.Tags) > 0 {
		ok, err := e.resourceHasTags(ctx, res, req.Tags)
		if err != nil {
			return err
		}
		if !ok {
			return &DenyError{Requirement: req, Reason: "resource does not carry required tags"}
		}
	}

	ops, err := e.lookupOps(ctx, req)
	if err != nil {
		return err
	}

	candidates, err := e.candidateRoles(ctx, userID, req.OwnerUserID)
	if err != nil {
		return err
	}

	for _, grant := range candidates {
		switch grant.role.ResRange {
		case role.ResRangeDenyAll:
			return &DenyError{Requirement: req, Reason: "denied by role " + grant.role.RoleName}
		case role.ResRangeAllowAll:
			return nil
		case role.ResRangeCustom:
			if coversAllOps(grant, res, req.Ops, ops) {
				return nil
			}
		}
	}
	return &DenyError{Requirement: req, Reason: "no role grants the requested operations"}
}

// coversAllOps reports whether a custom-range grant carries a Perm row for
// every requested operation key against the resource. An unregistered
// resource or operation key can never be covered by a custom grant.
func coversAllOps(grant *roleGrant, res *resource.Resource, opKeys []string, ops map[string]*operation.Operation) bool {
	if res == nil {
		return false
	}
	for _, key := range opKeys {
		op, ok := ops[key]
		if !ok {
			return false
		}
		if _, ok := grant.perms[permKey(res.ID, op.ID)]; !ok {
			return false
		}
	}
	return true
}

// lookupResource resolves the requirement's resource row through the cache.
// Absence is cached too and is not an error: allow-all roles cover
// unregistered resources.
func (e *Engine) lookupResource(ctx context.Context, req *Requirement) (*resource.Resource, error) {
	scope := scopeFromContext(ctx)
	ident := resource.Identity{
		OwnerUserID: req.OwnerUserID,
		AppID:       scope.appID,
		ResType:     req.ResType,
		ResData:     req.ResData,
	}
	key := resCacheKey(ident)
	if v, ok := e.cacheGet(ctx, key); ok {
		if _, miss := v.(cachedMiss); miss {
			return nil, nil
		}
		if r, ok := v.(*resource.Resource); ok {
			return r, nil
		}
	}
	r, err := e.store.GetResourceByIdentity(ctx, ident)
	if err != nil {
		if isStoreNotFound(err) {
			e.cacheSet(ctx, key, cachedMiss{})
			return nil, nil
		}
		return nil, fmt.Errorf("access: resource lookup: %w", err)
	}
	e.cacheSet(ctx, key, r)
	return r, nil
}

// lookupOps resolves the requirement's operation keys through the cache,
// one entry per key. Missing keys are simply absent from the result.
func (e *Engine) lookupOps(ctx context.Context, req *Requirement) (map[string]*operation.Operation, error) {
	scope := scopeFromContext(ctx)
	out := make(map[string]*operation.Operation, len(req.Ops))
	missing := make([]string, 0, len(req.Ops))
	for _, opKey := range req.Ops {
		ident := operation.Identity{OwnerUserID: req.OwnerUserID, AppID: scope.appID, OpKey: opKey}
		v, ok := e.cacheGet(ctx, opCacheKey(ident))
		if !ok {
			missing = append(missing, opKey)
			continue
		}
		if op, ok := v.(*operation.Operation); ok {
			out[opKey] = op
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := e.store.GetOperationsByKeys(ctx, req.OwnerUserID, scope.appID, missing)
	if err != nil {
		return nil, fmt.Errorf("access: operation lookup: %w", err)
	}
	found := make(map[string]struct{}, len(fetched))
	for _, op := range fetched {
		out[op.OpKey] = op
		found[op.OpKey] = struct{}{}
		ident := operation.Identity{OwnerUserID: req.OwnerUserID, AppID: scope.appID, OpKey: op.OpKey}
		e.cacheSet(ctx, opCacheKey(ident), op)
	}
	for _, opKey := range missing {
		if _, ok := found[opKey]; !ok {
			ident := operation.Identity{OwnerUserID: req.OwnerUserID, AppID: scope.appID, OpKey: opKey}
			e.cacheSet(ctx, opCacheKey(ident), cachedMiss{})
		}
	}
	return out, nil
}

// resourceHasTags reports whether the resource carries every requested tag.
func (e *Engine) resourceHasTags(ctx context.Context, res *resource.Resource, required []string) (bool, error) {
	if res == nil {
		return false, nil
	}
	tags, err := e.store.ListTags(ctx, res.ID, tag.SourceResource)
	if err != nil {
		return false, fmt.Errorf("access: resource tags lookup: %w", err)
	}
	have := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		have[t.Name] = struct{}{}
	}
	for _, name := range required {
		if _, ok := have[name]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// candidateRoles resolves the roles the caller holds under one owner scope:
// unexpired custom-range bindings plus the owner's session-range roles.
// The combined list is ordered by priority descending, bound roles before
// session roles on ties.
func (e *Engine) candidateRoles(ctx context.Context, userID, ownerUserID string) ([]*roleGrant, error) {
	boundIDs, err := e.boundRoleIDs(ctx, userID, ownerUserID)
	if err != nil {
		return nil, err
	}
	bound := make([]*roleGrant, 0, len(boundIDs))
	for _, roleID := range boundIDs {
		grant, err := e.loadRoleGrant(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			bound = append(bound, grant)
		}
	}

	session, err := e.sessionRoleGrants(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(bound, func(i, j int) bool {
		return bound[i].role.Priority > bound[j].role.Priority
	})
	merged := make([]*roleGrant, 0, len(bound)+len(session))
	bi, si := 0, 0
	for bi < len(bound) && si < len(session) {
		if session[si].role.Priority > bound[bi].role.Priority {
			merged = append(merged, session[si])
			si++
		} else {
			merged = append(merged, bound[bi])
			bi++
		}
	}
	merged = append(merged, bound[bi:]...)
	merged = append(merged, session[si:]...)
	return merged, nil
}

// boundRole is one cached membership under the owner-scoped access key.
// The binding timeout rides along so cached entries expire on read instead
// of granting past their deadline.
type boundRole struct {
	roleID  id.RoleID
	timeout *time.Time
}

// boundRoleIDs returns the ids of the caller's unexpired custom-range roles
// under one owner, cached under the owner-scoped access key. Cached entries
// are re-filtered against now on every read.
func (e *Engine) boundRoleIDs(ctx context.Context, userID, ownerUserID string) ([]id.RoleID, error) {
	now := time.Now().UTC()
	key := accessCacheKey(ownerUserID, userID)
	if v, ok := e.cacheGet(ctx, key); ok {
		if cached, ok := v.([]boundRole); ok {
			return liveBoundIDs(cached, now), nil
		}
	}

	all, err := e.store.ListBindingsForUser(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("access: bound roles lookup: %w", err)
	}
	scoped := make([]boundRole, 0, len(all))
	for _, b := range all {
		grant, err := e.loadRoleGrant(ctx, b.RoleID)
		if err != nil {
			return nil, err
		}
		if grant == nil || grant.role.OwnerUserID != ownerUserID {
			continue
		}
		if grant.role.UserRange != role.UserRangeCustom {
			continue
		}
		scoped = append(scoped, boundRole{roleID: b.RoleID, timeout: b.Timeout})
	}
	e.cacheSet(ctx, key, scoped)
	return liveBoundIDs(scoped, now), nil
}

func liveBoundIDs(bound []boundRole, now time.Time) []id.RoleID {
	ids := make([]id.RoleID, 0, len(bound))
	for _, b := range bound {
		if b.timeout != nil && !b.timeout.After(now) {
			continue
		}
		ids = append(ids, b.roleID)
	}
	return ids
}

// sessionRoleGrants returns the owner's session-range roles, already ordered
// by priority descending, through the owner's session cache key.
func (e *Engine) sessionRoleGrants(ctx context.Context, ownerUserID string) ([]*roleGrant, error) {
	key := sessionCacheKey(ownerUserID)
	var ids []id.RoleID
	if v, ok := e.cacheGet(ctx, key); ok {
		if cached, ok := v.([]id.RoleID); ok {
			ids = cached
		}
	}
	if ids == nil {
		roles, err := e.store.ListSessionRoles(ctx, ownerUserID)
		if err != nil {
			return nil, fmt.Errorf("access: session roles lookup: %w", err)
		}
		ids = make([]id.RoleID, len(roles))
		for i, r := range roles {
			ids[i] = r.ID
		}
		e.cacheSet(ctx, key, ids)
	}

	grants := make([]*roleGrant, 0, len(ids))
	for _, roleID := range ids {
		grant, err := e.loadRoleGrant(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			grants = append(grants, grant)
		}
	}
	sort.SliceStable(grants, func(i, j int) bool {
		return grants[i].role.Priority > grants[j].role.Priority
	})
	return grants, nil
}

// loadRoleGrant resolves a role and its grant set through the role's coarse
// cache key. Deleted or missing roles resolve to nil.
func (e *Engine) loadRoleGrant(ctx context.Context, roleID id.RoleID) (*roleGrant, error) {
	key := roleCacheKey(roleID)
	if v, ok := e.cacheGet(ctx, key); ok {
		if _, miss := v.(cachedMiss); miss {
			return nil, nil
		}
		if grant, ok := v.(*roleGrant); ok {
			return grant, nil
		}
	}

	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		if isStoreNotFound(err) {
			e.cacheSet(ctx, key, cachedMiss{})
			return nil, nil
		}
		return nil, fmt.Errorf("access: role lookup: %w", err)
	}
	if !r.Status.Enabled() {
		e.cacheSet(ctx, key, cachedMiss{})
		return nil, nil
	}

	grant := &roleGrant{role: r, perms: map[string]struct{}{}}
	if r.ResRange == role.ResRangeCustom {
		perms, err := e.store.ListPermsForRole(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("access: role perms lookup: %w", err)
		}
		grant.perms = permSet(perms)
	}
	e.cacheSet(ctx, key, grant)
	return grant, nil
}

func permSet(perms []*permission.Perm) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[permKey(p.ResID, p.OpID)] = struct{}{}
	}
	return set
}
