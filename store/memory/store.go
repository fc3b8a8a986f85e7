// Package memory provides an in-memory implementation of the composite
// access store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shanliu/lsys-access/binding"
	"github.com/shanliu/lsys-access/changelog"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/operation"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/status"
	"github.com/shanliu/lsys-access/store"
	"github.com/shanliu/lsys-access/tag"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a thread-safe in-memory store for all access entities. Writes
// that the interface declares transactional run under one lock, so partial
// cascades are never observable.
type Store struct {
	mu sync.RWMutex

	resources  map[string]*resource.Resource
	operations map[string]*operation.Operation
	resLinks   map[string]*operation.ResLink
	tags       map[string]*tag.Tag
	roles      map[string]*role.Role
	bindings   map[string]*binding.Binding
	perms      map[string]*permission.Perm
	changes    map[string]*changelog.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		resources:  make(map[string]*resource.Resource),
		operations: make(map[string]*operation.Operation),
		resLinks:   make(map[string]*operation.ResLink),
		tags:       make(map[string]*tag.Tag),
		roles:      make(map[string]*role.Role),
		bindings:   make(map[string]*binding.Binding),
		perms:      make(map[string]*permission.Perm),
		changes:    make(map[string]*changelog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Resource Store
// ──────────────────────────────────────────────────

func (s *Store) CreateResource(_ context.Context, r *resource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.ID.String()] = copyResource(r)
	return nil
}

func (s *Store) GetResource(_ context.Context, resID id.ResourceID) (*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[resID.String()]
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", resID, store.ErrNotFound)
	}
	return copyResource(r), nil
}

func (s *Store) GetResourceByIdentity(_ context.Context, ident resource.Identity) (*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.resources {
		if r.Status.Enabled() && r.Identity() == ident {
			return copyResource(r), nil
		}
	}
	return nil, fmt.Errorf("resource %s/%s: %w", ident.ResType, ident.ResData, store.ErrNotFound)
}

func (s *Store) UpdateResource(_ context.Context, r *resource.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ID.String()]; !ok {
		return fmt.Errorf("resource %s: %w", r.ID, store.ErrNotFound)
	}
	s.resources[r.ID.String()] = copyResource(r)
	return nil
}

func (s *Store) DisableOtherResources(_ context.Context, ident resource.Identity, keep id.ResourceID, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, r := range s.resources {
		if r.ID == keep || !r.Status.Enabled() || r.Identity() != ident {
			continue
		}
		r.Status = status.Delete
		r.ChangeUserID = changeUserID
		r.ChangeTime = now
	}
	return nil
}

func (s *Store) DeleteResourceCascade(_ context.Context, resID id.ResourceID, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[resID.String()]
	if !ok {
		return fmt.Errorf("resource %s: %w", resID, store.ErrNotFound)
	}
	now := time.Now().UTC()
	r.Status = status.Delete
	r.ChangeUserID = changeUserID
	r.ChangeTime = now
	for _, p := range s.perms {
		if p.Status.Enabled() && p.ResID == resID {
			p.Status = status.Delete
			p.ChangeUserID = changeUserID
			p.ChangeTime = now
		}
	}
	return nil
}

func (s *Store) ListResources(_ context.Context, filter *resource.ListFilter) ([]*resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchResources(filter)
	if filter != nil {
		matched = pageSlice(matched, filter.Limit, filter.Offset)
	}
	result := make([]*resource.Resource, len(matched))
	for i, r := range matched {
		result[i] = copyResource(r)
	}
	return result, nil
}

func (s *Store) CountResources(_ context.Context, filter *resource.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var f *resource.ListFilter
	if filter != nil {
		unpaged := *filter
		unpaged.Limit, unpaged.Offset = 0, 0
		f = &unpaged
	}
	return int64(len(s.matchResources(f))), nil
}

// matchResources returns Enabled resources matching the filter, ordered by
// id. Must hold at least a read lock.
func (s *Store) matchResources(filter *resource.ListFilter) []*resource.Resource {
	var allow map[string]struct{}
	if filter != nil && filter.IDs != nil {
		allow = idSet(filter.IDs)
	}
	var out []*resource.Resource
	for _, r := range s.resources {
		if !r.Status.Enabled() {
			continue
		}
		if filter != nil {
			if filter.OwnerUserID != "" && r.OwnerUserID != filter.OwnerUserID {
				continue
			}
			if filter.AppID != "" && r.AppID != filter.AppID {
				continue
			}
			if filter.ResType != nil && r.ResType != *filter.ResType {
				continue
			}
			if filter.NameLike != "" && !strings.Contains(r.ResName, filter.NameLike) {
				continue
			}
			if allow != nil {
				if _, ok := allow[r.ID.String()]; !ok {
					continue
				}
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// ──────────────────────────────────────────────────
// Operation Store
// ──────────────────────────────────────────────────

func (s *Store) CreateOperation(_ context.Context, o *operation.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[o.ID.String()] = copyOperation(o)
	return nil
}

func (s *Store) GetOperation(_ context.Context, opID id.OperationID) (*operation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.operations[opID.String()]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", opID, store.ErrNotFound)
	}
	return copyOperation(o), nil
}

func (s *Store) GetOperationByIdentity(_ context.Context, ident operation.Identity) (*operation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.operations {
		if o.Status.Enabled() && o.Identity() == ident {
			return copyOperation(o), nil
		}
	}
	return nil, fmt.Errorf("operation %s: %w", ident.OpKey, store.ErrNotFound)
}

func (s *Store) GetOperationsByKeys(_ context.Context, ownerUserID, appID string, keys []string) ([]*operation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var out []*operation.Operation
	for _, o := range s.operations {
		if !o.Status.Enabled() || o.OwnerUserID != ownerUserID || o.AppID != appID {
			continue
		}
		if _, ok := want[o.OpKey]; ok {
			out = append(out, copyOperation(o))
		}
	}
	return out, nil
}

func (s *Store) UpdateOperation(_ context.Context, o *operation.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operations[o.ID.String()]; !ok {
		return fmt.Errorf("operation %s: %w", o.ID, store.ErrNotFound)
	}
	s.operations[o.ID.String()] = copyOperation(o)
	return nil
}

func (s *Store) DisableOtherOperations(_ context.Context, ident operation.Identity, keep id.OperationID, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, o := range s.operations {
		if o.ID == keep || !o.Status.Enabled() || o.Identity() != ident {
			continue
		}
		o.Status = status.Delete
		o.ChangeUserID = changeUserID
		o.ChangeTime = now
	}
	return nil
}

func (s *Store) DeleteOperationCascade(_ context.Context, opID id.OperationID, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.operations[opID.String()]
	if !ok {
		return fmt.Errorf("operation %s: %w", opID, store.ErrNotFound)
	}
	now := time.Now().UTC()
	o.Status = status.Delete
	o.ChangeUserID = changeUserID
	o.ChangeTime = now
	for _, l := range s.resLinks {
		if l.Status.Enabled() && l.OpID == opID {
			l.Status = status.Delete
			l.ChangeUserID = changeUserID
			l.ChangeTime = now
		}
	}
	return nil
}

func (s *Store) ListOperations(_ context.Context, filter *operation.ListFilter) ([]*operation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchOperations(filter)
	if filter != nil {
		matched = pageSlice(matched, filter.Limit, filter.Offset)
	}
	result := make([]*operation.Operation, len(matched))
	for i, o := range matched {
		result[i] = copyOperation(o)
	}
	return result, nil
}

func (s *Store) CountOperations(_ context.Context, filter *operation.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var f *operation.ListFilter
	if filter != nil {
		unpaged := *filter
		unpaged.Limit, unpaged.Offset = 0, 0
		f = &unpaged
	}
	return int64(len(s.matchOperations(f))), nil
}

func (s *Store) matchOperations(filter *operation.ListFilter) []*operation.Operation {
	var allow map[string]struct{}
	if filter != nil && filter.IDs != nil {
		allow = idSet(filter.IDs)
	}
	var out []*operation.Operation
	for _, o := range s.operations {
		if !o.Status.Enabled() {
			continue
		}
		if filter != nil {
			if filter.OwnerUserID != "" && o.OwnerUserID != filter.OwnerUserID {
				continue
			}
			if filter.AppID != "" && o.AppID != filter.AppID {
				continue
			}
			if filter.NameLike != "" && !strings.Contains(o.OpName, filter.NameLike) {
				continue
			}
			if allow != nil {
				if _, ok := allow[o.ID.String()]; !ok {
					continue
				}
			}
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *Store) CreateResLink(_ context.Context, l *operation.ResLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resLinks[l.ID.String()] = copyResLink(l)
	return nil
}

func (s *Store) DeleteResLink(_ context.Context, opID id.OperationID, resType string, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, l := range s.resLinks {
		if l.Status.Enabled() && l.OpID == opID && l.ResType == resType {
			l.Status = status.Delete
			l.ChangeUserID = changeUserID
			l.ChangeTime = now
		}
	}
	return nil
}

func (s *Store) DeleteResLinksByResType(_ context.Context, ownerUserID, appID, resType string, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, l := range s.resLinks {
		if l.Status.Enabled() && l.OwnerUserID == ownerUserID && l.AppID == appID && l.ResType == resType {
			l.Status = status.Delete
			l.ChangeUserID = changeUserID
			l.ChangeTime = now
		}
	}
	return nil
}

func (s *Store) ListResLinksForOp(_ context.Context, opID id.OperationID) ([]*operation.ResLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*operation.ResLink
	for _, l := range s.resLinks {
		if l.Status.Enabled() && l.OpID == opID {
			out = append(out, copyResLink(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResType < out[j].ResType })
	return out, nil
}

func (s *Store) ListOpsForResType(_ context.Context, ownerUserID, appID, resType string) ([]*operation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*operation.Operation
	for _, l := range s.resLinks {
		if !l.Status.Enabled() || l.OwnerUserID != ownerUserID || l.AppID != appID || l.ResType != resType {
			continue
		}
		o, ok := s.operations[l.OpID.String()]
		if ok && o.Status.Enabled() {
			out = append(out, copyOperation(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpKey < out[j].OpKey })
	return out, nil
}

// ──────────────────────────────────────────────────
// Tag Store
// ──────────────────────────────────────────────────

func (s *Store) SetTags(_ context.Context, fromID id.ID, source tag.Source, ownerUserID string, names []string, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	have := make(map[string]struct{})
	for _, t := range s.tags {
		if !t.Status.Enabled() || t.FromID != fromID || t.FromSource != source {
			continue
		}
		if _, ok := want[t.Name]; ok {
			have[t.Name] = struct{}{}
			continue
		}
		t.Status = status.Delete
		t.ChangeUserID = changeUserID
		t.ChangeTime = now
	}
	for _, n := range names {
		if _, ok := have[n]; ok {
			continue
		}
		t := &tag.Tag{
			ID:           id.NewTagID(),
			FromID:       fromID,
			FromSource:   source,
			Name:         n,
			OwnerUserID:  ownerUserID,
			Status:       status.Enable,
			ChangeUserID: changeUserID,
			ChangeTime:   now,
		}
		s.tags[t.ID.String()] = t
	}
	return nil
}

func (s *Store) DeleteTags(_ context.Context, fromID id.ID, source tag.Source, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tags {
		if t.Status.Enabled() && t.FromID == fromID && t.FromSource == source {
			t.Status = status.Delete
			t.ChangeUserID = changeUserID
			t.ChangeTime = now
		}
	}
	return nil
}

func (s *Store) ListTags(_ context.Context, fromID id.ID, source tag.Source) ([]*tag.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*tag.Tag
	for _, t := range s.tags {
		if t.Status.Enabled() && t.FromID == fromID && t.FromSource == source {
			out = append(out, copyTag(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindTagsByName(_ context.Context, ownerUserID string, source tag.Source, names []string) ([]*tag.Tag, error) {
	if len(names) == 0 {
		return []*tag.Tag{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []*tag.Tag
	for _, t := range s.tags {
		if !t.Status.Enabled() || t.OwnerUserID != ownerUserID || t.FromSource != source {
			continue
		}
		if _, ok := want[t.Name]; ok {
			out = append(out, copyTag(t))
		}
	}
	return out, nil
}

func (s *Store) FindTagsByIDs(_ context.Context, source tag.Source, fromIDs []id.ID) ([]*tag.Tag, error) {
	if len(fromIDs) == 0 {
		return []*tag.Tag{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := idSet(fromIDs)
	var out []*tag.Tag
	for _, t := range s.tags {
		if !t.Status.Enabled() || t.FromSource != source {
			continue
		}
		if _, ok := want[t.FromID.String()]; ok {
			out = append(out, copyTag(t))
		}
	}
	return out, nil
}

func (s *Store) GroupTagsByOwner(_ context.Context, ownerUserID string, source tag.Source) ([]tag.GroupCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, t := range s.tags {
		if t.Status.Enabled() && t.OwnerUserID == ownerUserID && t.FromSource == source {
			counts[t.Name]++
		}
	}
	out := make([]tag.GroupCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, tag.GroupCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CountTagsByName(_ context.Context, ownerUserID string, source tag.Source, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.tags {
		if t.Status.Enabled() && t.OwnerUserID == ownerUserID && t.FromSource == source && t.Name == name {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Role Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	return copyRole(r), nil
}

func (s *Store) GetRoleByKey(_ context.Context, ownerUserID, roleKey string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Status.Enabled() && r.OwnerUserID == ownerUserID && r.RoleKey == roleKey && roleKey != "" {
			return copyRole(r), nil
		}
	}
	return nil, fmt.Errorf("role key %q: %w", roleKey, store.ErrNotFound)
}

func (s *Store) FindRoleConflict(_ context.Context, ownerUserID, name, key string) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*role.Role
	for _, r := range s.roles {
		if !r.Status.Enabled() || r.OwnerUserID != ownerUserID {
			continue
		}
		if r.RoleName == name || (key != "" && r.RoleKey == key) {
			out = append(out, copyRole(r))
		}
	}
	return out, nil
}

func (s *Store) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID.String()]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

func (s *Store) DeleteRoleCascade(_ context.Context, roleID id.RoleID, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	now := time.Now().UTC()
	r.Status = status.Delete
	r.ChangeUserID = changeUserID
	r.ChangeTime = now
	for _, p := range s.perms {
		if p.Status.Enabled() && p.RoleID == roleID {
			p.Status = status.Delete
			p.ChangeUserID = changeUserID
			p.ChangeTime = now
		}
	}
	for _, b := range s.bindings {
		if b.Status.Enabled() && b.RoleID == roleID {
			b.Status = status.Delete
			b.ChangeUserID = changeUserID
			b.ChangeTime = now
		}
	}
	return nil
}

func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchRoles(filter)
	if filter != nil {
		matched = pageSlice(matched, filter.Limit, filter.Offset)
	}
	result := make([]*role.Role, len(matched))
	for i, r := range matched {
		result[i] = copyRole(r)
	}
	return result, nil
}

func (s *Store) CountRoles(_ context.Context, filter *role.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var f *role.ListFilter
	if filter != nil {
		unpaged := *filter
		unpaged.Limit, unpaged.Offset = 0, 0
		f = &unpaged
	}
	return int64(len(s.matchRoles(f))), nil
}

func (s *Store) matchRoles(filter *role.ListFilter) []*role.Role {
	var allow map[string]struct{}
	if filter != nil && filter.IDs != nil {
		allow = idSet(filter.IDs)
	}
	var out []*role.Role
	for _, r := range s.roles {
		if !r.Status.Enabled() {
			continue
		}
		if filter != nil {
			if filter.OwnerUserID != "" && r.OwnerUserID != filter.OwnerUserID {
				continue
			}
			if filter.AppID != "" && r.AppID != filter.AppID {
				continue
			}
			if filter.UserRange != nil && r.UserRange != *filter.UserRange {
				continue
			}
			if filter.ResRange != nil && r.ResRange != *filter.ResRange {
				continue
			}
			if filter.NameLike != "" && !strings.Contains(r.RoleName, filter.NameLike) {
				continue
			}
			if allow != nil {
				if _, ok := allow[r.ID.String()]; !ok {
					continue
				}
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *Store) ListSessionRoles(_ context.Context, ownerUserID string) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*role.Role
	for _, r := range s.roles {
		if r.Status.Enabled() && r.OwnerUserID == ownerUserID && r.UserRange == role.UserRangeSession {
			out = append(out, copyRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) CountUsersPerRole(_ context.Context, roleIDs []id.RoleID, onlyLive bool, now time.Time) ([]role.UserCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64, len(roleIDs))
	for _, roleID := range roleIDs {
		counts[roleID.String()] = 0
	}
	for _, b := range s.bindings {
		if !b.Status.Enabled() {
			continue
		}
		if _, ok := counts[b.RoleID.String()]; !ok {
			continue
		}
		if onlyLive && !b.Live(now) {
			continue
		}
		counts[b.RoleID.String()]++
	}
	out := make([]role.UserCount, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		out = append(out, role.UserCount{RoleID: roleID, Count: counts[roleID.String()]})
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Binding Store
// ──────────────────────────────────────────────────

func (s *Store) SetRoleUsers(_ context.Context, roleID id.RoleID, users []binding.UserEntry, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	want := make(map[string]binding.UserEntry, len(users))
	for _, u := range users {
		want[u.UserID] = u
	}
	have := make(map[string]struct{})
	for _, b := range s.bindings {
		if !b.Status.Enabled() || b.RoleID != roleID {
			continue
		}
		u, keep := want[b.UserID]
		if !keep {
			b.Status = status.Delete
			b.ChangeUserID = changeUserID
			b.ChangeTime = now
			continue
		}
		have[b.UserID] = struct{}{}
		if !equalTimeout(b.Timeout, u.Timeout) {
			b.Timeout = copyTime(u.Timeout)
			b.ChangeUserID = changeUserID
			b.ChangeTime = now
		}
	}
	for _, u := range users {
		if _, ok := have[u.UserID]; ok {
			continue
		}
		b := &binding.Binding{
			ID:           id.NewBindingID(),
			RoleID:       roleID,
			UserID:       u.UserID,
			Timeout:      copyTime(u.Timeout),
			Status:       status.Enable,
			ChangeUserID: changeUserID,
			ChangeTime:   now,
		}
		s.bindings[b.ID.String()] = b
	}
	return nil
}

func (s *Store) ListUsersForRole(_ context.Context, roleID id.RoleID) ([]*binding.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*binding.Binding
	for _, b := range s.bindings {
		if b.Status.Enabled() && b.RoleID == roleID {
			out = append(out, copyBinding(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) ListBindingsForUser(_ context.Context, userID string, now time.Time) ([]*binding.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*binding.Binding
	for _, b := range s.bindings {
		if b.UserID != userID || !b.Live(now) {
			continue
		}
		out = append(out, copyBinding(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID.String() < out[j].RoleID.String() })
	return out, nil
}

func (s *Store) PurgeExpiredBindings(_ context.Context, now time.Time, changeUserID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, b := range s.bindings {
		if !b.Status.Enabled() || b.Timeout == nil || b.Timeout.After(now) {
			continue
		}
		b.Status = status.Delete
		b.ChangeUserID = changeUserID
		b.ChangeTime = now
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Permission Store
// ──────────────────────────────────────────────────

func (s *Store) SetRolePerms(_ context.Context, roleID id.RoleID, entries []permission.Entry, changeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	want := make(map[string]permission.Entry, len(entries))
	for _, e := range entries {
		want[e.ResID.String()+"|"+e.OpID.String()] = e
	}
	have := make(map[string]struct{})
	for _, p := range s.perms {
		if !p.Status.Enabled() || p.RoleID != roleID {
			continue
		}
		k := p.ResID.String() + "|" + p.OpID.String()
		if _, keep := want[k]; keep {
			have[k] = struct{}{}
			continue
		}
		p.Status = status.Delete
		p.ChangeUserID = changeUserID
		p.ChangeTime = now
	}
	for k, e := range want {
		if _, ok := have[k]; ok {
			continue
		}
		p := &permission.Perm{
			ID:           id.NewPermID(),
			RoleID:       roleID,
			ResID:        e.ResID,
			OpID:         e.OpID,
			Status:       status.Enable,
			ChangeUserID: changeUserID,
			ChangeTime:   now,
		}
		s.perms[p.ID.String()] = p
	}
	return nil
}

func (s *Store) ListPermsForRole(_ context.Context, roleID id.RoleID) ([]*permission.Perm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*permission.Perm
	for _, p := range s.perms {
		if p.Status.Enabled() && p.RoleID == roleID {
			out = append(out, copyPerm(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) ListPermsForRoles(_ context.Context, roleIDs []id.RoleID) ([]*permission.Perm, error) {
	if len(roleIDs) == 0 {
		return []*permission.Perm{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := idSet(roleIDs)
	var out []*permission.Perm
	for _, p := range s.perms {
		if !p.Status.Enabled() {
			continue
		}
		if _, ok := want[p.RoleID.String()]; ok {
			out = append(out, copyPerm(p))
		}
	}
	return out, nil
}

func (s *Store) ListPermsForResource(_ context.Context, resID id.ResourceID) ([]*permission.Perm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*permission.Perm
	for _, p := range s.perms {
		if p.Status.Enabled() && p.ResID == resID {
			out = append(out, copyPerm(p))
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Changelog Store
// ──────────────────────────────────────────────────

func (s *Store) CreateChange(_ context.Context, e *changelog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[e.ID.String()] = copyChange(e)
	return nil
}

func (s *Store) GetChange(_ context.Context, chgID id.ChangeID) (*changelog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.changes[chgID.String()]
	if !ok {
		return nil, fmt.Errorf("change %s: %w", chgID, store.ErrNotFound)
	}
	return copyChange(e), nil
}

func (s *Store) ListChanges(_ context.Context, filter *changelog.QueryFilter) ([]*changelog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchChanges(filter)
	if filter != nil {
		matched = pageSlice(matched, filter.Limit, filter.Offset)
	}
	result := make([]*changelog.Entry, len(matched))
	for i, e := range matched {
		result[i] = copyChange(e)
	}
	return result, nil
}

func (s *Store) CountChanges(_ context.Context, filter *changelog.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var f *changelog.QueryFilter
	if filter != nil {
		unpaged := *filter
		unpaged.Limit, unpaged.Offset = 0, 0
		f = &unpaged
	}
	return int64(len(s.matchChanges(f))), nil
}

// matchChanges returns entries matching the filter, newest first.
func (s *Store) matchChanges(filter *changelog.QueryFilter) []*changelog.Entry {
	var out []*changelog.Entry
	for _, e := range s.changes {
		if filter != nil {
			if filter.ActorID != "" && e.ActorID != filter.ActorID {
				continue
			}
			if filter.AppID != "" && e.AppID != filter.AppID {
				continue
			}
			if filter.EntityKind != "" && e.EntityKind != filter.EntityKind {
				continue
			}
			if !filter.EntityID.IsNil() && e.EntityID != filter.EntityID {
				continue
			}
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.After != nil && !e.CreatedAt.After(*filter.After) {
				continue
			}
			if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
				continue
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (s *Store) PurgeChanges(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.changes {
		if e.CreatedAt.Before(before) {
			delete(s.changes, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func idSet(ids []id.ID) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, i := range ids {
		set[i.String()] = struct{}{}
	}
	return set
}

func pageSlice[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func equalTimeout(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyResource(r *resource.Resource) *resource.Resource {
	c := *r
	return &c
}

func copyOperation(o *operation.Operation) *operation.Operation {
	c := *o
	return &c
}

func copyResLink(l *operation.ResLink) *operation.ResLink {
	c := *l
	return &c
}

func copyTag(t *tag.Tag) *tag.Tag {
	c := *t
	return &c
}

func copyRole(r *role.Role) *role.Role {
	c := *r
	return &c
}

func copyBinding(b *binding.Binding) *binding.Binding {
	c := *b
	c.Timeout = copyTime(b.Timeout)
	return &c
}

func copyPerm(p *permission.Perm) *permission.Perm {
	c := *p
	return &c
}

func copyChange(e *changelog.Entry) *changelog.Entry {
	c := *e
	return &c
}
