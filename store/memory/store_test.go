package memory

import (
	"context"
	"errors"
	"testing"
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

func newResource(owner, resType, resData string) *resource.Resource {
	return &resource.Resource{
		ID:          id.NewResourceID(),
		OwnerUserID: owner,
		AppID:       "app1",
		ResType:     resType,
		ResData:     resData,
		ResName:     resType + " " + resData,
		Status:      status.Enable,
		ChangeTime:  time.Now().UTC(),
	}
}

func TestResourceCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := newResource("o1", "doc", "d1")
	if err := s.CreateResource(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetResource(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ResName != "doc d1" {
		t.Fatalf("expected doc d1, got %s", got.ResName)
	}

	got, err = s.GetResourceByIdentity(ctx, r.Identity())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != r.ID {
		t.Fatal("identity lookup mismatch")
	}

	r.ResName = "renamed"
	if err := s.UpdateResource(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetResource(ctx, r.ID)
	if got.ResName != "renamed" {
		t.Fatal("update failed")
	}

	list, _ := s.ListResources(ctx, &resource.ListFilter{OwnerUserID: "o1"})
	if len(list) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(list))
	}
	count, _ := s.CountResources(ctx, &resource.ListFilter{OwnerUserID: "o1"})
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}

func TestDisableOtherResources(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := newResource("o1", "doc", "d1")
	b := newResource("o1", "doc", "d1")
	_ = s.CreateResource(ctx, a)
	_ = s.CreateResource(ctx, b)

	if err := s.DisableOtherResources(ctx, b.Identity(), b.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetResource(ctx, a.ID)
	if got.Status.Enabled() {
		t.Fatal("duplicate row should be disabled")
	}
	got, _ = s.GetResource(ctx, b.ID)
	if !got.Status.Enabled() {
		t.Fatal("kept row must stay enabled")
	}
}

func TestDeleteResourceCascadeStripsPerms(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := newResource("o1", "doc", "d1")
	_ = s.CreateResource(ctx, r)
	roleID := id.NewRoleID()
	opID := id.NewOperationID()
	if err := s.SetRolePerms(ctx, roleID, []permission.Entry{{ResID: r.ID, OpID: opID}}, "admin"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteResourceCascade(ctx, r.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetResource(ctx, r.ID)
	if got.Status.Enabled() {
		t.Fatal("resource should be soft-deleted")
	}
	perms, _ := s.ListPermsForRole(ctx, roleID)
	if len(perms) != 0 {
		t.Fatalf("perms referencing the resource should be gone, got %d", len(perms))
	}

	// Identity lookup only sees Enabled rows.
	if _, err := s.GetResourceByIdentity(ctx, r.Identity()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResourceListFilterShortCircuitInputs(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateResource(ctx, newResource("o1", "doc", "d1"))

	// Non-nil empty IDs matches nothing.
	list, _ := s.ListResources(ctx, &resource.ListFilter{OwnerUserID: "o1", IDs: []id.ID{}})
	if len(list) != 0 {
		t.Fatalf("empty IDs allow-list must match nothing, got %d", len(list))
	}
}

func TestOperationCascadeStripsLinks(t *testing.T) {
	ctx := context.Background()
	s := New()

	o := &operation.Operation{
		ID: id.NewOperationID(), OwnerUserID: "o1", AppID: "app1",
		OpKey: "view", OpName: "View", Status: status.Enable,
	}
	_ = s.CreateOperation(ctx, o)
	l := &operation.ResLink{
		ID: id.NewResLinkID(), OpID: o.ID, ResType: "doc",
		OwnerUserID: "o1", AppID: "app1", Status: status.Enable,
	}
	_ = s.CreateResLink(ctx, l)

	ops, _ := s.ListOpsForResType(ctx, "o1", "app1", "doc")
	if len(ops) != 1 {
		t.Fatalf("expected 1 linked op, got %d", len(ops))
	}

	if err := s.DeleteOperationCascade(ctx, o.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	ops, _ = s.ListOpsForResType(ctx, "o1", "app1", "doc")
	if len(ops) != 0 {
		t.Fatalf("links should be stripped, got %d", len(ops))
	}
}

func TestGetOperationsByKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, key := range []string{"view", "edit"} {
		_ = s.CreateOperation(ctx, &operation.Operation{
			ID: id.NewOperationID(), OwnerUserID: "o1", AppID: "app1",
			OpKey: key, OpName: key, Status: status.Enable,
		})
	}

	ops, err := s.GetOperationsByKeys(ctx, "o1", "app1", []string{"view", "edit", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, missing key silently absent, got %d", len(ops))
	}
}

func TestSetTagsDiff(t *testing.T) {
	ctx := context.Background()
	s := New()
	resID := id.NewResourceID()

	if err := s.SetTags(ctx, resID, tag.SourceResource, "o1", []string{"a", "b"}, "admin"); err != nil {
		t.Fatal(err)
	}
	tags, _ := s.ListTags(ctx, resID, tag.SourceResource)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}

	// Replace: drop "a", keep "b", add "c".
	if err := s.SetTags(ctx, resID, tag.SourceResource, "o1", []string{"b", "c"}, "admin"); err != nil {
		t.Fatal(err)
	}
	tags, _ = s.ListTags(ctx, resID, tag.SourceResource)
	if len(tags) != 2 || tags[0].Name != "b" || tags[1].Name != "c" {
		t.Fatalf("diff failed: %v", tagNames(tags))
	}

	// Delete-only diff still applies.
	if err := s.SetTags(ctx, resID, tag.SourceResource, "o1", nil, "admin"); err != nil {
		t.Fatal(err)
	}
	tags, _ = s.ListTags(ctx, resID, tag.SourceResource)
	if len(tags) != 0 {
		t.Fatalf("expected no tags, got %d", len(tags))
	}
}

func TestGroupTagsByOwner(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.SetTags(ctx, id.NewResourceID(), tag.SourceResource, "o1", []string{"red"}, "admin")
	_ = s.SetTags(ctx, id.NewResourceID(), tag.SourceResource, "o1", []string{"red", "blue"}, "admin")

	counts, _ := s.GroupTagsByOwner(ctx, "o1", tag.SourceResource)
	if len(counts) != 2 {
		t.Fatalf("expected 2 names, got %d", len(counts))
	}
	if counts[0].Name != "blue" || counts[0].Count != 1 {
		t.Fatalf("blue count wrong: %+v", counts[0])
	}
	if counts[1].Name != "red" || counts[1].Count != 2 {
		t.Fatalf("red count wrong: %+v", counts[1])
	}

	n, _ := s.CountTagsByName(ctx, "o1", tag.SourceResource, "red")
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}

func TestDeleteRoleCascade(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &role.Role{
		ID: id.NewRoleID(), OwnerUserID: "o1", RoleName: "editor",
		UserRange: role.UserRangeCustom, ResRange: role.ResRangeCustom,
		Status: status.Enable,
	}
	_ = s.CreateRole(ctx, r)
	_ = s.SetRoleUsers(ctx, r.ID, []binding.UserEntry{{UserID: "u1"}}, "admin")
	_ = s.SetRolePerms(ctx, r.ID, []permission.Entry{{ResID: id.NewResourceID(), OpID: id.NewOperationID()}}, "admin")

	if err := s.DeleteRoleCascade(ctx, r.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetRole(ctx, r.ID)
	if got.Status.Enabled() {
		t.Fatal("role should be soft-deleted")
	}
	users, _ := s.ListUsersForRole(ctx, r.ID)
	if len(users) != 0 {
		t.Fatal("bindings should be stripped")
	}
	perms, _ := s.ListPermsForRole(ctx, r.ID)
	if len(perms) != 0 {
		t.Fatal("perms should be stripped")
	}
}

func TestFindRoleConflict(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.CreateRole(ctx, &role.Role{
		ID: id.NewRoleID(), OwnerUserID: "o1", RoleName: "editor", RoleKey: "ed",
		UserRange: role.UserRangeCustom, ResRange: role.ResRangeCustom, Status: status.Enable,
	})

	hits, _ := s.FindRoleConflict(ctx, "o1", "editor", "")
	if len(hits) != 1 {
		t.Fatalf("name conflict not found, got %d", len(hits))
	}
	hits, _ = s.FindRoleConflict(ctx, "o1", "other", "ed")
	if len(hits) != 1 {
		t.Fatalf("key conflict not found, got %d", len(hits))
	}
	hits, _ = s.FindRoleConflict(ctx, "o1", "other", "")
	if len(hits) != 0 {
		t.Fatalf("empty key must not match, got %d", len(hits))
	}
	hits, _ = s.FindRoleConflict(ctx, "o2", "editor", "ed")
	if len(hits) != 0 {
		t.Fatalf("other owner must not conflict, got %d", len(hits))
	}
}

func TestSetRoleUsersDiffAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := New()
	roleID := id.NewRoleID()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	_ = s.SetRoleUsers(ctx, roleID, []binding.UserEntry{
		{UserID: "u1"},
		{UserID: "u2", Timeout: &past},
		{UserID: "u3", Timeout: &future},
	}, "admin")

	users, _ := s.ListUsersForRole(ctx, roleID)
	if len(users) != 3 {
		t.Fatalf("expected 3 bindings, got %d", len(users))
	}

	// Expired binding is invisible to role resolution.
	held, _ := s.ListBindingsForUser(ctx, "u2", now)
	if len(held) != 0 {
		t.Fatal("expired binding must not resolve")
	}
	held, _ = s.ListBindingsForUser(ctx, "u3", now)
	if len(held) != 1 {
		t.Fatal("live binding must resolve")
	}

	// Replace membership: drop u1.
	_ = s.SetRoleUsers(ctx, roleID, []binding.UserEntry{
		{UserID: "u2", Timeout: &past},
		{UserID: "u3", Timeout: &future},
	}, "admin")
	held, _ = s.ListBindingsForUser(ctx, "u1", now)
	if len(held) != 0 {
		t.Fatal("dropped user must not resolve")
	}

	// Sweep removes only the expired row.
	n, err := s.PurgeExpiredBindings(ctx, now, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	users, _ = s.ListUsersForRole(ctx, roleID)
	if len(users) != 1 || users[0].UserID != "u3" {
		t.Fatalf("only u3 should survive, got %v", users)
	}

	counts, _ := s.CountUsersPerRole(ctx, []id.RoleID{roleID}, true, now)
	if counts[0].Count != 1 {
		t.Fatalf("expected 1 live user, got %d", counts[0].Count)
	}
}

func TestChangelogQuery(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now().UTC()

	for i, action := range []string{"add_resource", "edit_resource", "delete_resource"} {
		_ = s.CreateChange(ctx, &changelog.Entry{
			ID:         id.NewChangeID(),
			Action:     action,
			ActorID:    "admin",
			EntityKind: "resource",
			EntityID:   id.NewResourceID(),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}

	list, _ := s.ListChanges(ctx, &changelog.QueryFilter{EntityKind: "resource"})
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	if list[0].Action != "delete_resource" {
		t.Fatalf("expected newest first, got %s", list[0].Action)
	}

	count, _ := s.CountChanges(ctx, &changelog.QueryFilter{Action: "edit_resource"})
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}

	n, _ := s.PurgeChanges(ctx, base.Add(1500*time.Millisecond))
	if n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}
}

func tagNames(tags []*tag.Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}
