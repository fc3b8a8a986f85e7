package access_test

import (
	"errors"
	"testing"
	"time"

	access "github.com/shanliu/lsys-access"
	"github.com/shanliu/lsys-access/binding"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/tag"
)

func TestAddRoleConflicts(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()

	if _, err := reg.AddRole(ctx, testOwner, "adm", "admins", role.UserRangeCustom, role.ResRangeAllowAll, 1); err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	_, err := reg.AddRole(ctx, testOwner, "", "admins", role.UserRangeCustom, role.ResRangeAllowAll, 1)
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("duplicate name should conflict, got %v", err)
	}
	_, err = reg.AddRole(ctx, testOwner, "adm", "other", role.UserRangeCustom, role.ResRangeAllowAll, 1)
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("duplicate key should conflict, got %v", err)
	}

	// Keyless roles never collide on key, and owners are isolated.
	if _, err := reg.AddRole(ctx, testOwner, "", "keyless-a", role.UserRangeCustom, role.ResRangeAllowAll, 1); err != nil {
		t.Fatalf("AddRole keyless: %v", err)
	}
	if _, err := reg.AddRole(ctx, testOwner, "", "keyless-b", role.UserRangeCustom, role.ResRangeAllowAll, 1); err != nil {
		t.Fatalf("second keyless role should not conflict: %v", err)
	}
	if _, err := reg.AddRole(ctx, "owner-2", "adm", "admins", role.UserRangeCustom, role.ResRangeAllowAll, 1); err != nil {
		t.Fatalf("other owner should not conflict: %v", err)
	}
}

func TestAddRoleValidation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()

	if _, err := reg.AddRole(ctx, testOwner, "", "  ", role.UserRangeCustom, role.ResRangeAllowAll, 1); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("blank name should fail validation, got %v", err)
	}
	if _, err := reg.AddRole(ctx, testOwner, "", "r", "bogus", role.ResRangeAllowAll, 1); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("unknown user range should fail validation, got %v", err)
	}
	if _, err := reg.AddRole(ctx, testOwner, "", "r", role.UserRangeCustom, "bogus", 1); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("unknown res range should fail validation, got %v", err)
	}
}

func TestEditRoleImmutableRange(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()

	r, err := reg.AddRole(ctx, testOwner, "adm", "admins", role.UserRangeCustom, role.ResRangeAllowAll, 1)
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	if _, err := reg.EditRole(ctx, r.ID, "adm", "admins", 1, role.UserRangeSession, ""); !errors.Is(err, access.ErrImmutableRange) {
		t.Fatalf("user range change should be rejected, got %v", err)
	}
	if _, err := reg.EditRole(ctx, r.ID, "adm", "admins", 1, "", role.ResRangeDenyAll); !errors.Is(err, access.ErrImmutableRange) {
		t.Fatalf("res range change should be rejected, got %v", err)
	}

	// Restating the stored ranges is fine; name, key, and priority move.
	got, err := reg.EditRole(ctx, r.ID, "root", "superusers", 9, role.UserRangeCustom, role.ResRangeAllowAll)
	if err != nil {
		t.Fatalf("EditRole: %v", err)
	}
	if got.RoleName != "superusers" || got.RoleKey != "root" || got.Priority != 9 {
		t.Fatalf("edit did not apply: %+v", got)
	}
}

func TestEditRoleConflict(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()

	if _, err := reg.AddRole(ctx, testOwner, "", "admins", role.UserRangeCustom, role.ResRangeAllowAll, 1); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	r2, err := reg.AddRole(ctx, testOwner, "", "ops", role.UserRangeCustom, role.ResRangeAllowAll, 1)
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	if _, err := reg.EditRole(ctx, r2.ID, "", "admins", 1, "", ""); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("rename onto a taken name should conflict, got %v", err)
	}
	// Re-saving its own name is not a conflict.
	if _, err := reg.EditRole(ctx, r2.ID, "", "ops", 3, "", ""); err != nil {
		t.Fatalf("same-name edit should pass: %v", err)
	}
}

func TestDeleteRoleRevokesAccess(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "view")
	roleID := seedRole(t, ctx, eng, "root", role.UserRangeCustom, role.ResRangeAllowAll, 1, []string{testUser}, nil)

	if err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "view")}); err != nil {
		t.Fatalf("initial check should pass: %v", err)
	}
	if err := eng.Registry().DeleteRole(ctx, roleID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "view")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("deleted role should not grant, got %v", err)
	}
	if err := eng.Registry().DeleteRole(ctx, roleID); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("double delete should be not-found, got %v", err)
	}
}

func TestFindRoleByKey(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()

	r, err := reg.AddRole(ctx, testOwner, "guest", "guests", role.UserRangeSession, role.ResRangeCustom, 1)
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	got, err := reg.FindRoleByKey(ctx, testOwner, "guest")
	if err != nil {
		t.Fatalf("FindRoleByKey: %v", err)
	}
	if got.ID != r.ID {
		t.Fatalf("expected %s, got %s", r.ID, got.ID)
	}
	if _, err := reg.FindRoleByKey(ctx, testOwner, "nope"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("unknown key should be not-found, got %v", err)
	}
	if _, err := reg.FindRoleByKey(ctx, "owner-2", "guest"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("other owner should be not-found, got %v", err)
	}
}

func TestRoleDataJoins(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()
	resID, ops := seedResource(t, ctx, eng, "doc", "d1", "export")
	roleID := seedRole(t, ctx, eng, "exporter", role.UserRangeCustom, role.ResRangeCustom, 1,
		[]string{testUser, "user-2"},
		[]permission.Entry{{ResID: resID, OpID: ops["export"]}})
	if err := eng.Tags().SetTags(ctx, roleID, tag.SourceRole, testOwner, []string{"staff"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	views, err := reg.RoleData(ctx, &role.ListFilter{OwnerUserID: testOwner},
		access.RoleDataOpts{WithTags: true, WithUsers: true, WithPerms: true})
	if err != nil {
		t.Fatalf("RoleData: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 role, got %d", len(views))
	}
	v := views[0]
	if v.Role.ID != roleID {
		t.Fatalf("unexpected role %s", v.Role.ID)
	}
	if len(v.Tags) != 1 || v.Tags[0] != "staff" {
		t.Fatalf("unexpected tags %v", v.Tags)
	}
	if len(v.Users) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(v.Users))
	}
	if len(v.Perms) != 1 {
		t.Fatalf("expected 1 perm, got %d", len(v.Perms))
	}

	// Without opts the joins stay empty.
	views, err = reg.RoleData(ctx, &role.ListFilter{OwnerUserID: testOwner}, access.RoleDataOpts{})
	if err != nil {
		t.Fatalf("RoleData: %v", err)
	}
	if len(views[0].Tags) != 0 || len(views[0].Users) != 0 || len(views[0].Perms) != 0 {
		t.Fatalf("joins should be empty without opts: %+v", views[0])
	}
}

func TestPermsForResource(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()
	resID, ops := seedResource(t, ctx, eng, "doc", "d1", "view", "export")
	otherID, otherOps := seedResource(t, ctx, eng, "doc", "d2", "view2")
	viewer := seedRole(t, ctx, eng, "viewer", role.UserRangeCustom, role.ResRangeCustom, 1,
		[]string{testUser},
		[]permission.Entry{{ResID: resID, OpID: ops["view"]}, {ResID: otherID, OpID: otherOps["view2"]}})
	exporter := seedRole(t, ctx, eng, "exporter", role.UserRangeCustom, role.ResRangeCustom, 1,
		[]string{testUser},
		[]permission.Entry{{ResID: resID, OpID: ops["export"]}})

	perms, err := reg.PermsForResource(ctx, resID)
	if err != nil {
		t.Fatalf("PermsForResource: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected 2 grants on d1, got %d", len(perms))
	}
	holders := map[string]bool{}
	for _, p := range perms {
		if p.ResID != resID {
			t.Fatalf("grant references the wrong resource: %+v", p)
		}
		holders[p.RoleID.String()] = true
	}
	if !holders[viewer.String()] || !holders[exporter.String()] {
		t.Fatalf("both roles should appear, got %v", holders)
	}

	perms, err = reg.PermsForResource(ctx, otherID)
	if err != nil {
		t.Fatalf("PermsForResource: %v", err)
	}
	if len(perms) != 1 || perms[0].RoleID != viewer {
		t.Fatalf("only the viewer grant references d2, got %+v", perms)
	}
}

func TestRoleDataTagFilter(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()
	tagged := seedRole(t, ctx, eng, "tagged", role.UserRangeCustom, role.ResRangeCustom, 1, nil, nil)
	seedRole(t, ctx, eng, "plain", role.UserRangeCustom, role.ResRangeCustom, 1, nil, nil)
	if err := eng.Tags().SetTags(ctx, tagged, tag.SourceRole, testOwner, []string{"staff"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	views, err := reg.RoleData(ctx, &role.ListFilter{OwnerUserID: testOwner, Tags: []string{"staff"}}, access.RoleDataOpts{})
	if err != nil {
		t.Fatalf("RoleData: %v", err)
	}
	if len(views) != 1 || views[0].Role.ID != tagged {
		t.Fatalf("expected only the tagged role, got %d", len(views))
	}

	n, err := reg.RoleCount(ctx, &role.ListFilter{OwnerUserID: testOwner, Tags: []string{"nope"}})
	if err != nil {
		t.Fatalf("RoleCount: %v", err)
	}
	if n != 0 {
		t.Fatalf("unknown tag should count 0, got %d", n)
	}
}

func TestRoleGroupUsers(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()
	r1 := seedRole(t, ctx, eng, "r1", role.UserRangeCustom, role.ResRangeCustom, 1, []string{"a", "b"}, nil)
	r2 := seedRole(t, ctx, eng, "r2", role.UserRangeCustom, role.ResRangeCustom, 1, nil, nil)

	past := time.Now().Add(-time.Hour)
	if err := reg.SetRoleUsers(ctx, r2, []binding.UserEntry{{UserID: "c", Timeout: &past}}); err != nil {
		t.Fatalf("SetRoleUsers: %v", err)
	}

	counts, err := reg.RoleGroupUsers(ctx, []id.RoleID{r1, r2}, true)
	if err != nil {
		t.Fatalf("RoleGroupUsers: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected a row per requested role, got %d", len(counts))
	}
	byRole := map[id.RoleID]int64{}
	for _, c := range counts {
		byRole[c.RoleID] = c.Count
	}
	if byRole[r1] != 2 || byRole[r2] != 0 {
		t.Fatalf("unexpected live counts %v", byRole)
	}

	// Including expired bindings counts the stale row too.
	counts, err = reg.RoleGroupUsers(ctx, []id.RoleID{r2}, false)
	if err != nil {
		t.Fatalf("RoleGroupUsers: %v", err)
	}
	if counts[0].Count != 1 {
		t.Fatalf("expected 1 including expired, got %d", counts[0].Count)
	}
}

func TestPurgeExpiredBindings(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()
	r := seedRole(t, ctx, eng, "temp", role.UserRangeCustom, role.ResRangeAllowAll, 1, nil, nil)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	err := reg.SetRoleUsers(ctx, r, []binding.UserEntry{
		{UserID: "expired", Timeout: &past},
		{UserID: "live", Timeout: &future},
		{UserID: "forever"},
	})
	if err != nil {
		t.Fatalf("SetRoleUsers: %v", err)
	}

	n, err := reg.PurgeExpiredBindings(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredBindings: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged binding, got %d", n)
	}

	bound, err := eng.Store().ListUsersForRole(ctx, r)
	if err != nil {
		t.Fatalf("ListUsersForRole: %v", err)
	}
	if len(bound) != 2 {
		t.Fatalf("expected 2 surviving bindings, got %d", len(bound))
	}
}

func TestSetRoleUsersDiff(t *testing.T) {
	eng, ctx := newTestEngine(t)
	reg := eng.Registry()
	r := seedRole(t, ctx, eng, "team", role.UserRangeCustom, role.ResRangeAllowAll, 1, []string{"a", "b"}, nil)

	// Replace b with c; a survives.
	err := reg.SetRoleUsers(ctx, r, []binding.UserEntry{{UserID: "a"}, {UserID: "c"}})
	if err != nil {
		t.Fatalf("SetRoleUsers: %v", err)
	}
	bound, err := eng.Store().ListUsersForRole(ctx, r)
	if err != nil {
		t.Fatalf("ListUsersForRole: %v", err)
	}
	users := map[string]bool{}
	for _, b := range bound {
		users[b.UserID] = true
	}
	if len(users) != 2 || !users["a"] || !users["c"] {
		t.Fatalf("unexpected bindings %v", users)
	}
}
