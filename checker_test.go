package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	access "github.com/shanliu/lsys-access"
	"github.com/shanliu/lsys-access/binding"
	"github.com/shanliu/lsys-access/cache"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/notify"
	"github.com/shanliu/lsys-access/permission"
	"github.com/shanliu/lsys-access/role"
	"github.com/shanliu/lsys-access/store/memory"
	"github.com/shanliu/lsys-access/tag"
)

const (
	testOwner = "owner-1"
	testUser  = "user-1"
)

func newTestEngine(t *testing.T, opts ...access.Option) (*access.Engine, context.Context) {
	t.Helper()
	base := []access.Option{
		access.WithStore(memory.New()),
		access.WithCache(cache.NewMemory()),
		access.WithNotifier(notify.NewLoopback()),
	}
	eng, err := access.NewEngine(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := access.WithActor(context.Background(), "app-1", "admin-1")
	return eng, ctx
}

// seedResource registers a resource with the given operations linked and
// returns the resource plus the created operations keyed by op key.
func seedResource(t *testing.T, ctx context.Context, eng *access.Engine, resType, resData string, opKeys ...string) (id.ResourceID, map[string]id.OperationID) {
	t.Helper()
	cat := eng.Catalog()
	res, err := cat.AddResource(ctx, testOwner, resType, resData, resType+" "+resData)
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	ops := make(map[string]id.OperationID, len(opKeys))
	for _, key := range opKeys {
		op, err := cat.AddOperation(ctx, testOwner, key, key)
		if err != nil {
			t.Fatalf("AddOperation(%s): %v", key, err)
		}
		if err := cat.LinkOperation(ctx, op.ID, resType); err != nil {
			t.Fatalf("LinkOperation(%s): %v", key, err)
		}
		ops[key] = op.ID
	}
	return res.ID, ops
}

// seedRole creates a role, optionally binds users, and optionally grants
// perms.
func seedRole(t *testing.T, ctx context.Context, eng *access.Engine, name string, ur role.UserRange, rr role.ResRange, priority int, users []string, perms []permission.Entry) id.RoleID {
	t.Helper()
	reg := eng.Registry()
	r, err := reg.AddRole(ctx, testOwner, "", name, ur, rr, priority)
	if err != nil {
		t.Fatalf("AddRole(%s): %v", name, err)
	}
	if len(users) > 0 {
		entries := make([]binding.UserEntry, len(users))
		for i, u := range users {
			entries[i] = binding.UserEntry{UserID: u}
		}
		if err := reg.SetRoleUsers(ctx, r.ID, entries); err != nil {
			t.Fatalf("SetRoleUsers(%s): %v", name, err)
		}
	}
	if len(perms) > 0 {
		if err := reg.SetRolePerms(ctx, r.ID, perms); err != nil {
			t.Fatalf("SetRolePerms(%s): %v", name, err)
		}
	}
	return r.ID
}

func req(resType, resData string, ops ...string) access.Requirement {
	return access.Requirement{
		OwnerUserID: testOwner,
		ResType:     resType,
		ResData:     resData,
		Ops:         ops,
	}
}

func TestCheckCustomRoleGrants(t *testing.T) {
	eng, ctx := newTestEngine(t)
	resID, ops := seedResource(t, ctx, eng, "doc", "d1", "export", "delete")
	seedRole(t, ctx, eng, "exporter", role.UserRangeCustom, role.ResRangeCustom, 1,
		[]string{testUser},
		[]permission.Entry{{ResID: resID, OpID: ops["export"]}})

	if err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "export")}); err != nil {
		t.Fatalf("export should be allowed: %v", err)
	}
	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "delete")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("delete should be denied, got %v", err)
	}
	// All ops in one requirement must be covered.
	err = eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "export", "delete")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("export+delete should be denied, got %v", err)
	}
	// A user with no roles is denied.
	err = eng.Check(ctx, "stranger", nil, []access.Requirement{req("doc", "d1", "export")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("stranger should be denied, got %v", err)
	}
}

func TestCheckAllowAllCoversUnregistered(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedRole(t, ctx, eng, "root", role.UserRangeCustom, role.ResRangeAllowAll, 1, []string{testUser}, nil)

	// Never-registered resource and operation.
	if err := eng.Check(ctx, testUser, nil, []access.Requirement{req("ghost", "g1", "anything")}); err != nil {
		t.Fatalf("allow-all should cover unregistered resources: %v", err)
	}
}

func TestCheckCustomNeverCoversUnregistered(t *testing.T) {
	eng, ctx := newTestEngine(t)
	resID, ops := seedResource(t, ctx, eng, "doc", "d1", "export")
	seedRole(t, ctx, eng, "exporter", role.UserRangeCustom, role.ResRangeCustom, 1,
		[]string{testUser},
		[]permission.Entry{{ResID: resID, OpID: ops["export"]}})

	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("ghost", "g1", "export")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("custom grant should not cover unregistered resources, got %v", err)
	}
	err = eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "unregistered-op")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("custom grant should not cover unregistered ops, got %v", err)
	}
}

func TestCheckDenyAllOverridesByPriority(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "export")
	seedRole(t, ctx, eng, "allow-low", role.UserRangeCustom, role.ResRangeAllowAll, 1, []string{testUser}, nil)
	seedRole(t, ctx, eng, "deny-high", role.UserRangeCustom, role.ResRangeDenyAll, 5, []string{testUser}, nil)

	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "export")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("higher-priority deny-all should win, got %v", err)
	}

	// Reversed priorities: allow-all wins.
	eng2, ctx2 := newTestEngine(t)
	seedResource(t, ctx2, eng2, "doc", "d1", "export")
	seedRole(t, ctx2, eng2, "allow-high", role.UserRangeCustom, role.ResRangeAllowAll, 5, []string{testUser}, nil)
	seedRole(t, ctx2, eng2, "deny-low", role.UserRangeCustom, role.ResRangeDenyAll, 1, []string{testUser}, nil)
	if err := eng2.Check(ctx2, testUser, nil, []access.Requirement{req("doc", "d1", "export")}); err != nil {
		t.Fatalf("higher-priority allow-all should win: %v", err)
	}
}

func TestCheckSessionRolesApplyWithoutBinding(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "view")
	reg := eng.Registry()
	if _, err := reg.AddRole(ctx, testOwner, "guest", "guest", role.UserRangeSession, role.ResRangeAllowAll, 1); err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	// No binding rows at all: session roles cover every caller in scope.
	if err := eng.Check(ctx, "anyone", nil, []access.Requirement{req("doc", "d1", "view")}); err != nil {
		t.Fatalf("session role should apply without binding: %v", err)
	}
}

func TestCheckBoundRoleWinsPriorityTie(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "view")
	reg := eng.Registry()
	if _, err := reg.AddRole(ctx, testOwner, "guest", "guest", role.UserRangeSession, role.ResRangeAllowAll, 5); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	seedRole(t, ctx, eng, "banned", role.UserRangeCustom, role.ResRangeDenyAll, 5, []string{testUser}, nil)

	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "view")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("bound deny-all should win the priority tie, got %v", err)
	}
}

func TestCheckScopeGate(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "view")
	seedRole(t, ctx, eng, "root", role.UserRangeCustom, role.ResRangeAllowAll, 1, []string{testUser}, nil)

	if err := eng.Check(ctx, testUser, []string{"doc:d1"}, []access.Requirement{req("doc", "d1", "view")}); err != nil {
		t.Fatalf("matching scope should pass: %v", err)
	}
	err := eng.Check(ctx, testUser, []string{"other:x"}, []access.Requirement{req("doc", "d1", "view")})
	var deny *access.DenyError
	if !errors.As(err, &deny) {
		t.Fatalf("mismatched scope should deny, got %v", err)
	}
	if deny.Reason != "outside delegated token scope" {
		t.Fatalf("unexpected deny reason %q", deny.Reason)
	}
	// Empty scope list means no delegation gate.
	if err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "view")}); err != nil {
		t.Fatalf("nil scopes should not gate: %v", err)
	}
}

func TestCheckEmptyOpsRejected(t *testing.T) {
	eng, ctx := newTestEngine(t)
	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1")})
	if !errors.Is(err, access.ErrValidation) {
		t.Fatalf("empty ops should fail validation, got %v", err)
	}
}

func TestCheckTagRequirement(t *testing.T) {
	eng, ctx := newTestEngine(t)
	resID, _ := seedResource(t, ctx, eng, "doc", "d1", "view")
	seedRole(t, ctx, eng, "root", role.UserRangeCustom, role.ResRangeAllowAll, 1, []string{testUser}, nil)
	if err := eng.Tags().SetTags(ctx, resID, tag.SourceResource, testOwner, []string{"red"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	tagged := req("doc", "d1", "view")
	tagged.Tags = []string{"red"}
	if err := eng.Check(ctx, testUser, nil, []access.Requirement{tagged}); err != nil {
		t.Fatalf("matching tag should pass: %v", err)
	}

	tagged.Tags = []string{"blue"}
	err := eng.Check(ctx, testUser, nil, []access.Requirement{tagged})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("missing tag should deny even under allow-all, got %v", err)
	}
}

func TestListCheckAlternatives(t *testing.T) {
	eng, ctx := newTestEngine(t)
	resID, ops := seedResource(t, ctx, eng, "doc", "d1", "export", "delete")
	seedRole(t, ctx, eng, "exporter", role.UserRangeCustom, role.ResRangeCustom, 1,
		[]string{testUser},
		[]permission.Entry{{ResID: resID, OpID: ops["export"]}})

	// First alternative fails, second passes.
	err := eng.ListCheck(ctx, testUser, nil, [][]access.Requirement{
		{req("doc", "d1", "delete")},
		{req("doc", "d1", "export")},
	})
	if err != nil {
		t.Fatalf("one passing alternative should suffice: %v", err)
	}

	// All alternatives fail: the last deny is returned.
	err = eng.ListCheck(ctx, testUser, nil, [][]access.Requirement{
		{req("doc", "d1", "delete")},
		{req("doc", "d2", "export")},
	})
	var deny *access.DenyError
	if !errors.As(err, &deny) {
		t.Fatalf("expected deny, got %v", err)
	}
	if deny.Requirement == nil || deny.Requirement.ResData != "d2" {
		t.Fatalf("expected the last alternative's deny, got %+v", deny)
	}
}

func TestListCheckEmptyAlternativesDenied(t *testing.T) {
	eng, ctx := newTestEngine(t)

	err := eng.ListCheck(ctx, testUser, nil, [][]access.Requirement{})
	if !errors.Is(err, access.ErrValidation) {
		t.Fatalf("zero alternatives must not pass, got %v", err)
	}
	err = eng.ListCheck(ctx, testUser, nil, nil)
	if !errors.Is(err, access.ErrValidation) {
		t.Fatalf("nil alternatives must not pass, got %v", err)
	}
}

func TestCheckExpiredBindingIgnored(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "view")
	reg := eng.Registry()
	r, err := reg.AddRole(ctx, testOwner, "", "temp", role.UserRangeCustom, role.ResRangeAllowAll, 1)
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := reg.SetRoleUsers(ctx, r.ID, []binding.UserEntry{{UserID: testUser, Timeout: &past}}); err != nil {
		t.Fatalf("SetRoleUsers: %v", err)
	}

	err = eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "view")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expired binding should not grant, got %v", err)
	}
}

func TestCheckBindingExpiryBeatsWarmCache(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "view")
	reg := eng.Registry()
	r, err := reg.AddRole(ctx, testOwner, "", "temp", role.UserRangeCustom, role.ResRangeAllowAll, 1)
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	timeout := time.Now().UTC().Add(100 * time.Millisecond)
	if err := reg.SetRoleUsers(ctx, r.ID, []binding.UserEntry{{UserID: testUser, Timeout: &timeout}}); err != nil {
		t.Fatalf("SetRoleUsers: %v", err)
	}

	// Warm the bound-role cache while the binding is still live.
	reqs := []access.Requirement{req("doc", "d1", "view")}
	if err := eng.Check(ctx, testUser, nil, reqs); err != nil {
		t.Fatalf("check before expiry should pass: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	err = eng.Check(ctx, testUser, nil, reqs)
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("binding past its timeout must stop granting, got %v", err)
	}
}

func TestCheckSeesPermRevocation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	resID, ops := seedResource(t, ctx, eng, "doc", "d1", "export")
	reg := eng.Registry()
	roleID := seedRole(t, ctx, eng, "exporter", role.UserRangeCustom, role.ResRangeCustom, 1,
		[]string{testUser},
		[]permission.Entry{{ResID: resID, OpID: ops["export"]}})

	if err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "export")}); err != nil {
		t.Fatalf("initial check should pass: %v", err)
	}

	// Revoke and re-check: the cached grant set must be invalidated.
	if err := reg.SetRolePerms(ctx, roleID, nil); err != nil {
		t.Fatalf("SetRolePerms: %v", err)
	}
	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "export")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("revoked perm should deny, got %v", err)
	}
}

func TestCheckSeesUnbinding(t *testing.T) {
	eng, ctx := newTestEngine(t)
	seedResource(t, ctx, eng, "doc", "d1", "view")
	reg := eng.Registry()
	roleID := seedRole(t, ctx, eng, "root", role.UserRangeCustom, role.ResRangeAllowAll, 1, []string{testUser}, nil)

	if err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "view")}); err != nil {
		t.Fatalf("initial check should pass: %v", err)
	}
	if err := reg.SetRoleUsers(ctx, roleID, nil); err != nil {
		t.Fatalf("SetRoleUsers: %v", err)
	}
	err := eng.Check(ctx, testUser, nil, []access.Requirement{req("doc", "d1", "view")})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("unbound user should be denied, got %v", err)
	}
}
