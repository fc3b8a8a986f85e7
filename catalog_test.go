package access_test

import (
	"errors"
	"testing"

	access "github.com/shanliu/lsys-access"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/resource"
	"github.com/shanliu/lsys-access/tag"
)

func TestAddResourceConflict(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	if _, err := cat.AddResource(ctx, testOwner, "doc", "d1", "first"); err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	_, err := cat.AddResource(ctx, testOwner, "doc", "d1", "second")
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("duplicate identity should conflict, got %v", err)
	}
	var conflict *access.ConflictError
	if !errors.As(err, &conflict) || conflict.Name != "first" {
		t.Fatalf("conflict should carry the existing name, got %+v", conflict)
	}

	// Same tuple under another owner is a different identity.
	if _, err := cat.AddResource(ctx, "owner-2", "doc", "d1", "other"); err != nil {
		t.Fatalf("other owner should not conflict: %v", err)
	}
}

func TestAddResourceValidation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	if _, err := cat.AddResource(ctx, testOwner, "  ", "d1", "name"); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("blank res_type should fail validation, got %v", err)
	}
	if _, err := cat.AddResource(ctx, testOwner, "doc", "", "name"); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("empty res_data should fail validation, got %v", err)
	}
}

func TestEditResourceCacheCoherence(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	r, err := cat.AddResource(ctx, testOwner, "doc", "d1", "report")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	// Warm the cache under the old identity.
	if _, err := cat.GetResource(ctx, testOwner, "doc", "d1"); err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	if _, err := cat.EditResource(ctx, r.ID, "doc", "d2", "report"); err != nil {
		t.Fatalf("EditResource: %v", err)
	}

	if _, err := cat.GetResource(ctx, testOwner, "doc", "d1"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("old identity should be gone, got %v", err)
	}
	got, err := cat.GetResource(ctx, testOwner, "doc", "d2")
	if err != nil {
		t.Fatalf("new identity should resolve: %v", err)
	}
	if got.ID != r.ID {
		t.Fatalf("expected the same row, got %s", got.ID)
	}
}

func TestEditResourceConflict(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	if _, err := cat.AddResource(ctx, testOwner, "doc", "d1", "one"); err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	r2, err := cat.AddResource(ctx, testOwner, "doc", "d2", "two")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}

	if _, err := cat.EditResource(ctx, r2.ID, "doc", "d1", "two"); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("edit onto a taken identity should conflict, got %v", err)
	}
	// Re-saving its own identity is not a conflict.
	if _, err := cat.EditResource(ctx, r2.ID, "doc", "d2", "renamed"); err != nil {
		t.Fatalf("same-identity edit should pass: %v", err)
	}
}

func TestDeleteResourceCascade(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	r, err := cat.AddResource(ctx, testOwner, "doc", "d1", "report")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if err := cat.DeleteResource(ctx, r.ID); err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}
	if _, err := cat.GetResource(ctx, testOwner, "doc", "d1"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("deleted resource should be gone, got %v", err)
	}
	// Double delete reports not found.
	if err := cat.DeleteResource(ctx, r.ID); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("double delete should be not-found, got %v", err)
	}
	// The identity is free for re-registration.
	if _, err := cat.AddResource(ctx, testOwner, "doc", "d1", "reborn"); err != nil {
		t.Fatalf("identity should be reusable after delete: %v", err)
	}
}

func TestListResourcesTagFilter(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	r1, err := cat.AddResource(ctx, testOwner, "doc", "d1", "tagged")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if _, err := cat.AddResource(ctx, testOwner, "doc", "d2", "plain"); err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if err := eng.Tags().SetTags(ctx, r1.ID, tag.SourceResource, testOwner, []string{"red"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	rows, err := cat.ListResources(ctx, &resource.ListFilter{OwnerUserID: testOwner, Tags: []string{"red"}})
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != r1.ID {
		t.Fatalf("expected only the tagged resource, got %d rows", len(rows))
	}

	// An unknown tag matches nothing and never hits the store.
	rows, err = cat.ListResources(ctx, &resource.ListFilter{OwnerUserID: testOwner, Tags: []string{"nope"}})
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("unknown tag should match nothing, got %d rows", len(rows))
	}

	n, err := cat.CountResources(ctx, &resource.ListFilter{OwnerUserID: testOwner, Tags: []string{"red"}})
	if err != nil {
		t.Fatalf("CountResources: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
}

func TestOperationLifecycle(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	op, err := cat.AddOperation(ctx, testOwner, "export", "Export")
	if err != nil {
		t.Fatalf("AddOperation: %v", err)
	}
	if _, err := cat.AddOperation(ctx, testOwner, "export", "Again"); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("duplicate op key should conflict, got %v", err)
	}

	if err := cat.LinkOperation(ctx, op.ID, "doc"); err != nil {
		t.Fatalf("LinkOperation: %v", err)
	}
	ops, err := cat.ListOperationsForResType(ctx, testOwner, "doc")
	if err != nil {
		t.Fatalf("ListOperationsForResType: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != op.ID {
		t.Fatalf("expected the linked op, got %d", len(ops))
	}

	if err := cat.UnlinkOperation(ctx, op.ID, "doc"); err != nil {
		t.Fatalf("UnlinkOperation: %v", err)
	}
	ops, err = cat.ListOperationsForResType(ctx, testOwner, "doc")
	if err != nil {
		t.Fatalf("ListOperationsForResType: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("unlinked op should not appear, got %d", len(ops))
	}

	if err := cat.DeleteOperation(ctx, op.ID); err != nil {
		t.Fatalf("DeleteOperation: %v", err)
	}
	if err := cat.DeleteOperation(ctx, op.ID); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("double delete should be not-found, got %v", err)
	}
	// The key is free again.
	if _, err := cat.AddOperation(ctx, testOwner, "export", "Export"); err != nil {
		t.Fatalf("key should be reusable after delete: %v", err)
	}
}

func TestDeleteOperationStripsLinks(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	op, err := cat.AddOperation(ctx, testOwner, "export", "Export")
	if err != nil {
		t.Fatalf("AddOperation: %v", err)
	}
	if err := cat.LinkOperation(ctx, op.ID, "doc"); err != nil {
		t.Fatalf("LinkOperation: %v", err)
	}
	if err := cat.DeleteOperation(ctx, op.ID); err != nil {
		t.Fatalf("DeleteOperation: %v", err)
	}
	ops, err := cat.ListOperationsForResType(ctx, testOwner, "doc")
	if err != nil {
		t.Fatalf("ListOperationsForResType: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("links should be stripped on delete, got %d", len(ops))
	}
}

func TestListLinksForOperation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	op, err := cat.AddOperation(ctx, testOwner, "export", "Export")
	if err != nil {
		t.Fatalf("AddOperation: %v", err)
	}
	for _, resType := range []string{"doc", "sheet"} {
		if err := cat.LinkOperation(ctx, op.ID, resType); err != nil {
			t.Fatalf("LinkOperation %s: %v", resType, err)
		}
	}

	links, err := cat.ListLinksForOperation(ctx, op.ID)
	if err != nil {
		t.Fatalf("ListLinksForOperation: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	for _, l := range links {
		if l.OpID != op.ID {
			t.Fatalf("link points at the wrong operation: %+v", l)
		}
	}

	if err := cat.UnlinkOperation(ctx, op.ID, "sheet"); err != nil {
		t.Fatalf("UnlinkOperation: %v", err)
	}
	links, err = cat.ListLinksForOperation(ctx, op.ID)
	if err != nil {
		t.Fatalf("ListLinksForOperation: %v", err)
	}
	if len(links) != 1 || links[0].ResType != "doc" {
		t.Fatalf("only the doc link should survive, got %+v", links)
	}
}

func TestUnlinkResType(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	var ops []id.OperationID
	for _, key := range []string{"view", "edit"} {
		op, err := cat.AddOperation(ctx, testOwner, key, key)
		if err != nil {
			t.Fatalf("AddOperation %s: %v", key, err)
		}
		if err := cat.LinkOperation(ctx, op.ID, "doc"); err != nil {
			t.Fatalf("LinkOperation %s: %v", key, err)
		}
		ops = append(ops, op.ID)
	}
	if err := cat.LinkOperation(ctx, ops[0], "sheet"); err != nil {
		t.Fatalf("LinkOperation sheet: %v", err)
	}

	if err := cat.UnlinkResType(ctx, testOwner, "doc"); err != nil {
		t.Fatalf("UnlinkResType: %v", err)
	}

	got, err := cat.ListOperationsForResType(ctx, testOwner, "doc")
	if err != nil {
		t.Fatalf("ListOperationsForResType: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("doc links should be gone, got %d", len(got))
	}
	// Links to other types are untouched.
	links, err := cat.ListLinksForOperation(ctx, ops[0])
	if err != nil {
		t.Fatalf("ListLinksForOperation: %v", err)
	}
	if len(links) != 1 || links[0].ResType != "sheet" {
		t.Fatalf("sheet link should survive, got %+v", links)
	}
}
