package access_test

import (
	"context"
	"errors"
	"testing"

	access "github.com/shanliu/lsys-access"
	"github.com/shanliu/lsys-access/cache"
	"github.com/shanliu/lsys-access/changelog"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/notify"
	"github.com/shanliu/lsys-access/store/memory"
)

func TestNewEngineRequiresStore(t *testing.T) {
	if _, err := access.NewEngine(); err == nil {
		t.Fatal("NewEngine without a store should fail")
	}
}

func TestAuditTrail(t *testing.T) {
	eng, ctx := newTestEngine(t)
	cat := eng.Catalog()

	r, err := cat.AddResource(ctx, testOwner, "doc", "d1", "report")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if _, err := cat.EditResource(ctx, r.ID, "doc", "d1", "renamed"); err != nil {
		t.Fatalf("EditResource: %v", err)
	}

	entries, err := eng.Changes().List(ctx, &changelog.QueryFilter{EntityID: r.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 change entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Action != "edit_resource" || entries[1].Action != "add_resource" {
		t.Fatalf("unexpected order: %s, %s", entries[0].Action, entries[1].Action)
	}
	if entries[0].ActorID != "admin-1" {
		t.Fatalf("actor should come from the context, got %q", entries[0].ActorID)
	}
	if entries[0].Before == "" || entries[0].After == "" {
		t.Fatalf("edit entry should carry before and after state: %+v", entries[0])
	}

	got, err := eng.Changes().Get(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Action != "edit_resource" {
		t.Fatalf("expected the edit entry, got %q", got.Action)
	}
	n, err := eng.Changes().Count(ctx, &changelog.QueryFilter{EntityID: r.ID})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries counted, got %d", n)
	}
	if _, err := eng.Changes().Get(ctx, id.NewChangeID()); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("unknown change id should not resolve, got %v", err)
	}
}

func TestSiblingInvalidation(t *testing.T) {
	st := memory.New()
	bus := notify.NewLoopback()

	engA, err := access.NewEngine(
		access.WithStore(st),
		access.WithCache(cache.NewMemory()),
		access.WithNotifier(bus),
	)
	if err != nil {
		t.Fatalf("NewEngine A: %v", err)
	}
	engB, err := access.NewEngine(
		access.WithStore(st),
		access.WithCache(cache.NewMemory()),
		access.WithNotifier(bus),
	)
	if err != nil {
		t.Fatalf("NewEngine B: %v", err)
	}

	ctx := access.WithActor(context.Background(), "app-1", "admin-1")
	if err := engA.Start(ctx); err != nil {
		t.Fatalf("Start A: %v", err)
	}
	defer engA.Stop(ctx) //nolint:errcheck

	r, err := engB.Catalog().AddResource(ctx, testOwner, "doc", "d1", "report")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	// Warm A's cache.
	if _, err := engA.Catalog().GetResource(ctx, testOwner, "doc", "d1"); err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	// B moves the identity; the broadcast must clear A's cached row.
	if _, err := engB.Catalog().EditResource(ctx, r.ID, "doc", "d2", "report"); err != nil {
		t.Fatalf("EditResource: %v", err)
	}

	if _, err := engA.Catalog().GetResource(ctx, testOwner, "doc", "d1"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("sibling A should see the old identity gone, got %v", err)
	}
	if _, err := engA.Catalog().GetResource(ctx, testOwner, "doc", "d2"); err != nil {
		t.Fatalf("sibling A should resolve the new identity: %v", err)
	}
}

func TestDisableCache(t *testing.T) {
	eng, ctx := newTestEngine(t, access.WithConfig(access.Config{DisableCache: true}))
	cat := eng.Catalog()

	r, err := cat.AddResource(ctx, testOwner, "doc", "d1", "report")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	got, err := cat.GetResource(ctx, testOwner, "doc", "d1")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	if got.ID != r.ID {
		t.Fatalf("expected %s, got %s", r.ID, got.ID)
	}
}
