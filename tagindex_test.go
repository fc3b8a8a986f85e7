package access_test

import (
	"errors"
	"testing"

	access "github.com/shanliu/lsys-access"
	"github.com/shanliu/lsys-access/id"
	"github.com/shanliu/lsys-access/tag"
)

func TestSetTagsTrimsAndDedupes(t *testing.T) {
	eng, ctx := newTestEngine(t)
	idx := eng.Tags()
	resID, _ := seedResource(t, ctx, eng, "doc", "d1", "view")

	err := idx.SetTags(ctx, resID, tag.SourceResource, testOwner, []string{" red ", "red", "blue"})
	if err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	tags, err := idx.ListTags(ctx, resID, tag.SourceResource)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 deduplicated tags, got %d", len(tags))
	}

	// Replace the set via diff; removed names disappear.
	if err := idx.SetTags(ctx, resID, tag.SourceResource, testOwner, []string{"blue", "green"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	tags, err = idx.ListTags(ctx, resID, tag.SourceResource)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	names := map[string]bool{}
	for _, tg := range tags {
		names[tg.Name] = true
	}
	if len(names) != 2 || !names["blue"] || !names["green"] {
		t.Fatalf("unexpected tag set %v", names)
	}
}

func TestSetTagsValidation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	idx := eng.Tags()

	if err := idx.SetTags(ctx, id.NewResourceID(), "bogus", testOwner, []string{"x"}); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("unknown source should fail validation, got %v", err)
	}
	if err := idx.SetTags(ctx, id.NewResourceID(), tag.SourceResource, testOwner, []string{"  "}); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("blank tag name should fail validation, got %v", err)
	}
}

func TestDelTags(t *testing.T) {
	eng, ctx := newTestEngine(t)
	idx := eng.Tags()
	resID, _ := seedResource(t, ctx, eng, "doc", "d1", "view")

	if err := idx.SetTags(ctx, resID, tag.SourceResource, testOwner, []string{"red"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	if err := idx.DelTags(ctx, resID, tag.SourceResource); err != nil {
		t.Fatalf("DelTags: %v", err)
	}
	tags, err := idx.ListTags(ctx, resID, tag.SourceResource)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected no tags, got %d", len(tags))
	}
}

func TestTagAggregation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	idx := eng.Tags()
	r1, _ := seedResource(t, ctx, eng, "doc", "d1", "view")
	r2, err := eng.Catalog().AddResource(ctx, testOwner, "doc", "d2", "second")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}

	if err := idx.SetTags(ctx, r1, tag.SourceResource, testOwner, []string{"red", "blue"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	if err := idx.SetTags(ctx, r2.ID, tag.SourceResource, testOwner, []string{"red"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	groups, err := idx.GroupByOwner(ctx, testOwner, tag.SourceResource)
	if err != nil {
		t.Fatalf("GroupByOwner: %v", err)
	}
	counts := map[string]int64{}
	for _, g := range groups {
		counts[g.Name] = g.Count
	}
	if counts["red"] != 2 || counts["blue"] != 1 {
		t.Fatalf("unexpected group counts %v", counts)
	}

	n, err := idx.CountByName(ctx, testOwner, tag.SourceResource, "red")
	if err != nil {
		t.Fatalf("CountByName: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}

	byIDs, err := idx.FindByIDs(ctx, tag.SourceResource, []id.ID{r1})
	if err != nil {
		t.Fatalf("FindByIDs: %v", err)
	}
	if len(byIDs) != 2 {
		t.Fatalf("expected 2 tags on r1, got %d", len(byIDs))
	}
}
