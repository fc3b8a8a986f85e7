package cache

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	// Miss
	_, ok := c.Get(ctx, "res:o1:app:doc:d1")
	if ok {
		t.Fatal("expected cache miss")
	}

	// Set + Hit
	c.Set(ctx, "res:o1:app:doc:d1", "v1")
	got, ok := c.Get(ctx, "res:o1:app:doc:d1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "v1" {
		t.Fatalf("got %v, want v1", got)
	}
}

func TestMemoryClearIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "acc:o1:u1", []string{"r1"})
	c.Clear(ctx, "acc:o1:u1")
	if _, ok := c.Get(ctx, "acc:o1:u1"); ok {
		t.Fatal("expected miss after clear")
	}

	// Repeated and never-set clears are no-ops.
	c.Clear(ctx, "acc:o1:u1")
	c.Clear(ctx, "acc:o1:never-set")
}

func TestMemoryOverwrite(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "role:r1", "old")
	c.Set(ctx, "role:r1", "new")
	got, _ := c.Get(ctx, "role:r1")
	if got != "new" {
		t.Fatalf("got %v, want new", got)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestMemoryMaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(2))

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("res:o1:app:doc:d%d", i), i)
	}
	if c.Len() > 2 {
		t.Fatalf("expected max 2 entries, got %d", c.Len())
	}
}
