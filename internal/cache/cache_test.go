package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryExpiresEntries(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Set(ctx, "token", "abc", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, ok, err := store.Get(ctx, "token")
	if err != nil || !ok || value != "abc" {
		t.Fatalf("Get() = %q, %v, %v, want abc, true, nil", value, ok, err)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := store.Get(ctx, "token"); ok {
		t.Fatal("Get() after ttl should miss")
	}
}

func TestMemoryDeleteAndNonPositiveTTL(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()

	_ = store.Set(ctx, "a", "1", time.Hour)
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatal("Get() after Delete should miss")
	}

	_ = store.Set(ctx, "b", "2", 0)
	if _, ok, _ := store.Get(ctx, "b"); ok {
		t.Fatal("Set() with zero ttl should not store")
	}
}
