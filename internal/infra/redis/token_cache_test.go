package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisStoreRoundTripAndExpiry(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewRedisStore(rdb)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "admin-token"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok:%v err:%v, want miss", ok, err)
	}

	if err := store.Set(ctx, "admin-token", "jwt", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("notification-pipeline:admin-token") {
		t.Fatal("expected prefixed key in redis")
	}

	value, ok, err := store.Get(ctx, "admin-token")
	if err != nil || !ok || value != "jwt" {
		t.Fatalf("Get() = %q, %v, %v, want jwt, true, nil", value, ok, err)
	}

	mr.FastForward(time.Minute)
	if _, ok, _ := store.Get(ctx, "admin-token"); ok {
		t.Fatal("Get() after ttl should miss")
	}
}

func TestRedisStoreDelete(t *testing.T) {
	t.Parallel()

	store, err := NewRedisStore(newTestRedisClient(t))
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	ctx := context.Background()

	_ = store.Set(ctx, "k", "v", time.Hour)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("Get() after Delete should miss")
	}

	if _, err := NewRedisStore(nil); err == nil {
		t.Fatal("NewRedisStore(nil) should fail")
	}
}
