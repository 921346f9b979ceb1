package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, "test:"), mr
}

func TestCacheHelper_SetGet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := helper.Set(ctx, "item:1", payload{Name: "quiz", Count: 3}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got payload
	if err := helper.Get(ctx, "item:1", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "quiz" || got.Count != 3 {
		t.Errorf("got %+v, want {quiz 3}", got)
	}
}

func TestCacheHelper_GetMiss(t *testing.T) {
	helper, _ := newTestHelper(t)

	var dest string
	err := helper.Get(context.Background(), "absent", &dest)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("error = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if err := helper.Set(ctx, key, "v", time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := helper.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var dest string
	if err := helper.Get(ctx, "a", &dest); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("key a still present after delete: %v", err)
	}
}

func TestCacheHelper_Exists(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	ok, err := helper.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists before set = %v, %v; want false, nil", ok, err)
	}

	if err := helper.Set(ctx, "k", 1, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	ok, err = helper.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists after set = %v, %v; want true, nil", ok, err)
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"user:1:a", "user:1:b", "user:2:a"} {
		if err := helper.Set(ctx, key, "v", time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "user:1:*"); err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}

	var dest string
	for _, key := range []string{"user:1:a", "user:1:b"} {
		if err := helper.Get(ctx, key, &dest); !errors.Is(err, ErrCacheNotFound) {
			t.Errorf("key %s survived invalidation: %v", key, err)
		}
	}
	if err := helper.Get(ctx, "user:2:a", &dest); err != nil {
		t.Errorf("key user:2:a should survive: %v", err)
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "test:")
	ctx := context.Background()

	if err := helper.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Errorf("Set with nil client should be a no-op, got %v", err)
	}
	var dest string
	if err := helper.Get(ctx, "k", &dest); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Get error = %v, want ErrCacheNotAvailable", err)
	}
	if err := helper.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete with nil client should be a no-op, got %v", err)
	}
	if _, err := helper.Exists(ctx, "k"); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Exists error = %v, want ErrCacheNotAvailable", err)
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}

	var first map[string]int
	if err := helper.CacheOrExecute(ctx, "k", &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if first["n"] != 1 {
		t.Fatalf("first call returned %v, want fetch result", first)
	}

	// Backfill runs async; wait for the key to land before the second read
	deadline := time.Now().Add(2 * time.Second)
	for !mr.Exists("test:k") {
		if time.Now().After(deadline) {
			t.Fatal("cache backfill never happened")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var second map[string]int
	if err := helper.CacheOrExecute(ctx, "k", &second, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch ran %d times, want 1 (second read served from cache)", calls)
	}
	if second["n"] != 1 {
		t.Errorf("second read returned %v, want cached value", second)
	}
}

func TestCacheManager_NilClient(t *testing.T) {
	cm := NewCacheManager(nil)

	if err := cm.HealthCheck(context.Background()); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("HealthCheck error = %v, want ErrCacheNotAvailable", err)
	}
}
