package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yeisme/octavia/pkg/cache"
	"github.com/yeisme/octavia/pkg/internal/storage/kv"
)

type testTrack struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

func newCache(t *testing.T, prefix string) (*cache.Cache, kv.KVStore) {
	t.Helper()

	store, err := kv.NewKVStore(context.Background(), kv.KVTypeMemory, nil)
	if err != nil {
		t.Fatalf("create memory kv: %v", err)
	}

	return cache.NewCache(store, prefix), store
}

// TestCache_GetSet 测试写入与读取.
func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, store := newCache(t, "tracks")

	if err := cache.Set(ctx, c, "1", testTrack{ID: 1, Title: "Song"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := cache.Get[testTrack](ctx, c, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.ID != 1 || got.Title != "Song" {
		t.Errorf("Get = %+v", got)
	}

	// 命名空间前缀落到底层键上
	if ok, _ := store.Exists(ctx, "tracks.1"); !ok {
		t.Error("expected namespaced key tracks.1")
	}
}

// TestCache_Miss 测试未命中返回 ErrMiss.
func TestCache_Miss(t *testing.T) {
	c, _ := newCache(t, "")

	if _, err := cache.Get[string](context.Background(), c, "none"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
}

// TestCache_Take 测试一次性读取.
func TestCache_Take(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, "flash")

	_ = cache.Set(ctx, c, "sid", "abcdefgh", time.Minute)

	v, err := cache.Take[string](ctx, c, "sid")
	if err != nil || v != "abcdefgh" {
		t.Fatalf("first Take = %q, %v", v, err)
	}

	if _, err := cache.Take[string](ctx, c, "sid"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("second Take err = %v, want ErrMiss", err)
	}
}

// TestCache_SetIfAbsent 测试仅首次写入成功.
func TestCache_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, "plays")

	first, err := cache.SetIfAbsent(ctx, c, "s.1", true, time.Hour)
	if err != nil || !first {
		t.Fatalf("first = %v, %v", first, err)
	}

	second, err := cache.SetIfAbsent(ctx, c, "s.1", true, time.Hour)
	if err != nil || second {
		t.Fatalf("second = %v, %v", second, err)
	}
}

// TestCache_GetOrSet 测试 getter 只在未命中时调用.
func TestCache_GetOrSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t, "lastfm")
	calls := 0

	getter := func() (string, error) {
		calls++
		return "https://img/x.png", nil
	}

	for range 3 {
		v, err := cache.GetOrSet(ctx, c, "art", getter, time.Hour)
		if err != nil || v != "https://img/x.png" {
			t.Fatalf("GetOrSet = %q, %v", v, err)
		}
	}

	if calls != 1 {
		t.Errorf("getter called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := cache.GetOrSet(ctx, c, "other", func() (string, error) { return "", boom }, time.Hour); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}

	if ok, _ := c.Exists(ctx, "other"); ok {
		t.Error("failed getter must not populate cache")
	}
}

// TestCache_Clear 测试只清空当前命名空间.
func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	store, _ := kv.NewKVStore(ctx, kv.KVTypeMemory, nil)
	a := cache.NewCache(store, "a")
	b := cache.NewCache(store, "b")

	_ = cache.Set(ctx, a, "1", 1, 0)
	_ = cache.Set(ctx, b, "1", 1, 0)

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if ok, _ := a.Exists(ctx, "1"); ok {
		t.Error("a.1 should be cleared")
	}

	if ok, _ := b.Exists(ctx, "1"); !ok {
		t.Error("b.1 should survive")
	}
}
