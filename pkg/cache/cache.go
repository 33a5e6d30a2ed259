// Package cache 提供基于键值存储的泛型缓存实现.
//
// 该包提供了类型安全的缓存操作，支持任意类型的缓存值.
// 底层使用 sonic 做 JSON 序列化/反序列化，支持TTL（生存时间）设置.
// 每个 Cache 带一个命名空间前缀，不同用途（会话闪存、播放去重、解析结果）互不干扰.
//
// 基本用法:
//
//	c := cache.NewCache(kvStore, "lastfm")
//
//	// 写入
//	err := cache.Set(ctx, c, "art.1f2e", "https://...", time.Hour)
//
//	// 读取，未命中返回 ErrMiss
//	url, err := cache.Get[string](ctx, c, "art.1f2e")
//
//	// 一次性读取（读后删除），用于闪存
//	key, err := cache.Take[string](ctx, c, "s1")
//
// 错误处理:
//   - 未命中返回 ErrMiss，可用 errors.Is 判断
//   - 序列化/反序列化错误会被包装并返回
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/octavia/pkg/internal/storage/kv"
)

// ErrMiss 缓存未命中.
var ErrMiss = errors.New("cache: miss")

// Cache 基于KV存储的缓存实现.
type Cache struct {
	kvStore kv.KVStore
	prefix  string
}

// NewCache 创建一个新的缓存实例，prefix 为空时不加命名空间.
func NewCache(kvStore kv.KVStore, prefix string) *Cache {
	return &Cache{
		kvStore: kvStore,
		prefix:  prefix,
	}
}

// Key 返回带命名空间的完整键.
func (c *Cache) Key(key string) string {
	if c.prefix == "" {
		return key
	}

	return c.prefix + "." + key
}

// Get 泛型获取缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, c.Key(key))
	if errors.Is(err, kv.ErrNotFound) {
		return zero, ErrMiss
	}

	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, c.Key(key), data, ttl)
}

// SetIfAbsent 仅当键不存在时写入，返回是否写入.
func SetIfAbsent[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) (bool, error) {
	data, err := sonic.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.SetNX(ctx, c.Key(key), data, ttl)
}

// Take 读取后删除，值只能被消费一次.
func Take[T any](ctx context.Context, c *Cache, key string) (T, error) {
	value, err := Get[T](ctx, c, key)
	if err != nil {
		return value, err
	}

	if err := c.Delete(ctx, key); err != nil {
		var zero T
		return zero, err
	}

	return value, nil
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, c.Key(key))
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, c.Key(key))
}

// GetOrSet 获取缓存值，如果不存在则调用 getter 并写入.
// getter 失败时不写缓存；写缓存失败时仍返回新值.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	if value, err := Get[T](ctx, c, key); err == nil {
		return value, nil
	}

	value, err := getter()
	if err != nil {
		var zero T
		return zero, err
	}

	_ = Set(ctx, c, key, value, ttl)

	return value, nil
}

// Clear 清空当前命名空间下的键.
func (c *Cache) Clear(ctx context.Context) error {
	pattern := "*"
	if c.prefix != "" {
		pattern = c.prefix + ".*"
	}

	keys, err := c.kvStore.Keys(ctx, pattern)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if delErr := c.kvStore.Delete(ctx, key); delErr != nil {
			return delErr
		}
	}

	return nil
}
