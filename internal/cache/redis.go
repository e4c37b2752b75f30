// Package cache 基于 Redis 的查询结果缓存，按模型代数整体失效。
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/constants"

	"github.com/redis/go-redis/v9"
)

// ResultCache 查询结果缓存
// 每个模型维护一个代数，条目键包含读取时的代数；失效只需自增代数，旧条目随 TTL 过期。
type ResultCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis 根据配置创建结果缓存，未启用时返回 nil
func NewRedis(cfg *config.RedisConfig) *ResultCache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return New(rdb, cfg.Prefix)
}

// New 使用已有 Redis 客户端创建结果缓存
func New(rdb redis.UniversalClient, prefix string) *ResultCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = constants.RedisPrefixDefault
	}
	return &ResultCache{rdb: rdb, prefix: prefix}
}

// Redis 底层客户端，供限流等共用连接
func (c *ResultCache) Redis() redis.UniversalClient {
	return c.rdb
}

// Prefix 键前缀
func (c *ResultCache) Prefix() string {
	return c.prefix
}

// Ping 检查 Redis 连通性
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *ResultCache) Close() error {
	return c.rdb.Close()
}

// Get 读取缓存条目，同时返回读取时的代数；未命中时回填须使用该代数
func (c *ResultCache) Get(ctx context.Context, model, key string) ([]byte, int64, bool, error) {
	gen, err := c.generation(ctx, model)
	if err != nil {
		return nil, 0, false, err
	}
	val, err := c.rdb.Get(ctx, c.entryKey(model, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, err
	}
	return val, gen, true, nil
}

// Set 在指定代数下写入缓存条目；期间发生的失效会让该条目不可见
func (c *ResultCache) Set(ctx context.Context, model, key string, gen int64, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, c.entryKey(model, gen, key), value, ttl).Err()
}

// Invalidate 使模型的全部缓存条目失效
func (c *ResultCache) Invalidate(ctx context.Context, model string) error {
	return c.rdb.Incr(ctx, c.generationKey(model)).Err()
}

func (c *ResultCache) generation(ctx context.Context, model string) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.generationKey(model)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *ResultCache) generationKey(model string) string {
	return fmt.Sprintf("%s:result:%s:gen", c.prefix, model)
}

func (c *ResultCache) entryKey(model string, gen int64, key string) string {
	return fmt.Sprintf("%s:result:%s:%d:%s", c.prefix, model, gen, strings.TrimSpace(key))
}
