package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/teakspice/shopdb/internal/logger"
)

// ResultCache 查询结果缓存（cacheStrategy），按模型整体失效
// Get 返回读取时的代数，Set 只在该代数下写入，Invalidate 推进代数
type ResultCache interface {
	Get(ctx context.Context, model, key string) ([]byte, int64, bool, error)
	Set(ctx context.Context, model, key string, gen int64, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, model string) error
}

// MutationEvent 写操作完成后的通知
type MutationEvent struct {
	Model  string    `json:"model"`
	Action string    `json:"action"`
	Count  int64     `json:"count"`
	At     time.Time `json:"at"`
}

// MutationPublisher 写操作通知的发布方
type MutationPublisher interface {
	PublishMutation(ctx context.Context, event MutationEvent) error
}

func cacheKey(action string, args interface{}) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return action + ":" + hex.EncodeToString(sum[:]), nil
}

// cachedResult 命中缓存直接返回，否则执行 load 并写回；并发的相同查询只执行一次
func cachedResult[R any](ctx context.Context, c *Client, model, action string, args interface{}, strategy *CacheStrategy, load func() (R, error)) (R, error) {
	cache := c.eng.opts.Cache
	if strategy == nil || strategy.TTL <= 0 || cache == nil || c.tx != nil {
		return load()
	}
	key, err := cacheKey(action, args)
	if err != nil {
		return load()
	}
	raw, gen, ok, err := cache.Get(ctx, model, key)
	if err != nil {
		logger.Warnw("result_cache_get_failed", "model", model, "action", action, "error", err)
		return load()
	}
	if ok {
		var out R
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		logger.Warnw("result_cache_decode_failed", "model", model, "action", action, "error", err)
	}
	v, err, _ := c.eng.flight.Do(model+"/"+strconv.FormatInt(gen, 10)+"/"+key, func() (interface{}, error) {
		out, err := load()
		if err != nil {
			return out, err
		}
		if raw, err := json.Marshal(out); err == nil {
			if err := cache.Set(ctx, model, key, gen, raw, strategy.TTL); err != nil {
				logger.Warnw("result_cache_set_failed", "model", model, "action", action, "error", err)
			}
		}
		return out, nil
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return v.(R), nil
}

// notifyMutation 写操作成功后失效缓存并发布事件；事务内暂存到提交后
func (c *Client) notifyMutation(ctx context.Context, model, action string, count int64) {
	event := MutationEvent{Model: model, Action: action, Count: count, At: time.Now().UTC()}
	if c.tx != nil {
		c.pending.add(event)
		return
	}
	c.eng.dispatchMutations(ctx, []MutationEvent{event})
}

func (e *engine) dispatchMutations(ctx context.Context, events []MutationEvent) {
	invalidated := map[string]bool{}
	for _, ev := range events {
		if e.opts.Cache != nil && !invalidated[ev.Model] {
			invalidated[ev.Model] = true
			if err := e.opts.Cache.Invalidate(ctx, ev.Model); err != nil {
				logger.Warnw("result_cache_invalidate_failed", "model", ev.Model, "error", err)
			}
		}
		if e.opts.Publisher != nil {
			if err := e.opts.Publisher.PublishMutation(ctx, ev); err != nil {
				logger.Warnw("mutation_publish_failed", "model", ev.Model, "action", ev.Action, "error", err)
			}
		}
	}
}
