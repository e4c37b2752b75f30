package worker

import (
	"context"
	"sync"
	"time"

	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/provider"
	"github.com/teakspice/shopdb/internal/queue"

	"github.com/hibiken/asynq"
)

// invalidator 按模型失效查询结果缓存
type invalidator interface {
	Invalidate(ctx context.Context, model string) error
}

// ModelStats 单个模型的写操作统计
type ModelStats struct {
	Events     int64     `json:"events"`
	Rows       int64     `json:"rows"`
	LastAction string    `json:"lastAction"`
	LastAt     time.Time `json:"lastAt"`
}

// Consumer 异步任务消费者
type Consumer struct {
	cache  invalidator
	origin string

	mu    sync.Mutex
	stats map[string]ModelStats
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	consumer := &Consumer{stats: map[string]ModelStats{}}
	if c == nil {
		return consumer
	}
	if c.Cache != nil {
		consumer.cache = c.Cache
	}
	if c.QueueClient != nil {
		if q, ok := c.QueueClient.(*queue.Client); ok {
			consumer.origin = q.Origin()
		}
	}
	return consumer
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskMutationNotify, c.handleMutationNotify)
}

// Stats 返回各模型的写操作统计快照
func (c *Consumer) Stats() map[string]ModelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ModelStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}

func (c *Consumer) handleMutationNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_mutation_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseMutationPayload(task)
	if err != nil {
		logger.Warnw("worker_mutation_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.Model == "" {
		logger.Debugw("worker_mutation_notify_skip_invalid_payload", "action", payload.Action)
		return nil
	}
	ev := payload.Event()
	c.record(ev.Model, ev.Action, ev.Count, ev.At)

	// 本实例的写操作已在提交后失效过缓存
	if c.cache != nil && payload.Origin != c.origin {
		if err := c.cache.Invalidate(ctx, payload.Model); err != nil {
			logger.Warnw("worker_mutation_notify_invalidate_failed",
				"model", payload.Model,
				"action", payload.Action,
				"error", err,
			)
			return err
		}
	}
	logger.Infow("worker_mutation_notify_handled",
		"model", payload.Model,
		"action", payload.Action,
		"count", payload.Count,
		"origin", payload.Origin,
	)
	return nil
}

func (c *Consumer) record(model, action string, count int64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats[model]
	s.Events++
	s.Rows += count
	s.LastAction = action
	if at.After(s.LastAt) {
		s.LastAt = at
	}
	c.stats[model] = s
}
