package provider

import (
	"context"
	"errors"

	"github.com/teakspice/shopdb/internal/cache"
	"github.com/teakspice/shopdb/internal/client"
	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/migrations"
	"github.com/teakspice/shopdb/internal/queue"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	Cache       *cache.ResultCache
	QueueClient queuePublisher
	Client      *client.Client
}

// queuePublisher 写操作通知发布方（队列客户端）
type queuePublisher interface {
	client.MutationPublisher
	Enabled() bool
	Close() error
}

// Option 容器选项
type Option func(*Container)

// WithQueue 注入写操作通知发布方
func WithQueue(q queuePublisher) Option {
	return func(c *Container) {
		c.QueueClient = q
	}
}

// WithCache 注入结果缓存
func WithCache(rc *cache.ResultCache) Option {
	return func(c *Container) {
		c.Cache = rc
	}
}

// NewContainer 初始化容器：缓存、队列、数据客户端（连接并按配置迁移）
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	c := &Container{Config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	// 初始化缓存
	if c.Cache == nil {
		c.Cache = cache.NewRedis(&cfg.Redis)
	}
	if c.Cache != nil {
		if err := c.Cache.Ping(ctx); err != nil {
			logger.Warnw("provider_redis_ping_failed", "error", err)
		}
	}

	// 初始化队列客户端
	if c.QueueClient == nil && cfg.Queue.Enabled {
		if err := c.initQueue(); err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		}
	}

	if err := c.initClient(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initQueue() error {
	qc, err := queue.NewClient(&c.Config.Queue)
	if err != nil {
		return err
	}
	c.QueueClient = qc
	return nil
}

func (c *Container) initClient(ctx context.Context) error {
	opts := c.Config.ToClientOptions()
	if c.Cache != nil {
		opts.Cache = c.Cache
	}
	if c.QueueClient != nil && c.QueueClient.Enabled() {
		opts.Publisher = c.QueueClient
	}
	dc, err := client.New(opts)
	if err != nil {
		logger.Errorw("provider_init_client_failed", "error", err)
		return err
	}
	if err := dc.Connect(ctx); err != nil {
		logger.Errorw("provider_client_connect_failed", "error", err)
		return err
	}
	c.Client = dc

	if !c.Config.Database.Migrate {
		return nil
	}
	driver, err := dc.Driver(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := dc.SQLDB(ctx)
	if err != nil {
		return err
	}
	if err := migrations.Up(ctx, driver, sqlDB); err != nil {
		logger.Errorw("provider_migrate_failed", "driver", driver, "error", err)
		return err
	}
	return nil
}

// Close 释放容器持有的连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Client != nil {
		if err := c.Client.Disconnect(); err != nil {
			logger.Warnw("provider_client_disconnect_failed", "error", err)
		}
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_queue_close_failed", "error", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Warnw("provider_redis_close_failed", "error", err)
		}
	}
}
