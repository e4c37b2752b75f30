package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/teakspice/shopdb/internal/client"
	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/constants"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
)

// enqueuer 队列写入接口，便于测试替换
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client 队列客户端封装，实现 client.MutationPublisher
type Client struct {
	client       enqueuer
	enabled      bool
	defaultQueue string
	origin       string
}

var _ client.MutationPublisher = (*Client)(nil)

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: DefaultQueue}, nil
	}
	opt := buildRedisOpt(cfg)
	return newClient(asynq.NewClient(opt)), nil
}

func newClient(e enqueuer) *Client {
	return &Client{
		client:       e,
		enabled:      true,
		defaultQueue: DefaultQueue,
		origin:       uuid.NewString(),
	}
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Origin 当前实例标识
func (c *Client) Origin() string {
	if c == nil {
		return ""
	}
	return c.origin
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// PublishMutation 推送写操作通知任务
func (c *Client) PublishMutation(ctx context.Context, ev client.MutationEvent) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewMutationTask(ev, c.origin)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.defaultQueue), asynq.MaxRetry(3))
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
