// Package client 提供店铺数据模型的类型化数据访问客户端：
// 每个模型一个 Delegate，共享过滤 / 排序 / 更新参数、关联加载、游标分页、
// 原生 SQL、批量与交互式事务、日志订阅以及统一的错误分类。
package client

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/models"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	defaultMaxWait = 2 * time.Second
	defaultTimeout = 5 * time.Second
)

// Options 客户端配置
type Options struct {
	Driver             string              // sqlite / postgres，为空时按 URL 推断
	URL                string              // 数据源地址
	Pool               models.DBPoolConfig // 连接池
	Log                []LogDefinition     // 日志定义
	SlowQueryThreshold time.Duration       // 慢查询阈值（warn 级别）
	Omit               map[string][]string // 全局字段隐藏：模型名 -> 字段名
	TransactionOptions TxOptions           // 交互式事务默认参数
	Cache              ResultCache         // 结果缓存（可选）
	Publisher          MutationPublisher   // 写操作通知（可选）
	DB                 *gorm.DB            // 复用已有连接（可选）
}

type engine struct {
	opts   Options
	reg    *Registry
	logs   *logHub
	omit   map[string]map[string]bool
	flight singleflight.Group

	mu     sync.Mutex
	db     *gorm.DB
	driver string
}

// Client 数据访问客户端；事务内的 Client 绑定到同一个事务
type Client struct {
	eng     *engine
	tx      *gorm.DB
	pending *pendingMutations

	Users        *Delegate[models.User]
	Products     *Delegate[models.Product]
	Orders       *Delegate[models.Order]
	Cart         *Delegate[models.Cart]
	OrderDetails *Delegate[models.OrderDetail]
	Reviews      *Delegate[models.Review]
	Payments     *Delegate[models.Payment]
	Category     *Delegate[models.Category]
}

type pendingMutations struct {
	mu     sync.Mutex
	events []MutationEvent
}

func (p *pendingMutations) add(ev MutationEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *pendingMutations) drain() []MutationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

// New 创建客户端，不建立连接；首次查询或 Connect 时连接
func New(opts Options) (*Client, error) {
	reg := DefaultRegistry()
	hub, err := newLogHub(opts.Log, opts.SlowQueryThreshold)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	omit := make(map[string]map[string]bool, len(opts.Omit))
	for model, fields := range opts.Omit {
		info, ok := reg.Model(model)
		if !ok {
			return nil, validationf("", "unknown model %q in omit config", model)
		}
		set := make(map[string]bool, len(fields))
		for _, name := range fields {
			if _, ok := info.Field(name); !ok {
				return nil, validationf(model, "unknown field %q in omit config", name)
			}
			set[name] = true
		}
		omit[model] = set
	}
	if opts.TransactionOptions.MaxWait <= 0 {
		opts.TransactionOptions.MaxWait = defaultMaxWait
	}
	if opts.TransactionOptions.Timeout <= 0 {
		opts.TransactionOptions.Timeout = defaultTimeout
	}
	eng := &engine{opts: opts, reg: reg, logs: hub, omit: omit}
	return eng.newClient(nil), nil
}

func (e *engine) newClient(tx *gorm.DB) *Client {
	c := &Client{eng: e, tx: tx}
	if tx != nil {
		c.pending = &pendingMutations{}
	}
	c.Users = newDelegate[models.User](c, ModelUsers)
	c.Products = newDelegate[models.Product](c, ModelProducts)
	c.Orders = newDelegate[models.Order](c, ModelOrders)
	c.Cart = newDelegate[models.Cart](c, ModelCart)
	c.OrderDetails = newDelegate[models.OrderDetail](c, ModelOrderDetails)
	c.Reviews = newDelegate[models.Review](c, ModelReviews)
	c.Payments = newDelegate[models.Payment](c, ModelPayments)
	c.Category = newDelegate[models.Category](c, ModelCategory)
	return c
}

// Registry 返回模型元数据
func (c *Client) Registry() *Registry {
	return c.eng.reg
}

// Connect 建立连接池并校验连通性
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.eng.connect(ctx)
	return err
}

// Disconnect 关闭连接池；之后的查询会重新连接
func (c *Client) Disconnect() error {
	e := c.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	sqlDB, err := e.db.DB()
	e.db = nil
	e.opts.DB = nil
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	if e.logs.enabled(LogInfo) {
		e.logs.emit(LogEvent{Level: LogInfo, Message: "connection pool closed"})
	}
	return nil
}

// On 订阅 emit 为 event 的日志级别
func (c *Client) On(level LogLevel, fn func(LogEvent)) {
	if fn == nil {
		return
	}
	c.eng.logs.on(level, fn)
}

// Driver 当前连接的驱动名
func (c *Client) Driver(ctx context.Context) (string, error) {
	if _, err := c.eng.connect(ctx); err != nil {
		return "", err
	}
	return c.eng.driver, nil
}

// SQLDB 返回底层 *sql.DB（迁移等场景使用）
func (c *Client) SQLDB(ctx context.Context) (*sql.DB, error) {
	db, err := c.eng.connect(ctx)
	if err != nil {
		return nil, err
	}
	return db.DB()
}

func (e *engine) connect(ctx context.Context) (*gorm.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db != nil {
		return e.db, nil
	}
	adapter := &gormLogAdapter{hub: e.logs}
	var (
		db     *gorm.DB
		driver string
		err    error
	)
	if e.opts.DB != nil {
		db = e.opts.DB.Session(&gorm.Session{Logger: adapter})
		driver = db.Dialector.Name()
		if driver == "postgres" {
			driver = models.DriverPostgres
		} else {
			driver = models.DriverSQLite
		}
	} else {
		if e.opts.URL == "" && e.opts.Driver == "" {
			return nil, &InitializationError{Message: "datasource url is empty"}
		}
		driver = e.opts.Driver
		if driver == "" {
			driver = models.DriverFromURL(e.opts.URL)
		}
		driver, err = models.NormalizeDriver(driver)
		if err != nil {
			return nil, &InitializationError{Message: "invalid datasource driver", Err: err}
		}
		db, err = models.OpenDB(driver, e.opts.URL, e.opts.Pool, adapter)
		if err != nil {
			logger.Errorw("client_connect_failed", "driver", driver, "error", err)
			return nil, &InitializationError{Message: fmt.Sprintf("open %s datasource failed", driver), Err: err}
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, &InitializationError{Message: "acquire connection pool failed", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		logger.Errorw("client_ping_failed", "driver", driver, "error", err)
		return nil, &InitializationError{Message: "datasource is unreachable", Err: err}
	}
	e.db = db
	e.driver = driver
	if e.logs.enabled(LogInfo) {
		e.logs.emit(LogEvent{Level: LogInfo, Message: fmt.Sprintf("started %s pool with %d max open connections", driver, sqlDB.Stats().MaxOpenConnections)})
	}
	return db, nil
}

// conn 返回绑定上下文的连接；事务客户端返回事务本身
func (c *Client) conn(ctx context.Context, model string) (*gorm.DB, error) {
	ctx = withModel(ctx, model)
	if c.tx != nil {
		return c.tx.WithContext(ctx), nil
	}
	db, err := c.eng.connect(ctx)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}
