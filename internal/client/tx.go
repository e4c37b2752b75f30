package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/teakspice/shopdb/internal/logger"

	"gorm.io/gorm"
)

// IsolationLevel 事务隔离级别
type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "ReadUncommitted"
	ReadCommitted   IsolationLevel = "ReadCommitted"
	RepeatableRead  IsolationLevel = "RepeatableRead"
	Serializable    IsolationLevel = "Serializable"
)

func (l IsolationLevel) sqlLevel() (sql.IsolationLevel, error) {
	switch l {
	case "":
		return sql.LevelDefault, nil
	case ReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case ReadCommitted:
		return sql.LevelReadCommitted, nil
	case RepeatableRead:
		return sql.LevelRepeatableRead, nil
	case Serializable:
		return sql.LevelSerializable, nil
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", string(l))
}

// TxOptions 交互式事务参数；零值字段使用客户端默认值
type TxOptions struct {
	MaxWait        time.Duration  `mapstructure:"max_wait" json:"maxWait,omitempty"`
	Timeout        time.Duration  `mapstructure:"timeout" json:"timeout,omitempty"`
	IsolationLevel IsolationLevel `mapstructure:"isolation_level" json:"isolationLevel,omitempty"`
}

func (o TxOptions) merge(override TxOptions) TxOptions {
	if override.MaxWait > 0 {
		o.MaxWait = override.MaxWait
	}
	if override.Timeout > 0 {
		o.Timeout = override.Timeout
	}
	if override.IsolationLevel != "" {
		o.IsolationLevel = override.IsolationLevel
	}
	return o
}

// InTransaction 是否为事务客户端
func (c *Client) InTransaction() bool {
	return c.tx != nil
}

// Tx 交互式事务：fn 返回 nil 提交，返回错误或 panic 时回滚
func (c *Client) Tx(ctx context.Context, fn func(ctx context.Context, tx *Client) error, opts ...TxOptions) error {
	if c.tx != nil {
		return validationf("", "nested transactions are not supported")
	}
	o := c.eng.opts.TransactionOptions
	for _, override := range opts {
		o = o.merge(override)
	}
	level, err := o.IsolationLevel.sqlLevel()
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	db, err := c.eng.connect(ctx)
	if err != nil {
		return err
	}

	txCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	tx, err := c.eng.begin(txCtx, db, o.MaxWait, &sql.TxOptions{Isolation: level})
	if err != nil {
		return err
	}
	tc := c.eng.newClient(tx)

	if err := runTx(txCtx, tc, fn); err != nil {
		tx.Rollback()
		logger.Warnw("tx_rollback", "error", err)
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return transactionError(fmt.Sprintf("transaction exceeded timeout of %s and was rolled back", o.Timeout), err)
		}
		return err
	}
	if errors.Is(txCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		tx.Rollback()
		logger.Warnw("tx_timeout", "timeout", o.Timeout.String())
		return transactionError(fmt.Sprintf("transaction exceeded timeout of %s and was rolled back", o.Timeout), txCtx.Err())
	}
	if err := tx.Commit().Error; err != nil {
		logger.Errorw("tx_commit_failed", "error", err)
		return transactionError("commit transaction failed", err)
	}
	c.eng.dispatchMutations(ctx, tc.pending.drain())
	return nil
}

// runTx 执行回调并把 panic 转为 PanicError
func runTx(ctx context.Context, tc *Client, fn func(ctx context.Context, tx *Client) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("tx_panic_recovered", "panic", r)
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, tc)
}

// begin 在 maxWait 内取得连接并开启事务，超时返回 P2028
func (e *engine) begin(ctx context.Context, db *gorm.DB, maxWait time.Duration, opts *sql.TxOptions) (*gorm.DB, error) {
	started := make(chan *gorm.DB, 1)
	go func() {
		started <- db.WithContext(ctx).Begin(opts)
	}()
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case tx := <-started:
		if tx.Error != nil {
			return nil, transactionError("begin transaction failed", tx.Error)
		}
		return tx, nil
	case <-timer.C:
		go func() {
			if tx := <-started; tx.Error == nil {
				tx.Rollback()
			}
		}()
		logger.Warnw("tx_begin_timeout", "max_wait", maxWait.String())
		return nil, transactionError(fmt.Sprintf("unable to start a transaction in the given time (maxWait %s)", maxWait), context.DeadlineExceeded)
	}
}

// Transaction 批量事务：按顺序执行全部操作，任一失败则整体回滚
func (c *Client) Transaction(ctx context.Context, ops ...func(ctx context.Context, tx *Client) error) error {
	return c.Tx(ctx, func(ctx context.Context, tx *Client) error {
		for i, op := range ops {
			if err := op(ctx, tx); err != nil {
				return fmt.Errorf("transaction operation %d: %w", i, err)
			}
		}
		return nil
	})
}

// atomic 在当前事务中执行；非事务客户端开启新事务
func (c *Client) atomic(ctx context.Context, fn func(ctx context.Context, tc *Client) error) error {
	if c.tx != nil {
		return fn(ctx, c)
	}
	return c.Tx(ctx, fn)
}
