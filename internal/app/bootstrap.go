package app

import (
	"context"
	"errors"

	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/provider"
	"github.com/teakspice/shopdb/internal/router"
	"github.com/teakspice/shopdb/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(ctx context.Context, cfg *config.Config, rawMode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	mode, err := ParseMode(rawMode)
	if err != nil {
		return nil, err
	}
	if err := checkMode(mode, cfg); err != nil {
		return nil, err
	}

	container, err := provider.NewContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var services []Service

	// 初始化 HTTP 服务
	if serveHTTP(mode) {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(listenAddr(cfg), engine, httpOptionsFrom(cfg)))
	}

	// 初始化 Worker 服务（队列未启用时跳过）
	if serveWorker(mode) {
		if cfg.Queue.Enabled {
			consumer := worker.NewConsumer(container)
			workerService, err := worker.NewService(&cfg.Queue, consumer)
			if err != nil {
				container.Close()
				return nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Infow("worker_skipped", "reason", "queue_disabled")
		}
	}

	if len(services) == 0 {
		container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.OnShutdown(container.Close)
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(context.Background(), opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start", "addr", listenAddr(opts.Config), "mode", opts.Mode, "driver", opts.Config.Database.Driver)
	return RunWithOptions(runner, opts)
}
