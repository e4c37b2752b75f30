package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/logger"

	"go.uber.org/zap"
)

// 运行模式：all 同时启动数据代理与 worker，api 仅数据代理，worker 仅消费写操作通知
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

// normalizeOptions 补齐默认参数
func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	opts.Mode = strings.ToLower(strings.TrimSpace(opts.Mode))
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	return opts
}

// ParseMode 解析运行模式，空值为 all
func ParseMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	switch mode {
	case "":
		return ModeAll, nil
	case ModeAll, ModeAPI, ModeWorker:
		return mode, nil
	}
	return "", fmt.Errorf("unknown mode %q", raw)
}

// checkMode 校验模式与配置是否匹配
func checkMode(mode string, cfg *config.Config) error {
	if mode == ModeWorker && !cfg.Queue.Enabled {
		return errors.New("worker mode requires queue.enabled")
	}
	return nil
}

func serveHTTP(mode string) bool { return mode == ModeAll || mode == ModeAPI }

func serveWorker(mode string) bool { return mode == ModeAll || mode == ModeWorker }

func listenAddr(cfg *config.Config) string {
	return cfg.Server.Host + ":" + cfg.Server.Port
}

// httpOptionsFrom 由 server 配置生成 HTTP 超时参数
func httpOptionsFrom(cfg *config.Config) HTTPOptions {
	return HTTPOptions{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}
}
