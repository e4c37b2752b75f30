package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teakspice/shopdb/internal/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// LogLevel 日志级别
type LogLevel string

const (
	LogQuery LogLevel = "query"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// EmitMode 日志输出方式
type EmitMode string

const (
	EmitStdout EmitMode = "stdout"
	EmitEvent  EmitMode = "event"
)

// LogDefinition 单个级别的输出方式
type LogDefinition struct {
	Level LogLevel `mapstructure:"level" json:"level"`
	Emit  EmitMode `mapstructure:"emit" json:"emit"`
}

// LogEvent 订阅者收到的日志事件
type LogEvent struct {
	Level     LogLevel      `json:"level"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message,omitempty"`
	Query     string        `json:"query,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Rows      int64         `json:"rows,omitempty"`
	Target    string        `json:"target,omitempty"`
}

func parseLogLevel(s string) (LogLevel, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogQuery:
		return LogQuery, nil
	case LogInfo:
		return LogInfo, nil
	case LogWarn:
		return LogWarn, nil
	case LogError:
		return LogError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// logHub 按日志定义把事件分发到 zap 或订阅者
type logHub struct {
	mu          sync.RWMutex
	stdout      map[LogLevel]bool
	event       map[LogLevel]bool
	subscribers map[LogLevel][]func(LogEvent)
	slow        time.Duration
}

func newLogHub(defs []LogDefinition, slow time.Duration) (*logHub, error) {
	h := &logHub{
		stdout:      map[LogLevel]bool{},
		event:       map[LogLevel]bool{},
		subscribers: map[LogLevel][]func(LogEvent){},
		slow:        slow,
	}
	for _, def := range defs {
		level, err := parseLogLevel(string(def.Level))
		if err != nil {
			return nil, err
		}
		switch EmitMode(strings.ToLower(string(def.Emit))) {
		case "", EmitStdout:
			h.stdout[level] = true
		case EmitEvent:
			h.event[level] = true
		default:
			return nil, fmt.Errorf("unknown log emit %q", def.Emit)
		}
	}
	return h, nil
}

func (h *logHub) on(level LogLevel, fn func(LogEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[level] = append(h.subscribers[level], fn)
}

func (h *logHub) enabled(level LogLevel) bool {
	return h.stdout[level] || h.event[level]
}

func (h *logHub) emit(ev LogEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if h.stdout[ev.Level] {
		kv := []interface{}{"target", ev.Target}
		if ev.Query != "" {
			kv = append(kv, "query", ev.Query, "duration_ms", ev.Duration.Milliseconds(), "rows", ev.Rows)
		}
		if ev.Message != "" {
			kv = append(kv, "message", ev.Message)
		}
		log := logger.Named("client")
		switch ev.Level {
		case LogQuery:
			log.Infow("client_query", kv...)
		case LogInfo:
			log.Infow("client_info", kv...)
		case LogWarn:
			log.Warnw("client_warn", kv...)
		case LogError:
			log.Errorw("client_error", kv...)
		}
	}
	if !h.event[ev.Level] {
		return
	}
	h.mu.RLock()
	subs := append([]func(LogEvent){}, h.subscribers[ev.Level]...)
	h.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

type modelContextKey struct{}

func withModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelContextKey{}, model)
}

func modelFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	model, _ := ctx.Value(modelContextKey{}).(string)
	return model
}

// gormLogAdapter 实现 gorm logger.Interface，把 SQL 执行情况转成日志事件
type gormLogAdapter struct {
	hub *logHub
}

func (l *gormLogAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *gormLogAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.hub.enabled(LogInfo) {
		l.hub.emit(LogEvent{Level: LogInfo, Message: fmt.Sprintf(msg, data...), Target: modelFromContext(ctx)})
	}
}

func (l *gormLogAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.hub.enabled(LogWarn) {
		l.hub.emit(LogEvent{Level: LogWarn, Message: fmt.Sprintf(msg, data...), Target: modelFromContext(ctx)})
	}
}

func (l *gormLogAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.hub.enabled(LogError) {
		l.hub.emit(LogEvent{Level: LogError, Message: fmt.Sprintf(msg, data...), Target: modelFromContext(ctx)})
	}
}

func (l *gormLogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	wantQuery := l.hub.enabled(LogQuery)
	wantError := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.hub.enabled(LogError)
	elapsed := time.Since(begin)
	wantSlow := l.hub.slow > 0 && elapsed > l.hub.slow && l.hub.enabled(LogWarn)
	if !wantQuery && !wantError && !wantSlow {
		return
	}
	sql, rows := fc()
	target := modelFromContext(ctx)
	if wantError {
		l.hub.emit(LogEvent{Level: LogError, Message: err.Error(), Query: sql, Duration: elapsed, Rows: rows, Target: target})
	}
	if wantSlow {
		l.hub.emit(LogEvent{Level: LogWarn, Message: fmt.Sprintf("slow query >= %s", l.hub.slow), Query: sql, Duration: elapsed, Rows: rows, Target: target})
	}
	if wantQuery {
		l.hub.emit(LogEvent{Level: LogQuery, Timestamp: begin, Query: sql, Duration: elapsed, Rows: rows, Target: target})
	}
}
