package queue

import (
	"errors"
	"time"

	"github.com/teakspice/shopdb/internal/client"
	"github.com/teakspice/shopdb/internal/constants"

	"github.com/hibiken/asynq"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// TaskMutationNotify 写操作通知任务
	TaskMutationNotify = constants.TaskMutationNotify
)

// MutationPayload 写操作通知任务载荷
type MutationPayload struct {
	Model  string `msgpack:"model"`
	Action string `msgpack:"action"`
	Count  int64  `msgpack:"count"`
	AtUnix int64  `msgpack:"at"`     // 毫秒时间戳
	Origin string `msgpack:"origin"` // 发布实例
}

// Event 转换为客户端事件
func (p MutationPayload) Event() client.MutationEvent {
	return client.MutationEvent{
		Model:  p.Model,
		Action: p.Action,
		Count:  p.Count,
		At:     time.UnixMilli(p.AtUnix).UTC(),
	}
}

// NewMutationTask 创建写操作通知任务
func NewMutationTask(ev client.MutationEvent, origin string) (*asynq.Task, error) {
	if ev.Model == "" {
		return nil, errors.New("mutation event without model")
	}
	body, err := msgpack.Marshal(MutationPayload{
		Model:  ev.Model,
		Action: ev.Action,
		Count:  ev.Count,
		AtUnix: ev.At.UnixMilli(),
		Origin: origin,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMutationNotify, body), nil
}

// ParseMutationPayload 解析写操作通知任务
func ParseMutationPayload(task *asynq.Task) (MutationPayload, error) {
	var payload MutationPayload
	if task == nil {
		return payload, errors.New("task is nil")
	}
	if err := msgpack.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
