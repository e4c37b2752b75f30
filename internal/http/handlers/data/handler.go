// Package data 数据代理接口：以 JSON 参数调用数据客户端的模型操作。
package data

import (
	"github.com/teakspice/shopdb/internal/provider"
)

// Handler 数据代理处理器
type Handler struct {
	*provider.Container
}

// New 创建数据代理处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
