// Package shared 各接口处理器共用的日志与错误响应。
package shared

import (
	"github.com/teakspice/shopdb/internal/http/response"
	"github.com/teakspice/shopdb/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if id := response.RequestID(c); id != "" {
		return logger.SW("request_id", id, "route", c.FullPath())
	}
	return logger.Named("http")
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, appErr *response.AppError) {
	if appErr.Err != nil {
		log := RequestLog(c)
		if appErr.Code >= response.CodeInternal {
			log.Errorw("handler_error", "code", appErr.Code, "message", appErr.Message, "error", appErr.Err)
		} else {
			log.Debugw("handler_error", "code", appErr.Code, "message", appErr.Message, "error", appErr.Err)
		}
	}
	if appErr.Data == nil {
		response.Error(c, appErr.Code, appErr.Message)
		return
	}
	response.ErrorWithData(c, appErr.Code, appErr.Message, appErr.Data)
}
