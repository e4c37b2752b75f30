package data

import (
	"errors"
	"net/http"

	"github.com/teakspice/shopdb/internal/client"
	"github.com/teakspice/shopdb/internal/http/handlers/shared"
	"github.com/teakspice/shopdb/internal/http/response"

	"github.com/gin-gonic/gin"
)

// mappedClientError 定义客户端错误到接口错误响应的映射关系。
type mappedClientError struct {
	match func(error) bool
	code  int
}

var clientErrorRules = []mappedClientError{
	{match: client.IsValidation, code: response.CodeBadRequest},
	{match: client.IsNotFound, code: response.CodeNotFound},
	{match: client.IsUniqueViolation, code: response.CodeConflict},
	{match: client.IsForeignKeyViolation, code: response.CodeConflict},
	{match: client.IsCheckViolation, code: response.CodeBadRequest},
	{match: client.IsTransactionError, code: response.CodeTimeout},
	{match: client.IsInitialization, code: response.CodeUnavailable},
	{match: isBodyTooLarge, code: response.CodePayloadTooLarge},
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// errorPayload 错误响应中的结构化信息
func errorPayload(err error) gin.H {
	var known *client.KnownRequestError
	if errors.As(err, &known) {
		data := gin.H{"code": known.Code}
		if known.Model != "" {
			data["model"] = known.Model
		}
		if len(known.Meta) > 0 {
			data["meta"] = known.Meta
		}
		return data
	}
	var validation *client.ValidationError
	if errors.As(err, &validation) && validation.Model != "" {
		return gin.H{"model": validation.Model}
	}
	return nil
}

// respondClientError 按错误类型返回响应；未识别的错误不暴露原始信息
func respondClientError(c *gin.Context, err error) {
	for _, rule := range clientErrorRules {
		if rule.match(err) {
			appErr := response.WrapError(rule.code, err.Error(), err)
			if data := errorPayload(err); data != nil {
				appErr.WithData(data)
			}
			shared.RespondError(c, appErr)
			return
		}
	}
	shared.RespondError(c, response.WrapError(response.CodeInternal, "internal error", err))
}
