package response

// AppError 接口错误：业务状态码、对外消息、可选结构化数据与原始错误
type AppError struct {
	Code    int
	Message string
	Data    interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithData 附加结构化错误数据
func (e *AppError) WithData(data interface{}) *AppError {
	e.Data = data
	return e
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
