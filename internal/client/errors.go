package client

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// 已知请求错误码
const (
	CodeUniqueConstraint     = "P2002"
	CodeForeignKeyConstraint = "P2003"
	CodeConstraintFailed     = "P2004"
	CodeRecordNotFound       = "P2025"
	CodeTransactionAPI       = "P2028"
)

// KnownRequestError 数据库返回的可识别错误（唯一约束、外键、记录不存在、事务）
type KnownRequestError struct {
	Code    string
	Message string
	Meta    map[string]interface{}
	Model   string
	Err     error
}

func (e *KnownRequestError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Model, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *KnownRequestError) Unwrap() error { return e.Err }

// UnknownRequestError 无法归类的数据库错误
type UnknownRequestError struct {
	Model string
	Err   error
}

func (e *UnknownRequestError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("unknown request error (%s): %v", e.Model, e.Err)
	}
	return fmt.Sprintf("unknown request error: %v", e.Err)
}

func (e *UnknownRequestError) Unwrap() error { return e.Err }

// PanicError 事务回调中恢复的 panic
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in transaction: %v", e.Value)
}

// InitializationError 连接或配置失败
type InitializationError struct {
	Message string
	Err     error
}

func (e *InitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("initialization error: %s: %v", e.Message, e.Err)
	}
	return "initialization error: " + e.Message
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ValidationError 调用参数不合法
type ValidationError struct {
	Model   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("validation error (%s): %s", e.Model, e.Message)
	}
	return "validation error: " + e.Message
}

func validationf(model, format string, args ...interface{}) error {
	return &ValidationError{Model: model, Message: fmt.Sprintf(format, args...)}
}

func notFound(model, operation string) error {
	return &KnownRequestError{
		Code:    CodeRecordNotFound,
		Message: fmt.Sprintf("no record found for %s", operation),
		Meta:    map[string]interface{}{"cause": "Record to " + operation + " not found."},
		Model:   model,
		Err:     gorm.ErrRecordNotFound,
	}
}

func transactionError(message string, err error) error {
	return &KnownRequestError{
		Code:    CodeTransactionAPI,
		Message: message,
		Meta:    map[string]interface{}{"error": message},
		Err:     err,
	}
}

// IsKnownRequest 判断是否为指定错误码的已知请求错误
func IsKnownRequest(err error, code string) bool {
	var known *KnownRequestError
	if !errors.As(err, &known) {
		return false
	}
	return code == "" || known.Code == code
}

// IsNotFound 记录不存在
func IsNotFound(err error) bool {
	return IsKnownRequest(err, CodeRecordNotFound)
}

// IsUniqueViolation 唯一约束冲突
func IsUniqueViolation(err error) bool {
	return IsKnownRequest(err, CodeUniqueConstraint)
}

// IsForeignKeyViolation 外键约束冲突
func IsForeignKeyViolation(err error) bool {
	return IsKnownRequest(err, CodeForeignKeyConstraint)
}

// IsCheckViolation 检查约束失败
func IsCheckViolation(err error) bool {
	return IsKnownRequest(err, CodeConstraintFailed)
}

// IsTransactionError 事务超时或已关闭
func IsTransactionError(err error) bool {
	return IsKnownRequest(err, CodeTransactionAPI)
}

// IsValidation 参数校验错误
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInitialization 初始化错误
func IsInitialization(err error) bool {
	var target *InitializationError
	return errors.As(err, &target)
}

// IsPanic 事务 panic
func IsPanic(err error) bool {
	var target *PanicError
	return errors.As(err, &target)
}

// IsUnknownRequest 未归类的数据库错误
func IsUnknownRequest(err error) bool {
	var target *UnknownRequestError
	return errors.As(err, &target)
}

var (
	pgKeyDetailPattern    = regexp.MustCompile(`Key \(([^)]+)\)=`)
	sqliteUniquePattern   = regexp.MustCompile(`UNIQUE constraint failed: ([\w.]+(?:,\s*[\w.]+)*)`)
	sqliteNotNullPattern  = regexp.MustCompile(`NOT NULL constraint failed: ([\w.]+)`)
	sqliteCheckPattern    = regexp.MustCompile(`CHECK constraint failed: (\w+)`)
	sqliteForeignKeyError = "FOREIGN KEY constraint failed"
)

// classifyError 将驱动错误归类为错误分类体系中的一种
func (r *Registry) classifyError(model string, err error) error {
	if err == nil {
		return nil
	}
	var (
		known      *KnownRequestError
		unknown    *UnknownRequestError
		validation *ValidationError
		panicErr   *PanicError
		initErr    *InitializationError
	)
	if errors.As(err, &known) || errors.As(err, &unknown) || errors.As(err, &validation) ||
		errors.As(err, &panicErr) || errors.As(err, &initErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(model, "find")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			target := r.targetFields(model, pgColumns(pgErr.Detail))
			return &KnownRequestError{
				Code:    CodeUniqueConstraint,
				Message: "Unique constraint failed on the " + describeTarget(target, pgErr.ConstraintName),
				Meta:    map[string]interface{}{"target": target, "constraint": pgErr.ConstraintName},
				Model:   model,
				Err:     err,
			}
		case "23503":
			return &KnownRequestError{
				Code:    CodeForeignKeyConstraint,
				Message: "Foreign key constraint violated: " + pgErr.ConstraintName,
				Meta:    map[string]interface{}{"field_name": pgErr.ConstraintName},
				Model:   model,
				Err:     err,
			}
		case "23514":
			return checkFailed(model, pgErr.ConstraintName, err)
		case "23502":
			return &ValidationError{Model: model, Message: fmt.Sprintf("argument %s is missing", pgErr.ColumnName)}
		}
		return &UnknownRequestError{Model: model, Err: err}
	}

	msg := err.Error()
	if m := sqliteUniquePattern.FindStringSubmatch(msg); m != nil {
		target := r.targetFields(model, sqliteColumns(m[1]))
		return &KnownRequestError{
			Code:    CodeUniqueConstraint,
			Message: "Unique constraint failed on the " + describeTarget(target, ""),
			Meta:    map[string]interface{}{"target": target},
			Model:   model,
			Err:     err,
		}
	}
	if strings.Contains(msg, sqliteForeignKeyError) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &KnownRequestError{
			Code:    CodeForeignKeyConstraint,
			Message: "Foreign key constraint violated",
			Meta:    map[string]interface{}{},
			Model:   model,
			Err:     err,
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &KnownRequestError{
			Code:    CodeUniqueConstraint,
			Message: "Unique constraint failed",
			Meta:    map[string]interface{}{"target": []string{}},
			Model:   model,
			Err:     err,
		}
	}
	if m := sqliteCheckPattern.FindStringSubmatch(msg); m != nil {
		return checkFailed(model, m[1], err)
	}
	if m := sqliteNotNullPattern.FindStringSubmatch(msg); m != nil {
		return &ValidationError{Model: model, Message: fmt.Sprintf("argument %s is missing", m[1])}
	}
	return &UnknownRequestError{Model: model, Err: err}
}

func checkFailed(model, constraint string, err error) error {
	return &KnownRequestError{
		Code:    CodeConstraintFailed,
		Message: "A constraint failed on the database: " + constraint,
		Meta:    map[string]interface{}{"constraint": constraint},
		Model:   model,
		Err:     err,
	}
}

func pgColumns(detail string) []string {
	m := pgKeyDetailPattern.FindStringSubmatch(detail)
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		cols = append(cols, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return cols
}

func sqliteColumns(list string) []string {
	parts := strings.Split(list, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if idx := strings.LastIndex(p, "."); idx >= 0 {
			p = p[idx+1:]
		}
		if p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}

// targetFields 将列名换成 API 字段名
func (r *Registry) targetFields(model string, columns []string) []string {
	info, ok := r.Model(model)
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if ok {
			if f, found := info.FieldByColumn(col); found {
				out = append(out, f.Name)
				continue
			}
		}
		out = append(out, col)
	}
	return out
}

func describeTarget(fields []string, constraint string) string {
	if len(fields) > 0 {
		return "fields: (" + strings.Join(fields, ",") + ")"
	}
	if constraint != "" {
		return "constraint: " + constraint
	}
	return "unique constraint"
}
