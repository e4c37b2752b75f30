package client

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

const rawTarget = "raw"

// Sql 参数化 SQL 片段，? 为占位符；参数可以是嵌套的 Sql
type Sql struct {
	query string
	args  []interface{}
}

// Raw 构造 SQL 片段；嵌套的 Sql 参数会被展开
func Raw(query string, args ...interface{}) Sql {
	var (
		b   strings.Builder
		out []interface{}
		arg int
	)
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch != '?' || arg >= len(args) {
			b.WriteByte(ch)
			continue
		}
		if nested, ok := args[arg].(Sql); ok {
			b.WriteString(nested.query)
			out = append(out, nested.args...)
		} else {
			b.WriteByte('?')
			out = append(out, args[arg])
		}
		arg++
	}
	out = append(out, args[arg:]...)
	return Sql{query: b.String(), args: out}
}

// Join 用分隔符拼接多个片段
func Join(parts []Sql, sep string) Sql {
	var (
		queries = make([]string, 0, len(parts))
		args    []interface{}
	)
	for _, p := range parts {
		queries = append(queries, p.query)
		args = append(args, p.args...)
	}
	return Sql{query: strings.Join(queries, sep), args: args}
}

// Empty 空片段
func Empty() Sql {
	return Sql{}
}

// Query 片段文本
func (s Sql) Query() string { return s.query }

// Args 片段参数
func (s Sql) Args() []interface{} { return s.args }

func (c *Client) rawConn(ctx context.Context) (*gorm.DB, error) {
	return c.conn(ctx, rawTarget)
}

// QueryRaw 执行参数化查询，返回按列名组织的行
func (c *Client) QueryRaw(ctx context.Context, query Sql) ([]map[string]interface{}, error) {
	return c.QueryRawUnsafe(ctx, query.query, query.args...)
}

// ExecuteRaw 执行参数化语句，返回影响行数
func (c *Client) ExecuteRaw(ctx context.Context, query Sql) (int64, error) {
	return c.ExecuteRawUnsafe(ctx, query.query, query.args...)
}

// QueryRawUnsafe 执行调用方拼接的查询字符串
func (c *Client) QueryRawUnsafe(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	if strings.TrimSpace(query) == "" {
		return nil, validationf(rawTarget, "raw query must not be empty")
	}
	db, err := c.rawConn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return nil, c.eng.reg.classifyError("", err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, c.eng.reg.classifyError("", err)
	}
	out := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, c.eng.reg.classifyError("", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, c.eng.reg.classifyError("", err)
	}
	return out, nil
}

// ExecuteRawUnsafe 执行调用方拼接的语句
func (c *Client) ExecuteRawUnsafe(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, validationf(rawTarget, "raw query must not be empty")
	}
	db, err := c.rawConn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Exec(query, args...)
	if res.Error != nil {
		return 0, c.eng.reg.classifyError("", res.Error)
	}
	return res.RowsAffected, nil
}
