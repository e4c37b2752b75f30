package client

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/teakspice/shopdb/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// sqlBuilder 拼接带 ? 占位符的 SQL 片段；列名以 clause.Column 形式作为变量由方言负责转义
type sqlBuilder struct {
	sb   strings.Builder
	vars []interface{}
}

func (b *sqlBuilder) write(sql string, vars ...interface{}) {
	b.sb.WriteString(sql)
	b.vars = append(b.vars, vars...)
}

func (b *sqlBuilder) expr() clause.Expr {
	return clause.Expr{SQL: b.sb.String(), Vars: b.vars}
}

// wrapExpr 整体加括号后再交给 gorm 与其他条件拼接
func wrapExpr(e clause.Expr) clause.Expr {
	return clause.Expr{SQL: "(" + e.SQL + ")", Vars: e.Vars}
}

func trueExpr() clause.Expr  { return clause.Expr{SQL: "1 = 1"} }
func falseExpr() clause.Expr { return clause.Expr{SQL: "1 = 0"} }

// whereCompiler 将 Where 编译为参数化表达式
type whereCompiler struct {
	reg   *Registry
	alias int
}

func newWhereCompiler(reg *Registry) *whereCompiler {
	return &whereCompiler{reg: reg}
}

func (c *whereCompiler) nextAlias() string {
	c.alias++
	return "t" + strconv.Itoa(c.alias)
}

func col(table, column string) clause.Column {
	return clause.Column{Table: table, Name: column}
}

// compile 编译整棵条件树，table 为当前模型在 FROM 中的表名或别名
func (c *whereCompiler) compile(m *ModelInfo, table string, w Where) (clause.Expr, error) {
	if len(w) == 0 {
		return trueExpr(), nil
	}
	parts := make([]clause.Expr, 0, len(w))
	for _, key := range sortedKeys(w) {
		value := w[key]
		var (
			part clause.Expr
			err  error
		)
		switch key {
		case "AND":
			part, err = c.combine(m, table, key, value, " AND ", true)
		case "OR":
			part, err = c.combine(m, table, key, value, " OR ", false)
		case "NOT":
			part, err = c.compileNot(m, table, value)
		default:
			part, err = c.compileKey(m, table, key, value)
		}
		if err != nil {
			return clause.Expr{}, err
		}
		parts = append(parts, part)
	}
	return joinExprs(parts, " AND "), nil
}

func joinExprs(parts []clause.Expr, sep string) clause.Expr {
	if len(parts) == 1 {
		return parts[0]
	}
	var b sqlBuilder
	for i, p := range parts {
		if i > 0 {
			b.write(sep)
		}
		b.write("(" + p.SQL + ")")
		b.vars = append(b.vars, p.Vars...)
	}
	return b.expr()
}

func (c *whereCompiler) combine(m *ModelInfo, table, key string, value interface{}, sep string, emptyTrue bool) (clause.Expr, error) {
	list, err := asWhereList(m.Name, key, value)
	if err != nil {
		return clause.Expr{}, err
	}
	if len(list) == 0 {
		if emptyTrue {
			return trueExpr(), nil
		}
		return falseExpr(), nil
	}
	parts := make([]clause.Expr, 0, len(list))
	for _, item := range list {
		part, err := c.compile(m, table, item)
		if err != nil {
			return clause.Expr{}, err
		}
		parts = append(parts, part)
	}
	return joinExprs(parts, sep), nil
}

// compileNot NOT 列表表示每一项都不成立
func (c *whereCompiler) compileNot(m *ModelInfo, table string, value interface{}) (clause.Expr, error) {
	list, err := asWhereList(m.Name, "NOT", value)
	if err != nil {
		return clause.Expr{}, err
	}
	if len(list) == 0 {
		return trueExpr(), nil
	}
	parts := make([]clause.Expr, 0, len(list))
	for _, item := range list {
		part, err := c.compile(m, table, item)
		if err != nil {
			return clause.Expr{}, err
		}
		parts = append(parts, clause.Expr{SQL: "NOT (" + part.SQL + ")", Vars: part.Vars})
	}
	return joinExprs(parts, " AND "), nil
}

func (c *whereCompiler) compileKey(m *ModelInfo, table, key string, value interface{}) (clause.Expr, error) {
	if f, ok := m.Field(key); ok {
		return c.compileField(m, table, f, value)
	}
	if rel, ok := m.Relation(key); ok {
		return c.compileRelation(m, table, rel, value)
	}
	if uk, ok := m.compound[key]; ok {
		return c.compileCompound(m, table, uk, value)
	}
	return clause.Expr{}, validationf(m.Name, "unknown argument %q in where", key)
}

func (c *whereCompiler) compileCompound(m *ModelInfo, table string, uk UniqueKey, value interface{}) (clause.Expr, error) {
	inner, ok := asWhere(value)
	if !ok {
		return clause.Expr{}, validationf(m.Name, "%s expects an object with %s", uk.Name, strings.Join(uk.Fields, ", "))
	}
	parts := make([]clause.Expr, 0, len(uk.Fields))
	for _, name := range uk.Fields {
		v, present := inner[name]
		if !present {
			return clause.Expr{}, validationf(m.Name, "%s is missing field %s", uk.Name, name)
		}
		f, _ := m.Field(name)
		part, err := c.compileField(m, table, f, v)
		if err != nil {
			return clause.Expr{}, err
		}
		parts = append(parts, part)
	}
	return joinExprs(parts, " AND "), nil
}

func (c *whereCompiler) compileField(m *ModelInfo, table string, f *FieldInfo, value interface{}) (clause.Expr, error) {
	column := col(table, f.Column)
	switch v := value.(type) {
	case nil, dbNull:
		return clause.Expr{SQL: "? IS NULL", Vars: []interface{}{column}}, nil
	case Filter:
		return c.compileFilter(m, column, f, v)
	case *Filter:
		if v == nil {
			return clause.Expr{SQL: "? IS NULL", Vars: []interface{}{column}}, nil
		}
		return c.compileFilter(m, column, f, *v)
	case map[string]interface{}:
		filter, err := filterFromMap(m.Name, v)
		if err != nil {
			return clause.Expr{}, err
		}
		return c.compileFilter(m, column, f, filter)
	case Where:
		filter, err := filterFromMap(m.Name, v)
		if err != nil {
			return clause.Expr{}, err
		}
		return c.compileFilter(m, column, f, filter)
	}
	coerced, err := coerceValue(m.Name, f, value)
	if err != nil {
		return clause.Expr{}, err
	}
	return clause.Expr{SQL: "? = ?", Vars: []interface{}{column, coerced}}, nil
}

func (c *whereCompiler) compileFilter(m *ModelInfo, column interface{}, f *FieldInfo, filter Filter) (clause.Expr, error) {
	insensitive := filter.Mode == ModeInsensitive
	if insensitive && f.Kind != KindString {
		return clause.Expr{}, validationf(m.Name, "mode insensitive is only valid on string fields, got %s", f.Name)
	}
	target := "?"
	if insensitive {
		target = "LOWER(?)"
	}
	// sqlite 中聚合表达式没有列亲和性，decimal 参数须显式转成数值才能比较
	operand := "?"
	if f.Kind == KindDecimal {
		operand = "CAST(? AS NUMERIC)"
	}
	var parts []clause.Expr
	compare := func(op string, raw interface{}) error {
		v, err := coerceValue(m.Name, f, raw)
		if err != nil {
			return err
		}
		if insensitive {
			parts = append(parts, clause.Expr{SQL: target + " " + op + " LOWER(?)", Vars: []interface{}{column, v}})
			return nil
		}
		parts = append(parts, clause.Expr{SQL: "? " + op + " " + operand, Vars: []interface{}{column, v}})
		return nil
	}

	if filter.Equals != nil {
		if _, isNull := filter.Equals.(dbNull); isNull {
			parts = append(parts, clause.Expr{SQL: "? IS NULL", Vars: []interface{}{column}})
		} else if err := compare("=", filter.Equals); err != nil {
			return clause.Expr{}, err
		}
	}
	if filter.Not != nil {
		switch nv := filter.Not.(type) {
		case dbNull:
			parts = append(parts, clause.Expr{SQL: "? IS NOT NULL", Vars: []interface{}{column}})
		case Filter:
			inner, err := c.compileFilter(m, column, f, nv)
			if err != nil {
				return clause.Expr{}, err
			}
			parts = append(parts, clause.Expr{SQL: "NOT (" + inner.SQL + ")", Vars: inner.Vars})
		default:
			if err := compare("<>", nv); err != nil {
				return clause.Expr{}, err
			}
		}
	}
	if filter.in || filter.In != nil {
		if len(filter.In) == 0 {
			parts = append(parts, falseExpr())
		} else {
			list, err := coerceList(m.Name, f, filter.In, insensitive)
			if err != nil {
				return clause.Expr{}, err
			}
			parts = append(parts, clause.Expr{SQL: target + " IN ?", Vars: []interface{}{column, list}})
		}
	}
	if filter.notIn || filter.NotIn != nil {
		if len(filter.NotIn) > 0 {
			list, err := coerceList(m.Name, f, filter.NotIn, insensitive)
			if err != nil {
				return clause.Expr{}, err
			}
			parts = append(parts, clause.Expr{SQL: target + " NOT IN ?", Vars: []interface{}{column, list}})
		}
	}
	for _, cmp := range []struct {
		op  string
		val interface{}
	}{{"<", filter.Lt}, {"<=", filter.Lte}, {">", filter.Gt}, {">=", filter.Gte}} {
		if cmp.val == nil {
			continue
		}
		if err := compare(cmp.op, cmp.val); err != nil {
			return clause.Expr{}, err
		}
	}
	for _, like := range []struct {
		val    *string
		prefix string
		suffix string
	}{{filter.Contains, "%", "%"}, {filter.StartsWith, "", "%"}, {filter.EndsWith, "%", ""}} {
		if like.val == nil {
			continue
		}
		if f.Kind != KindString {
			return clause.Expr{}, validationf(m.Name, "string filters are only valid on string fields, got %s", f.Name)
		}
		pattern := like.prefix + escapeLike(*like.val) + like.suffix
		if insensitive {
			parts = append(parts, clause.Expr{SQL: "LOWER(?) LIKE LOWER(?) ESCAPE '\\'", Vars: []interface{}{column, pattern}})
		} else {
			parts = append(parts, clause.Expr{SQL: "? LIKE ? ESCAPE '\\'", Vars: []interface{}{column, pattern}})
		}
	}
	if len(parts) == 0 {
		return trueExpr(), nil
	}
	return joinExprs(parts, " AND "), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func coerceList(model string, f *FieldInfo, values []interface{}, lower bool) ([]interface{}, error) {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		cv, err := coerceValue(model, f, v)
		if err != nil {
			return nil, err
		}
		if lower {
			if s, ok := cv.(string); ok {
				cv = strings.ToLower(s)
			}
		}
		out = append(out, cv)
	}
	return out, nil
}

// compileRelation 通过 EXISTS 子查询实现关联过滤
func (c *whereCompiler) compileRelation(m *ModelInfo, table string, rel *RelationInfo, value interface{}) (clause.Expr, error) {
	target, _ := c.reg.Model(rel.Model)
	var rf RelationFilter
	switch v := value.(type) {
	case RelationFilter:
		rf = v
	case *RelationFilter:
		if v == nil {
			rf = RelationFilter{isNull: true}
		} else {
			rf = *v
		}
	case nil, dbNull:
		if rel.Many {
			return clause.Expr{}, validationf(m.Name, "to-many relation %s cannot be compared with null", rel.Name)
		}
		rf = RelationFilter{isNull: true}
	case Where:
		parsed, err := relationFilterFromMap(m.Name, rel.Many, v)
		if err != nil {
			return clause.Expr{}, err
		}
		rf = parsed
	case map[string]interface{}:
		parsed, err := relationFilterFromMap(m.Name, rel.Many, v)
		if err != nil {
			return clause.Expr{}, err
		}
		rf = parsed
	default:
		return clause.Expr{}, validationf(m.Name, "invalid filter for relation %s", rel.Name)
	}
	if !rf.any() {
		rf = inferRelationFilter(rf)
		if !rf.any() {
			return trueExpr(), nil
		}
	}
	if rel.Many && (rf.is || rf.isNot || rf.isNull || rf.isNotNull) {
		return clause.Expr{}, validationf(m.Name, "to-many relation %s only supports some / every / none", rel.Name)
	}
	if !rel.Many && (rf.some || rf.every || rf.none) {
		return clause.Expr{}, validationf(m.Name, "to-one relation %s only supports is / isNot", rel.Name)
	}

	var parts []clause.Expr
	exists := func(negate bool, inner Where, invertInner bool) error {
		alias := c.nextAlias()
		var b sqlBuilder
		if negate {
			b.write("NOT ")
		}
		b.write("EXISTS (SELECT 1 FROM ? WHERE ? = ?",
			clause.Table{Name: target.Table, Alias: alias},
			col(alias, rel.RemoteColumn),
			col(table, rel.LocalColumn),
		)
		if inner != nil {
			expr, err := c.compile(target, alias, inner)
			if err != nil {
				return err
			}
			if invertInner {
				b.write(" AND NOT ("+expr.SQL+")", expr.Vars...)
			} else {
				b.write(" AND ("+expr.SQL+")", expr.Vars...)
			}
		}
		b.write(")")
		parts = append(parts, b.expr())
		return nil
	}
	steps := []struct {
		on     bool
		negate bool
		inner  Where
		invert bool
	}{
		{rf.some, false, rf.Some, false},
		{rf.every, true, rf.Every, true},
		{rf.none, true, rf.None, false},
		{rf.is, false, rf.Is, false},
		{rf.isNot, true, rf.IsNot, false},
		{rf.isNull, true, nil, false},
		{rf.isNotNull, false, nil, false},
	}
	for _, s := range steps {
		if !s.on {
			continue
		}
		if s.invert && len(s.inner) == 0 {
			parts = append(parts, trueExpr())
			continue
		}
		if err := exists(s.negate, s.inner, s.invert); err != nil {
			return clause.Expr{}, err
		}
	}
	return joinExprs(parts, " AND "), nil
}

func (rf RelationFilter) any() bool {
	return rf.some || rf.every || rf.none || rf.is || rf.isNot || rf.isNull || rf.isNotNull
}

// inferRelationFilter 直接以字面量构造的 RelationFilter 按已填写的字段推断操作
func inferRelationFilter(rf RelationFilter) RelationFilter {
	out := rf
	out.some = rf.Some != nil
	out.every = rf.Every != nil
	out.none = rf.None != nil
	out.is = rf.Is != nil
	out.isNot = rf.IsNot != nil
	return out
}

// coerceValue 按字段类型规范化过滤值与写入值
func coerceValue(model string, f *FieldInfo, v interface{}) (interface{}, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		v = rv.Elem().Interface()
	}
	switch f.Kind {
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint:
			return int64(n), nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case uint64:
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, validationf(model, "field %s expects an integer, got %v", f.Name, n)
			}
			return int64(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, validationf(model, "field %s expects an integer, got %s", f.Name, n)
			}
			return i, nil
		}
	case KindDecimal:
		switch n := v.(type) {
		case models.Money:
			return n.Decimal, nil
		case decimal.Decimal:
			return n, nil
		case float64:
			return decimal.NewFromFloat(n), nil
		case float32:
			return decimal.NewFromFloat32(n), nil
		case int:
			return decimal.NewFromInt(int64(n)), nil
		case int64:
			return decimal.NewFromInt(n), nil
		case string:
			d, err := decimal.NewFromString(n)
			if err != nil {
				return nil, validationf(model, "field %s expects a decimal, got %q", f.Name, n)
			}
			return d, nil
		case json.Number:
			d, err := decimal.NewFromString(n.String())
			if err != nil {
				return nil, validationf(model, "field %s expects a decimal, got %s", f.Name, n)
			}
			return d, nil
		}
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, validationf(model, "field %s expects an RFC 3339 timestamp, got %q", f.Name, t)
			}
			return parsed.UTC(), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, validationf(model, "field %s expects a %s value, got %s", f.Name, f.Kind, describeValue(v))
}

func describeValue(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
