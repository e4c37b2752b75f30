package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 聚合键
const (
	aggCount = "_count"
	aggAvg   = "_avg"
	aggSum   = "_sum"
	aggMin   = "_min"
	aggMax   = "_max"

	countAll = "_all"

	// 金额列的小数位
	moneyScale = 2
)

// AggregateResult 聚合结果；avg / sum 以 decimal 返回，min / max 与字段类型一致
type AggregateResult struct {
	Count map[string]int64               `json:"_count,omitempty"`
	Avg   map[string]decimal.NullDecimal `json:"_avg,omitempty"`
	Sum   map[string]decimal.NullDecimal `json:"_sum,omitempty"`
	Min   map[string]interface{}         `json:"_min,omitempty"`
	Max   map[string]interface{}         `json:"_max,omitempty"`
}

// GroupByRow 分组结果：分组字段取值与各组聚合
type GroupByRow struct {
	Values map[string]interface{}
	AggregateResult
}

// MarshalJSON 分组字段与聚合键平铺在同一层
func (r GroupByRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Values)+5)
	for k, v := range r.Values {
		out[k] = v
	}
	if r.Count != nil {
		out[aggCount] = r.Count
	}
	if r.Avg != nil {
		out[aggAvg] = r.Avg
	}
	if r.Sum != nil {
		out[aggSum] = r.Sum
	}
	if r.Min != nil {
		out[aggMin] = r.Min
	}
	if r.Max != nil {
		out[aggMax] = r.Max
	}
	return json.Marshal(out)
}

// aggregateSpec 单个聚合列
type aggregateSpec struct {
	kind  string
	name  string
	field *FieldInfo
	// sqlite 的 decimal 列按 REAL 存储，金额求和与均值改为按分累加
	cents bool
}

func newAggregateSpec(kind, name string, f *FieldInfo, sqlite bool) aggregateSpec {
	s := aggregateSpec{kind: kind, name: name, field: f}
	s.cents = sqlite && f != nil && f.Kind == KindDecimal && (kind == aggAvg || kind == aggSum)
	return s
}

// expr 用于 having / orderBy 的可比较表达式
func (s aggregateSpec) expr(table string) clause.Expr {
	if s.kind == aggCount && s.field == nil {
		return clause.Expr{SQL: "COUNT(*)"}
	}
	if s.cents {
		sum := s.centsSum(table)
		if s.kind == aggSum {
			return clause.Expr{SQL: "(" + sum.SQL + " / 100.0)", Vars: sum.Vars}
		}
		return clause.Expr{
			SQL:  "(" + sum.SQL + " / 100.0 / COUNT(?))",
			Vars: append(sum.Vars, col(table, s.field.Column)),
		}
	}
	fn := strings.ToUpper(strings.TrimPrefix(s.kind, "_"))
	return clause.Expr{SQL: fn + "(?)", Vars: []interface{}{col(table, s.field.Column)}}
}

// selects 查询列；按分求和的均值额外取非空计数，在 decimal 中相除
func (s aggregateSpec) selects(table string) []clause.Expr {
	if !s.cents {
		return []clause.Expr{s.expr(table)}
	}
	if s.kind == aggSum {
		return []clause.Expr{s.centsSum(table)}
	}
	return []clause.Expr{
		s.centsSum(table),
		{SQL: "COUNT(?)", Vars: []interface{}{col(table, s.field.Column)}},
	}
}

func (s aggregateSpec) centsSum(table string) clause.Expr {
	return clause.Expr{SQL: "SUM(CAST(ROUND(? * 100) AS INTEGER))", Vars: []interface{}{col(table, s.field.Column)}}
}

func (s aggregateSpec) decimalValue(raw []interface{}) (decimal.NullDecimal, error) {
	if !s.cents {
		return toDecimal(raw[0])
	}
	if raw[0] == nil {
		return decimal.NullDecimal{}, nil
	}
	cents, err := toInt64(raw[0])
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	sum := decimal.New(cents, -moneyScale)
	if s.kind == aggSum {
		return decimal.NewNullDecimal(sum), nil
	}
	n, err := toInt64(raw[1])
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if n == 0 {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(n))), nil
}

func selectWidth(specs []aggregateSpec) int {
	n := 0
	for _, s := range specs {
		n += len(s.selects(""))
	}
	return n
}

func aggregateSpecs(m *ModelInfo, sqlite bool, count, avg, sum, min, max Selection) ([]aggregateSpec, error) {
	var specs []aggregateSpec
	add := func(kind string, sel Selection) error {
		for _, name := range sel.enabled() {
			if kind == aggCount && name == countAll {
				specs = append(specs, newAggregateSpec(kind, name, nil, sqlite))
				continue
			}
			f, ok := m.Field(name)
			if !ok {
				return validationf(m.Name, "unknown field %q in %s", name, kind)
			}
			if (kind == aggAvg || kind == aggSum) && !f.Kind.Numeric() {
				return validationf(m.Name, "%s is only valid on numeric fields, got %s", kind, name)
			}
			specs = append(specs, newAggregateSpec(kind, name, f, sqlite))
		}
		return nil
	}
	for _, group := range []struct {
		kind string
		sel  Selection
	}{{aggCount, count}, {aggAvg, avg}, {aggSum, sum}, {aggMin, min}, {aggMax, max}} {
		if err := add(group.kind, group.sel); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// put 写入一个聚合结果；raw 为该聚合对应的查询列
func (r *AggregateResult) put(s aggregateSpec, raw ...interface{}) error {
	switch s.kind {
	case aggCount:
		n, err := toInt64(raw[0])
		if err != nil {
			return err
		}
		if r.Count == nil {
			r.Count = map[string]int64{}
		}
		r.Count[s.name] = n
	case aggAvg, aggSum:
		d, err := s.decimalValue(raw)
		if err != nil {
			return err
		}
		target := &r.Avg
		if s.kind == aggSum {
			target = &r.Sum
		}
		if *target == nil {
			*target = map[string]decimal.NullDecimal{}
		}
		(*target)[s.name] = d
	case aggMin, aggMax:
		v, err := normalizeScalar(s.field, raw[0])
		if err != nil {
			return err
		}
		target := &r.Min
		if s.kind == aggMax {
			target = &r.Max
		}
		if *target == nil {
			*target = map[string]interface{}{}
		}
		(*target)[s.name] = v
	}
	return nil
}

// windowed 是否需要先按 cursor / take / skip 截取再统计
func windowed(cursor Where, take *int, skip int) bool {
	return cursor != nil || take != nil || skip != 0
}

// scope 返回统计的数据来源与列限定表名；窗口查询作为子查询，列名不带表名
func (d *Delegate[T]) scope(ctx context.Context, db *gorm.DB, q readQuery) (*gorm.DB, string, bool, error) {
	if !windowed(q.cursor, q.take, q.skip) {
		expr, err := d.compileWhere(q.where)
		if err != nil {
			return nil, "", false, err
		}
		return db.Model(new(T)).Where(expr), d.info.Table, false, nil
	}
	pr, err := d.prepareRead(ctx, db, q)
	if err != nil {
		return nil, "", false, err
	}
	if pr.empty {
		return nil, "", true, nil
	}
	return db.Table("(?) AS windowed", pr.stmt), "", false, nil
}

// Count 计数
func (d *Delegate[T]) Count(ctx context.Context, args CountArgs) (int64, error) {
	return cachedResult(ctx, d.c, d.info.Name, "count", args, args.CacheStrategy, func() (int64, error) {
		db, err := d.db(ctx)
		if err != nil {
			return 0, err
		}
		stmt, _, empty, err := d.scope(ctx, db, readQuery{
			where:   args.Where,
			orderBy: args.OrderBy,
			cursor:  args.Cursor,
			take:    args.Take,
			skip:    args.Skip,
			proj:    projection{columns: []string{d.info.PrimaryKey.Column}},
		})
		if err != nil || empty {
			return 0, err
		}
		var n int64
		if err := stmt.Count(&n).Error; err != nil {
			return 0, d.classify(err)
		}
		return n, nil
	})
}

// Aggregate 聚合统计
func (d *Delegate[T]) Aggregate(ctx context.Context, args AggregateArgs) (AggregateResult, error) {
	var out AggregateResult
	db, err := d.db(ctx)
	if err != nil {
		return out, err
	}
	specs, err := aggregateSpecs(d.info, d.sqlite(), args.Count, args.Avg, args.Sum, args.Min, args.Max)
	if err != nil {
		return out, err
	}
	if len(specs) == 0 {
		return out, validationf(d.info.Name, "aggregate requires at least one of _count, _avg, _sum, _min, _max")
	}
	stmt, table, empty, err := d.scope(ctx, db, readQuery{
		where:   args.Where,
		orderBy: args.OrderBy,
		cursor:  args.Cursor,
		take:    args.Take,
		skip:    args.Skip,
	})
	if err != nil {
		return out, err
	}
	if empty {
		for _, s := range specs {
			var zero interface{}
			if s.kind == aggCount {
				zero = int64(0)
			}
			if err := out.put(s, zero); err != nil {
				return out, err
			}
		}
		return out, nil
	}

	var b sqlBuilder
	n := 0
	for _, s := range specs {
		for _, e := range s.selects(table) {
			if n > 0 {
				b.write(", ")
			}
			b.write(e.SQL+" AS a"+strconv.Itoa(n), e.Vars...)
			n++
		}
	}
	rows, err := stmt.Clauses(clause.Select{Expression: b.expr()}).Rows()
	if err != nil {
		return out, d.classify(err)
	}
	defer rows.Close()
	values := make([]interface{}, n)
	dest := make([]interface{}, n)
	for i := range values {
		dest[i] = &values[i]
	}
	if rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return out, d.classify(err)
		}
	}
	if err := rows.Err(); err != nil {
		return out, d.classify(err)
	}
	offset := 0
	for _, s := range specs {
		width := len(s.selects(table))
		if err := out.put(s, values[offset:offset+width]...); err != nil {
			return out, &UnknownRequestError{Model: d.info.Name, Err: err}
		}
		offset += width
	}
	return out, nil
}

// GroupBy 分组聚合
func (d *Delegate[T]) GroupBy(ctx context.Context, args GroupByArgs) ([]GroupByRow, error) {
	m := d.info
	if len(args.By) == 0 {
		return nil, validationf(m.Name, "groupBy requires at least one field in by")
	}
	by := make([]*FieldInfo, 0, len(args.By))
	inBy := make(map[string]bool, len(args.By))
	for _, name := range args.By {
		f, ok := m.Field(name)
		if !ok {
			return nil, validationf(m.Name, "unknown field %q in by", name)
		}
		by = append(by, f)
		inBy[name] = true
	}
	db, err := d.db(ctx)
	if err != nil {
		return nil, err
	}
	sqlite := d.sqlite()
	specs, err := aggregateSpecs(m, sqlite, args.Count, args.Avg, args.Sum, args.Min, args.Max)
	if err != nil {
		return nil, err
	}
	if args.Skip < 0 {
		return nil, validationf(m.Name, "skip must not be negative")
	}
	if args.Take != nil && *args.Take < 0 {
		return nil, validationf(m.Name, "take must not be negative in groupBy")
	}
	if (args.Take != nil || args.Skip > 0) && len(args.OrderBy) == 0 {
		return nil, validationf(m.Name, "take and skip in groupBy require orderBy")
	}

	whereExpr, err := d.compileWhere(args.Where)
	if err != nil {
		return nil, err
	}
	hc := &havingCompiler{m: m, table: m.Table, by: inBy, sqlite: sqlite, wc: newWhereCompiler(d.c.eng.reg)}
	havingExpr, err := hc.compile(args.Having)
	if err != nil {
		return nil, err
	}
	orderExpr, err := groupOrderClause(m, sqlite, inBy, args.OrderBy)
	if err != nil {
		return nil, err
	}

	var sel sqlBuilder
	groupCols := make([]clause.Column, 0, len(by))
	for i, f := range by {
		if i > 0 {
			sel.write(", ")
		}
		c := col(m.Table, f.Column)
		sel.write("? AS g"+strconv.Itoa(i), c)
		groupCols = append(groupCols, c)
	}
	n := 0
	for _, s := range specs {
		for _, e := range s.selects(m.Table) {
			sel.write(", "+e.SQL+" AS a"+strconv.Itoa(n), e.Vars...)
			n++
		}
	}
	group := clause.GroupBy{Columns: groupCols}
	if len(args.Having) > 0 {
		group.Having = []clause.Expression{wrapExpr(havingExpr)}
	}
	stmt := db.Model(new(T)).Where(whereExpr).Clauses(clause.Select{Expression: sel.expr()}, group)
	if orderExpr != nil {
		stmt = stmt.Clauses(*orderExpr)
	}
	if args.Skip > 0 {
		stmt = stmt.Offset(args.Skip)
	}
	if args.Take != nil {
		if *args.Take == 0 {
			return []GroupByRow{}, nil
		}
		stmt = stmt.Limit(*args.Take)
	}

	rows, err := stmt.Rows()
	if err != nil {
		return nil, d.classify(err)
	}
	defer rows.Close()
	width := len(by) + selectWidth(specs)
	out := []GroupByRow{}
	for rows.Next() {
		values := make([]interface{}, width)
		dest := make([]interface{}, width)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, d.classify(err)
		}
		row := GroupByRow{Values: make(map[string]interface{}, len(by))}
		for i, f := range by {
			v, err := normalizeScalar(f, values[i])
			if err != nil {
				return nil, &UnknownRequestError{Model: m.Name, Err: err}
			}
			row.Values[f.Name] = v
		}
		offset := len(by)
		for _, s := range specs {
			w := len(s.selects(m.Table))
			if err := row.put(s, values[offset:offset+w]...); err != nil {
				return nil, &UnknownRequestError{Model: m.Name, Err: err}
			}
			offset += w
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, d.classify(err)
	}
	return out, nil
}

// groupOrderClause 分组排序只允许分组字段或聚合
func groupOrderClause(m *ModelInfo, sqlite bool, inBy map[string]bool, list OrderByList) (*clause.OrderBy, error) {
	if len(list) == 0 {
		return nil, nil
	}
	var b sqlBuilder
	for i, o := range list {
		if err := validateSort(o); err != nil {
			return nil, &ValidationError{Model: m.Name, Message: err.Error()}
		}
		if i > 0 {
			b.write(", ")
		}
		if o.Aggregate == "" {
			f, ok := m.Field(o.Field)
			if !ok {
				return nil, validationf(m.Name, "unknown field %q in orderBy", o.Field)
			}
			if !inBy[o.Field] {
				return nil, validationf(m.Name, "orderBy field %s must be part of by", o.Field)
			}
			b.write("?"+orderSuffix(o), col(m.Table, f.Column))
			continue
		}
		var field *FieldInfo
		switch o.Aggregate {
		case aggCount, aggAvg, aggSum, aggMin, aggMax:
		default:
			return nil, validationf(m.Name, "unknown aggregate %q in orderBy", o.Aggregate)
		}
		if !(o.Aggregate == aggCount && o.Field == countAll) {
			f, ok := m.Field(o.Field)
			if !ok {
				return nil, validationf(m.Name, "unknown field %q in orderBy %s", o.Field, o.Aggregate)
			}
			if (o.Aggregate == aggAvg || o.Aggregate == aggSum) && !f.Kind.Numeric() {
				return nil, validationf(m.Name, "%s is only valid on numeric fields, got %s", o.Aggregate, o.Field)
			}
			field = f
		}
		e := newAggregateSpec(o.Aggregate, o.Field, field, sqlite).expr(m.Table)
		b.write(e.SQL+orderSuffix(o), e.Vars...)
	}
	return &clause.OrderBy{Expression: b.expr()}, nil
}

// havingCompiler 编译 having：分组字段上的普通过滤与任意字段上的聚合过滤
type havingCompiler struct {
	m      *ModelInfo
	table  string
	by     map[string]bool
	sqlite bool
	wc     *whereCompiler
}

func (h *havingCompiler) compile(w Where) (clause.Expr, error) {
	if len(w) == 0 {
		return trueExpr(), nil
	}
	parts := make([]clause.Expr, 0, len(w))
	for _, key := range sortedKeys(w) {
		value := w[key]
		switch key {
		case "AND", "OR", "NOT":
			list, err := asWhereList(h.m.Name, key, value)
			if err != nil {
				return clause.Expr{}, err
			}
			items := make([]clause.Expr, 0, len(list))
			for _, item := range list {
				e, err := h.compile(item)
				if err != nil {
					return clause.Expr{}, err
				}
				if key == "NOT" {
					e = clause.Expr{SQL: "NOT (" + e.SQL + ")", Vars: e.Vars}
				}
				items = append(items, e)
			}
			switch {
			case len(items) > 0 && key == "OR":
				parts = append(parts, joinExprs(items, " OR "))
			case len(items) > 0:
				parts = append(parts, joinExprs(items, " AND "))
			case key == "OR":
				parts = append(parts, falseExpr())
			default:
				parts = append(parts, trueExpr())
			}
		default:
			e, err := h.compileField(key, value)
			if err != nil {
				return clause.Expr{}, err
			}
			parts = append(parts, e)
		}
	}
	return joinExprs(parts, " AND "), nil
}

func (h *havingCompiler) compileField(name string, value interface{}) (clause.Expr, error) {
	f, ok := h.m.Field(name)
	if !ok {
		return clause.Expr{}, validationf(h.m.Name, "unknown field %q in having", name)
	}
	raw, isMap := asWhere(value)
	if !isMap {
		if !h.by[name] {
			return clause.Expr{}, validationf(h.m.Name, "having on %s requires an aggregate or the field to be part of by", name)
		}
		return h.wc.compileField(h.m, h.table, f, value)
	}
	plain := Where{}
	var parts []clause.Expr
	for _, key := range sortedKeys(raw) {
		inner := raw[key]
		switch key {
		case aggCount, aggAvg, aggSum, aggMin, aggMax:
		default:
			plain[key] = inner
			continue
		}
		spec := newAggregateSpec(key, name, f, h.sqlite)
		target := f
		switch key {
		case aggCount:
			target = &FieldInfo{Name: name, Kind: KindInt}
		case aggAvg, aggSum:
			if !f.Kind.Numeric() {
				return clause.Expr{}, validationf(h.m.Name, "%s is only valid on numeric fields, got %s", key, name)
			}
			target = &FieldInfo{Name: name, Kind: KindDecimal, Nullable: true}
		}
		filter, err := havingFilter(h.m.Name, inner)
		if err != nil {
			return clause.Expr{}, err
		}
		e, err := h.wc.compileFilter(h.m, spec.expr(h.table), target, filter)
		if err != nil {
			return clause.Expr{}, err
		}
		parts = append(parts, e)
	}
	if len(plain) > 0 {
		if !h.by[name] {
			return clause.Expr{}, validationf(h.m.Name, "having on %s requires an aggregate or the field to be part of by", name)
		}
		e, err := h.wc.compileField(h.m, h.table, f, plain)
		if err != nil {
			return clause.Expr{}, err
		}
		parts = append(parts, e)
	}
	if len(parts) == 0 {
		return trueExpr(), nil
	}
	return joinExprs(parts, " AND "), nil
}

func havingFilter(model string, v interface{}) (Filter, error) {
	switch t := v.(type) {
	case Filter:
		return t, nil
	case *Filter:
		if t != nil {
			return *t, nil
		}
		return Filter{Equals: DBNull}, nil
	case nil:
		return Filter{Equals: DBNull}, nil
	}
	if w, ok := asWhere(v); ok {
		return filterFromMap(model, w)
	}
	return Filter{Equals: v}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unexpected count value %T", v)
}

func toDecimal(v interface{}) (decimal.NullDecimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(n)), nil
	case int32:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(n))), nil
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(n))), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(n)), nil
	case []byte:
		d, err := decimal.NewFromString(string(n))
		return decimal.NewNullDecimal(d), err
	case string:
		d, err := decimal.NewFromString(n)
		return decimal.NewNullDecimal(d), err
	}
	var d decimal.NullDecimal
	if err := d.Scan(v); err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("unexpected numeric value %T: %w", v, err)
	}
	return d, nil
}

// sqlite 以文本保存时间
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// normalizeScalar 按字段类型规范化驱动返回的原始值
func normalizeScalar(f *FieldInfo, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch f.Kind {
	case KindInt:
		if fl, ok := v.(float64); ok && fl == math.Trunc(fl) {
			return int64(fl), nil
		}
		return toInt64(v)
	case KindDecimal:
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		return d.Decimal, nil
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			for _, layout := range timeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed.UTC(), nil
				}
			}
			return nil, fmt.Errorf("unexpected time value %q", t)
		}
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	return v, nil
}
