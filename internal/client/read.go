package client

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/teakspice/shopdb/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// readQuery 一次读取的全部参数
type readQuery struct {
	where    Where
	orderBy  OrderByList
	cursor   Where
	take     *int
	skip     int
	distinct []string
	proj     projection
}

// preparedRead 已编译但尚未执行的读取
type preparedRead struct {
	stmt      *gorm.DB
	empty     bool
	backwards bool
	distinct  []*FieldInfo
	skip      int
	take      int
	hasTake   bool
}

// prepareRead 编译 where、游标、排序与分页；distinct 时分页在内存中完成
func (d *Delegate[T]) prepareRead(ctx context.Context, db *gorm.DB, q readQuery) (preparedRead, error) {
	var pr preparedRead
	if q.skip < 0 {
		return pr, validationf(d.info.Name, "skip must not be negative")
	}
	whereExpr, err := d.compileWhere(q.where)
	if err != nil {
		return pr, err
	}
	orders, err := resolveOrder(d.info, q.orderBy)
	if err != nil {
		return pr, err
	}
	for _, name := range q.distinct {
		f, ok := d.info.Field(name)
		if !ok {
			return pr, validationf(d.info.Name, "unknown field %q in distinct", name)
		}
		pr.distinct = append(pr.distinct, f)
	}
	if q.take != nil {
		pr.hasTake = true
		pr.take = *q.take
		if pr.take < 0 {
			pr.backwards = true
			pr.take = -pr.take
		}
		if pr.take == 0 {
			pr.empty = true
			return pr, nil
		}
	}
	if q.cursor != nil || pr.backwards {
		orders = withPrimaryTiebreak(d.info, orders)
	}
	if pr.backwards {
		orders = reverseOrders(orders)
	}

	stmt := db.Model(new(T)).Where(whereExpr)
	if q.cursor != nil {
		cursorExpr, found, err := d.cursorCondition(ctx, db, q.cursor, orders)
		if err != nil {
			return pr, err
		}
		if !found {
			pr.empty = true
			return pr, nil
		}
		stmt = stmt.Where(cursorExpr)
	}
	if len(orders) > 0 {
		stmt = stmt.Clauses(orderClause(d.info.Table, orders))
	}
	if len(q.proj.columns) > 0 {
		stmt = stmt.Select(q.proj.columns)
	}
	pr.skip = q.skip
	if len(pr.distinct) == 0 {
		if q.skip > 0 {
			stmt = stmt.Offset(q.skip)
		}
		if pr.hasTake {
			stmt = stmt.Limit(pr.take)
		}
	}
	pr.stmt = stmt
	return pr, nil
}

func (d *Delegate[T]) findMany(ctx context.Context, q readQuery) ([]T, error) {
	db, err := d.db(ctx)
	if err != nil {
		return nil, err
	}
	pr, err := d.prepareRead(ctx, db, q)
	if err != nil {
		return nil, err
	}
	if pr.empty {
		return []T{}, nil
	}
	stmt, err := applyIncludes(pr.stmt, d.c.eng.reg, d.info, "", q.proj.include)
	if err != nil {
		return nil, err
	}
	rows := []T{}
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, d.classify(err)
	}
	if len(pr.distinct) > 0 {
		rows = distinctRows(ctx, rows, pr.distinct)
		rows = paginate(rows, pr.skip, pr.take, pr.hasTake)
	}
	if pr.backwards {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows, nil
}

// distinctRows 保留每个字段组合首次出现的记录
func distinctRows[T any](ctx context.Context, rows []T, fields []*FieldInfo) []T {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for i := range rows {
		rv := reflect.ValueOf(&rows[i]).Elem()
		var key strings.Builder
		for _, f := range fields {
			fmt.Fprintf(&key, "%v\x00", distinctKey(fieldValue(ctx, f, rv)))
		}
		if seen[key.String()] {
			continue
		}
		seen[key.String()] = true
		out = append(out, rows[i])
	}
	return out
}

func distinctKey(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return "\x01null"
	case decimal.Decimal:
		return t.String()
	case models.Money:
		return t.String()
	}
	return v
}

func paginate[T any](rows []T, skip, take int, hasTake bool) []T {
	if skip >= len(rows) {
		return rows[:0]
	}
	rows = rows[skip:]
	if hasTake && take < len(rows) {
		rows = rows[:take]
	}
	return rows
}

// cursorCondition 以游标记录为起点（包含）按排序方向取后续记录
func (d *Delegate[T]) cursorCondition(ctx context.Context, db *gorm.DB, cursor Where, orders []resolvedOrder) (clause.Expr, bool, error) {
	if err := d.requireUnique(cursor, "cursor"); err != nil {
		return clause.Expr{}, false, err
	}
	cursorExpr, err := d.compileWhere(cursor)
	if err != nil {
		return clause.Expr{}, false, err
	}
	var rows []T
	if err := db.Model(new(T)).Where(cursorExpr).Limit(1).Find(&rows).Error; err != nil {
		return clause.Expr{}, false, d.classify(err)
	}
	if len(rows) == 0 {
		return clause.Expr{}, false, nil
	}
	rv := reflect.ValueOf(&rows[0]).Elem()
	values := make([]interface{}, len(orders))
	for i, o := range orders {
		values[i] = fieldValue(ctx, o.field, rv)
	}

	table := d.info.Table
	equal := func(i int) clause.Expr {
		c := col(table, orders[i].field.Column)
		if values[i] == nil {
			return clause.Expr{SQL: "? IS NULL", Vars: []interface{}{c}}
		}
		return clause.Expr{SQL: "? = ?", Vars: []interface{}{c, values[i]}}
	}
	after := func(i int) clause.Expr {
		o := orders[i]
		c := col(table, o.field.Column)
		nullsAfter := nullsSortAfter(o.order, d.c.eng.driver)
		if values[i] == nil {
			if nullsAfter {
				return falseExpr()
			}
			return clause.Expr{SQL: "? IS NOT NULL", Vars: []interface{}{c}}
		}
		op := ">"
		if o.order.Sort == SortDesc {
			op = "<"
		}
		if o.field.Nullable && nullsAfter {
			return clause.Expr{SQL: "(? " + op + " ? OR ? IS NULL)", Vars: []interface{}{c, values[i], c}}
		}
		return clause.Expr{SQL: "? " + op + " ?", Vars: []interface{}{c, values[i]}}
	}

	branches := make([]clause.Expr, 0, len(orders)+1)
	for i := range orders {
		parts := make([]clause.Expr, 0, i+1)
		for j := 0; j < i; j++ {
			parts = append(parts, equal(j))
		}
		parts = append(parts, after(i))
		branches = append(branches, joinExprs(parts, " AND "))
	}
	all := make([]clause.Expr, 0, len(orders))
	for i := range orders {
		all = append(all, equal(i))
	}
	branches = append(branches, joinExprs(all, " AND "))
	return wrapExpr(joinExprs(branches, " OR ")), true, nil
}

// nullsSortAfter 空值在该排序方向上是否排在非空值之后
func nullsSortAfter(o OrderBy, driver string) bool {
	switch o.Nulls {
	case NullsLast:
		return true
	case NullsFirst:
		return false
	}
	// postgres 视 NULL 为最大值，sqlite 视 NULL 为最小值
	nullIsLargest := driver == models.DriverPostgres
	if o.Sort == SortDesc {
		return !nullIsLargest
	}
	return nullIsLargest
}

// coversUnique where 是否以等值条件完整覆盖某个唯一约束
func (m *ModelInfo) coversUnique(w Where) bool {
	for _, uk := range m.Uniques {
		if len(uk.Fields) > 1 {
			if raw, ok := w[uk.Name]; ok {
				if inner, ok := asWhere(raw); ok && coversFields(inner, uk.Fields) {
					return true
				}
			}
		}
		if coversFields(w, uk.Fields) {
			return true
		}
	}
	return false
}

func coversFields(w Where, fields []string) bool {
	for _, name := range fields {
		v, ok := w[name]
		if !ok || !isEquality(v) {
			return false
		}
	}
	return true
}

func isEquality(v interface{}) bool {
	switch t := v.(type) {
	case nil, dbNull:
		return false
	case Filter:
		_, isNull := t.Equals.(dbNull)
		return t.Equals != nil && !isNull && t.Not == nil && !t.in && t.In == nil && !t.notIn && t.NotIn == nil &&
			t.Lt == nil && t.Lte == nil && t.Gt == nil && t.Gte == nil &&
			t.Contains == nil && t.StartsWith == nil && t.EndsWith == nil && t.Mode != ModeInsensitive
	case *Filter:
		return t != nil && isEquality(*t)
	case map[string]interface{}:
		eq, ok := t["equals"]
		return ok && len(t) == 1 && eq != nil
	case Where:
		return isEquality(map[string]interface{}(t))
	case RelationFilter, *RelationFilter:
		return false
	}
	return true
}

func (m *ModelInfo) uniqueNames() string {
	names := make([]string, 0, len(m.Uniques))
	for _, uk := range m.Uniques {
		names = append(names, uk.Name)
	}
	return strings.Join(names, ", ")
}
