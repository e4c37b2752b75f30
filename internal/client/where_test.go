package client

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"gorm.io/gorm/clause"
)

func compileFor(t *testing.T, model string, w Where) (clause.Expr, error) {
	t.Helper()
	reg := DefaultRegistry()
	m, ok := reg.Model(model)
	if !ok {
		t.Fatalf("model %s not registered", model)
	}
	return newWhereCompiler(reg).compile(m, m.Table, w)
}

func mustCompile(t *testing.T, model string, w Where) clause.Expr {
	t.Helper()
	expr, err := compileFor(t, model, w)
	if err != nil {
		t.Fatalf("compile %v failed: %v", w, err)
	}
	return expr
}

func TestCompileScalarComparisons(t *testing.T) {
	stock := clause.Column{Table: "products", Name: "product_stock"}
	name := clause.Column{Table: "products", Name: "product_name"}

	expr := mustCompile(t, ModelProducts, Where{"productStock": Gt(3)})
	if expr.SQL != "? > ?" {
		t.Fatalf("unexpected sql %q", expr.SQL)
	}
	if !reflect.DeepEqual(expr.Vars, []interface{}{stock, int64(3)}) {
		t.Fatalf("unexpected vars %#v", expr.Vars)
	}

	expr = mustCompile(t, ModelProducts, Where{"productStock": Lt(5), "productName": "Mug"})
	if expr.SQL != "(? = ?) AND (? < ?)" {
		t.Fatalf("fields should be joined in name order, got %q", expr.SQL)
	}
	if !reflect.DeepEqual(expr.Vars, []interface{}{name, "Mug", stock, int64(5)}) {
		t.Fatalf("unexpected vars %#v", expr.Vars)
	}

	expr = mustCompile(t, ModelProducts, Where{"productStock": Filter{Gte: 1, Lte: 9}})
	if expr.SQL != "(? <= ?) AND (? >= ?)" {
		t.Fatalf("range sql mismatch: %q", expr.SQL)
	}

	expr = mustCompile(t, ModelProducts, Where{"productPrice": Gt("9.99")})
	if expr.SQL != "? > CAST(? AS NUMERIC)" {
		t.Fatalf("decimal operand should be cast, got %q", expr.SQL)
	}
}

func TestCompileNullsAndLists(t *testing.T) {
	cases := []struct {
		name  string
		where Where
		sql   string
	}{
		{"nil value", Where{"productImage": nil}, "? IS NULL"},
		{"equals db null", Where{"productImage": Equals(DBNull)}, "? IS NULL"},
		{"not db null", Where{"productImage": Not(DBNull)}, "? IS NOT NULL"},
		{"empty in", Where{"productStock": In()}, "1 = 0"},
		{"empty notIn", Where{"productStock": NotIn()}, "1 = 1"},
		{"in", Where{"productStock": In(1, 2)}, "? IN ?"},
		{"nested not", Where{"productStock": Not(In(1, 2))}, "NOT (? IN ?)"},
		{"empty where", Where{}, "1 = 1"},
		{"empty OR", Where{"OR": []Where{}}, "1 = 0"},
		{"empty AND", Where{"AND": []Where{}}, "1 = 1"},
		{"NOT list", NotWhere(Where{"productStock": 1}, Where{"productStock": 2}), "(NOT (? = ?)) AND (NOT (? = ?))"},
		{"insensitive equals", Where{"productName": Equals("mug").Insensitive()}, "LOWER(?) = LOWER(?)"},
		{"contains", Where{"productName": Contains("50%_off")}, "? LIKE ? ESCAPE '\\'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expr := mustCompile(t, ModelProducts, tc.where)
			if expr.SQL != tc.sql {
				t.Fatalf("want %q got %q", tc.sql, expr.SQL)
			}
		})
	}

	expr := mustCompile(t, ModelProducts, Where{"productName": Contains("50%_off")})
	if got := expr.Vars[1]; got != `%50\%\_off%` {
		t.Fatalf("like pattern should be escaped, got %v", got)
	}
}

func TestCompileRelationFilters(t *testing.T) {
	expr := mustCompile(t, ModelUsers, Where{"orders": Some(Where{"orderAmount": Gt(100)})})
	if !strings.HasPrefix(expr.SQL, "EXISTS (SELECT 1 FROM ? WHERE ? = ? AND (") {
		t.Fatalf("some should compile to EXISTS, got %q", expr.SQL)
	}
	table, ok := expr.Vars[0].(clause.Table)
	if !ok || table.Name != "orders" || table.Alias != "t1" {
		t.Fatalf("unexpected subquery table %#v", expr.Vars[0])
	}
	if inner := expr.Vars[3].(clause.Column); inner.Table != "t1" || inner.Name != "order_amount" {
		t.Fatalf("inner filter should use the alias, got %#v", inner)
	}

	expr = mustCompile(t, ModelUsers, Where{"orders": Every(Where{"orderAmount": Gt(100)})})
	if !strings.HasPrefix(expr.SQL, "NOT EXISTS (") || !strings.Contains(expr.SQL, "AND NOT (") {
		t.Fatalf("every should compile to NOT EXISTS ... NOT, got %q", expr.SQL)
	}

	expr = mustCompile(t, ModelUsers, Where{"orders": Every(nil)})
	if expr.SQL != "1 = 1" {
		t.Fatalf("every with no condition is always true, got %q", expr.SQL)
	}

	expr = mustCompile(t, ModelPayments, Where{"order": Is(Where{"user": Is(Where{"userName": "x"})})})
	if strings.Count(expr.SQL, "EXISTS") != 2 {
		t.Fatalf("nested relation should produce two subqueries, got %q", expr.SQL)
	}

	expr = mustCompile(t, ModelOrders, Where{"user": nil})
	if !strings.HasPrefix(expr.SQL, "NOT EXISTS") {
		t.Fatalf("to-one null should be NOT EXISTS, got %q", expr.SQL)
	}
}

func TestCompileCompoundUnique(t *testing.T) {
	expr := mustCompile(t, ModelCart, Where{"sessionId_productId": Where{"sessionId": "s1", "productId": 3}})
	if expr.SQL != "(? = ?) AND (? = ?)" {
		t.Fatalf("compound key sql mismatch: %q", expr.SQL)
	}
	if _, err := compileFor(t, ModelCart, Where{"sessionId_productId": Where{"sessionId": "s1"}}); err == nil {
		t.Fatalf("compound key with a missing field should fail")
	}
}

func TestCompileRejectsInvalidFilters(t *testing.T) {
	cases := map[string]Where{
		"unknown field":             {"colour": "red"},
		"string filter on int":      {"productStock": Contains("1")},
		"insensitive on int":        {"productStock": Equals(1).Insensitive()},
		"wrong scalar type":         {"productStock": "seven"},
		"to-many with is":           {"reviews": Is(Where{})},
		"unknown field in relation": {"reviews": Some(Where{"colour": 1})},
		"to-many compared to null":  {"reviews": nil},
		"unknown operator from map": {"productStock": map[string]interface{}{"between": []interface{}{1, 2}}},
	}
	for name, w := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := compileFor(t, ModelProducts, w)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeWhereFromJSON(t *testing.T) {
	w, err := DecodeWhere([]byte(`{
		"userEmail": {"endsWith": "@example.com", "mode": "insensitive"},
		"OR": [{"userPhone": null}, {"userAddress": {"not": null}}],
		"orders": {"some": {"orderAmount": {"gte": 10}}}
	}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	expr := mustCompile(t, ModelUsers, w)
	for _, fragment := range []string{"? IS NULL", "? IS NOT NULL", "LOWER(?) LIKE LOWER(?)", "EXISTS (SELECT 1 FROM ?"} {
		if !strings.Contains(expr.SQL, fragment) {
			t.Fatalf("compiled sql %q misses %q", expr.SQL, fragment)
		}
	}

	if _, err := DecodeWhere([]byte(`[1,2]`)); !IsValidation(err) {
		t.Fatalf("non-object where should be a validation error, got %v", err)
	}
	if w, err := DecodeWhere([]byte(`null`)); err != nil || w != nil {
		t.Fatalf("null where should decode to nil, got %v %v", w, err)
	}
}

func TestOrderByJSON(t *testing.T) {
	var list OrderByList
	if err := json.Unmarshal([]byte(`[{"productPrice":"desc","productName":"asc"},{"productImage":{"sort":"asc","nulls":"last"}}]`), &list); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want := OrderByList{Desc("productPrice"), Asc("productName"), Asc("productImage").NullsLastOrder()}
	if !reflect.DeepEqual(list, want) {
		t.Fatalf("want %#v got %#v", want, list)
	}

	var single OrderByList
	if err := json.Unmarshal([]byte(`{"_count":{"orderId":"desc"}}`), &single); err != nil {
		t.Fatalf("unmarshal aggregate order failed: %v", err)
	}
	if len(single) != 1 || single[0].Aggregate != "_count" || single[0].Field != "orderId" || single[0].Sort != SortDesc {
		t.Fatalf("unexpected aggregate order %#v", single)
	}

	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `[{"productPrice":"desc"},{"productName":"asc"},{"productImage":{"nulls":"last","sort":"asc"}}]` {
		t.Fatalf("unexpected json %s", raw)
	}

	var bad OrderByList
	if err := json.Unmarshal([]byte(`{"productPrice":"sideways"}`), &bad); err == nil {
		t.Fatalf("invalid sort direction should fail")
	}
}

func TestOrderClauseAndReverse(t *testing.T) {
	reg := DefaultRegistry()
	m, _ := reg.Model(ModelProducts)
	orders, err := resolveOrder(m, OrderByList{Desc("productPrice"), Asc("productImage").NullsFirstOrder()})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	orders = withPrimaryTiebreak(m, orders)
	oc := orderClause(m.Table, orders)
	expr := oc.Expression.(clause.Expr)
	if expr.SQL != "? DESC, ? ASC NULLS FIRST, ? ASC" {
		t.Fatalf("unexpected order sql %q", expr.SQL)
	}
	rev := orderClause(m.Table, reverseOrders(orders)).Expression.(clause.Expr)
	if rev.SQL != "? ASC, ? DESC NULLS LAST, ? DESC" {
		t.Fatalf("unexpected reversed sql %q", rev.SQL)
	}

	if _, err := resolveOrder(m, OrderByList{{Field: "productStock", Sort: SortAsc, Aggregate: "_sum"}}); !IsValidation(err) {
		t.Fatalf("aggregate order outside groupBy should fail, got %v", err)
	}
}
