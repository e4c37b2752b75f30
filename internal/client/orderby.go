package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

// SortOrder 排序方向
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// NullsOrder 空值位置
type NullsOrder string

const (
	NullsFirst NullsOrder = "first"
	NullsLast  NullsOrder = "last"
)

// OrderBy 单个排序项；Aggregate 仅用于 groupBy（_count / _avg / _sum / _min / _max）
type OrderBy struct {
	Field     string
	Sort      SortOrder
	Nulls     NullsOrder
	Aggregate string
}

// OrderByList 有序的排序项列表
type OrderByList []OrderBy

// Asc 升序
func Asc(field string) OrderBy { return OrderBy{Field: field, Sort: SortAsc} }

// Desc 降序
func Desc(field string) OrderBy { return OrderBy{Field: field, Sort: SortDesc} }

// NullsFirstOrder 空值在前
func (o OrderBy) NullsFirstOrder() OrderBy {
	o.Nulls = NullsFirst
	return o
}

// NullsLastOrder 空值在后
func (o OrderBy) NullsLastOrder() OrderBy {
	o.Nulls = NullsLast
	return o
}

func (o OrderBy) reversed() OrderBy {
	if o.Sort == SortDesc {
		o.Sort = SortAsc
	} else {
		o.Sort = SortDesc
	}
	switch o.Nulls {
	case NullsFirst:
		o.Nulls = NullsLast
	case NullsLast:
		o.Nulls = NullsFirst
	}
	return o
}

// MarshalJSON 输出 [{"field":"asc"}] 形式
func (l OrderByList) MarshalJSON() ([]byte, error) {
	items := make([]map[string]interface{}, 0, len(l))
	for _, o := range l {
		var value interface{} = string(o.Sort)
		if o.Nulls != "" {
			value = map[string]string{"sort": string(o.Sort), "nulls": string(o.Nulls)}
		}
		if o.Aggregate != "" {
			value = map[string]interface{}{o.Field: value}
			items = append(items, map[string]interface{}{o.Aggregate: value})
			continue
		}
		items = append(items, map[string]interface{}{o.Field: value})
	}
	return json.Marshal(items)
}

// UnmarshalJSON 支持单个对象或对象数组，对象内多个键按出现顺序排序
func (l *OrderByList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}
	var raws []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return err
		}
	} else {
		raws = []json.RawMessage{data}
	}
	out := make(OrderByList, 0, len(raws))
	for _, raw := range raws {
		items, err := parseOrderObject(raw)
		if err != nil {
			return err
		}
		out = append(out, items...)
	}
	*l = out
	return nil
}

var aggregateKeys = map[string]bool{"_count": true, "_avg": true, "_sum": true, "_min": true, "_max": true}

func parseOrderObject(raw json.RawMessage) ([]OrderBy, error) {
	keys, values, err := orderedObject(raw)
	if err != nil {
		return nil, err
	}
	out := make([]OrderBy, 0, len(keys))
	for i, key := range keys {
		if aggregateKeys[key] {
			nested, err := parseOrderObject(values[i])
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				n.Aggregate = key
				out = append(out, n)
			}
			continue
		}
		o, err := parseOrderValue(key, values[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func parseOrderValue(field string, raw json.RawMessage) (OrderBy, error) {
	o := OrderBy{Field: field}
	var dir string
	if err := json.Unmarshal(raw, &dir); err == nil {
		o.Sort = SortOrder(strings.ToLower(dir))
		return o, validateSort(o)
	}
	var obj struct {
		Sort  string `json:"sort"`
		Nulls string `json:"nulls"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return o, fmt.Errorf("orderBy %s: expects \"asc\" | \"desc\" or {sort, nulls}", field)
	}
	o.Sort = SortOrder(strings.ToLower(obj.Sort))
	o.Nulls = NullsOrder(strings.ToLower(obj.Nulls))
	return o, validateSort(o)
}

func validateSort(o OrderBy) error {
	if o.Sort != SortAsc && o.Sort != SortDesc {
		return fmt.Errorf("orderBy %s: invalid sort %q", o.Field, o.Sort)
	}
	if o.Nulls != "" && o.Nulls != NullsFirst && o.Nulls != NullsLast {
		return fmt.Errorf("orderBy %s: invalid nulls %q", o.Field, o.Nulls)
	}
	return nil
}

// orderedObject 按出现顺序读取 JSON 对象的键
func orderedObject(raw json.RawMessage) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("orderBy expects an object")
	}
	var (
		keys   []string
		values []json.RawMessage
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, value)
	}
	return keys, values, nil
}

// resolvedOrder 校验后的排序项
type resolvedOrder struct {
	order OrderBy
	field *FieldInfo
}

func resolveOrder(m *ModelInfo, list OrderByList) ([]resolvedOrder, error) {
	out := make([]resolvedOrder, 0, len(list))
	for _, o := range list {
		if o.Aggregate != "" {
			return nil, validationf(m.Name, "aggregate orderBy %s is only valid in groupBy", o.Aggregate)
		}
		if err := validateSort(o); err != nil {
			return nil, &ValidationError{Model: m.Name, Message: err.Error()}
		}
		f, ok := m.Field(o.Field)
		if !ok {
			return nil, validationf(m.Name, "unknown field %q in orderBy", o.Field)
		}
		out = append(out, resolvedOrder{order: o, field: f})
	}
	return out, nil
}

// withPrimaryTiebreak 追加主键作为稳定排序键
func withPrimaryTiebreak(m *ModelInfo, orders []resolvedOrder) []resolvedOrder {
	for _, o := range orders {
		if o.field.Primary {
			return orders
		}
	}
	return append(orders, resolvedOrder{order: Asc(m.PrimaryKey.Name), field: m.PrimaryKey})
}

func reverseOrders(orders []resolvedOrder) []resolvedOrder {
	out := make([]resolvedOrder, len(orders))
	for i, o := range orders {
		out[i] = resolvedOrder{order: o.order.reversed(), field: o.field}
	}
	return out
}

func orderClause(table string, orders []resolvedOrder) clause.OrderBy {
	var b sqlBuilder
	for i, o := range orders {
		if i > 0 {
			b.write(", ")
		}
		b.write("?"+orderSuffix(o.order), col(table, o.field.Column))
	}
	return clause.OrderBy{Expression: b.expr()}
}

func orderSuffix(o OrderBy) string {
	suffix := " ASC"
	if o.Sort == SortDesc {
		suffix = " DESC"
	}
	switch o.Nulls {
	case NullsFirst:
		suffix += " NULLS FIRST"
	case NullsLast:
		suffix += " NULLS LAST"
	}
	return suffix
}
