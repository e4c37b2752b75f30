package client

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Where 过滤条件，键为 API 字段名、关联名、复合唯一键名或 AND / OR / NOT
type Where map[string]interface{}

// QueryMode 字符串匹配模式
type QueryMode string

const (
	ModeDefault     QueryMode = "default"
	ModeInsensitive QueryMode = "insensitive"
)

type dbNull struct{}

func (dbNull) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// DBNull 在 Filter 中显式表示 SQL NULL
var DBNull = dbNull{}

// Filter 标量字段过滤条件，零值字段不参与过滤
type Filter struct {
	Equals     interface{}   `json:"equals,omitempty"`
	Not        interface{}   `json:"not,omitempty"`
	In         []interface{} `json:"in,omitempty"`
	NotIn      []interface{} `json:"notIn,omitempty"`
	Lt         interface{}   `json:"lt,omitempty"`
	Lte        interface{}   `json:"lte,omitempty"`
	Gt         interface{}   `json:"gt,omitempty"`
	Gte        interface{}   `json:"gte,omitempty"`
	Contains   *string       `json:"contains,omitempty"`
	StartsWith *string       `json:"startsWith,omitempty"`
	EndsWith   *string       `json:"endsWith,omitempty"`
	Mode       QueryMode     `json:"mode,omitempty"`

	in    bool
	notIn bool
}

// RelationFilter 关联过滤：一对多用 Some / Every / None，多对一用 Is / IsNot
type RelationFilter struct {
	Some  Where `json:"some,omitempty"`
	Every Where `json:"every,omitempty"`
	None  Where `json:"none,omitempty"`
	Is    Where `json:"is,omitempty"`
	IsNot Where `json:"isNot,omitempty"`

	some, every, none, is, isNot bool
	isNull, isNotNull            bool
}

// MarshalJSON 显式设置的空 in / notIn 输出为 []，与未设置区分
func (f Filter) MarshalJSON() ([]byte, error) {
	type plain Filter
	out := struct {
		plain
		In    *[]interface{} `json:"in,omitempty"`
		NotIn *[]interface{} `json:"notIn,omitempty"`
	}{plain: plain(f)}
	out.In = explicitList(f.in, f.In)
	out.NotIn = explicitList(f.notIn, f.NotIn)
	return json.Marshal(out)
}

func explicitList(set bool, values []interface{}) *[]interface{} {
	if !set && values == nil {
		return nil
	}
	if values == nil {
		values = []interface{}{}
	}
	return &values
}

// MarshalJSON 已设置的空条件输出为 {}，is / isNot 为 null 时输出 null
func (r RelationFilter) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	put := func(name string, set bool, w Where) {
		if !set && w == nil {
			return
		}
		out[name] = nonNilWhere(w)
	}
	put("some", r.some, r.Some)
	put("every", r.every, r.Every)
	put("none", r.none, r.None)
	put("is", r.is, r.Is)
	put("isNot", r.isNot, r.IsNot)
	if r.isNull {
		out["is"] = nil
	}
	if r.isNotNull {
		out["isNot"] = nil
	}
	return json.Marshal(out)
}

// Equals 等值过滤
func Equals(v interface{}) Filter { return Filter{Equals: v} }

// Not 取反过滤
func Not(v interface{}) Filter { return Filter{Not: v} }

// In 集合过滤
func In(values ...interface{}) Filter { return Filter{In: values, in: true} }

// NotIn 排除集合
func NotIn(values ...interface{}) Filter { return Filter{NotIn: values, notIn: true} }

// Lt 小于
func Lt(v interface{}) Filter { return Filter{Lt: v} }

// Lte 小于等于
func Lte(v interface{}) Filter { return Filter{Lte: v} }

// Gt 大于
func Gt(v interface{}) Filter { return Filter{Gt: v} }

// Gte 大于等于
func Gte(v interface{}) Filter { return Filter{Gte: v} }

// Contains 包含子串
func Contains(s string) Filter { return Filter{Contains: &s} }

// StartsWith 前缀匹配
func StartsWith(s string) Filter { return Filter{StartsWith: &s} }

// EndsWith 后缀匹配
func EndsWith(s string) Filter { return Filter{EndsWith: &s} }

// Insensitive 返回忽略大小写的副本
func (f Filter) Insensitive() Filter {
	f.Mode = ModeInsensitive
	return f
}

// Some 至少一条关联记录满足条件
func Some(w Where) RelationFilter { return RelationFilter{Some: nonNilWhere(w), some: true} }

// Every 全部关联记录满足条件
func Every(w Where) RelationFilter { return RelationFilter{Every: nonNilWhere(w), every: true} }

// None 没有关联记录满足条件
func None(w Where) RelationFilter { return RelationFilter{None: nonNilWhere(w), none: true} }

// Is 关联记录存在且满足条件，nil 表示关联为空
func Is(w Where) RelationFilter {
	if w == nil {
		return RelationFilter{isNull: true}
	}
	return RelationFilter{Is: w, is: true}
}

// IsNot 不存在满足条件的关联记录，nil 表示关联非空
func IsNot(w Where) RelationFilter {
	if w == nil {
		return RelationFilter{isNotNull: true}
	}
	return RelationFilter{IsNot: w, isNot: true}
}

// And 组合条件
func And(ws ...Where) Where { return Where{"AND": ws} }

// Or 任一条件
func Or(ws ...Where) Where { return Where{"OR": ws} }

// NotWhere 条件取反
func NotWhere(ws ...Where) Where { return Where{"NOT": ws} }

func nonNilWhere(w Where) Where {
	if w == nil {
		return Where{}
	}
	return w
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var filterKeys = map[string]bool{
	"equals": true, "not": true, "in": true, "notIn": true,
	"lt": true, "lte": true, "gt": true, "gte": true,
	"contains": true, "startsWith": true, "endsWith": true, "mode": true,
}

// filterFromMap 将 JSON 解码后的 map 转为 Filter，JSON null 视为 DBNull
func filterFromMap(model string, raw map[string]interface{}) (Filter, error) {
	var f Filter
	for _, key := range sortedKeys(raw) {
		if !filterKeys[key] {
			return f, validationf(model, "unknown filter operator %q", key)
		}
		v := raw[key]
		switch key {
		case "equals":
			f.Equals = nullable(v)
		case "not":
			if nested, ok := v.(map[string]interface{}); ok {
				inner, err := filterFromMap(model, nested)
				if err != nil {
					return f, err
				}
				f.Not = inner
			} else {
				f.Not = nullable(v)
			}
		case "in", "notIn":
			list, ok := v.([]interface{})
			if !ok {
				return f, validationf(model, "%s expects a list", key)
			}
			if key == "in" {
				f.In, f.in = list, true
			} else {
				f.NotIn, f.notIn = list, true
			}
		case "lt":
			f.Lt = v
		case "lte":
			f.Lte = v
		case "gt":
			f.Gt = v
		case "gte":
			f.Gte = v
		case "contains", "startsWith", "endsWith":
			s, ok := v.(string)
			if !ok {
				return f, validationf(model, "%s expects a string", key)
			}
			switch key {
			case "contains":
				f.Contains = &s
			case "startsWith":
				f.StartsWith = &s
			default:
				f.EndsWith = &s
			}
		case "mode":
			s, _ := v.(string)
			switch QueryMode(s) {
			case ModeDefault, ModeInsensitive:
				f.Mode = QueryMode(s)
			default:
				return f, validationf(model, "invalid mode %q", s)
			}
		}
	}
	return f, nil
}

func nullable(v interface{}) interface{} {
	if v == nil {
		return DBNull
	}
	return v
}

func isMapWithKeys(raw map[string]interface{}, allowed map[string]bool) bool {
	if len(raw) == 0 {
		return false
	}
	for k := range raw {
		if !allowed[k] {
			return false
		}
	}
	return true
}

var relationFilterKeys = map[string]bool{"some": true, "every": true, "none": true, "is": true, "isNot": true}

// relationFilterFromMap 解析 JSON 形式的关联过滤；多对一关联允许直接写目标模型条件
func relationFilterFromMap(model string, many bool, raw map[string]interface{}) (RelationFilter, error) {
	var rf RelationFilter
	if !isMapWithKeys(raw, relationFilterKeys) {
		if many {
			return rf, validationf(model, "to-many relation filter expects some / every / none")
		}
		return Is(Where(raw)), nil
	}
	for _, key := range sortedKeys(raw) {
		v := raw[key]
		var w Where
		if v != nil {
			m, ok := asWhere(v)
			if !ok {
				return rf, validationf(model, "relation filter %s expects an object", key)
			}
			w = m
		}
		switch key {
		case "some":
			rf.Some, rf.some = nonNilWhere(w), true
		case "every":
			rf.Every, rf.every = nonNilWhere(w), true
		case "none":
			rf.None, rf.none = nonNilWhere(w), true
		case "is":
			if v == nil {
				rf.isNull = true
			} else {
				rf.Is, rf.is = w, true
			}
		case "isNot":
			if v == nil {
				rf.isNotNull = true
			} else {
				rf.IsNot, rf.isNot = w, true
			}
		}
	}
	return rf, nil
}

func asWhere(v interface{}) (Where, bool) {
	switch t := v.(type) {
	case Where:
		return t, true
	case map[string]interface{}:
		return Where(t), true
	}
	return nil, false
}

func asWhereList(model, key string, v interface{}) ([]Where, error) {
	switch t := v.(type) {
	case Where:
		return []Where{t}, nil
	case map[string]interface{}:
		return []Where{Where(t)}, nil
	case []Where:
		return t, nil
	case []interface{}:
		out := make([]Where, 0, len(t))
		for _, item := range t {
			w, ok := asWhere(item)
			if !ok {
				return nil, validationf(model, "%s expects a list of objects", key)
			}
			out = append(out, w)
		}
		return out, nil
	}
	return nil, validationf(model, "%s expects an object or a list of objects", key)
}

// DecodeWhere 解析 JSON 过滤条件
func DecodeWhere(data []byte) (Where, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var w Where
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid where: %v", err)}
	}
	return w, nil
}
