package client

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Data 更新数据，键为 API 字段名；值为普通值或 FieldUpdate
type Data map[string]interface{}

// FieldUpdate 字段级更新操作
type FieldUpdate struct {
	Op    string
	Value interface{}
}

// 更新操作
const (
	OpSet       = "set"
	OpIncrement = "increment"
	OpDecrement = "decrement"
	OpMultiply  = "multiply"
	OpDivide    = "divide"
)

// Set 显式赋值（nil 表示置空）
func Set(v interface{}) FieldUpdate { return FieldUpdate{Op: OpSet, Value: v} }

// Increment 原子自增
func Increment(n interface{}) FieldUpdate { return FieldUpdate{Op: OpIncrement, Value: n} }

// Decrement 原子自减
func Decrement(n interface{}) FieldUpdate { return FieldUpdate{Op: OpDecrement, Value: n} }

// Multiply 原子乘
func Multiply(n interface{}) FieldUpdate { return FieldUpdate{Op: OpMultiply, Value: n} }

// Divide 原子除
func Divide(n interface{}) FieldUpdate { return FieldUpdate{Op: OpDivide, Value: n} }

var arithmeticOps = map[string]string{
	OpIncrement: "+",
	OpDecrement: "-",
	OpMultiply:  "*",
	OpDivide:    "/",
}

// buildUpdates 将 Data 转为 gorm 按列名更新的 map
func buildUpdates(m *ModelInfo, data Data) (map[string]interface{}, error) {
	updates := make(map[string]interface{}, len(data))
	for _, name := range sortedKeys(data) {
		f, ok := m.Field(name)
		if !ok {
			if _, isRel := m.Relation(name); isRel {
				return nil, validationf(m.Name, "nested writes on relation %s are not supported, set the foreign key field instead", name)
			}
			return nil, validationf(m.Name, "unknown argument %q in data", name)
		}
		if f.Primary {
			return nil, validationf(m.Name, "primary key %s cannot be updated", name)
		}
		upd, err := parseFieldUpdate(m, f, data[name])
		if err != nil {
			return nil, err
		}
		if upd.Op == OpSet {
			value, err := setValue(m, f, upd.Value)
			if err != nil {
				return nil, err
			}
			updates[f.Column] = value
			continue
		}
		if !f.Kind.Numeric() {
			return nil, validationf(m.Name, "%s is only valid on numeric fields, got %s", upd.Op, name)
		}
		operand, err := coerceValue(m.Name, f, upd.Value)
		if err != nil {
			return nil, err
		}
		if operand == nil {
			return nil, validationf(m.Name, "%s on %s expects a number", upd.Op, name)
		}
		updates[f.Column] = gorm.Expr("? "+arithmeticOps[upd.Op]+" ?", clause.Column{Name: f.Column}, operand)
	}
	return updates, nil
}

func parseFieldUpdate(m *ModelInfo, f *FieldInfo, raw interface{}) (FieldUpdate, error) {
	switch v := raw.(type) {
	case FieldUpdate:
		if v.Op == "" {
			v.Op = OpSet
		}
		if v.Op != OpSet {
			if _, ok := arithmeticOps[v.Op]; !ok {
				return v, validationf(m.Name, "unknown update operation %q on %s", v.Op, f.Name)
			}
		}
		return v, nil
	case *FieldUpdate:
		if v == nil {
			return FieldUpdate{Op: OpSet}, nil
		}
		return parseFieldUpdate(m, f, *v)
	case map[string]interface{}:
		if len(v) != 1 {
			return FieldUpdate{}, validationf(m.Name, "update of %s expects exactly one operation", f.Name)
		}
		for op, value := range v {
			if op != OpSet {
				if _, ok := arithmeticOps[op]; !ok {
					return FieldUpdate{}, validationf(m.Name, "unknown update operation %q on %s", op, f.Name)
				}
			}
			return FieldUpdate{Op: op, Value: value}, nil
		}
	}
	return FieldUpdate{Op: OpSet, Value: raw}, nil
}

func setValue(m *ModelInfo, f *FieldInfo, v interface{}) (interface{}, error) {
	if v == nil || v == interface{}(DBNull) {
		if !f.Nullable {
			return nil, validationf(m.Name, "argument %s must not be null", f.Name)
		}
		return nil, nil
	}
	value, err := coerceValue(m.Name, f, v)
	if err != nil {
		return nil, err
	}
	if value == nil && !f.Nullable {
		return nil, validationf(m.Name, "argument %s must not be null", f.Name)
	}
	return value, nil
}
