package client

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teakspice/shopdb/internal/models"

	"gorm.io/gorm/schema"
)

// 模型名称（与客户端字段、HTTP 路由一致）
const (
	ModelUsers        = "users"
	ModelProducts     = "products"
	ModelOrders       = "orders"
	ModelCart         = "cart"
	ModelOrderDetails = "orderDetails"
	ModelReviews      = "reviews"
	ModelPayments     = "payments"
	ModelCategory     = "category"
)

// FieldKind 标量字段类别
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindDecimal
	KindTime
	KindBool
)

func (k FieldKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindTime:
		return "time"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Numeric 是否支持算术更新与 avg/sum
func (k FieldKind) Numeric() bool {
	return k == KindInt || k == KindDecimal
}

// FieldInfo 标量字段元数据
type FieldInfo struct {
	Name       string // API 字段名（json tag）
	Column     string // 数据库列名
	Kind       FieldKind
	Nullable   bool
	Primary    bool
	Unique     bool
	HasDefault bool

	field *schema.Field
}

// RelationInfo 关联元数据
type RelationInfo struct {
	Name         string // API 关联名
	FieldName    string // Go 字段名，用于 Preload
	Many         bool
	Model        string // 目标模型名
	LocalColumn  string
	RemoteColumn string
}

// UniqueKey 唯一约束（主键、单字段唯一、复合唯一）
type UniqueKey struct {
	Name   string
	Fields []string
}

// ModelInfo 模型元数据
type ModelInfo struct {
	Name       string
	Table      string
	PrimaryKey *FieldInfo
	Fields     []*FieldInfo
	Uniques    []UniqueKey

	fields    map[string]*FieldInfo
	columns   map[string]*FieldInfo
	relations map[string]*RelationInfo
	compound  map[string]UniqueKey
	schema    *schema.Schema
}

// Field 按 API 名查找标量字段
func (m *ModelInfo) Field(name string) (*FieldInfo, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// FieldByColumn 按列名查找标量字段
func (m *ModelInfo) FieldByColumn(column string) (*FieldInfo, bool) {
	f, ok := m.columns[column]
	return f, ok
}

// Relation 按 API 名查找关联
func (m *ModelInfo) Relation(name string) (*RelationInfo, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// RelationNames 返回排序后的关联名
func (m *ModelInfo) RelationNames() []string {
	names := make([]string, 0, len(m.relations))
	for name := range m.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *ModelInfo) fieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Registry 全部模型的元数据
type Registry struct {
	models  map[string]*ModelInfo
	byTable map[string]*ModelInfo
	byType  map[reflect.Type]*ModelInfo
	order   []string
}

var registryEntries = []struct {
	name  string
	model interface{}
}{
	{ModelUsers, &models.User{}},
	{ModelProducts, &models.Product{}},
	{ModelCategory, &models.Category{}},
	{ModelOrders, &models.Order{}},
	{ModelCart, &models.Cart{}},
	{ModelOrderDetails, &models.OrderDetail{}},
	{ModelReviews, &models.Review{}},
	{ModelPayments, &models.Payment{}},
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return NewRegistry()
})

// DefaultRegistry 返回进程内共享的模型元数据
func DefaultRegistry() *Registry {
	reg, err := defaultRegistry()
	if err != nil {
		panic(fmt.Sprintf("client: parse model schema failed: %v", err))
	}
	return reg
}

// NewRegistry 解析全部模型
func NewRegistry() (*Registry, error) {
	reg := &Registry{
		models:  make(map[string]*ModelInfo, len(registryEntries)),
		byTable: make(map[string]*ModelInfo, len(registryEntries)),
		byType:  make(map[reflect.Type]*ModelInfo, len(registryEntries)),
	}
	cache := &sync.Map{}
	namer := schema.NamingStrategy{}
	for _, entry := range registryEntries {
		s, err := schema.Parse(entry.model, cache, namer)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.name, err)
		}
		info, err := buildModelInfo(entry.name, s, entry.model)
		if err != nil {
			return nil, err
		}
		reg.models[entry.name] = info
		reg.byTable[info.Table] = info
		reg.byType[s.ModelType] = info
		reg.order = append(reg.order, entry.name)
	}
	for _, entry := range registryEntries {
		info := reg.models[entry.name]
		if err := reg.bindRelations(info); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Model 按模型名查找
func (r *Registry) Model(name string) (*ModelInfo, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Names 返回全部模型名（外键依赖顺序）
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) modelOf(t reflect.Type) (*ModelInfo, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	m, ok := r.byType[t]
	return m, ok
}

func buildModelInfo(name string, s *schema.Schema, model interface{}) (*ModelInfo, error) {
	info := &ModelInfo{
		Name:      name,
		Table:     s.Table,
		fields:    make(map[string]*FieldInfo),
		columns:   make(map[string]*FieldInfo),
		relations: make(map[string]*RelationInfo),
		compound:  make(map[string]UniqueKey),
		schema:    s,
	}
	for _, f := range s.Fields {
		if f.DBName == "" {
			continue
		}
		apiName := jsonName(f.Tag)
		if apiName == "" || apiName == "-" {
			apiName = f.Name
		}
		fi := &FieldInfo{
			Name:       apiName,
			Column:     f.DBName,
			Kind:       kindOf(f.FieldType),
			Nullable:   f.FieldType.Kind() == reflect.Ptr,
			Primary:    f.PrimaryKey,
			HasDefault: f.HasDefaultValue || f.AutoCreateTime > 0,
			field:      f,
		}
		info.Fields = append(info.Fields, fi)
		info.fields[apiName] = fi
		info.columns[f.DBName] = fi
		if f.PrimaryKey && info.PrimaryKey == nil {
			info.PrimaryKey = fi
		}
	}
	if info.PrimaryKey == nil {
		return nil, fmt.Errorf("model %s has no primary key", name)
	}
	info.Uniques = append(info.Uniques, UniqueKey{Name: info.PrimaryKey.Name, Fields: []string{info.PrimaryKey.Name}})
	if uc, ok := model.(models.UniqueConstrainer); ok {
		for _, c := range uc.UniqueConstraints() {
			for _, fieldName := range c.Fields {
				if _, ok := info.fields[fieldName]; !ok {
					return nil, fmt.Errorf("model %s unique %s: unknown field %s", name, c.Name, fieldName)
				}
			}
			key := UniqueKey{Name: c.Name, Fields: append([]string(nil), c.Fields...)}
			info.Uniques = append(info.Uniques, key)
			if len(c.Fields) == 1 {
				info.fields[c.Fields[0]].Unique = true
			} else {
				info.compound[c.Name] = key
			}
		}
	}
	return info, nil
}

func (r *Registry) bindRelations(info *ModelInfo) error {
	for _, rel := range info.schema.Relationships.Relations {
		if rel.Field == nil || rel.FieldSchema == nil || len(rel.References) == 0 {
			continue
		}
		target, ok := r.byTable[rel.FieldSchema.Table]
		if !ok {
			continue
		}
		apiName := jsonName(rel.Field.Tag)
		if apiName == "" || apiName == "-" {
			apiName = rel.Name
		}
		ref := rel.References[0]
		ri := &RelationInfo{
			Name:      apiName,
			FieldName: rel.Name,
			Many:      rel.Type == schema.HasMany || rel.Type == schema.Many2Many,
			Model:     target.Name,
		}
		if ref.OwnPrimaryKey {
			ri.LocalColumn = ref.PrimaryKey.DBName
			ri.RemoteColumn = ref.ForeignKey.DBName
		} else {
			ri.LocalColumn = ref.ForeignKey.DBName
			ri.RemoteColumn = ref.PrimaryKey.DBName
		}
		info.relations[apiName] = ri
	}
	return nil
}

func jsonName(tag reflect.StructTag) string {
	raw := tag.Get("json")
	if raw == "" {
		return ""
	}
	name, _, _ := strings.Cut(raw, ",")
	return name
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	moneyType = reflect.TypeOf(models.Money{})
)

func kindOf(t reflect.Type) FieldKind {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch {
	case t == moneyType:
		return KindDecimal
	case t == timeType:
		return KindTime
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindDecimal
	case reflect.Bool:
		return KindBool
	default:
		return KindString
	}
}
