package client

import (
	"encoding/json"
	"sort"

	"gorm.io/gorm"
)

// projection 一次读取实际需要的列与关联
type projection struct {
	columns  []string        // 为空表示 SELECT *
	visible  map[string]bool // 对外可见的字段与关联
	include  Include
	restrict bool
}

// keep 输出时是否保留该 API 名；restrict 为 false 时全部保留
func (p projection) keep(name string) bool {
	if !p.restrict {
		return true
	}
	return p.visible[name]
}

// buildProjection 合并全局 omit、查询 select / omit 与 include
func buildProjection(m *ModelInfo, globalOmit map[string]bool, sel, omit Selection, inc Include, required ...string) (projection, error) {
	if len(sel) > 0 && len(omit) > 0 {
		if len(sel.enabled()) > 0 && len(omit.enabled()) > 0 {
			return projection{}, validationf(m.Name, "select and omit cannot be used together")
		}
	}
	if len(sel) > 0 && len(inc) > 0 {
		return projection{}, validationf(m.Name, "select and include cannot be used together, put relations in select")
	}
	include := Include{}
	for k, v := range inc {
		include[k] = v
	}

	p := projection{visible: map[string]bool{}}
	var fields []*FieldInfo
	switch {
	case len(sel) > 0:
		p.restrict = true
		for _, name := range sel.enabled() {
			if f, ok := m.Field(name); ok {
				fields = append(fields, f)
				p.visible[name] = true
				continue
			}
			if _, ok := m.Relation(name); ok {
				include[name] = sel[name]
				p.visible[name] = true
				continue
			}
			return projection{}, validationf(m.Name, "unknown field %q in select", name)
		}
	default:
		for name := range omit {
			if _, ok := m.Field(name); !ok {
				return projection{}, validationf(m.Name, "unknown field %q in omit", name)
			}
		}
		for _, f := range m.Fields {
			omitted := globalOmit[f.Name]
			if v, ok := omit[f.Name]; ok {
				omitted = v
			}
			if omitted {
				p.restrict = true
				continue
			}
			fields = append(fields, f)
			p.visible[f.Name] = true
		}
		for name := range include {
			p.visible[name] = true
		}
	}
	if len(fields) == 0 {
		return projection{}, validationf(m.Name, "the query must select at least one field")
	}
	if !p.restrict {
		p.include = include
		return p, nil
	}

	cols := map[string]bool{}
	for _, f := range fields {
		cols[f.Column] = true
	}
	for name := range include {
		if rel, ok := m.Relation(name); ok {
			cols[rel.LocalColumn] = true
		}
	}
	cols[m.PrimaryKey.Column] = true
	for _, name := range required {
		if f, ok := m.Field(name); ok {
			cols[f.Column] = true
		}
	}
	for c := range cols {
		p.columns = append(p.columns, c)
	}
	sort.Strings(p.columns)
	p.include = include
	return p, nil
}

// applyIncludes 通过 Preload 加载关联，支持嵌套 where / orderBy / include
func applyIncludes(db *gorm.DB, reg *Registry, m *ModelInfo, prefix string, inc Include) (*gorm.DB, error) {
	names := make([]string, 0, len(inc))
	for name := range inc {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rel, ok := m.Relation(name)
		if !ok {
			return nil, validationf(m.Name, "unknown relation %q in include", name)
		}
		args, on, err := parseIncludeValue(m.Name, inc[name])
		if err != nil {
			return nil, err
		}
		if !on {
			continue
		}
		target, _ := reg.Model(rel.Model)
		path := rel.FieldName
		if prefix != "" {
			path = prefix + "." + rel.FieldName
		}
		var conds []func(*gorm.DB) *gorm.DB
		if len(args.Where) > 0 {
			expr, err := newWhereCompiler(reg).compile(target, target.Table, args.Where)
			if err != nil {
				return nil, err
			}
			expr = wrapExpr(expr)
			conds = append(conds, func(tx *gorm.DB) *gorm.DB { return tx.Where(expr) })
		}
		if len(args.OrderBy) > 0 {
			orders, err := resolveOrder(target, args.OrderBy)
			if err != nil {
				return nil, err
			}
			oc := orderClause(target.Table, orders)
			conds = append(conds, func(tx *gorm.DB) *gorm.DB { return tx.Clauses(oc) })
		}
		if len(conds) > 0 {
			db = db.Preload(path, func(tx *gorm.DB) *gorm.DB {
				for _, c := range conds {
					tx = c(tx)
				}
				return tx
			})
		} else {
			db = db.Preload(path)
		}
		if len(args.Include) > 0 {
			db, err = applyIncludes(db, reg, target, path, args.Include)
			if err != nil {
				return nil, err
			}
		}
	}
	return db, nil
}

func parseIncludeValue(model string, v interface{}) (IncludeArgs, bool, error) {
	switch t := v.(type) {
	case nil:
		return IncludeArgs{}, false, nil
	case bool:
		return IncludeArgs{}, t, nil
	case IncludeArgs:
		return t, true, nil
	case Include:
		return IncludeArgs{Include: t}, true, nil
	case *IncludeArgs:
		if t == nil {
			return IncludeArgs{}, false, nil
		}
		return *t, true, nil
	case map[string]interface{}:
		for k := range t {
			switch k {
			case "where", "orderBy", "include":
			case "take", "skip", "cursor", "distinct":
				return IncludeArgs{}, false, validationf(model, "%s inside include is not supported", k)
			default:
				return IncludeArgs{}, false, validationf(model, "unknown include argument %q", k)
			}
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return IncludeArgs{}, false, validationf(model, "invalid include: %v", err)
		}
		var args IncludeArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return IncludeArgs{}, false, validationf(model, "invalid include: %v", err)
		}
		return args, true, nil
	}
	return IncludeArgs{}, false, validationf(model, "include expects true / false or an object")
}
