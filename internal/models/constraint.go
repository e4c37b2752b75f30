package models

// UniqueConstraint 唯一约束定义
// Name 为查询时使用的键名，复合约束按 `a_b` 形式命名。
type UniqueConstraint struct {
	Name   string
	Fields []string
}

// UniqueConstrainer 声明主键之外唯一约束的模型
type UniqueConstrainer interface {
	UniqueConstraints() []UniqueConstraint
}

// All 返回全部模型（顺序与外键依赖一致）
func All() []interface{} {
	return []interface{}{
		&User{},
		&Product{},
		&Category{},
		&Order{},
		&Cart{},
		&OrderDetail{},
		&Review{},
		&Payment{},
	}
}
