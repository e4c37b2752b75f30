package models

// Category 分类表（独立表，暂无关联）
type Category struct {
	CategoryID   uint   `gorm:"column:category_id;primaryKey" json:"categoryId"`   // 主键
	CategoryName string `gorm:"column:category_name;not null" json:"categoryName"` // 分类名称
}

// TableName 指定表名
func (Category) TableName() string {
	return "category"
}

// UniqueConstraints 主键之外的唯一约束
func (Category) UniqueConstraints() []UniqueConstraint {
	return nil
}
