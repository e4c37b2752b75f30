package models

// Review 商品评价
type Review struct {
	ReviewID  uint   `gorm:"column:review_id;primaryKey" json:"reviewId"`      // 主键
	UserID    uint   `gorm:"column:user_id;index;not null" json:"userId"`      // 评价用户
	ProductID uint   `gorm:"column:product_id;index;not null" json:"productId"` // 评价商品
	Review    string `gorm:"column:review;type:text;not null" json:"review"`    // 评价内容

	// 关联
	User    *User    `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
	Product *Product `gorm:"foreignKey:ProductID;references:ProductID" json:"product,omitempty"`
}

// TableName 指定表名
func (Review) TableName() string {
	return "reviews"
}

// UniqueConstraints 主键之外的唯一约束
func (Review) UniqueConstraints() []UniqueConstraint {
	return nil
}
