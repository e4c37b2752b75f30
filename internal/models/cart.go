package models

// Cart 购物车项（登录用户按 userId，游客按 sessionId）
type Cart struct {
	CartID    uint    `gorm:"column:cart_id;primaryKey" json:"cartId"`                                                                    // 主键
	ProductID uint    `gorm:"column:product_id;not null;uniqueIndex:uq_cart_user_product;uniqueIndex:uq_cart_session_product" json:"productId"` // 商品ID
	UserID    *uint   `gorm:"column:user_id;uniqueIndex:uq_cart_user_product" json:"userId"`                                              // 用户ID（游客为空）
	SessionID *string `gorm:"column:session_id;uniqueIndex:uq_cart_session_product" json:"sessionId"`                                     // 游客会话ID
	Quantity  int     `gorm:"column:quantity;not null" json:"quantity"`                                                                   // 数量

	// 关联
	Product *Product `gorm:"foreignKey:ProductID;references:ProductID" json:"product,omitempty"` // 关联商品
	User    *User    `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`          // 关联用户
}

// TableName 指定表名
func (Cart) TableName() string {
	return "cart"
}

// UniqueConstraints 主键之外的唯一约束
func (Cart) UniqueConstraints() []UniqueConstraint {
	return []UniqueConstraint{
		{Name: "userId_productId", Fields: []string{"userId", "productId"}},
		{Name: "sessionId_productId", Fields: []string{"sessionId", "productId"}},
	}
}
