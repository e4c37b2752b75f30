package models

// OrderDetail 订单明细（下单时的价格快照，不随商品售价变化）
type OrderDetail struct {
	OrderDetailID uint  `gorm:"column:order_detail_id;primaryKey" json:"orderDetailId"`               // 主键
	OrderID       uint  `gorm:"column:order_id;index;not null" json:"orderId"`                        // 订单ID
	ProductID     uint  `gorm:"column:product_id;index;not null" json:"productId"`                    // 商品ID
	Quantity      int   `gorm:"column:quantity;not null" json:"quantity"`                             // 数量
	ProductPrice  Money `gorm:"column:product_price;type:decimal(20,2);not null" json:"productPrice"` // 成交单价快照

	// 关联
	Order   *Order   `gorm:"foreignKey:OrderID;references:OrderID" json:"order,omitempty"`       // 所属订单
	Product *Product `gorm:"foreignKey:ProductID;references:ProductID" json:"product,omitempty"` // 商品
}

// TableName 指定表名
func (OrderDetail) TableName() string {
	return "order_details"
}

// UniqueConstraints 主键之外的唯一约束
func (OrderDetail) UniqueConstraints() []UniqueConstraint {
	return nil
}
