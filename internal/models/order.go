package models

import "time"

// Order 订单表
type Order struct {
	OrderID     uint      `gorm:"column:order_id;primaryKey" json:"orderId"`                         // 主键
	UserID      uint      `gorm:"column:user_id;index;not null" json:"userId"`                       // 下单用户
	OrderAmount Money     `gorm:"column:order_amount;type:decimal(20,2);not null" json:"orderAmount"` // 订单金额
	OrderDate   time.Time `gorm:"column:order_date;autoCreateTime;not null" json:"orderDate"`        // 下单时间

	// 关联
	User         *User         `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`             // 下单用户
	OrderDetails []OrderDetail `gorm:"foreignKey:OrderID;references:OrderID" json:"orderDetails,omitempty"`   // 订单明细
	Payments     []Payment     `gorm:"foreignKey:OrderID;references:OrderID" json:"payments,omitempty"`       // 支付记录
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// UniqueConstraints 主键之外的唯一约束
func (Order) UniqueConstraints() []UniqueConstraint {
	return nil
}
