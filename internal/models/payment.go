package models

import "time"

// Payment 支付记录（Razorpay）
type Payment struct {
	PaymentID         uint      `gorm:"column:payment_id;primaryKey" json:"paymentId"`                         // 主键
	UserID            uint      `gorm:"column:user_id;index;not null" json:"userId"`                           // 支付用户
	OrderID           uint      `gorm:"column:order_id;index;not null" json:"orderId"`                         // 订单ID
	RazorpayOrderID   string    `gorm:"column:razorpay_order_id;not null" json:"razorpayOrderId"`              // Razorpay 订单号
	RazorpayPaymentID *string   `gorm:"column:razorpay_payment_id" json:"razorpayPaymentId"`                   // Razorpay 支付流水号（支付完成前为空）
	PaymentMode       string    `gorm:"column:payment_mode;not null" json:"paymentMode"`                       // 支付方式
	PaymentStatus     string    `gorm:"column:payment_status;not null" json:"paymentStatus"`                   // 支付状态
	PaymentDate       time.Time `gorm:"column:payment_date;autoCreateTime;not null" json:"paymentDate"`        // 支付时间
	PaymentAmount     Money     `gorm:"column:payment_amount;type:decimal(20,2);not null" json:"paymentAmount"` // 支付金额

	// 关联
	User  *User  `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
	Order *Order `gorm:"foreignKey:OrderID;references:OrderID" json:"order,omitempty"`
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// UniqueConstraints 主键之外的唯一约束
func (Payment) UniqueConstraints() []UniqueConstraint {
	return nil
}
