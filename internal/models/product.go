package models

import "time"

// Product 商品表
type Product struct {
	ProductID          uint      `gorm:"column:product_id;primaryKey" json:"productId"`                      // 主键
	ProductName        string    `gorm:"column:product_name;uniqueIndex;not null" json:"productName"`        // 商品名称（唯一）
	ProductDescription string    `gorm:"column:product_description;not null" json:"productDescription"`      // 商品描述
	ProductPrice       Money     `gorm:"column:product_price;type:decimal(20,2);not null" json:"productPrice"` // 当前售价
	ProductStock       int       `gorm:"column:product_stock;not null" json:"productStock"`                  // 库存
	ProductImage       *string   `gorm:"column:product_image" json:"productImage"`                           // 商品图片
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime;not null" json:"created_at"`         // 创建时间

	// 关联
	Cart         []Cart        `gorm:"foreignKey:ProductID;references:ProductID" json:"cart,omitempty"`         // 购物车项
	OrderDetails []OrderDetail `gorm:"foreignKey:ProductID;references:ProductID" json:"orderDetails,omitempty"` // 订单明细
	Reviews      []Review      `gorm:"foreignKey:ProductID;references:ProductID" json:"reviews,omitempty"`      // 评价
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// UniqueConstraints 主键之外的唯一约束
func (Product) UniqueConstraints() []UniqueConstraint {
	return []UniqueConstraint{
		{Name: "productName", Fields: []string{"productName"}},
	}
}
