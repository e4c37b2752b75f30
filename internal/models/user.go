package models

import "time"

// User 用户表
type User struct {
	UserID      uint      `gorm:"column:user_id;primaryKey" json:"userId"`                   // 主键
	SupabaseID  *string   `gorm:"column:supabase_id;uniqueIndex" json:"supabaseId"`           // Supabase 账号 ID（可空，唯一）
	UserName    string    `gorm:"column:user_name;not null" json:"userName"`                  // 用户名
	UserEmail   string    `gorm:"column:user_email;uniqueIndex;not null" json:"userEmail"`    // 邮箱
	UserPhone   *string   `gorm:"column:user_phone" json:"userPhone"`                         // 手机号
	UserAddress *string   `gorm:"column:user_address" json:"userAddress"`                     // 收货地址
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;not null" json:"created_at"` // 创建时间

	// 关联
	Orders   []Order   `gorm:"foreignKey:UserID;references:UserID" json:"orders,omitempty"`   // 订单
	Cart     []Cart    `gorm:"foreignKey:UserID;references:UserID" json:"cart,omitempty"`     // 购物车项
	Payments []Payment `gorm:"foreignKey:UserID;references:UserID" json:"payments,omitempty"` // 支付记录
	Reviews  []Review  `gorm:"foreignKey:UserID;references:UserID" json:"reviews,omitempty"`  // 评价
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// UniqueConstraints 主键之外的唯一约束
func (User) UniqueConstraints() []UniqueConstraint {
	return []UniqueConstraint{
		{Name: "supabaseId", Fields: []string{"supabaseId"}},
		{Name: "userEmail", Fields: []string{"userEmail"}},
	}
}
