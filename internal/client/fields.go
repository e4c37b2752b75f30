package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field 标量字段的条件构造器
type Field[V any] struct {
	name string
}

// Name API 字段名
func (f Field[V]) Name() string { return f.name }

// Equals 等于
func (f Field[V]) Equals(v V) Where { return Where{f.name: Equals(v)} }

// Not 不等于
func (f Field[V]) Not(v V) Where { return Where{f.name: Not(v)} }

// In 属于列表
func (f Field[V]) In(values ...V) Where { return Where{f.name: In(toAny(values)...)} }

// NotIn 不属于列表
func (f Field[V]) NotIn(values ...V) Where { return Where{f.name: NotIn(toAny(values)...)} }

// Lt 小于
func (f Field[V]) Lt(v V) Where { return Where{f.name: Lt(v)} }

// Lte 小于等于
func (f Field[V]) Lte(v V) Where { return Where{f.name: Lte(v)} }

// Gt 大于
func (f Field[V]) Gt(v V) Where { return Where{f.name: Gt(v)} }

// Gte 大于等于
func (f Field[V]) Gte(v V) Where { return Where{f.name: Gte(v)} }

// IsNull 为空
func (f Field[V]) IsNull() Where { return Where{f.name: nil} }

// IsNotNull 不为空
func (f Field[V]) IsNotNull() Where { return Where{f.name: Not(DBNull)} }

// Asc 升序
func (f Field[V]) Asc() OrderBy { return Asc(f.name) }

// Desc 降序
func (f Field[V]) Desc() OrderBy { return Desc(f.name) }

// Set 写入值
func (f Field[V]) Set(v V) Data { return Data{f.name: Set(v)} }

// SetNull 写入 NULL（仅可空字段）
func (f Field[V]) SetNull() Data { return Data{f.name: nil} }

func toAny[V any](values []V) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// StringField 字符串字段
type StringField struct {
	Field[string]
}

// Contains 包含子串
func (f StringField) Contains(s string) Where { return Where{f.name: Contains(s)} }

// StartsWith 前缀匹配
func (f StringField) StartsWith(s string) Where { return Where{f.name: StartsWith(s)} }

// EndsWith 后缀匹配
func (f StringField) EndsWith(s string) Where { return Where{f.name: EndsWith(s)} }

// EqualsFold 忽略大小写相等
func (f StringField) EqualsFold(s string) Where { return Where{f.name: Equals(s).Insensitive()} }

// ContainsFold 忽略大小写包含
func (f StringField) ContainsFold(s string) Where { return Where{f.name: Contains(s).Insensitive()} }

// NumericField 数值字段，支持原子更新
type NumericField[V int | uint | int64 | decimal.Decimal] struct {
	Field[V]
}

// Increment 自增
func (f NumericField[V]) Increment(n V) Data { return Data{f.name: Increment(n)} }

// Decrement 自减
func (f NumericField[V]) Decrement(n V) Data { return Data{f.name: Decrement(n)} }

// Multiply 乘
func (f NumericField[V]) Multiply(n V) Data { return Data{f.name: Multiply(n)} }

// Divide 除
func (f NumericField[V]) Divide(n V) Data { return Data{f.name: Divide(n)} }

// TimeField 时间字段
type TimeField struct {
	Field[time.Time]
}

// MergeData 合并多个 Data，后者覆盖前者
func MergeData(parts ...Data) Data {
	out := Data{}
	for _, p := range parts {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

func strField(name string) StringField { return StringField{Field[string]{name}} }
func idField(name string) NumericField[uint] { return NumericField[uint]{Field[uint]{name}} }
func intField(name string) NumericField[int] { return NumericField[int]{Field[int]{name}} }
func moneyField(name string) NumericField[decimal.Decimal] { return NumericField[decimal.Decimal]{Field[decimal.Decimal]{name}} }
func timeField(name string) TimeField { return TimeField{Field[time.Time]{name}} }

// UserFields users 模型字段
var UserFields = struct {
	UserID      NumericField[uint]
	SupabaseID  StringField
	UserName    StringField
	UserEmail   StringField
	UserPhone   StringField
	UserAddress StringField
	CreatedAt   TimeField
}{
	UserID:      idField("userId"),
	SupabaseID:  strField("supabaseId"),
	UserName:    strField("userName"),
	UserEmail:   strField("userEmail"),
	UserPhone:   strField("userPhone"),
	UserAddress: strField("userAddress"),
	CreatedAt:   timeField("created_at"),
}

// ProductFields products 模型字段
var ProductFields = struct {
	ProductID          NumericField[uint]
	ProductName        StringField
	ProductDescription StringField
	ProductPrice       NumericField[decimal.Decimal]
	ProductStock       NumericField[int]
	ProductImage       StringField
	CreatedAt          TimeField
}{
	ProductID:          idField("productId"),
	ProductName:        strField("productName"),
	ProductDescription: strField("productDescription"),
	ProductPrice:       moneyField("productPrice"),
	ProductStock:       intField("productStock"),
	ProductImage:       strField("productImage"),
	CreatedAt:          timeField("created_at"),
}

// OrderFields orders 模型字段
var OrderFields = struct {
	OrderID     NumericField[uint]
	UserID      NumericField[uint]
	OrderAmount NumericField[decimal.Decimal]
	OrderDate   TimeField
}{
	OrderID:     idField("orderId"),
	UserID:      idField("userId"),
	OrderAmount: moneyField("orderAmount"),
	OrderDate:   timeField("orderDate"),
}

// CartFields cart 模型字段
var CartFields = struct {
	CartID    NumericField[uint]
	ProductID NumericField[uint]
	UserID    NumericField[uint]
	SessionID StringField
	Quantity  NumericField[int]
}{
	CartID:    idField("cartId"),
	ProductID: idField("productId"),
	UserID:    idField("userId"),
	SessionID: strField("sessionId"),
	Quantity:  intField("quantity"),
}

// OrderDetailFields orderDetails 模型字段
var OrderDetailFields = struct {
	OrderDetailID NumericField[uint]
	OrderID       NumericField[uint]
	ProductID     NumericField[uint]
	Quantity      NumericField[int]
	ProductPrice  NumericField[decimal.Decimal]
}{
	OrderDetailID: idField("orderDetailId"),
	OrderID:       idField("orderId"),
	ProductID:     idField("productId"),
	Quantity:      intField("quantity"),
	ProductPrice:  moneyField("productPrice"),
}

// ReviewFields reviews 模型字段
var ReviewFields = struct {
	ReviewID  NumericField[uint]
	UserID    NumericField[uint]
	ProductID NumericField[uint]
	Review    StringField
}{
	ReviewID:  idField("reviewId"),
	UserID:    idField("userId"),
	ProductID: idField("productId"),
	Review:    strField("review"),
}

// PaymentFields payments 模型字段
var PaymentFields = struct {
	PaymentID         NumericField[uint]
	UserID            NumericField[uint]
	OrderID           NumericField[uint]
	RazorpayOrderID   StringField
	RazorpayPaymentID StringField
	PaymentMode       StringField
	PaymentStatus     StringField
	PaymentDate       TimeField
	PaymentAmount     NumericField[decimal.Decimal]
}{
	PaymentID:         idField("paymentId"),
	UserID:            idField("userId"),
	OrderID:           idField("orderId"),
	RazorpayOrderID:   strField("razorpayOrderId"),
	RazorpayPaymentID: strField("razorpayPaymentId"),
	PaymentMode:       strField("paymentMode"),
	PaymentStatus:     strField("paymentStatus"),
	PaymentDate:       timeField("paymentDate"),
	PaymentAmount:     moneyField("paymentAmount"),
}

// CategoryFields category 模型字段
var CategoryFields = struct {
	CategoryID   NumericField[uint]
	CategoryName StringField
}{
	CategoryID:   idField("categoryId"),
	CategoryName: strField("categoryName"),
}
