package constants

// 支付方式常量
const (
	PaymentModeCard       = "card"
	PaymentModeUPI        = "upi"
	PaymentModeNetbanking = "netbanking"
	PaymentModeWallet     = "wallet"
	PaymentModeEMI        = "emi"
	PaymentModeCOD        = "cod"
)

// 支付状态常量
const (
	PaymentStatusCreated    = "created"
	PaymentStatusPending    = "pending"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// PaymentModes 支持的支付方式
var PaymentModes = []string{PaymentModeCard, PaymentModeUPI, PaymentModeNetbanking, PaymentModeWallet, PaymentModeEMI, PaymentModeCOD}

// 队列常量
const (
	QueueDefault       = "default"
	TaskMutationNotify = "mutation:notify"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "shopdb"
)

// 数据代理请求常量
const (
	HeaderRequestID     = "X-Request-ID"
	ContextRequestID    = "request_id"
	MaxProxyBodyBytes   = 1 << 20
	BatchTransactionKey = "$transaction"
)
