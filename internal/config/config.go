package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/teakspice/shopdb/internal/client"
	"github.com/teakspice/shopdb/internal/constants"
	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/models"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Client   ClientConfig   `mapstructure:"client"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release

	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 数据代理限流配置（需启用 Redis）
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Level      string `mapstructure:"level"`   // 为空时按 server.mode
	Console    bool   `mapstructure:"console"` // release 模式同时输出到标准输出
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Level:      c.Level,
		Console:    c.Console,
	}
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver  string              `mapstructure:"driver"`  // 数据库驱动（sqlite/postgres），为空时按 dsn 推断
	DSN     string              `mapstructure:"dsn"`     // 数据库连接串
	Migrate bool                `mapstructure:"migrate"` // 启动时执行迁移
	Pool    models.DBPoolConfig `mapstructure:"pool"`
}

// ClientConfig 数据客户端配置
type ClientConfig struct {
	Log            []client.LogDefinition `mapstructure:"log"`
	SlowQueryMS    int                    `mapstructure:"slow_query_ms"`
	Omit           map[string][]string    `mapstructure:"omit"`
	Transaction    TransactionConfig      `mapstructure:"transaction"`
	CacheTTLSecond int                    `mapstructure:"cache_ttl_seconds"` // 数据代理未指定 cacheStrategy 时的默认 TTL，0 为不缓存
}

// TransactionConfig 交互式事务默认参数
type TransactionConfig struct {
	MaxWaitMS      int    `mapstructure:"max_wait_ms"`
	TimeoutMS      int    `mapstructure:"timeout_ms"`
	IsolationLevel string `mapstructure:"isolation_level"`
}

// RedisConfig Redis 配置（查询结果缓存）
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// ToClientOptions 转换为数据客户端配置；缓存与通知由容器注入
func (c *Config) ToClientOptions() client.Options {
	tx := c.Client.Transaction
	return client.Options{
		Driver:             c.Database.Driver,
		URL:                c.Database.DSN,
		Pool:               c.Database.Pool,
		Log:                c.Client.Log,
		SlowQueryThreshold: time.Duration(c.Client.SlowQueryMS) * time.Millisecond,
		Omit:               c.Client.Omit,
		TransactionOptions: client.TxOptions{
			MaxWait:        time.Duration(tx.MaxWaitMS) * time.Millisecond,
			Timeout:        time.Duration(tx.TimeoutMS) * time.Millisecond,
			IsolationLevel: client.IsolationLevel(tx.IsolationLevel),
		},
	}
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.rate_limit.window_seconds", 60)
	v.SetDefault("server.rate_limit.max_requests", 600)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "shopdb.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.level", "")
	v.SetDefault("log.console", false)
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "./db/shopdb.db")
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("client.log", []map[string]string{
		{"level": string(client.LogWarn), "emit": string(client.EmitStdout)},
		{"level": string(client.LogError), "emit": string(client.EmitStdout)},
	})
	v.SetDefault("client.slow_query_ms", 200)
	v.SetDefault("client.cache_ttl_seconds", 0)
	v.SetDefault("client.transaction.max_wait_ms", 2000)
	v.SetDefault("client.transaction.timeout_ms", 5000)
	v.SetDefault("client.transaction.isolation_level", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", constants.RedisPrefixDefault)
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		constants.QueueDefault: 10,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		constants.HeaderRequestID,
	})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// LoadFile 从指定文件加载配置（不读取全局 viper）
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// 环境变量支持
	v.AutomaticEnv()                                   // 自动读取环境变量
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 database.dsn -> DATABASE_DSN)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	driver := c.Database.Driver
	if strings.TrimSpace(driver) == "" {
		driver = models.DriverFromURL(c.Database.DSN)
	}
	if _, err := models.NormalizeDriver(driver); err != nil {
		return err
	}
	switch client.IsolationLevel(c.Client.Transaction.IsolationLevel) {
	case "", client.ReadUncommitted, client.ReadCommitted, client.RepeatableRead, client.Serializable:
	default:
		return fmt.Errorf("unknown isolation level %q", c.Client.Transaction.IsolationLevel)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Client.SlowQueryMS < 0 || c.Client.CacheTTLSecond < 0 {
		return fmt.Errorf("client durations must not be negative")
	}
	return nil
}

// RedisAddr Redis 地址
func (c RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QueueAddr 队列 Redis 地址
func (c QueueConfig) QueueAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
