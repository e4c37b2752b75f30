package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite" // 纯 Go SQLite 驱动（基于 modernc.org/sqlite）
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DBPoolConfig 数据库连接池配置
type DBPoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// NormalizeDriver 统一驱动名称，空值按 sqlite 处理
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// DriverFromURL 根据连接串推断驱动
func DriverFromURL(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(lower, "host=") && strings.Contains(lower, "dbname=") {
		return DriverPostgres
	}
	return DriverSQLite
}

// OpenDB 打开数据库连接并应用连接池配置
func OpenDB(driver, dsn string, pool DBPoolConfig, gormLogger logger.Interface) (*gorm.DB, error) {
	normalized, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if normalized == DriverSQLite && isSQLiteMemory(dsn) {
		pool = memoryPool(pool)
	}
	var dialector gorm.Dialector
	switch normalized {
	case DriverSQLite:
		// glebarez/sqlite 是基于 modernc.org/sqlite 的纯 Go 驱动
		dialector = sqlite.Open(withSQLitePragmas(dsn))
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	}
	if gormLogger == nil {
		gormLogger = logger.Discard
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	applyDBPool(sqlDB, pool)
	return db, nil
}

// isSQLiteMemory 内存库每个连接各自独立
func isSQLiteMemory(dsn string) bool {
	dsn = strings.TrimSpace(dsn)
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// memoryPool 内存库固定为单个常驻连接，迁移与查询才能看到同一个库
func memoryPool(pool DBPoolConfig) DBPoolConfig {
	pool.MaxOpenConns = 1
	pool.MaxIdleConns = 1
	pool.ConnMaxLifetimeSeconds = 0
	pool.ConnMaxIdleTimeSeconds = 0
	return pool
}

// withSQLitePragmas 为 sqlite 连接串补齐外键、忙等待与大小写敏感 LIKE 设置（每个连接生效）
func withSQLitePragmas(dsn string) string {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file::memory:"
	}
	pragmas := make([]string, 0, 3)
	if !strings.Contains(dsn, "foreign_keys") {
		pragmas = append(pragmas, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		pragmas = append(pragmas, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "case_sensitive_like") {
		pragmas = append(pragmas, "_pragma=case_sensitive_like(1)")
	}
	if len(pragmas) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

func applyDBPool(sqlDB *sql.DB, pool DBPoolConfig) {
	if sqlDB == nil {
		return
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	}
	if pool.ConnMaxIdleTimeSeconds > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTimeSeconds) * time.Second)
	}
}
