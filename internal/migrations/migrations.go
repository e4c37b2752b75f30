// Package migrations 内嵌各方言的表结构迁移，通过 goose 执行。
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/teakspice/shopdb/internal/logger"
	"github.com/teakspice/shopdb/internal/models"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedded embed.FS

// Files 返回指定驱动的迁移文件系统
func Files(driver string) (fs.FS, goose.Dialect, error) {
	normalized, err := models.NormalizeDriver(driver)
	if err != nil {
		return nil, "", err
	}
	switch normalized {
	case models.DriverPostgres:
		sub, err := fs.Sub(embedded, "postgres")
		return sub, goose.DialectPostgres, err
	default:
		sub, err := fs.Sub(embedded, "sqlite")
		return sub, goose.DialectSQLite3, err
	}
}

// Up 执行全部未应用的迁移
func Up(ctx context.Context, driver string, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}
	fsys, dialect, err := Files(driver)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("migrate: init provider failed: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: up failed: %w", err)
	}
	for _, result := range results {
		if result == nil || result.Source == nil {
			continue
		}
		logger.Infow("migration_applied",
			"version", result.Source.Version,
			"path", result.Source.Path,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return nil
}

// Version 返回当前数据库的迁移版本
func Version(ctx context.Context, driver string, db *sql.DB) (int64, error) {
	fsys, dialect, err := Files(driver)
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
