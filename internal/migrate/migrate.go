// 包 migrate：数据库结构迁移（golang-migrate，SQL 文件内嵌于二进制）
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"gsm-api/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// EnsureSchema：执行全部未应用的迁移；已是最新版本时返回 nil
func EnsureSchema(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// 不调用 m.Close()：会连带关闭传入的 *sql.DB
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	logger.L().Info("schema_ready", "version", v, "dirty", dirty)
	return nil
}

// Down：回滚最近一次迁移
func Down(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger：golang-migrate 日志转发到 slog
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	logger.L().Debug("migrate", "msg", fmt.Sprintf(format, v...))
}

func (migrateLogger) Verbose() bool { return false }
