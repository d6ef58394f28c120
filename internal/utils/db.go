// 包 utils：外部连接（PostgreSQL、Redis）与 TLS 证书的打开工具
package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gsm-api/internal/config"
	"gsm-api/internal/logger"

	_ "github.com/lib/pq"
)

// OpenPostgres：按配置打开连接池并 Ping 一次
// 约束：Ping 失败时关闭连接池并返回错误，调用方无需再 Close
func OpenPostgres(ctx context.Context, pg config.Postgres) (*sql.DB, error) {
	db, err := sql.Open("postgres", pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", pg.Host, pg.Port, err)
	}
	logger.L().Debug("db_open_ok", "host", pg.Host, "db", pg.DB, "max_open", pg.MaxOpenConns)
	return db, nil
}
