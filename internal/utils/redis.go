package utils

import (
	"context"
	"time"

	"gsm-api/internal/config"
	"gsm-api/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：Enable=false 时返回 nil；Ping 失败仅记录日志，缓存层会自行降级
func OpenRedis(ctx context.Context, rc config.Redis) *redis.Client {
	if !rc.Enable {
		logger.L().Info("redis_disabled")
		return nil
	}
	c := redis.NewClient(&redis.Options{
		Addr:         rc.Addr(),
		Password:     rc.Pass,
		DB:           rc.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		logger.L().Error("redis_ping_error", "addr", rc.Addr(), "err", err)
	} else {
		logger.L().Info("redis_ping_ok", "addr", rc.Addr(), "db", rc.DB)
	}
	return c
}
