package data

import (
	"context"

	"github.com/redis/go-redis/v9"

	"localdeal-backend/internal/config"
)

// NewRedis 构建 Redis 客户端
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping 检查 Redis 连通性
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
