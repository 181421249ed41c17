package redisx

import (
	"context"
	"errors"
	"strings"

	"github.com/masterparty/platform/libs/config"
	"github.com/redis/go-redis/v9"
)

// NewClientFromEnv builds a client from REDIS_ADDR, REDIS_PASSWORD and REDIS_DB.
// It returns nil when REDIS_ADDR is unset.
func NewClientFromEnv() *redis.Client {
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil
	}
	redisDB := config.Int("REDIS_DB", 0)
	if redisDB < 0 {
		redisDB = 0
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       redisDB,
	})
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
