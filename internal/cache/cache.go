package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

const (
	KeyProfile        = "spacedog:%s"
	KeyLeaderboard    = "spacedog:leaderboard"
	KeyLeaderboardSeq = "spacedog:leaderboard:seq"
)

// KV stores profile values as plain Redis strings under a common prefix.
type KV struct {
	rdb    *redis.Client
	prefix string
}

func NewKV(rdb *redis.Client, namespace string) *KV {
	return &KV{rdb: rdb, prefix: fmt.Sprintf(KeyProfile, namespace) + ":"}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.rdb.Get(ctx, k.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	return k.rdb.Set(ctx, k.prefix+key, value, 0).Err()
}
