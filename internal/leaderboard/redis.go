package leaderboard

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spacedog/spacedog/internal/cache"
)

// RedisBoard keeps the board in a sorted set. Equal scores are ordered by
// member, so each member starts with a fixed-width rank key that sorts older
// entries first; this also lets the same name appear more than once.
type RedisBoard struct {
	rdb    *redis.Client
	key    string
	seqKey string
	size   int64
}

func NewRedisBoard(rdb *redis.Client, size int) *RedisBoard {
	return &RedisBoard{rdb: rdb, key: cache.KeyLeaderboard, seqKey: cache.KeyLeaderboardSeq, size: int64(size)}
}

// SeedIfEmpty writes seed when the sorted set does not exist yet.
func (b *RedisBoard) SeedIfEmpty(ctx context.Context, seed []Entry) error {
	n, err := b.rdb.Exists(ctx, b.key).Result()
	if err != nil {
		return fmt.Errorf("check leaderboard: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, e := range seed {
		if err := b.Add(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *RedisBoard) Add(ctx context.Context, e Entry) error {
	seq, err := b.rdb.Incr(ctx, b.seqKey).Result()
	if err != nil {
		return fmt.Errorf("next leaderboard sequence: %w", err)
	}
	pipe := b.rdb.TxPipeline()
	pipe.ZAdd(ctx, b.key, redis.Z{
		Score:  float64(e.Score),
		Member: member(seq, e.Name),
	})
	// Keep ranks 0..size-1 in descending order.
	pipe.ZRemRangeByRank(ctx, b.key, 0, -b.size-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add leaderboard entry: %w", err)
	}
	return nil
}

func (b *RedisBoard) Top(ctx context.Context) ([]Entry, error) {
	results, err := b.rdb.ZRevRangeWithScores(ctx, b.key, 0, b.size-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	entries := make([]Entry, 0, len(results))
	for _, z := range results {
		m, _ := z.Member.(string)
		entries = append(entries, Entry{Name: memberName(m), Score: int64(z.Score)})
	}
	return entries, nil
}

// member builds "<rank key>:<name>". The rank key shrinks as seq grows, so in
// the descending member order Redis uses for ties, earlier entries come first.
func member(seq int64, name string) string {
	return fmt.Sprintf("%019d:%s", math.MaxInt64-seq, name)
}

func memberName(m string) string {
	_, name, _ := strings.Cut(m, ":")
	return name
}
