package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the keys written by RedisConnectivity.
const DefaultRedisPrefix = "kektorplan:"

// RedisConnectivity stores importance scores in Redis so several optimizer
// processes can share them. Scores are kept in a hash for lookups and
// mirrored into a sorted set for ranking.
type RedisConnectivity struct {
	client  redis.Cmdable
	hashKey string
	rankKey string
}

// NewRedisConnectivity wraps an existing client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisConnectivity(client redis.Cmdable, prefix string) *RedisConnectivity {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisConnectivity{
		client:  client,
		hashKey: prefix + "importance",
		rankKey: prefix + "importance:rank",
	}
}

// NewRedisConnectivityFromURL dials url (e.g. "redis://localhost:6379/0") and
// checks the connection.
func NewRedisConnectivityFromURL(ctx context.Context, url, prefix string) (*RedisConnectivity, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisConnectivity(client, prefix), client, nil
}

func (r *RedisConnectivity) Get(ctx context.Context, id string) (float64, bool, error) {
	v, err := r.client.HGet(ctx, r.hashKey, id).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read importance for %q: %w", id, err)
	}
	return v, true, nil
}

func (r *RedisConnectivity) Set(ctx context.Context, id string, score float64) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.hashKey, id, score)
		p.ZAdd(ctx, r.rankKey, redis.Z{Score: score, Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store importance for %q: %w", id, err)
	}
	return nil
}

// Top ranks like MemoryConnectivity: score descending, then ID ascending.
// Redis orders equal scores by member descending, so when the n-th entry
// shares its score with members past the cutoff, every member at that score
// is fetched before trimming.
func (r *RedisConnectivity) Top(ctx context.Context, n int) ([]EntityScore, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := r.client.ZRevRangeWithScores(ctx, r.rankKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to rank importance: %w", err)
	}
	if len(zs) == n {
		boundary := strconv.FormatFloat(zs[n-1].Score, 'g', -1, 64)
		zs, err = r.client.ZRevRangeByScoreWithScores(ctx, r.rankKey, &redis.ZRangeBy{
			Min: boundary,
			Max: "+inf",
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to rank importance: %w", err)
		}
	}
	out := make([]EntityScore, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			id = fmt.Sprint(z.Member)
		}
		out = append(out, EntityScore{ID: id, Score: z.Score})
	}
	sort.Slice(out, func(i, j int) bool { return rankLess(out[i], out[j]) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *RedisConnectivity) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.hashKey, r.rankKey).Err(); err != nil {
		return fmt.Errorf("failed to clear importance: %w", err)
	}
	return nil
}
