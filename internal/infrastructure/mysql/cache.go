package mysql

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	blockTimeKeyPrefix = "packscan:blocktime:"
	defaultCacheTTL    = 24 * time.Hour
)

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// BlockTimeCache keeps block timestamps in redis. Finalised history does not
// change, so entries only expire to bound memory.
type BlockTimeCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewBlockTimeCache(cfg CacheConfig) (*BlockTimeCache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newBlockTimeCache(client, cfg.TTL), nil
}

func newBlockTimeCache(client redis.Cmdable, ttl time.Duration) *BlockTimeCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &BlockTimeCache{client: client, ttl: ttl}
}

func (c *BlockTimeCache) Close() error {
	if closer, ok := c.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *BlockTimeCache) GetBlockTimes(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	keys := make([]string, len(numbers))
	for i, n := range numbers {
		keys[i] = blockTimeKey(n)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return out, err
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		ts, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		out[numbers[i]] = ts
	}
	return out, nil
}

func (c *BlockTimeCache) PutBlockTimes(ctx context.Context, times map[uint64]uint64) error {
	if len(times) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for number, ts := range times {
			pipe.Set(ctx, blockTimeKey(number), strconv.FormatUint(ts, 10), c.ttl)
		}
		return nil
	})
	return err
}

func blockTimeKey(number uint64) string {
	return blockTimeKeyPrefix + strconv.FormatUint(number, 10)
}
