package offchain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
)

const defaultRedisIndexTTL = 24 * time.Hour

// RedisIndex stores each key as a Redis list of JSON envelopes. Entries expire
// after a TTL so envelopes for blocks the worker never processed do not leak.
type RedisIndex struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisIndex)

// WithKeyPrefix namespaces keys, e.g. per node when sharing one Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisIndex) {
		r.prefix = prefix
	}
}

func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisIndex) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func NewRedisIndex(client redis.UniversalClient, opts ...RedisOption) *RedisIndex {
	r := &RedisIndex{client: client, ttl: defaultRedisIndexTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisIndex) key(key []byte) string {
	return r.prefix + string(key)
}

func (r *RedisIndex) Append(ctx context.Context, key []byte, data models.IndexingData) error {
	b, err := encodeEnvelope(data)
	if err != nil {
		return err
	}
	k := r.key(key)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, b)
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append indexing data: %w", err)
	}
	return nil
}

// Take reads and deletes the list in one MULTI/EXEC.
func (r *RedisIndex) Take(ctx context.Context, key []byte) ([]models.IndexingData, error) {
	k := r.key(key)
	var lrange *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis take indexing data: %w", err)
	}

	raw := lrange.Val()
	out := make([]models.IndexingData, 0, len(raw))
	for _, item := range raw {
		data, err := decodeEnvelope([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// LoadBestBlock returns the last saved finalized block, zero when none was saved.
func (r *RedisIndex) LoadBestBlock(ctx context.Context) (domain.BlockNumber, error) {
	raw, err := r.client.Get(ctx, r.key([]byte(BestBlockKey))).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis load best block: %w", err)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt best block record: %w", err)
	}
	return domain.BlockNumber(n), nil
}

// SaveBestBlock stores block without a TTL.
func (r *RedisIndex) SaveBestBlock(ctx context.Context, block domain.BlockNumber) error {
	if err := r.client.Set(ctx, r.key([]byte(BestBlockKey)), strconv.FormatUint(uint64(block), 10), 0).Err(); err != nil {
		return fmt.Errorf("redis save best block: %w", err)
	}
	return nil
}
