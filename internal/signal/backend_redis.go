package signal

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "signal:"

// RedisBackend 以 signal:<id> 为键存放信号 JSON。不设 Redis TTL，过期由窗口判定。
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend 连接 addr 并 Ping。
func NewRedisBackend(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	return b.rdb.Set(ctx, redisPrefix+key, value, 0).Err()
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, redisPrefix+key).Err()
}

// Purge 用 SCAN 分批删除 signal:* 键。
func (b *RedisBackend) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := b.rdb.Scan(ctx, cursor, redisPrefix+"*", 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (b *RedisBackend) Close() error { return b.rdb.Close() }
