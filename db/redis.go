package db

import (
	"PollTally/config"
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	redisKeyPrefix = "PollTally:"
	lockKeyPrefix  = "PollTally:lock:"
	// DefaultLockTTL 锁只覆盖一次读-改-写（GET + SET 两次往返），通知在锁外发送。
	// 持有者崩溃后锁在此时间后自动过期。
	DefaultLockTTL = 500 * time.Millisecond
	lockMaxWait    = 10 * time.Second
)

// 使用Lua脚本来安全释放锁，只删除自己持有的锁
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end`)

// NewRedisClient 根据配置创建连接并做一次连接测试
func NewRedisClient(ctx context.Context, redisConfig config.RedisConf) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.RedisAddr(),
		Password: redisConfig.PassWord,
		DB:       redisConfig.DB,
		PoolSize: redisConfig.PoolSize,
	})

	// 连接测试以确保与 Redis 服务器的通信正常。
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", redisConfig.RedisAddr(), err)
	}
	return client, nil
}

// RedisStorage 基于 redis 的存储后端
type RedisStorage struct {
	client  *redis.Client
	ttl     time.Duration // 键过期时间，0 表示不过期
	lockTTL time.Duration // 单次持锁上限
}

var (
	_ Storage = (*RedisStorage)(nil)
	_ Locker  = (*RedisStorage)(nil)
	_ Pinger  = (*RedisStorage)(nil)
)

// NewRedisStorage lockTTL 为 0 时使用 DefaultLockTTL
func NewRedisStorage(client *redis.Client, ttl, lockTTL time.Duration) *RedisStorage {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &RedisStorage{client: client, ttl: ttl, lockTTL: lockTTL}
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, redisKeyPrefix+key, value, s.ttl).Err()
}

func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Lock redis 分布式锁，循环直到获取锁或超过最大等待时间
func (s *RedisStorage) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	lockVal := fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Int63()) // 标识锁的持有者

	startTime := time.Now()
	for {
		if time.Since(startTime) > lockMaxWait {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, key, lockMaxWait)
		}

		locked, err := s.client.SetNX(ctx, lockKey, lockVal, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if locked {
			return func() {
				// 释放锁不跟随调用方的 ctx，避免取消后锁残留到过期
				if err := releaseLockScript.Run(context.Background(), s.client, []string{lockKey}, lockVal).Err(); err != nil {
					log.WithError(err).WithField("key", key).Warn("failed to release lock")
				}
			}, nil
		}

		// 使用随机间隔来减少锁竞争
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Intn(100)+10) * time.Millisecond):
		}
	}
}

// Clear 删除本项目的所有键
func (s *RedisStorage) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Ping 检查连接
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
