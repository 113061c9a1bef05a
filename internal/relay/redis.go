package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 转发的连接参数。
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisPublisher 在 <prefix>:latest 保存最新快照，并向 <prefix>:events 发布每次更新。
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPublisher 创建 Redis Publisher 并检查连通性。
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "walletlink:session"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisPublisher{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// Name 实现 Publisher。
func (p *RedisPublisher) Name() string { return "redis" }

// LatestKey 返回保存最新快照的键。
func (p *RedisPublisher) LatestKey() string { return p.prefix + ":latest" }

// Channel 返回发布更新的频道。
func (p *RedisPublisher) Channel() string { return p.prefix + ":events" }

// Publish 在同一事务中写入最新快照并发布事件。
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("序列化会话快照失败: %w", err)
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.LatestKey(), payload, p.ttl)
		pipe.Publish(ctx, p.Channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 发布会话快照失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
