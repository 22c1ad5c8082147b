package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const summaryKeyPrefix = "summary:"

// RedisStore Redis 摘要存储
// 值为 JSON 序列化的 Record，TTL 到期自然淘汰，算法升级无需清库
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func summaryKey(tripID string) string {
	return summaryKeyPrefix + tripID
}

func (s *RedisStore) Get(ctx context.Context, tripID string) (*Record, error) {
	data, err := s.client.Get(ctx, summaryKey(tripID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cached summary: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cached summary: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Set(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	if err := s.client.Set(ctx, summaryKey(rec.TripID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, tripID string) error {
	if err := s.client.Del(ctx, summaryKey(tripID)).Err(); err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}
	return nil
}
