package authstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pulse:auth:"

// RedisPersister はRedisにスナップショットを保存する。
// 複数のAPIインスタンス間で認証状態を共有するために使う。
type RedisPersister struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisPersister はRedisPersisterを生成する。
// ttlは保存のたびに延長される。
func NewRedisPersister(client redis.UniversalClient, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, ttl: ttl}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Save はスナップショットを保存する。
func (p *RedisPersister) Save(ctx context.Context, id string, snap Snapshot) error {
	b, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, redisKey(id), b, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save auth snapshot: %w", err)
	}
	return nil
}

// Load はスナップショットを取得する。
// 検証に失敗したスナップショットは削除し、nilを返す。
func (p *RedisPersister) Load(ctx context.Context, id string) (*Snapshot, error) {
	b, err := p.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auth snapshot: %w", err)
	}

	snap, err := DecodeSnapshot(b)
	if err != nil {
		slog.Warn("discarding invalid auth snapshot",
			slog.String("error", err.Error()),
		)
		if delErr := p.Delete(ctx, id); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	return snap, nil
}

// Delete はスナップショットを削除する。
func (p *RedisPersister) Delete(ctx context.Context, id string) error {
	if err := p.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete auth snapshot: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Persister = (*RedisPersister)(nil)
