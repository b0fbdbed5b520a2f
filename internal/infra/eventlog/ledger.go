package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// 処理済みWebhookイベントの記録。
// 再送をDBに触る前に弾くためのもので、正しさは注文行のチェックが担う。
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client, ttl: defaultTTL}
}

func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	err := l.client.Get(ctx, key(eventID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return true, nil
}

func (l *RedisLedger) Mark(ctx context.Context, eventID string) error {
	if err := l.client.Set(ctx, key(eventID), "1", l.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func key(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// Redis未設定のとき
type NopLedger struct{}

func (NopLedger) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopLedger) Mark(context.Context, string) error         { return nil }
