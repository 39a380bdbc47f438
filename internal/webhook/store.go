package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryStore は処理済みの配信IDを記録する。
// ユーザーへの書き込みは冪等なため、正しさはこのストアに依存しない。
type DeliveryStore interface {
	// Seen は配信IDが処理済みかを返す。
	Seen(ctx context.Context, deliveryID string) (bool, error)
	// MarkProcessed は配信IDを処理済みとして記録する。
	MarkProcessed(ctx context.Context, deliveryID string) error
}

// NopDeliveryStore は何も記録しないDeliveryStore。Redis未設定時に使用する。
type NopDeliveryStore struct{}

// Seen は常にfalseを返す。
func (NopDeliveryStore) Seen(context.Context, string) (bool, error) { return false, nil }

// MarkProcessed は何もしない。
func (NopDeliveryStore) MarkProcessed(context.Context, string) error { return nil }

const deliveryKeyPrefix = "subtodo:webhook:delivery:"

// RedisDeliveryStore はRedisに配信IDをTTL付きで記録する。
type RedisDeliveryStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisDeliveryStore はRedisDeliveryStoreを生成する。
func NewRedisDeliveryStore(rdb redis.Cmdable, ttl time.Duration) *RedisDeliveryStore {
	return &RedisDeliveryStore{rdb: rdb, ttl: ttl}
}

// NewRedisClient はREDIS_URLからRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Seen は配信IDが処理済みかを返す。
func (s *RedisDeliveryStore) Seen(ctx context.Context, deliveryID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, deliveryKeyPrefix+deliveryID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed は配信IDを処理済みとして記録する。
func (s *RedisDeliveryStore) MarkProcessed(ctx context.Context, deliveryID string) error {
	if err := s.rdb.Set(ctx, deliveryKeyPrefix+deliveryID, time.Now().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ DeliveryStore = NopDeliveryStore{}
	_ DeliveryStore = (*RedisDeliveryStore)(nil)
)
