package cache

import (
	"context"
	"time"
)

// Cache хранит сериализованные значения с TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func TransactionKey(id string) string {
	return "transaction:" + id
}
