package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/richardliu001/bookmarket-service/internal/payment"
)

const balanceKey = "balance:platform"

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, b *payment.Balance, ttl time.Duration) error {
	if r.rdb == nil {
		return ErrCacheDisabled
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, balanceKey, data, ttl).Err()
}

// GetCachedBalance reads Redis. A miss surfaces as redis.Nil.
func (r *Repository) GetCachedBalance(ctx context.Context) (*payment.Balance, error) {
	if r.rdb == nil {
		return nil, ErrCacheDisabled
	}
	data, err := r.rdb.Get(ctx, balanceKey).Bytes()
	if err != nil {
		return nil, err
	}
	var b payment.Balance
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
