package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mfetl/internal/enrichment/models"
)

const keyPrefix = "mfetl:enrich:"

// record wraps the fund so a cached miss (null) differs from an absent key.
type record struct {
	Fund *models.EnrichedFund `json:"fund"`
}

// Redis shares enrichment outcomes between instances. Expiry is left to
// Redis.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an established client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the cached outcome for key.
func (r *Redis) Get(ctx context.Context, key string) (*models.EnrichedFund, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec.Fund, true, nil
}

// Set stores fund (possibly nil) under key with SET EX.
func (r *Redis) Set(ctx context.Context, key string, fund *models.EnrichedFund, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(record{Fund: fund})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}
