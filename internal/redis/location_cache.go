package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CachedSample is the most recent GPS fix per (courier, order) pair. Older
// samples are superseded, never kept.
type CachedSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type LocationCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewLocationCache(client *goredis.Client, ttlSeconds int) *LocationCache {
	return &LocationCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (c *LocationCache) Set(ctx context.Context, courierID, orderID string, sample CachedSample) error {
	bytes, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal location sample: %w", err)
	}
	return c.client.Set(ctx, locationKey(courierID, orderID), bytes, c.ttl).Err()
}

func (c *LocationCache) Get(ctx context.Context, courierID, orderID string) (*CachedSample, error) {
	bytes, err := c.client.Get(ctx, locationKey(courierID, orderID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location sample: %w", err)
	}

	var sample CachedSample
	if err := json.Unmarshal(bytes, &sample); err != nil {
		return nil, fmt.Errorf("unmarshal location sample: %w", err)
	}
	return &sample, nil
}

// Drop discards the cached fix once an order leaves the trackable states.
func (c *LocationCache) Drop(ctx context.Context, courierID, orderID string) error {
	return c.client.Del(ctx, locationKey(courierID, orderID)).Err()
}

func locationKey(courierID, orderID string) string {
	return fmt.Sprintf("courier:location:%s:%s", courierID, orderID)
}
