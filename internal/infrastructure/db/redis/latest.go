package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
)

const latestTTL = 24 * time.Hour

// LatestPositionCache stores the latest-known position per delivery in Redis.
// Key format: tracking:latest:<delivery_id>
type LatestPositionCache struct {
	client *redis.Client
}

// NewLatestPositionCache creates a cache wrapping the given Redis client.
func NewLatestPositionCache(client *redis.Client) *LatestPositionCache {
	return &LatestPositionCache{client: client}
}

// Set stores the report as the latest position (expires after latestTTL).
func (c *LatestPositionCache) Set(ctx context.Context, report *domain.PositionReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal latest position: %w", err)
	}
	return c.client.Set(ctx, c.key(report.DeliveryID), data, latestTTL).Err()
}

// Get returns the latest cached position, or (nil, nil) on a miss.
func (c *LatestPositionCache) Get(ctx context.Context, deliveryID string) (*domain.PositionReport, error) {
	data, err := c.client.Get(ctx, c.key(deliveryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest position: %w", err)
	}
	var report domain.PositionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal latest position: %w", err)
	}
	return &report, nil
}

func (c *LatestPositionCache) key(deliveryID string) string {
	return "tracking:latest:" + deliveryID
}
