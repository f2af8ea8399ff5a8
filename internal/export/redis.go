package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/glowmesh/fusion-engine/internal/models"
)

const (
	detectionChannel = "detections"
	detectionList    = "detections:recent"
	detectionListCap = 999
)

// RedisPublisher pushes detections onto a capped Redis list and publishes
// them on a pub/sub channel for live consumers.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to addr and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, d models.Detection) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal detection %s: %w", d.ID, err)
	}

	if err := p.client.LPush(ctx, detectionList, data).Err(); err != nil {
		return fmt.Errorf("push detection %s: %w", d.ID, err)
	}
	p.client.LTrim(ctx, detectionList, 0, detectionListCap)

	if err := p.client.Publish(ctx, detectionChannel, data).Err(); err != nil {
		return fmt.Errorf("publish detection %s: %w", d.ID, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
