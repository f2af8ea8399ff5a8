// Package export delivers finished detections to downstream consumers:
// Redis, JSON-lines or CSV files, or nowhere.
package export

import (
	"context"

	"github.com/glowmesh/fusion-engine/internal/models"
)

// Publisher delivers one detection to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, d models.Detection) error
	Close() error
}

// NoopPublisher discards detections. Used when no export sink is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.Detection) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
