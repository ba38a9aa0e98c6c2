package ports

import (
	"context"
	"time"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
)

// DeliveryRepository is the durability layer for deliveries. The in-memory
// tracking core is the source of truth for the hot path; the repository keeps
// state beyond the retained window and across restarts.
type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	FindByID(ctx context.Context, id string) (*domain.Delivery, error)
	// UpdateStatus atomically sets the delivery's status and appends a
	// history entry.
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus, ts time.Time, actor string) error
}

// PositionRepository persists position reports for history replay.
type PositionRepository interface {
	Append(ctx context.Context, report *domain.PositionReport) error
	// Recent returns up to limit reports from the retention window, oldest
	// first.
	Recent(ctx context.Context, deliveryID string, limit int) ([]domain.PositionReport, error)
}

// LatestPositionCache is a fast-path store for the latest-known position per
// delivery, consulted when a delivery is hydrated back into memory. A miss is
// (nil, nil).
type LatestPositionCache interface {
	Set(ctx context.Context, report *domain.PositionReport) error
	Get(ctx context.Context, deliveryID string) (*domain.PositionReport, error)
}

// EventSink receives every published tracking event for out-of-process
// consumers (analytics, audit). Sink failures are logged, never surfaced to
// publishers.
type EventSink interface {
	Publish(ctx context.Context, ev domain.TrackingEvent) error
	Close() error
}
