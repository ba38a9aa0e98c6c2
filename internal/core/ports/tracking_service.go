package ports

import (
	"context"
	"time"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/stream"
)

// CreateDeliveryInput carries all data needed to register a new delivery.
type CreateDeliveryInput struct {
	ClientID    string
	CourierID   string // optional; may be assigned later
	Pickup      CoordinatesInput
	Destination CoordinatesInput
}

// CoordinatesInput holds geographic coordinates.
type CoordinatesInput struct {
	Lat float64
	Lng float64
}

// TransitionInput carries an explicit status transition request.
type TransitionInput struct {
	DeliveryID string
	Target     string
	// Actor identifies who requested the transition ("courier", "admin"),
	// recorded in the status history and the emitted event.
	Actor string
}

// PositionInput is one raw position report from a courier device.
type PositionInput struct {
	DeliveryID string
	Lat        float64
	Lng        float64
	AccuracyM  float64
	SpeedKmh   float64
	HeadingDeg float64
	CapturedAt time.Time
}

// PositionAck is returned after a report is accepted.
type PositionAck struct {
	// Latest is false when the report was older than the stored latest
	// position and was kept for history only.
	Latest     bool
	ReceivedAt time.Time
}

// DeliverySnapshot is the full point-in-time view used to (re)synchronise a
// consumer: current status, latest position, latest ETA, and the sequence
// number of the last published event.
type DeliverySnapshot struct {
	ID              string
	ClientID        string
	CourierID       string
	Pickup          domain.Coordinates
	Destination     domain.Coordinates
	Status          domain.DeliveryStatus
	CreatedAt       time.Time
	StatusUpdatedAt time.Time
	LastSeq         uint64
	LatestPosition  *domain.PositionReport
	ETA             *domain.ETAEstimate
}

// TrackingService is the delivery lifecycle and tracking core. All mutating
// operations on one delivery are serialized; operations on different
// deliveries proceed in parallel.
type TrackingService interface {
	CreateDelivery(ctx context.Context, input CreateDeliveryInput) (*DeliverySnapshot, error)
	TransitionStatus(ctx context.Context, input TransitionInput) (*DeliverySnapshot, error)
	ReportPosition(ctx context.Context, input PositionInput) (*PositionAck, error)
	Snapshot(ctx context.Context, deliveryID string) (*DeliverySnapshot, error)
	History(ctx context.Context, deliveryID string, limit int) ([]domain.PositionReport, error)
	// Subscribe attaches a tracking session. A nil since delivers live events
	// only; otherwise retained events after *since are replayed first, or
	// domain.ErrSnapshotRequired is returned when the window has aged out.
	Subscribe(ctx context.Context, deliveryID string, since *uint64) (*stream.Subscription, error)
}
