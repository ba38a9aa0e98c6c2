package domain

import "time"

// EventKind discriminates the payload of a TrackingEvent.
type EventKind string

const (
	EventStatusChanged   EventKind = "status_changed"
	EventLocationUpdated EventKind = "location_updated"
	EventETAUpdated      EventKind = "eta_updated"
)

// StatusChange is the payload of a status_changed event.
type StatusChange struct {
	From  DeliveryStatus `json:"from,omitempty"`
	To    DeliveryStatus `json:"to"`
	Actor string         `json:"actor,omitempty"`
}

// TrackingEvent is the unit pushed through the per-delivery fan-out channel.
// Seq is a monotonic counter scoped to the delivery; subscribers use it to
// detect gaps and request a replay. Exactly one payload field is set,
// matching Kind.
type TrackingEvent struct {
	DeliveryID string          `json:"delivery_id"`
	Seq        uint64          `json:"seq"`
	Kind       EventKind       `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Status     *StatusChange   `json:"status,omitempty"`
	Position   *PositionReport `json:"position,omitempty"`
	ETA        *ETAEstimate    `json:"eta,omitempty"`
}
