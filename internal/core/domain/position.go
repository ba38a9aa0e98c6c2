package domain

import "time"

// PositionReport is a single GPS sample from a courier device. Immutable once
// created; CapturedAt is the device clock, ReceivedAt the server clock.
type PositionReport struct {
	DeliveryID string    `json:"delivery_id" bson:"delivery_id"`
	Lat        float64   `json:"lat" bson:"lat"`
	Lng        float64   `json:"lng" bson:"lng"`
	AccuracyM  float64   `json:"accuracy_m,omitempty" bson:"accuracy_m,omitempty"`
	SpeedKmh   float64   `json:"speed_kmh,omitempty" bson:"speed_kmh,omitempty"`
	HeadingDeg float64   `json:"heading_deg,omitempty" bson:"heading_deg,omitempty"`
	CapturedAt time.Time `json:"captured_at" bson:"captured_at"`
	ReceivedAt time.Time `json:"received_at" bson:"received_at"`
}

// Coordinates returns the report's position as a Coordinates value.
func (p PositionReport) Coordinates() Coordinates {
	return Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// ETAEstimate is a derived arrival estimate. It is superseded by the next
// computation; only estimates that clear the hysteresis threshold are
// published to subscribers.
type ETAEstimate struct {
	DeliveryID       string    `json:"delivery_id" bson:"delivery_id"`
	EstimatedArrival time.Time `json:"estimated_arrival" bson:"estimated_arrival"`
	RemainingMeters  float64   `json:"remaining_meters" bson:"remaining_meters"`
	Confidence       int       `json:"confidence" bson:"confidence"`
	ComputedAt       time.Time `json:"computed_at" bson:"computed_at"`
}
