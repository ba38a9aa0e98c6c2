package domain

import (
	"errors"
	"time"
)

// DeliveryStatus represents the lifecycle state of a delivery.
type DeliveryStatus string

const (
	StatusCreated   DeliveryStatus = "CREATED"
	StatusAssigned  DeliveryStatus = "ASSIGNED"
	StatusPickedUp  DeliveryStatus = "PICKED_UP"
	StatusInTransit DeliveryStatus = "IN_TRANSIT"
	StatusNearby    DeliveryStatus = "NEARBY"
	StatusArrived   DeliveryStatus = "ARRIVED"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
	StatusCancelled DeliveryStatus = "CANCELLED"
)

// validTransitions defines the allowed state machine edges. The two terminal
// failure states are reachable from every non-terminal state.
var validTransitions = map[DeliveryStatus][]DeliveryStatus{
	StatusCreated:   {StatusAssigned, StatusFailed, StatusCancelled},
	StatusAssigned:  {StatusPickedUp, StatusFailed, StatusCancelled},
	StatusPickedUp:  {StatusInTransit, StatusFailed, StatusCancelled},
	StatusInTransit: {StatusNearby, StatusFailed, StatusCancelled},
	StatusNearby:    {StatusArrived, StatusFailed, StatusCancelled},
	StatusArrived:   {StatusDelivered, StatusFailed, StatusCancelled},
}

var ErrInvalidTransition = errors.New("invalid status transition")
var ErrDeliveryNotFound = errors.New("delivery not found")
var ErrDeliveryNotTrackable = errors.New("delivery not trackable")
var ErrInvalidPosition = errors.New("invalid position")
var ErrDuplicateDelivery = errors.New("delivery already exists")

// ErrSnapshotRequired signals that the requested replay sequence has aged out
// of the retained event window; the caller must fetch a fresh snapshot and
// re-subscribe from its sequence.
var ErrSnapshotRequired = errors.New("snapshot required")

// Roles recognised by the API layer.
const (
	RoleClient  = "client"
	RoleCourier = "courier"
	RoleAdmin   = "admin"
)

// ParseStatus converts a raw string to a DeliveryStatus, reporting whether it
// names a known status.
func ParseStatus(s string) (DeliveryStatus, bool) {
	status := DeliveryStatus(s)
	switch status {
	case StatusCreated, StatusAssigned, StatusPickedUp, StatusInTransit,
		StatusNearby, StatusArrived, StatusDelivered, StatusFailed, StatusCancelled:
		return status, true
	}
	return "", false
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Trackable reports whether position reports are meaningful for s: the
// delivery must be assigned to a courier and not yet terminal.
func (s DeliveryStatus) Trackable() bool {
	return s != StatusCreated && !s.IsTerminal()
}

// Coordinates represents a geographic point.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// StatusHistoryEntry records a single status transition on a delivery.
type StatusHistoryEntry struct {
	Status    DeliveryStatus `json:"status" bson:"status"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Actor     string         `json:"actor,omitempty" bson:"actor,omitempty"`
}

// Delivery is the core aggregate root. Its status is mutated only through the
// state machine; deliveries are never deleted, only terminated.
type Delivery struct {
	ID              string               `json:"id" bson:"_id"`
	ClientID        string               `json:"client_id" bson:"client_id"`
	CourierID       string               `json:"courier_id,omitempty" bson:"courier_id,omitempty"`
	Pickup          Coordinates          `json:"pickup" bson:"pickup"`
	Destination     Coordinates          `json:"destination" bson:"destination"`
	Status          DeliveryStatus       `json:"status" bson:"status"`
	CreatedAt       time.Time            `json:"created_at" bson:"created_at"`
	StatusUpdatedAt time.Time            `json:"status_updated_at" bson:"status_updated_at"`
	StatusHistory   []StatusHistoryEntry `json:"status_history" bson:"status_history"`
}
