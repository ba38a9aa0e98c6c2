package handler

import (
	"time"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

// --- Request types ---

type coordinatesRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type createDeliveryRequest struct {
	ClientID    string             `json:"client_id"   validate:"required"`
	CourierID   string             `json:"courier_id"`
	Pickup      coordinatesRequest `json:"pickup"      validate:"required"`
	Destination coordinatesRequest `json:"destination" validate:"required"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type positionRequest struct {
	Lat        float64   `json:"lat"         validate:"gte=-90,lte=90"`
	Lng        float64   `json:"lng"         validate:"gte=-180,lte=180"`
	AccuracyM  float64   `json:"accuracy_m"  validate:"gte=0"`
	SpeedKmh   float64   `json:"speed_kmh"   validate:"gte=0"`
	HeadingDeg float64   `json:"heading_deg" validate:"gte=0,lt=360"`
	CapturedAt time.Time `json:"captured_at" validate:"required"`
}

type batchPositionItem struct {
	DeliveryID string    `json:"delivery_id" validate:"required"`
	Lat        float64   `json:"lat"         validate:"gte=-90,lte=90"`
	Lng        float64   `json:"lng"         validate:"gte=-180,lte=180"`
	AccuracyM  float64   `json:"accuracy_m"  validate:"gte=0"`
	SpeedKmh   float64   `json:"speed_kmh"   validate:"gte=0"`
	HeadingDeg float64   `json:"heading_deg" validate:"gte=0,lt=360"`
	CapturedAt time.Time `json:"captured_at" validate:"required"`
}

type batchPositionRequest struct {
	Reports []batchPositionItem `json:"reports" validate:"required,min=1,max=500,dive"`
}

// --- Response types ---
//
// Response-only types owned by the transport layer. These are intentionally
// separate from ports/domain types so the JSON contract is not coupled to
// internal service changes.

type coordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type positionResponse struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m,omitempty"`
	SpeedKmh   float64   `json:"speed_kmh,omitempty"`
	HeadingDeg float64   `json:"heading_deg,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	ReceivedAt time.Time `json:"received_at"`
}

type etaResponse struct {
	EstimatedArrival time.Time `json:"estimated_arrival"`
	RemainingMeters  float64   `json:"remaining_meters"`
	Confidence       int       `json:"confidence"`
	ComputedAt       time.Time `json:"computed_at"`
}

type deliveryLinks struct {
	Self      string `json:"self"`
	Positions string `json:"positions"`
	Stream    string `json:"stream"`
}

type deliveryResponse struct {
	ID              string              `json:"id"`
	ClientID        string              `json:"client_id"`
	CourierID       string              `json:"courier_id,omitempty"`
	Pickup          coordinatesResponse `json:"pickup"`
	Destination     coordinatesResponse `json:"destination"`
	Status          string              `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	StatusUpdatedAt time.Time           `json:"status_updated_at"`
	LastSeq         uint64              `json:"last_seq"`
	LatestPosition  *positionResponse   `json:"latest_position,omitempty"`
	ETA             *etaResponse        `json:"eta,omitempty"`
	Links           deliveryLinks       `json:"_links"`
}

type positionAckResponse struct {
	Latest     bool      `json:"latest"`
	ReceivedAt time.Time `json:"received_at"`
}

type batchAckResponse struct {
	Accepted int `json:"accepted"`
}

type positionHistoryResponse struct {
	DeliveryID string             `json:"delivery_id"`
	Positions  []positionResponse `json:"positions"`
}

func toDeliveryResponse(s *ports.DeliverySnapshot) deliveryResponse {
	resp := deliveryResponse{
		ID:              s.ID,
		ClientID:        s.ClientID,
		CourierID:       s.CourierID,
		Pickup:          coordinatesResponse{Lat: s.Pickup.Lat, Lng: s.Pickup.Lng},
		Destination:     coordinatesResponse{Lat: s.Destination.Lat, Lng: s.Destination.Lng},
		Status:          string(s.Status),
		CreatedAt:       s.CreatedAt,
		StatusUpdatedAt: s.StatusUpdatedAt,
		LastSeq:         s.LastSeq,
		Links: deliveryLinks{
			Self:      "/v1/deliveries/" + s.ID,
			Positions: "/v1/deliveries/" + s.ID + "/positions",
			Stream:    "/v1/deliveries/" + s.ID + "/stream",
		},
	}
	if s.LatestPosition != nil {
		p := toPositionResponse(*s.LatestPosition)
		resp.LatestPosition = &p
	}
	if s.ETA != nil {
		resp.ETA = &etaResponse{
			EstimatedArrival: s.ETA.EstimatedArrival,
			RemainingMeters:  s.ETA.RemainingMeters,
			Confidence:       s.ETA.Confidence,
			ComputedAt:       s.ETA.ComputedAt,
		}
	}
	return resp
}

func toPositionResponse(p domain.PositionReport) positionResponse {
	return positionResponse{
		Lat:        p.Lat,
		Lng:        p.Lng,
		AccuracyM:  p.AccuracyM,
		SpeedKmh:   p.SpeedKmh,
		HeadingDeg: p.HeadingDeg,
		CapturedAt: p.CapturedAt,
		ReceivedAt: p.ReceivedAt,
	}
}
