package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

// DeliveryHandler handles HTTP requests for delivery lifecycle operations.
type DeliveryHandler struct {
	service ports.TrackingService
}

func NewDeliveryHandler(service ports.TrackingService) *DeliveryHandler {
	return &DeliveryHandler{service: service}
}

// Create handles POST /v1/deliveries.
func (h *DeliveryHandler) Create(c echo.Context) error {
	var req createDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	role, userID, err := ctxClaims(c)
	if err != nil {
		return err
	}
	// Clients create deliveries for themselves; the token identity wins over
	// whatever the payload claims.
	if role == domain.RoleClient {
		req.ClientID = userID
	}

	snap, err := h.service.CreateDelivery(c.Request().Context(), ports.CreateDeliveryInput{
		ClientID:    req.ClientID,
		CourierID:   req.CourierID,
		Pickup:      ports.CoordinatesInput{Lat: req.Pickup.Lat, Lng: req.Pickup.Lng},
		Destination: ports.CoordinatesInput{Lat: req.Destination.Lat, Lng: req.Destination.Lng},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toDeliveryResponse(snap))
}

// Get handles GET /v1/deliveries/:id — full snapshot including the latest
// position, ETA, and the last published sequence number.
func (h *DeliveryHandler) Get(c echo.Context) error {
	snap, err := h.service.Snapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDeliveryResponse(snap))
}

// Transition handles POST /v1/deliveries/:id/status.
func (h *DeliveryHandler) Transition(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	role, _, err := ctxClaims(c)
	if err != nil {
		return err
	}

	snap, err := h.service.TransitionStatus(c.Request().Context(), ports.TransitionInput{
		DeliveryID: c.Param("id"),
		Target:     req.Status,
		Actor:      role,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toDeliveryResponse(snap))
}

// History handles GET /v1/deliveries/:id/positions. Positions are returned in
// capture order, oldest first. An optional limit query parameter caps the
// number of entries.
func (h *DeliveryHandler) History(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	reports, err := h.service.History(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return err
	}

	positions := make([]positionResponse, 0, len(reports))
	for _, r := range reports {
		positions = append(positions, toPositionResponse(r))
	}

	return c.JSON(http.StatusOK, positionHistoryResponse{
		DeliveryID: c.Param("id"),
		Positions:  positions,
	})
}
