package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

// PositionEnqueuer accepts position reports for asynchronous, per-delivery
// ordered processing. Implemented by the queue dispatcher.
type PositionEnqueuer interface {
	EnqueueBatch(inputs []ports.PositionInput)
}

// PositionHandler handles HTTP requests for courier position reports.
type PositionHandler struct {
	service ports.TrackingService
	queue   PositionEnqueuer
}

func NewPositionHandler(service ports.TrackingService, queue PositionEnqueuer) *PositionHandler {
	return &PositionHandler{service: service, queue: queue}
}

// Report handles POST /v1/deliveries/:id/position. The report is processed
// synchronously and the ack says whether it became the latest known position.
func (h *PositionHandler) Report(c echo.Context) error {
	var req positionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ack, err := h.service.ReportPosition(c.Request().Context(), ports.PositionInput{
		DeliveryID: c.Param("id"),
		Lat:        req.Lat,
		Lng:        req.Lng,
		AccuracyM:  req.AccuracyM,
		SpeedKmh:   req.SpeedKmh,
		HeadingDeg: req.HeadingDeg,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, positionAckResponse{
		Latest:     ack.Latest,
		ReceivedAt: ack.ReceivedAt,
	})
}

// Batch handles POST /v1/positions. Reports are accepted wholesale and
// processed asynchronously; per-delivery ordering is preserved by the
// dispatcher's sharding. Invalid or stale reports inside the batch are
// dropped during processing, not reported back.
func (h *PositionHandler) Batch(c echo.Context) error {
	var req batchPositionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	inputs := make([]ports.PositionInput, 0, len(req.Reports))
	for _, r := range req.Reports {
		inputs = append(inputs, ports.PositionInput{
			DeliveryID: r.DeliveryID,
			Lat:        r.Lat,
			Lng:        r.Lng,
			AccuracyM:  r.AccuracyM,
			SpeedKmh:   r.SpeedKmh,
			HeadingDeg: r.HeadingDeg,
			CapturedAt: r.CapturedAt,
		})
	}
	h.queue.EnqueueBatch(inputs)

	return c.JSON(http.StatusAccepted, batchAckResponse{Accepted: len(inputs)})
}
