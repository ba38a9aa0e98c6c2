package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

const heartbeatInterval = 15 * time.Second

// StreamHandler serves per-delivery event streams over SSE. Each connection
// is one tracking session; events carry their sequence number as the SSE id
// so a reconnecting client can resume with Last-Event-ID.
type StreamHandler struct {
	service ports.TrackingService
	log     zerolog.Logger
}

func NewStreamHandler(service ports.TrackingService, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{service: service, log: log}
}

// Stream handles GET /v1/deliveries/:id/stream.
//
// The resume cursor comes from the since query parameter or, on automatic
// browser reconnects, the Last-Event-ID header. Without either the session
// is live-only. When the cursor has aged out of the retained window the
// client gets a 409 and must re-fetch the snapshot first.
func (h *StreamHandler) Stream(c echo.Context) error {
	deliveryID := c.Param("id")

	since, err := resumeCursor(c)
	if err != nil {
		return err
	}

	sub, err := h.service.Subscribe(c.Request().Context(), deliveryID, since)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-store")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": heartbeat\n\n"); err != nil {
				return nil
			}
			res.Flush()

		case ev, ok := <-sub.C:
			if !ok {
				// The hub dropped this session as a slow consumer. Closing
				// the response forces the client to reconnect and resync.
				h.log.Warn().
					Str("delivery_id", deliveryID).
					Str("subscription_id", sub.ID).
					Msg("session dropped, closing stream")
				return nil
			}

			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error().Err(err).Msg("marshal tracking event")
				continue
			}
			if _, err := fmt.Fprintf(res, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func resumeCursor(c echo.Context) (*uint64, error) {
	raw := c.QueryParam("since")
	if raw == "" {
		raw = c.Request().Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return nil, nil
	}

	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
	}
	return &seq, nil
}
