package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
	"github.com/ecodeli/delivery-tracking/internal/stream"
)

type stubTrackingService struct {
	createFn     func(ctx context.Context, input ports.CreateDeliveryInput) (*ports.DeliverySnapshot, error)
	transitionFn func(ctx context.Context, input ports.TransitionInput) (*ports.DeliverySnapshot, error)
	reportFn     func(ctx context.Context, input ports.PositionInput) (*ports.PositionAck, error)
	snapshotFn   func(ctx context.Context, deliveryID string) (*ports.DeliverySnapshot, error)
	historyFn    func(ctx context.Context, deliveryID string, limit int) ([]domain.PositionReport, error)
	subscribeFn  func(ctx context.Context, deliveryID string, since *uint64) (*stream.Subscription, error)
}

func (s *stubTrackingService) CreateDelivery(ctx context.Context, input ports.CreateDeliveryInput) (*ports.DeliverySnapshot, error) {
	return s.createFn(ctx, input)
}

func (s *stubTrackingService) TransitionStatus(ctx context.Context, input ports.TransitionInput) (*ports.DeliverySnapshot, error) {
	return s.transitionFn(ctx, input)
}

func (s *stubTrackingService) ReportPosition(ctx context.Context, input ports.PositionInput) (*ports.PositionAck, error) {
	return s.reportFn(ctx, input)
}

func (s *stubTrackingService) Snapshot(ctx context.Context, deliveryID string) (*ports.DeliverySnapshot, error) {
	return s.snapshotFn(ctx, deliveryID)
}

func (s *stubTrackingService) History(ctx context.Context, deliveryID string, limit int) ([]domain.PositionReport, error) {
	return s.historyFn(ctx, deliveryID, limit)
}

func (s *stubTrackingService) Subscribe(ctx context.Context, deliveryID string, since *uint64) (*stream.Subscription, error) {
	return s.subscribeFn(ctx, deliveryID, since)
}

type stubEnqueuer struct {
	batches [][]ports.PositionInput
}

func (s *stubEnqueuer) EnqueueBatch(inputs []ports.PositionInput) {
	s.batches = append(s.batches, inputs)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func sampleSnapshot(id string) *ports.DeliverySnapshot {
	return &ports.DeliverySnapshot{
		ID:              id,
		ClientID:        "client_42",
		Status:          domain.StatusCreated,
		Pickup:          domain.Coordinates{Lat: 48.8566, Lng: 2.3522},
		Destination:     domain.Coordinates{Lat: 45.7578, Lng: 4.8320},
		CreatedAt:       time.Now().UTC(),
		StatusUpdatedAt: time.Now().UTC(),
		LastSeq:         1,
	}
}

func TestDeliveryHandler_Create(t *testing.T) {
	e := newEcho()

	var got ports.CreateDeliveryInput
	svc := &stubTrackingService{
		createFn: func(_ context.Context, input ports.CreateDeliveryInput) (*ports.DeliverySnapshot, error) {
			got = input
			return sampleSnapshot("d1"), nil
		},
	}
	h := NewDeliveryHandler(svc)

	body := `{"client_id":"spoofed","pickup":{"lat":48.8566,"lng":2.3522},"destination":{"lat":45.7578,"lng":4.832}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/deliveries", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("role", domain.RoleClient)
	c.Set("user_id", "client_42")

	if err := h.Create(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got.ClientID != "client_42" {
		t.Fatalf("client identity must come from the token, got %q", got.ClientID)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != string(domain.StatusCreated) {
		t.Fatalf("expected status %s, got %v", domain.StatusCreated, resp["status"])
	}
	if resp["last_seq"] != float64(1) {
		t.Fatalf("expected last_seq 1, got %v", resp["last_seq"])
	}
}

func TestDeliveryHandler_Create_InvalidLatitude(t *testing.T) {
	e := newEcho()
	h := NewDeliveryHandler(&stubTrackingService{})

	body := `{"client_id":"c1","pickup":{"lat":95,"lng":0},"destination":{"lat":0,"lng":0}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/deliveries", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("role", domain.RoleAdmin)

	err := h.Create(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range latitude, got %v", err)
	}
}

func TestDeliveryHandler_Transition(t *testing.T) {
	e := newEcho()

	var got ports.TransitionInput
	svc := &stubTrackingService{
		transitionFn: func(_ context.Context, input ports.TransitionInput) (*ports.DeliverySnapshot, error) {
			got = input
			snap := sampleSnapshot("d1")
			snap.Status = domain.StatusAssigned
			return snap, nil
		},
	}
	h := NewDeliveryHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/deliveries/d1/status", strings.NewReader(`{"status":"ASSIGNED"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")
	c.Set("role", domain.RoleAdmin)

	if err := h.Transition(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.DeliveryID != "d1" || got.Target != "ASSIGNED" {
		t.Fatalf("unexpected transition input: %+v", got)
	}
	if got.Actor != domain.RoleAdmin {
		t.Fatalf("expected actor from token role, got %q", got.Actor)
	}
}

func TestDeliveryHandler_Transition_DomainErrorPropagates(t *testing.T) {
	e := newEcho()
	svc := &stubTrackingService{
		transitionFn: func(_ context.Context, _ ports.TransitionInput) (*ports.DeliverySnapshot, error) {
			return nil, domain.ErrInvalidTransition
		},
	}
	h := NewDeliveryHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/deliveries/d1/status", strings.NewReader(`{"status":"DELIVERED"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")
	c.Set("role", domain.RoleCourier)
	c.Set("user_id", "courier_7")

	err := h.Transition(c)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition to propagate, got %v", err)
	}
}

func TestDeliveryHandler_Get_NotFound(t *testing.T) {
	e := newEcho()
	svc := &stubTrackingService{
		snapshotFn: func(_ context.Context, _ string) (*ports.DeliverySnapshot, error) {
			return nil, domain.ErrDeliveryNotFound
		},
	}
	h := NewDeliveryHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	if err := h.Get(c); !errors.Is(err, domain.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestDeliveryHandler_History_BadLimit(t *testing.T) {
	e := newEcho()
	h := NewDeliveryHandler(&stubTrackingService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/d1/positions?limit=zero", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")

	err := h.History(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestPositionHandler_Report(t *testing.T) {
	e := newEcho()

	now := time.Now().UTC().Truncate(time.Second)
	svc := &stubTrackingService{
		reportFn: func(_ context.Context, input ports.PositionInput) (*ports.PositionAck, error) {
			if input.DeliveryID != "d1" {
				t.Fatalf("expected delivery id from path, got %q", input.DeliveryID)
			}
			return &ports.PositionAck{Latest: true, ReceivedAt: now}, nil
		},
	}
	h := NewPositionHandler(svc, &stubEnqueuer{})

	body := `{"lat":48.85,"lng":2.35,"accuracy_m":10,"captured_at":"` + now.Format(time.RFC3339) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/deliveries/d1/position", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")

	if err := h.Report(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp positionAckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Latest {
		t.Fatalf("expected latest ack")
	}
}

func TestPositionHandler_Batch(t *testing.T) {
	e := newEcho()
	q := &stubEnqueuer{}
	h := NewPositionHandler(&stubTrackingService{}, q)

	now := time.Now().UTC().Format(time.RFC3339)
	body := `{"reports":[` +
		`{"delivery_id":"d1","lat":48.85,"lng":2.35,"captured_at":"` + now + `"},` +
		`{"delivery_id":"d2","lat":48.86,"lng":2.36,"captured_at":"` + now + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/positions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Batch(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(q.batches) != 1 || len(q.batches[0]) != 2 {
		t.Fatalf("expected one batch of two reports, got %+v", q.batches)
	}
	if q.batches[0][1].DeliveryID != "d2" {
		t.Fatalf("batch order not preserved")
	}
}

func TestPositionHandler_Batch_Empty(t *testing.T) {
	e := newEcho()
	h := NewPositionHandler(&stubTrackingService{}, &stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/v1/positions", strings.NewReader(`{"reports":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Batch(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %v", err)
	}
}

func TestStreamHandler_WritesEvents(t *testing.T) {
	e := newEcho()

	hub := stream.NewHub(stream.Options{}, zerolog.Nop())
	hub.Publish(domain.TrackingEvent{
		DeliveryID: "d1",
		Kind:       domain.EventStatusChanged,
		OccurredAt: time.Now().UTC(),
		Status:     &domain.StatusChange{To: domain.StatusAssigned, Actor: "admin"},
	})
	hub.Publish(domain.TrackingEvent{
		DeliveryID: "d1",
		Kind:       domain.EventLocationUpdated,
		OccurredAt: time.Now().UTC(),
		Position:   &domain.PositionReport{DeliveryID: "d1", Lat: 48.85, Lng: 2.35},
	})

	svc := &stubTrackingService{
		subscribeFn: func(_ context.Context, deliveryID string, since *uint64) (*stream.Subscription, error) {
			return hub.Subscribe(deliveryID, since)
		},
	}
	h := NewStreamHandler(svc, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/d1/stream?since=0", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")

	if err := h.Stream(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "id: 1\nevent: status_changed\n") {
		t.Fatalf("first event missing or out of order:\n%s", body)
	}
	if !strings.Contains(body, "id: 2\nevent: location_updated\n") {
		t.Fatalf("second event missing:\n%s", body)
	}
	if strings.Index(body, "id: 1") > strings.Index(body, "id: 2") {
		t.Fatalf("events out of sequence order:\n%s", body)
	}
}

func TestStreamHandler_BadCursor(t *testing.T) {
	e := newEcho()
	h := NewStreamHandler(&stubTrackingService{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/d1/stream?since=abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")

	err := h.Stream(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %v", err)
	}
}

func TestStreamHandler_SnapshotRequired(t *testing.T) {
	e := newEcho()
	svc := &stubTrackingService{
		subscribeFn: func(_ context.Context, _ string, _ *uint64) (*stream.Subscription, error) {
			return nil, domain.ErrSnapshotRequired
		},
	}
	h := NewStreamHandler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/d1/stream?since=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")

	if err := h.Stream(c); !errors.Is(err, domain.ErrSnapshotRequired) {
		t.Fatalf("expected ErrSnapshotRequired, got %v", err)
	}
}

func TestStreamHandler_LastEventIDHeader(t *testing.T) {
	e := newEcho()

	var gotSince *uint64
	svc := &stubTrackingService{
		subscribeFn: func(_ context.Context, _ string, since *uint64) (*stream.Subscription, error) {
			gotSince = since
			return nil, domain.ErrSnapshotRequired
		},
	}
	h := NewStreamHandler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/d1/stream", nil)
	req.Header.Set("Last-Event-ID", "7")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")

	_ = h.Stream(c)
	if gotSince == nil || *gotSince != 7 {
		t.Fatalf("expected resume cursor 7 from Last-Event-ID, got %v", gotSince)
	}
}
