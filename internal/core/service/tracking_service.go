package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecodeli/delivery-tracking/internal/api/metrics"
	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
	"github.com/ecodeli/delivery-tracking/internal/stream"
	"github.com/ecodeli/delivery-tracking/pkg/geo"
)

// actorSystem marks transitions triggered internally by the position/ETA path.
const actorSystem = "system"

// Config tunes the tracking core.
type Config struct {
	// NearRadiusM auto-transitions IN_TRANSIT deliveries to NEARBY.
	NearRadiusM float64
	// ArrivedRadiusM auto-transitions NEARBY deliveries to ARRIVED.
	ArrivedRadiusM float64
	// MaxClockSkew is how far in the future a capture timestamp may be,
	// relative to receipt, before the report is rejected.
	MaxClockSkew time.Duration
	// HistoryLimit bounds the in-memory recent window of position reports.
	HistoryLimit int

	ETA ETAConfig
}

func (c Config) withDefaults() Config {
	if c.NearRadiusM <= 0 {
		c.NearRadiusM = 500
	}
	if c.ArrivedRadiusM <= 0 {
		c.ArrivedRadiusM = 50
	}
	if c.MaxClockSkew <= 0 {
		c.MaxClockSkew = 5 * time.Minute
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return c
}

// deliveryState is the per-delivery owned record: the only shared mutable
// state in the core. Its mutex serializes every mutating operation on the
// delivery; consumers only see snapshots or pushed events.
type deliveryState struct {
	mu           sync.Mutex
	delivery     domain.Delivery
	latest       *domain.PositionReport
	history      []domain.PositionReport // capture order, bounded
	currentETA   *domain.ETAEstimate     // newest computed estimate
	publishedETA *domain.ETAEstimate     // last estimate emitted to subscribers
}

// TrackingService owns the delivery lifecycle state machine and the real-time
// tracking pipeline. It implements ports.TrackingService.
type TrackingService struct {
	cfg       Config
	repo      ports.DeliveryRepository
	positions ports.PositionRepository
	cache     ports.LatestPositionCache
	sink      ports.EventSink
	hub       *stream.Hub
	estimator *etaEstimator
	log       zerolog.Logger

	mu     sync.RWMutex
	states map[string]*deliveryState
}

// NewTrackingService wires the tracking core. cache and sink may be nil.
func NewTrackingService(
	cfg Config,
	repo ports.DeliveryRepository,
	positions ports.PositionRepository,
	cache ports.LatestPositionCache,
	sink ports.EventSink,
	hub *stream.Hub,
	log zerolog.Logger,
) *TrackingService {
	cfg = cfg.withDefaults()
	return &TrackingService{
		cfg:       cfg,
		repo:      repo,
		positions: positions,
		cache:     cache,
		sink:      sink,
		hub:       hub,
		estimator: newETAEstimator(cfg.ETA),
		log:       log,
		states:    make(map[string]*deliveryState),
	}
}

// CreateDelivery registers a new delivery in CREATED status and publishes the
// first event of its stream.
func (s *TrackingService) CreateDelivery(ctx context.Context, input ports.CreateDeliveryInput) (*ports.DeliverySnapshot, error) {
	if err := validateCoordinates(input.Pickup.Lat, input.Pickup.Lng); err != nil {
		return nil, err
	}
	if err := validateCoordinates(input.Destination.Lat, input.Destination.Lng); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	delivery := domain.Delivery{
		ID:              uuid.NewString(),
		ClientID:        input.ClientID,
		CourierID:       input.CourierID,
		Pickup:          domain.Coordinates{Lat: input.Pickup.Lat, Lng: input.Pickup.Lng},
		Destination:     domain.Coordinates{Lat: input.Destination.Lat, Lng: input.Destination.Lng},
		Status:          domain.StatusCreated,
		CreatedAt:       now,
		StatusUpdatedAt: now,
		StatusHistory:   []domain.StatusHistoryEntry{{Status: domain.StatusCreated, Timestamp: now}},
	}

	if err := s.repo.Create(ctx, &delivery); err != nil {
		s.log.Error().Err(err).Str("client_id", input.ClientID).Msg("failed to create delivery")
		return nil, err
	}

	st := &deliveryState{delivery: delivery}
	s.mu.Lock()
	s.states[delivery.ID] = st
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	s.publish(ctx, domain.TrackingEvent{
		DeliveryID: delivery.ID,
		Kind:       domain.EventStatusChanged,
		OccurredAt: now,
		Status:     &domain.StatusChange{To: domain.StatusCreated},
	})

	s.log.Info().Str("delivery_id", delivery.ID).Str("client_id", input.ClientID).Msg("delivery created")
	return s.snapshotLocked(st), nil
}

// TransitionStatus advances the delivery through the state machine.
// Re-entering the terminal state the delivery already occupies is an
// idempotent no-op; every other illegal edge is ErrInvalidTransition.
func (s *TrackingService) TransitionStatus(ctx context.Context, input ports.TransitionInput) (*ports.DeliverySnapshot, error) {
	target, ok := domain.ParseStatus(input.Target)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, input.Target)
	}

	st, err := s.state(ctx, input.DeliveryID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	current := st.delivery.Status
	if current.IsTerminal() && target == current {
		// Duplicate terminal request (retried call, double tap): no-op success.
		return s.snapshotLocked(st), nil
	}
	if !current.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w (from %s to %s)", domain.ErrInvalidTransition, current, target)
	}

	if err := s.applyTransitionLocked(ctx, st, target, input.Actor, false); err != nil {
		return nil, err
	}
	return s.snapshotLocked(st), nil
}

// ReportPosition ingests one GPS sample: validates it, updates the latest
// pointer and history window, recomputes the ETA, emits events, and applies
// proximity auto-transitions.
func (s *TrackingService) ReportPosition(ctx context.Context, input ports.PositionInput) (*ports.PositionAck, error) {
	receivedAt := time.Now().UTC()

	if err := validateCoordinates(input.Lat, input.Lng); err != nil {
		metrics.PositionsIngestedTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if input.CapturedAt.IsZero() {
		metrics.PositionsIngestedTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: capture timestamp required", domain.ErrInvalidPosition)
	}
	if input.CapturedAt.After(receivedAt.Add(s.cfg.MaxClockSkew)) {
		metrics.PositionsIngestedTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: capture timestamp %s ahead of receipt", domain.ErrInvalidPosition,
			input.CapturedAt.Sub(receivedAt).Round(time.Second))
	}

	st, err := s.state(ctx, input.DeliveryID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.delivery.Status.Trackable() {
		metrics.PositionsIngestedTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: status %s", domain.ErrDeliveryNotTrackable, st.delivery.Status)
	}

	report := domain.PositionReport{
		DeliveryID: input.DeliveryID,
		Lat:        input.Lat,
		Lng:        input.Lng,
		AccuracyM:  input.AccuracyM,
		SpeedKmh:   input.SpeedKmh,
		HeadingDeg: input.HeadingDeg,
		CapturedAt: input.CapturedAt.UTC(),
		ReceivedAt: receivedAt,
	}

	// Last-write-wins is by capture time, not arrival time.
	isLatest := st.latest == nil || report.CapturedAt.After(st.latest.CapturedAt)

	s.appendHistoryLocked(st, report)
	if err := s.positions.Append(ctx, &report); err != nil {
		s.log.Warn().Err(err).Str("delivery_id", report.DeliveryID).Msg("failed to persist position report")
	}

	if !isLatest {
		// Kept for history; the latest pointer and the ETA are untouched.
		metrics.PositionsIngestedTotal.WithLabelValues("stale").Inc()
		return &ports.PositionAck{Latest: false, ReceivedAt: receivedAt}, nil
	}

	st.latest = &report
	metrics.PositionsIngestedTotal.WithLabelValues("accepted").Inc()
	if s.cache != nil {
		if err := s.cache.Set(ctx, &report); err != nil {
			s.log.Warn().Err(err).Str("delivery_id", report.DeliveryID).Msg("failed to cache latest position")
		}
	}

	s.publish(ctx, domain.TrackingEvent{
		DeliveryID: report.DeliveryID,
		Kind:       domain.EventLocationUpdated,
		OccurredAt: receivedAt,
		Position:   &report,
	})

	distance := geo.Haversine(report.Lat, report.Lng, st.delivery.Destination.Lat, st.delivery.Destination.Lng)
	s.autoTransitionLocked(ctx, st, distance)

	eta := s.estimator.Estimate(st.history, st.delivery.Destination, receivedAt)
	st.currentETA = &eta
	if s.estimator.shouldPublish(st.publishedETA, eta) {
		st.publishedETA = &eta
		s.publish(ctx, domain.TrackingEvent{
			DeliveryID: report.DeliveryID,
			Kind:       domain.EventETAUpdated,
			OccurredAt: receivedAt,
			ETA:        &eta,
		})
	}

	return &ports.PositionAck{Latest: true, ReceivedAt: receivedAt}, nil
}

// Snapshot returns the full resynchronisation view of a delivery.
func (s *TrackingService) Snapshot(ctx context.Context, deliveryID string) (*ports.DeliverySnapshot, error) {
	st, err := s.state(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.snapshotLocked(st), nil
}

// History returns the recent position reports for a delivery, oldest first.
func (s *TrackingService) History(ctx context.Context, deliveryID string, limit int) ([]domain.PositionReport, error) {
	st, err := s.state(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	history := st.history
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]domain.PositionReport, len(history))
	copy(out, history)
	return out, nil
}

// Subscribe attaches a tracking session to the delivery's event stream.
func (s *TrackingService) Subscribe(ctx context.Context, deliveryID string, since *uint64) (*stream.Subscription, error) {
	if _, err := s.state(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(deliveryID, since)
}

// --- internals ---

// state returns the resident record for a delivery, hydrating it from the
// repositories on first access.
func (s *TrackingService) state(ctx context.Context, deliveryID string) (*deliveryState, error) {
	s.mu.RLock()
	st, ok := s.states[deliveryID]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	delivery, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	st = &deliveryState{delivery: *delivery}
	if history, err := s.positions.Recent(ctx, deliveryID, s.cfg.HistoryLimit); err != nil {
		s.log.Warn().Err(err).Str("delivery_id", deliveryID).Msg("failed to load position history")
	} else if len(history) > 0 {
		st.history = history
		last := history[len(history)-1]
		st.latest = &last
	}
	if st.latest == nil && s.cache != nil {
		if cached, err := s.cache.Get(ctx, deliveryID); err != nil {
			s.log.Warn().Err(err).Str("delivery_id", deliveryID).Msg("latest position cache read failed")
		} else if cached != nil {
			st.latest = cached
			st.history = append(st.history, *cached)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.states[deliveryID]; ok {
		return existing, nil
	}
	s.states[deliveryID] = st
	return st, nil
}

// applyTransitionLocked persists and publishes a status change. For
// auto-transitions repository failures are non-fatal: the in-memory machine
// remains authoritative and durability catches up on the next transition.
func (s *TrackingService) applyTransitionLocked(ctx context.Context, st *deliveryState, target domain.DeliveryStatus, actor string, auto bool) error {
	now := time.Now().UTC()
	from := st.delivery.Status

	if err := s.repo.UpdateStatus(ctx, st.delivery.ID, target, now, actor); err != nil {
		if !auto {
			s.log.Error().Err(err).Str("delivery_id", st.delivery.ID).Msg("failed to persist status transition")
			return err
		}
		s.log.Warn().Err(err).Str("delivery_id", st.delivery.ID).Msg("failed to persist auto-transition")
	}

	st.delivery.Status = target
	st.delivery.StatusUpdatedAt = now
	st.delivery.StatusHistory = append(st.delivery.StatusHistory, domain.StatusHistoryEntry{
		Status:    target,
		Timestamp: now,
		Actor:     actor,
	})

	s.publish(ctx, domain.TrackingEvent{
		DeliveryID: st.delivery.ID,
		Kind:       domain.EventStatusChanged,
		OccurredAt: now,
		Status:     &domain.StatusChange{From: from, To: target, Actor: actor},
	})
	metrics.StatusTransitionsTotal.WithLabelValues(string(target), actor).Inc()

	s.log.Info().
		Str("delivery_id", st.delivery.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Str("actor", actor).
		Msg("status transition")
	return nil
}

// autoTransitionLocked applies the proximity transitions for the given
// distance to destination. Transitions that would be illegal (for example a
// position arriving after an admin cancelled the delivery) are swallowed: the
// external status change wins.
func (s *TrackingService) autoTransitionLocked(ctx context.Context, st *deliveryState, distanceM float64) {
	if distanceM < s.cfg.ArrivedRadiusM {
		// A courier can cross both radii between two samples; the machine
		// only allows direct successors, so pass through NEARBY.
		if st.delivery.Status == domain.StatusInTransit {
			_ = s.applyTransitionLocked(ctx, st, domain.StatusNearby, actorSystem, true)
		}
		if st.delivery.Status == domain.StatusNearby {
			_ = s.applyTransitionLocked(ctx, st, domain.StatusArrived, actorSystem, true)
		}
		return
	}
	if distanceM < s.cfg.NearRadiusM && st.delivery.Status == domain.StatusInTransit {
		_ = s.applyTransitionLocked(ctx, st, domain.StatusNearby, actorSystem, true)
	}
}

// appendHistoryLocked inserts a report keeping capture order, then trims the
// window from the front.
func (s *TrackingService) appendHistoryLocked(st *deliveryState, report domain.PositionReport) {
	st.history = append(st.history, report)
	// Out-of-order arrivals are rare; restore order only when needed.
	if n := len(st.history); n > 1 && st.history[n-1].CapturedAt.Before(st.history[n-2].CapturedAt) {
		sort.SliceStable(st.history, func(i, j int) bool {
			return st.history[i].CapturedAt.Before(st.history[j].CapturedAt)
		})
	}
	if len(st.history) > s.cfg.HistoryLimit {
		st.history = st.history[len(st.history)-s.cfg.HistoryLimit:]
	}
}

// publish pushes an event through the fan-out and forwards it to the optional
// sink. Called with the delivery's state lock held so the sequence order
// matches the mutation order.
func (s *TrackingService) publish(ctx context.Context, ev domain.TrackingEvent) {
	ev = s.hub.Publish(ev)
	metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind)).Inc()
	if s.sink != nil {
		if err := s.sink.Publish(ctx, ev); err != nil {
			s.log.Warn().Err(err).
				Str("delivery_id", ev.DeliveryID).
				Uint64("seq", ev.Seq).
				Msg("event sink publish failed")
		}
	}
}

func (s *TrackingService) snapshotLocked(st *deliveryState) *ports.DeliverySnapshot {
	snap := &ports.DeliverySnapshot{
		ID:              st.delivery.ID,
		ClientID:        st.delivery.ClientID,
		CourierID:       st.delivery.CourierID,
		Pickup:          st.delivery.Pickup,
		Destination:     st.delivery.Destination,
		Status:          st.delivery.Status,
		CreatedAt:       st.delivery.CreatedAt,
		StatusUpdatedAt: st.delivery.StatusUpdatedAt,
		LastSeq:         s.hub.LastSeq(st.delivery.ID),
	}
	if st.latest != nil {
		latest := *st.latest
		snap.LatestPosition = &latest
	}
	if st.currentETA != nil {
		eta := *st.currentETA
		snap.ETA = &eta
	}
	return snap
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", domain.ErrInvalidPosition, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", domain.ErrInvalidPosition, lng)
	}
	return nil
}
