// Package stream implements the per-delivery subscription fan-out: a bounded
// append-only event log plus a live set of subscriber sessions, with strictly
// increasing per-delivery sequence numbers.
package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecodeli/delivery-tracking/internal/api/metrics"
	"github.com/ecodeli/delivery-tracking/internal/core/domain"
)

const (
	defaultLogLimit      = 200
	defaultSessionBuffer = 64
)

// Options bounds the hub's retained state per delivery.
type Options struct {
	// LogLimit is the maximum number of events retained for replay.
	LogLimit int
	// SessionBuffer is the per-subscriber queue capacity. A subscriber whose
	// queue is full when an event is published is dropped from the live set.
	SessionBuffer int
}

// Hub owns one sequenced event channel per delivery. Publishing and
// subscribing on different deliveries never contend with each other.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*channel
	logLimit int
	buffer   int
	log      zerolog.Logger
}

type channel struct {
	mu     sync.Mutex
	seq    uint64
	events []domain.TrackingEvent // oldest first, len <= logLimit
	subs   map[string]*Subscription
}

// NewHub creates a Hub. Zero option fields fall back to defaults.
func NewHub(opts Options, log zerolog.Logger) *Hub {
	if opts.LogLimit <= 0 {
		opts.LogLimit = defaultLogLimit
	}
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = defaultSessionBuffer
	}
	return &Hub{
		channels: make(map[string]*channel),
		logLimit: opts.LogLimit,
		buffer:   opts.SessionBuffer,
		log:      log,
	}
}

func (h *Hub) channelFor(deliveryID string) *channel {
	h.mu.RLock()
	ch, ok := h.channels[deliveryID]
	h.mu.RUnlock()
	if ok {
		return ch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok = h.channels[deliveryID]; ok {
		return ch
	}
	ch = &channel{subs: make(map[string]*Subscription)}
	h.channels[deliveryID] = ch
	return ch
}

// Publish assigns the next sequence number for the event's delivery, appends
// it to the retained log, and pushes it to every live subscriber. A
// subscriber that cannot accept the event is dropped from the live set; its
// next Subscribe call replays from its last seen sequence. Returns the event
// with its sequence number filled in.
func (h *Hub) Publish(ev domain.TrackingEvent) domain.TrackingEvent {
	ch := h.channelFor(ev.DeliveryID)

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.seq++
	ev.Seq = ch.seq
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	ch.events = append(ch.events, ev)
	if len(ch.events) > h.logLimit {
		ch.events = ch.events[len(ch.events)-h.logLimit:]
	}

	for id, sub := range ch.subs {
		select {
		case sub.ch <- ev:
		default:
			// Queue full: drop the session rather than block publication.
			delete(ch.subs, id)
			sub.once.Do(func() { close(sub.ch) })
			metrics.SubscribersDroppedTotal.Inc()
			metrics.SubscribersActive.Dec()
			h.log.Warn().
				Str("delivery_id", ev.DeliveryID).
				Str("subscriber_id", id).
				Uint64("seq", ev.Seq).
				Msg("slow subscriber dropped")
		}
	}

	return ev
}

// LastSeq returns the sequence number of the most recently published event
// for the delivery, or 0 when nothing has been published.
func (h *Hub) LastSeq(deliveryID string) uint64 {
	h.mu.RLock()
	ch, ok := h.channels[deliveryID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.seq
}

// Subscribe attaches a session to the delivery's event channel.
//
// When since is nil the session receives live events only. When since points
// to a sequence number, every retained event after it is queued before the
// session goes live, so the caller observes no gap and no duplicate. If the
// requested sequence has aged out of the retained window (or is ahead of the
// channel), domain.ErrSnapshotRequired is returned and the caller must fetch
// a fresh snapshot instead.
func (h *Hub) Subscribe(deliveryID string, since *uint64) (*Subscription, error) {
	ch := h.channelFor(deliveryID)

	ch.mu.Lock()
	defer ch.mu.Unlock()

	var replay []domain.TrackingEvent
	if since != nil {
		if *since > ch.seq {
			return nil, domain.ErrSnapshotRequired
		}
		if *since < ch.seq {
			oldest := ch.seq - uint64(len(ch.events)) + 1
			if len(ch.events) == 0 || *since+1 < oldest {
				return nil, domain.ErrSnapshotRequired
			}
			replay = ch.events[*since+1-oldest:]
		}
	}

	sub := &Subscription{
		ID:         uuid.NewString(),
		hub:        h,
		deliveryID: deliveryID,
		ch:         make(chan domain.TrackingEvent, len(replay)+h.buffer),
	}
	sub.C = sub.ch
	for _, ev := range replay {
		sub.ch <- ev
	}

	ch.subs[sub.ID] = sub
	metrics.SubscribersActive.Inc()
	return sub, nil
}

// Subscription is one tracking session's handle on a delivery's event stream.
type Subscription struct {
	ID string
	// C delivers events in sequence order. It is closed when the hub drops
	// the session or Unsubscribe is called.
	C <-chan domain.TrackingEvent

	hub        *Hub
	deliveryID string
	ch         chan domain.TrackingEvent
	once       sync.Once
}

// Unsubscribe detaches the session. Events already queued but not consumed
// are discarded. Safe to call more than once, and after the hub has already
// dropped the session.
func (s *Subscription) Unsubscribe() {
	ch := s.hub.channelFor(s.deliveryID)

	ch.mu.Lock()
	if _, live := ch.subs[s.ID]; live {
		delete(ch.subs, s.ID)
		metrics.SubscribersActive.Dec()
		s.once.Do(func() { close(s.ch) })
	}
	ch.mu.Unlock()
}
