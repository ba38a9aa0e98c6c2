// Package metrics defines and registers all custom Prometheus metrics for the
// delivery tracking core. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics register with the default Prometheus registry at package init via
// promauto; the /metrics endpoint is exposed by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracking"

// ── Position ingestion ────────────────────────────────────────────────────────

// PositionsIngestedTotal counts position reports by outcome.
// Labels:
//   - result: "accepted" (moved the latest pointer), "stale" (kept for
//     history only), or "rejected" (validation failure)
var PositionsIngestedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "positions_ingested_total",
		Help:      "Total number of courier position reports, by outcome.",
	},
	[]string{"result"},
)

// PositionQueueDepth tracks the number of batched reports waiting in each
// dispatcher worker channel.
var PositionQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "position_queue_depth",
		Help:      "Current number of position reports pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// StatusTransitionsTotal counts applied status transitions.
// Labels:
//   - status: the status entered (e.g. "IN_TRANSIT")
//   - actor: "courier", "admin", or "system" for auto-transitions
var StatusTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Total number of delivery status transitions applied, by target status and actor.",
	},
	[]string{"status", "actor"},
)

// ── Fan-out ───────────────────────────────────────────────────────────────────

// EventsPublishedTotal counts tracking events pushed through the fan-out.
// Label:
//   - kind: "status_changed", "location_updated", or "eta_updated"
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of tracking events published to the fan-out, by kind.",
	},
	[]string{"kind"},
)

// SubscribersActive tracks the number of live tracking sessions across all
// deliveries.
var SubscribersActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers_active",
		Help:      "Number of currently attached tracking sessions.",
	},
)

// SubscribersDroppedTotal counts sessions dropped because their queue was
// full when an event was published.
var SubscribersDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscribers_dropped_total",
		Help:      "Total number of tracking sessions dropped for not keeping up with the event stream.",
	},
)
