package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ecodeli/delivery-tracking/internal/api/metrics"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Dispatcher routes batched position reports to a fixed set of workers using
// consistent hashing on the delivery id, guaranteeing that one delivery's
// reports are processed in submission order even when couriers upload a
// backlog of offline samples.
type Dispatcher struct {
	workers []chan ports.PositionInput
	service ports.TrackingService
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.TrackingService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.PositionInput, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.PositionInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends a report to the worker responsible for its delivery.
// The call is non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(input ports.PositionInput) {
	idx := d.shardIndex(input.DeliveryID)
	d.workers[idx] <- input
	metrics.PositionQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// EnqueueBatch enqueues multiple reports preserving per-delivery ordering.
func (d *Dispatcher) EnqueueBatch(inputs []ports.PositionInput) {
	for _, in := range inputs {
		d.Enqueue(in)
	}
}

// shardIndex maps a delivery id deterministically to a worker index.
func (d *Dispatcher) shardIndex(deliveryID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deliveryID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.PositionInput) {
	gauge := metrics.PositionQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case input, ok := <-ch:
			if !ok {
				return
			}
			gauge.Set(float64(len(ch)))
			if _, err := d.service.ReportPosition(ctx, input); err != nil {
				// Rejections on batched samples are expected (stale devices,
				// finished deliveries); they are logged, not retried.
				d.log.Warn().Err(err).
					Str("delivery_id", input.DeliveryID).
					Int("worker_id", id).
					Msg("batched position report rejected")
			}
		}
	}
}
