package service

import (
	"time"

	"github.com/ecodeli/delivery-tracking/internal/core/domain"
	"github.com/ecodeli/delivery-tracking/pkg/geo"
)

// ETAConfig tunes the estimator. Zero values fall back to the defaults used
// by the courier apps.
type ETAConfig struct {
	// DefaultSpeedKmh is assumed when fewer than 2 samples exist.
	DefaultSpeedKmh float64
	// MaxSpeedKmh filters implausible implied speeds out of the average.
	MaxSpeedKmh float64
	// MinSpeedKmh filters GPS jitter: consecutive samples implying less than
	// this are not movement.
	MinSpeedKmh float64
	// SpeedWindow is the number of most recent reports considered.
	SpeedWindow int
	// ArrivalHysteresis suppresses ETAUpdated events whose arrival time moved
	// less than this since the last published estimate.
	ArrivalHysteresis time.Duration
	// ConfidenceHysteresis suppresses events whose confidence moved fewer
	// than this many points.
	ConfidenceHysteresis int
}

func (c ETAConfig) withDefaults() ETAConfig {
	if c.DefaultSpeedKmh <= 0 {
		c.DefaultSpeedKmh = 25
	}
	if c.MaxSpeedKmh <= 0 {
		c.MaxSpeedKmh = 100
	}
	if c.MinSpeedKmh <= 0 {
		c.MinSpeedKmh = 1
	}
	if c.SpeedWindow <= 0 {
		c.SpeedWindow = 10
	}
	if c.ArrivalHysteresis <= 0 {
		c.ArrivalHysteresis = time.Minute
	}
	if c.ConfidenceHysteresis <= 0 {
		c.ConfidenceHysteresis = 5
	}
	return c
}

// etaEstimator derives a confidence-scored arrival estimate from the latest
// position, the destination, and recent history. Pure computation; the
// tracking service owns when estimates are published.
type etaEstimator struct {
	cfg ETAConfig
}

func newETAEstimator(cfg ETAConfig) *etaEstimator {
	return &etaEstimator{cfg: cfg.withDefaults()}
}

// Estimate computes the remaining great-circle distance and an arrival time
// from the smoothed average of the speeds implied by consecutive reports.
// history must be in capture order and include latest as its last element.
func (e *etaEstimator) Estimate(history []domain.PositionReport, dest domain.Coordinates, now time.Time) domain.ETAEstimate {
	latest := history[len(history)-1]
	remaining := geo.Haversine(latest.Lat, latest.Lng, dest.Lat, dest.Lng)

	window := history
	if len(window) > e.cfg.SpeedWindow {
		window = window[len(window)-e.cfg.SpeedWindow:]
	}

	speed := e.effectiveSpeed(window)
	hours := remaining / 1000 / speed

	return domain.ETAEstimate{
		DeliveryID:       latest.DeliveryID,
		EstimatedArrival: now.Add(time.Duration(hours * float64(time.Hour))),
		RemainingMeters:  remaining,
		Confidence:       e.confidence(window, now),
		ComputedAt:       now,
	}
}

// effectiveSpeed averages the speeds implied by consecutive samples,
// discarding non-positive time deltas and speeds outside
// [MinSpeedKmh, MaxSpeedKmh].
func (e *etaEstimator) effectiveSpeed(window []domain.PositionReport) float64 {
	var sum float64
	var n int
	for i := 0; i < len(window)-1; i++ {
		a, b := window[i], window[i+1]
		dt := b.CapturedAt.Sub(a.CapturedAt).Hours()
		if dt <= 0 {
			continue
		}
		v := geo.Haversine(a.Lat, a.Lng, b.Lat, b.Lng) / 1000 / dt
		if v >= e.cfg.MinSpeedKmh && v <= e.cfg.MaxSpeedKmh {
			sum += v
			n++
		}
	}
	if n == 0 {
		return e.cfg.DefaultSpeedKmh
	}
	return sum / float64(n)
}

// confidence scores the estimate 0-100. The score only ever decreases with
// sparse samples, poor reported GPS accuracy, and large gaps between samples;
// boundary cases round down (conservative).
func (e *etaEstimator) confidence(window []domain.PositionReport, now time.Time) int {
	score := 100

	// Sample density.
	switch n := len(window); {
	case n < 2:
		score -= 20
	case n < e.cfg.SpeedWindow:
		score -= 2 * (e.cfg.SpeedWindow - n)
	}

	// Reported GPS accuracy (0 = device did not report it).
	var accSum float64
	var accN int
	for _, r := range window {
		if r.AccuracyM > 0 {
			accSum += r.AccuracyM
			accN++
		}
	}
	if accN > 0 {
		switch avg := accSum / float64(accN); {
		case avg >= 50:
			score -= 20
		case avg >= 25:
			score -= 10
		}
	}

	// Staleness: gap since the latest sample, plus the widest gap inside the
	// window.
	maxGap := now.Sub(window[len(window)-1].CapturedAt)
	for i := 0; i < len(window)-1; i++ {
		if gap := window[i+1].CapturedAt.Sub(window[i].CapturedAt); gap > maxGap {
			maxGap = gap
		}
	}
	switch {
	case maxGap >= 5*time.Minute:
		score -= 30
	case maxGap >= 2*time.Minute:
		score -= 15
	}

	if score < 5 {
		score = 5
	}
	return score
}

// shouldPublish reports whether next differs enough from the last published
// estimate to be worth an ETAUpdated event.
func (e *etaEstimator) shouldPublish(prev *domain.ETAEstimate, next domain.ETAEstimate) bool {
	if prev == nil {
		return true
	}
	delta := next.EstimatedArrival.Sub(prev.EstimatedArrival)
	if delta < 0 {
		delta = -delta
	}
	if delta > e.cfg.ArrivalHysteresis {
		return true
	}
	confDelta := next.Confidence - prev.Confidence
	if confDelta < 0 {
		confDelta = -confDelta
	}
	return confDelta > e.cfg.ConfidenceHysteresis
}
