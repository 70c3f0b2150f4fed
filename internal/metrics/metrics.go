// Package metrics exposes chunk cache activity as Prometheus metrics.
//
// A Collector owns its registry; nothing is registered globally. All methods
// are safe on a nil *Collector so callers can leave metrics disabled.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/auralis/tiercache/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "tiercache"

// Update outcomes.
const (
	UpdateAccepted  = "accepted"
	UpdateThrottled = "throttled"
)

// Reasons a preset switch was not learned.
const (
	SkipDebounced = "debounced"
	SkipRapid     = "rapid"
)

// Invalidation reasons.
const (
	InvalidateTrackChanged  = "track_changed"
	InvalidateTrackDeleted  = "track_deleted"
	InvalidateTrackModified = "track_modified"
	InvalidateManual        = "manual"
)

// Collector records cache metrics.
type Collector struct {
	registry *prometheus.Registry

	lookups         *prometheus.CounterVec
	updates         *prometheus.CounterVec
	switchesLearned prometheus.Counter
	switchesSkipped *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	tierEntries     *prometheus.GaugeVec
	tierSize        *prometheus.GaugeVec
	tierEvictions   *prometheus.GaugeVec
	accuracy        prometheus.Gauge
	refreshDuration prometheus.Histogram
}

// New creates a collector registered on a fresh registry.
func New(namespace string) (*Collector, error) {
	return NewWithRegistry(prometheus.NewRegistry(), namespace)
}

// NewWithRegistry creates a collector registered on reg.
func NewWithRegistry(reg *prometheus.Registry, namespace string) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: reg,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Chunk lookups by tier and result.",
		}, []string{"tier", "result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_updates_total",
			Help:      "Playback position updates by outcome.",
		}, []string{"outcome"}),
		switchesLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preset_switches_learned_total",
			Help:      "Preset switches recorded by the predictor.",
		}),
		switchesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preset_switches_skipped_total",
			Help:      "Preset switches adopted but not learned, by reason.",
		}, []string{"reason"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidated_chunks_total",
			Help:      "Cached chunks removed by invalidation, by reason.",
		}, []string{"reason"}),
		tierEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_entries",
			Help:      "Chunks currently held per tier.",
		}, []string{"tier"}),
		tierSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_size_megabytes",
			Help:      "Occupied size per tier.",
		}, []string{"tier"}),
		tierEvictions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_evictions",
			Help:      "Chunks evicted per tier since start.",
		}, []string{"tier"}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prediction_accuracy_ratio",
			Help:      "Share of learned switches that were pre-cached in L1.",
		}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time spent refreshing all tiers after an accepted update.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
	}

	for _, col := range []prometheus.Collector{
		c.lookups, c.updates, c.switchesLearned, c.switchesSkipped,
		c.invalidations, c.tierEntries, c.tierSize, c.tierEvictions,
		c.accuracy, c.refreshDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return c, nil
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Lookup counts one chunk lookup. tier is empty on a miss in every tier.
func (c *Collector) Lookup(tier string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	if tier == "" {
		tier = "none"
	}
	c.lookups.WithLabelValues(tier, result).Inc()
}

// Update counts one position update by outcome.
func (c *Collector) Update(outcome string) {
	if c == nil {
		return
	}
	c.updates.WithLabelValues(outcome).Inc()
}

// SwitchLearned counts a switch recorded by the predictor.
func (c *Collector) SwitchLearned() {
	if c == nil {
		return
	}
	c.switchesLearned.Inc()
}

// SwitchSkipped counts a switch that was adopted but not learned.
func (c *Collector) SwitchSkipped(reason string) {
	if c == nil {
		return
	}
	c.switchesSkipped.WithLabelValues(reason).Inc()
}

// Invalidated counts chunks removed for reason.
func (c *Collector) Invalidated(reason string, chunks int) {
	if c == nil || chunks <= 0 {
		return
	}
	c.invalidations.WithLabelValues(reason).Add(float64(chunks))
}

// ObserveTier publishes a tier's current occupancy.
func (c *Collector) ObserveTier(s cache.TierStats) {
	if c == nil {
		return
	}
	c.tierEntries.WithLabelValues(s.Name).Set(float64(s.Entries))
	c.tierSize.WithLabelValues(s.Name).Set(s.SizeMB)
	c.tierEvictions.WithLabelValues(s.Name).Set(float64(s.Evictions))
}

// SetAccuracy publishes the predictor accuracy.
func (c *Collector) SetAccuracy(ratio float64) {
	if c == nil {
		return
	}
	c.accuracy.Set(ratio)
}

// ObserveRefresh records how long a tier refresh took.
func (c *Collector) ObserveRefresh(d time.Duration) {
	if c == nil {
		return
	}
	c.refreshDuration.Observe(d.Seconds())
}
