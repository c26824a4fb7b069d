package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for overlap checks.
const (
	OutcomeClear               = "clear"
	OutcomeConflict            = "conflict"
	OutcomeDegenerateCandidate = "degenerate_candidate"
)

// OverlapCollector bundles Prometheus metrics for overlap checking.
type OverlapCollector struct {
	gatherer prometheus.Gatherer

	Checks         *prometheus.CounterVec
	CheckDurations *prometheus.HistogramVec
	ZonesSkipped   *prometheus.CounterVec
	PayloadKinds   *prometheus.CounterVec
	AuditPairs     prometheus.Gauge
}

// NewOverlapCollector registers overlap metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewOverlapCollector(reg prometheus.Registerer) (*OverlapCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	checks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zone_overlap_checks_total",
		Help: "Overlap checks performed, labeled by entry point and outcome.",
	}, []string{"source", "outcome"}), "zone_overlap_checks_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zone_overlap_check_duration_seconds",
		Help:    "Time spent computing overlaps for one candidate polygon.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"source"}), "zone_overlap_check_duration_seconds")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zone_overlap_zones_skipped_total",
		Help: "Zones left out of overlap checks, labeled by reason.",
	}, []string{"reason"}), "zone_overlap_zones_skipped_total")
	if err != nil {
		return nil, err
	}

	kinds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zone_geometry_payloads_total",
		Help: "Zone geometry payloads seen, labeled by source encoding.",
	}, []string{"kind"}), "zone_geometry_payloads_total")
	if err != nil {
		return nil, err
	}

	auditPairs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zone_overlap_audit_conflicting_pairs",
		Help: "Overlapping zone pairs found by the most recent audit.",
	}), "zone_overlap_audit_conflicting_pairs")
	if err != nil {
		return nil, err
	}

	return &OverlapCollector{
		gatherer:       gatherer,
		Checks:         checks,
		CheckDurations: durations,
		ZonesSkipped:   skipped,
		PayloadKinds:   kinds,
		AuditPairs:     auditPairs,
	}, nil
}

// ObserveCheck records one completed overlap check.
func (c *OverlapCollector) ObserveCheck(source, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Checks.WithLabelValues(source, outcome).Inc()
	c.CheckDurations.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveSkipped records zones that were not polygon-tested.
func (c *OverlapCollector) ObserveSkipped(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ZonesSkipped.WithLabelValues(reason).Add(float64(n))
}

// ObservePayload records the source encoding of a zone geometry.
func (c *OverlapCollector) ObservePayload(kind string) {
	if c == nil {
		return
	}
	c.PayloadKinds.WithLabelValues(kind).Inc()
}

// SetAuditPairs publishes the size of the latest audit result.
func (c *OverlapCollector) SetAuditPairs(n int) {
	if c == nil {
		return
	}
	c.AuditPairs.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *OverlapCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
