// Package overlap answers "which existing zones would this polygon collide
// with" for the HTTP, websocket and CLI entry points.
package overlap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zonewarden/server/internal/geometry"
	"github.com/zonewarden/server/internal/logging"
	"github.com/zonewarden/server/internal/observability"
	"github.com/zonewarden/server/internal/zoneindex"
)

// Entry points, used as the metrics "source" label.
const (
	SourceHTTP      = "http"
	SourceWebSocket = "ws"
	SourceCLI       = "cli"
)

var (
	// ErrNoZoneSource is returned when a request carries no zones and no
	// stored zone listing is configured.
	ErrNoZoneSource = errors.New("no zones supplied and no zone store configured")
	// ErrTooManyZones is returned when a request carries more zones than
	// the configured limit.
	ErrTooManyZones = errors.New("too many zones in request")
)

// ZoneSource supplies the stored zone snapshot.
type ZoneSource interface {
	ListActiveZones(ctx context.Context) ([]geometry.Zone, error)
}

// ZoneLookup is implemented by zone sources that can fetch a single stored
// zone, active or not.
type ZoneLookup interface {
	GetZoneByID(ctx context.Context, id int64) (*geometry.Zone, error)
}

// CheckRequest describes one candidate polygon. A nil Zones slice means
// "check against the stored zones"; an empty non-nil slice checks against
// nothing.
type CheckRequest struct {
	Geometry  geometry.Payload
	Zones     []geometry.Zone
	ExcludeID geometry.ZoneID
	Source    string
}

// CheckResult is the outcome of a check.
type CheckResult struct {
	Overlaps   []geometry.ZoneRef `json:"overlaps"`
	Count      int                `json:"count"`
	SafeToSave bool               `json:"safe_to_save"`
	// Zone names the stored zone that was checked, when there was one.
	Zone *geometry.ZoneRef `json:"zone,omitempty"`

	// Candidate is the canonical candidate polygon.
	Candidate geometry.Polygon `json:"-"`
	// Conflicts holds the full records of the overlapping zones.
	Conflicts []geometry.Zone `json:"-"`
	Report    geometry.Report `json:"-"`
}

// ConflictPair names two stored zones that overlap each other.
type ConflictPair struct {
	First  geometry.ZoneRef `json:"first"`
	Second geometry.ZoneRef `json:"second"`
}

// AuditResult lists every overlapping pair in a zone snapshot.
type AuditResult struct {
	Pairs      []ConflictPair     `json:"pairs"`
	Count      int                `json:"count"`
	Zones      int                `json:"zones"`
	Degenerate []geometry.ZoneRef `json:"degenerate"`
}

// Option configures a Service.
type Option func(*Service)

// WithZoneSource sets the stored zone listing.
func WithZoneSource(source ZoneSource) Option {
	return func(s *Service) { s.source = source }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.OverlapCollector) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithMaxZones bounds caller-supplied zone snapshots. Zero or less means
// unbounded.
func WithMaxZones(n int) Option {
	return func(s *Service) { s.maxZones = n }
}

// Service runs overlap checks and audits.
type Service struct {
	source   ZoneSource
	logger   logging.Logger
	metrics  *observability.OverlapCollector
	maxZones int
	now      func() time.Time
}

// NewService creates a Service.
func NewService(opts ...Option) *Service {
	s := &Service{
		logger: logging.Noop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasZoneSource reports whether stored zones are available.
func (s *Service) HasZoneSource() bool {
	return s.source != nil
}

// Check finds the zones the candidate overlaps.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	zones, err := s.resolveZones(ctx, req.Zones)
	if err != nil {
		return nil, err
	}

	start := s.now()
	report := geometry.Evaluate(req.Geometry, zones, req.ExcludeID)
	elapsed := s.now().Sub(start)

	result := &CheckResult{
		Overlaps:   report.Overlaps,
		Count:      len(report.Overlaps),
		SafeToSave: len(report.Overlaps) == 0,
		Candidate:  req.Geometry.Vertices(),
		Conflicts:  make([]geometry.Zone, 0, len(report.Positions)),
		Report:     report,
	}
	for _, pos := range report.Positions {
		result.Conflicts = append(result.Conflicts, zones[pos])
	}

	source := req.Source
	if source == "" {
		source = SourceHTTP
	}
	s.metrics.ObservePayload(req.Geometry.Kind().String())
	s.metrics.ObserveSkipped("excluded", report.Excluded)
	s.metrics.ObserveSkipped("degenerate", len(report.Degenerate))
	s.metrics.ObserveCheck(source, outcome(report), elapsed)

	log := s.logger.With(logging.String("source", source))
	if !report.CandidateUsable {
		log.Debug(ctx, "candidate polygon incomplete; nothing checked",
			logging.Int("vertices", len(result.Candidate)),
			logging.String("kind", req.Geometry.Kind().String()))
		return result, nil
	}
	for _, ref := range report.Degenerate {
		log.Debug(ctx, "skipping zone with unusable geometry",
			logging.String("zone_id", string(ref.ID)),
			logging.String("zone_name", ref.Name))
	}
	log.Debug(ctx, "overlap check complete",
		logging.Int("zones", len(zones)),
		logging.Int("checked", report.Checked),
		logging.Int("overlaps", result.Count))
	return result, nil
}

// CheckStoredZone checks a stored zone against the other stored zones. The
// zone itself is excluded, so a zone never conflicts with its own record.
func (s *Service) CheckStoredZone(ctx context.Context, id int64, source string) (*CheckResult, error) {
	lookup, ok := s.source.(ZoneLookup)
	if !ok {
		return nil, ErrNoZoneSource
	}
	zone, err := lookup.GetZoneByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load zone %d: %w", id, err)
	}

	result, err := s.Check(ctx, CheckRequest{
		Geometry:  zone.Geometry,
		ExcludeID: zone.ID,
		Source:    source,
	})
	if err != nil {
		return nil, err
	}
	ref := zone.Ref()
	result.Zone = &ref
	return result, nil
}

// Audit reports every overlapping pair among zones, ordered by the position
// of the first zone and then the second.
func (s *Service) Audit(ctx context.Context, zones []geometry.Zone) (*AuditResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := zoneindex.New(zones)
	pairs := idx.Pairs()

	result := &AuditResult{
		Pairs:      make([]ConflictPair, 0, len(pairs)),
		Count:      len(pairs),
		Zones:      len(zones),
		Degenerate: []geometry.ZoneRef{},
	}
	for _, p := range pairs {
		result.Pairs = append(result.Pairs, ConflictPair{
			First:  zones[p[0]].Ref(),
			Second: zones[p[1]].Ref(),
		})
	}
	for _, pos := range idx.Degenerate() {
		result.Degenerate = append(result.Degenerate, zones[pos].Ref())
	}

	s.metrics.ObserveSkipped("degenerate", len(result.Degenerate))
	s.metrics.SetAuditPairs(result.Count)
	s.logger.Debug(ctx, "zone audit complete",
		logging.Int("zones", result.Zones),
		logging.Int("indexed", idx.Len()),
		logging.Int("pairs", result.Count))
	if result.Count > 0 {
		s.logger.Warn(ctx, "overlapping zones found in snapshot",
			logging.Int("pairs", result.Count),
			logging.Int("zones", result.Zones))
	}
	return result, nil
}

// AuditStored audits the stored zone listing.
func (s *Service) AuditStored(ctx context.Context) (*AuditResult, error) {
	zones, err := s.resolveZones(ctx, nil)
	if err != nil {
		return nil, err
	}
	return s.Audit(ctx, zones)
}

func (s *Service) resolveZones(ctx context.Context, supplied []geometry.Zone) ([]geometry.Zone, error) {
	if supplied != nil {
		if s.maxZones > 0 && len(supplied) > s.maxZones {
			return nil, fmt.Errorf("%w: %d > %d", ErrTooManyZones, len(supplied), s.maxZones)
		}
		return supplied, nil
	}
	if s.source == nil {
		return nil, ErrNoZoneSource
	}
	zones, err := s.source.ListActiveZones(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to load stored zones", logging.Err(err))
		return nil, fmt.Errorf("load zones: %w", err)
	}
	return zones, nil
}

func outcome(report geometry.Report) string {
	switch {
	case !report.CandidateUsable:
		return observability.OutcomeDegenerateCandidate
	case len(report.Overlaps) > 0:
		return observability.OutcomeConflict
	default:
		return observability.OutcomeClear
	}
}
