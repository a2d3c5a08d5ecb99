package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
	"fleet-audit/internal/infrastructure/consolidate"
	"fleet-audit/internal/infrastructure/coverage"
	"fleet-audit/internal/infrastructure/detectors"
	"fleet-audit/internal/infrastructure/geocode"
	"fleet-audit/internal/infrastructure/impact"
	"fleet-audit/internal/pkg/metrics"
)

// ErrArchiveUnavailable is returned by run lookups when no archive is configured
var ErrArchiveUnavailable = errors.New("audit archive not configured")

// detectorRunner is the slice of the detector engine the use case drives
type detectorRunner interface {
	Availability(kind audit.DetectorKind) (audit.DetectorReport, bool)
	Run(ctx context.Context, kind audit.DetectorKind) (detectors.Output, error)
	Quality() fleet.DataQuality
}

func newEngineRunner(ds *fleet.Dataset, params audit.Params) (detectorRunner, error) {
	return detectors.NewEngine(ds, params)
}

// RunAuditInput contains the records and optional parameter override for one run
type RunAuditInput struct {
	Input  fleet.Input
	Params *audit.Params // nil uses the configured defaults
}

// RunAuditUseCase runs a full audit: validation, coverage, detectors, consolidation
// and impact estimation. It holds no per-run state and may be shared.
type RunAuditUseCase struct {
	params   audit.Params
	geocoder geocode.Geocoder
	repo     audit.RunRepository
	metrics  *metrics.Metrics
	log      *zap.Logger
	timeout  time.Duration
	parallel int

	newRunner func(*fleet.Dataset, audit.Params) (detectorRunner, error)
	now       func() time.Time
}

// Option configures the use case
type Option func(*RunAuditUseCase)

// WithGeocoder resolves text-only addresses before detection
func WithGeocoder(g geocode.Geocoder) Option {
	return func(uc *RunAuditUseCase) { uc.geocoder = g }
}

// WithRepository archives every successful run
func WithRepository(repo audit.RunRepository) Option {
	return func(uc *RunAuditUseCase) { uc.repo = repo }
}

// WithMetrics records run and detector metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *RunAuditUseCase) { uc.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(uc *RunAuditUseCase) { uc.log = l }
}

// WithTimeout bounds a single run
func WithTimeout(d time.Duration) Option {
	return func(uc *RunAuditUseCase) { uc.timeout = d }
}

// WithParallelism caps how many detectors run at once; zero means no cap
func WithParallelism(n int) Option {
	return func(uc *RunAuditUseCase) { uc.parallel = n }
}

// NewRunAuditUseCase creates a new run audit use case
func NewRunAuditUseCase(params audit.Params, opts ...Option) *RunAuditUseCase {
	uc := &RunAuditUseCase{
		params:    params,
		log:       zap.NewNop(),
		newRunner: newEngineRunner,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// DefaultParams returns the parameters used when a request carries none
func (uc *RunAuditUseCase) DefaultParams() audit.Params {
	return uc.params
}

// Execute runs one audit
func (uc *RunAuditUseCase) Execute(ctx context.Context, input RunAuditInput) (*audit.Result, error) {
	started := uc.now().UTC()
	runID := uuid.New()
	log := uc.log.With(zap.String("run_id", runID.String()))

	params := uc.params
	if input.Params != nil {
		params = *input.Params
	}
	if err := params.Validate(); err != nil {
		uc.observeAudit("invalid_params", started)
		return nil, err
	}

	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	in := input.Input
	if uc.geocoder != nil {
		resolved, stats, err := geocode.ResolveInput(ctx, uc.geocoder, in)
		if err != nil {
			uc.observeAudit("error", started)
			return nil, fmt.Errorf("geocoding failed: %w", err)
		}
		in = resolved
		log.Debug("addresses geocoded",
			zap.Int("resolved", stats.Resolved),
			zap.Int("unresolved", stats.Unresolved),
			zap.Int("failed", stats.Failed),
		)
	}

	ds := fleet.NewDataset(in, params.CardVehicles)
	uc.observeSkipped(ds.Skipped)
	if ds.Empty() {
		uc.observeAudit("no_data", started)
		return nil, fmt.Errorf("%w (%d records dropped as malformed)", audit.ErrNoData, ds.Skipped.Total())
	}

	runner, err := uc.newRunner(ds, params)
	if err != nil {
		uc.observeAudit("invalid_params", started)
		return nil, err
	}

	cov := coverage.Analyze(ds, params.Coverage)
	for _, w := range cov.Warnings {
		log.Warn("limited source coverage",
			zap.String("kind", string(w.Kind)),
			zap.String("source_a", string(w.SourceA)),
			zap.String("source_b", string(w.SourceB)),
			zap.Float64("ratio", w.Ratio),
		)
	}

	reports, outputs := uc.runDetectors(ctx, runner, log)
	if err := ctx.Err(); err != nil {
		uc.observeAudit("error", started)
		return nil, fmt.Errorf("audit interrupted: %w", err)
	}

	raw := make(map[audit.DetectorKind][]violation.RawViolation)
	var all []violation.RawViolation
	for i, kind := range audit.AllDetectors {
		if reports[i].Status != audit.StatusRan {
			continue
		}
		raw[kind] = outputs[i].Violations
		all = append(all, outputs[i].Violations...)
	}
	violation.SortRaw(all)

	incidents := consolidate.Consolidate(all, params.Consolidation)
	summary := impact.Estimate(incidents, impact.PeriodDays(ds))

	result := &audit.Result{
		RunID:                  runID,
		StartedAt:              started,
		ConsolidatedViolations: incidents,
		RawViolations:          raw,
		FinancialSummary:       summary,
		OverlapWarnings:        cov.Warnings,
		Coverage:               cov.Sources,
		DataQuality:            runner.Quality(),
		Detectors:              reports,
		SkippedRecords:         ds.Skipped,
		DuplicatePings:         ds.DuplicatePings,
		UnresolvedVehicles:     ds.UnresolvedVehicles,
	}
	result.FinishedAt = uc.now().UTC()

	uc.observeResult(result, all)
	uc.observeAudit("ok", started)
	log.Info("audit completed",
		zap.Int("raw_violations", len(all)),
		zap.Int("incidents", len(incidents)),
		zap.Int("vehicles_flagged", summary.VehiclesFlagged),
		zap.String("total_fleet_loss", summary.TotalFleetLoss.StringFixed(2)),
		zap.Int("skipped_records", ds.Skipped.Total()),
		zap.Duration("duration", result.FinishedAt.Sub(started)),
	)

	if uc.repo != nil {
		if err := uc.repo.Save(ctx, result); err != nil {
			// the audit itself succeeded
			log.Error("failed to archive audit run", zap.Error(err))
		}
	}

	return result, nil
}

// runDetectors forks every runnable detector and joins them. A failing or panicking
// detector is reported as failed and never cancels its siblings.
func (uc *RunAuditUseCase) runDetectors(ctx context.Context, runner detectorRunner, log *zap.Logger) ([]audit.DetectorReport, []detectors.Output) {
	reports := make([]audit.DetectorReport, len(audit.AllDetectors))
	outputs := make([]detectors.Output, len(audit.AllDetectors))

	var g errgroup.Group
	if uc.parallel > 0 {
		g.SetLimit(uc.parallel)
	}

	for i, kind := range audit.AllDetectors {
		report, runnable := runner.Availability(kind)
		if !runnable {
			reports[i] = report
			uc.observeDetector(report)
			log.Debug("detector skipped", zap.String("detector", string(kind)), zap.String("reason", report.Reason))
			continue
		}
		g.Go(func() error {
			reports[i], outputs[i] = runOne(ctx, runner, report)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range reports {
		if r.Status == audit.StatusRan || r.Status == audit.StatusFailed {
			uc.observeDetector(r)
		}
		if r.Status == audit.StatusFailed {
			log.Error("detector failed", zap.String("detector", string(r.Kind)), zap.String("error", r.Error))
		}
	}
	return reports, outputs
}

func runOne(ctx context.Context, runner detectorRunner, report audit.DetectorReport) (rep audit.DetectorReport, out detectors.Output) {
	start := time.Now()
	rep = report
	defer func() {
		rep.Duration = time.Since(start)
		if p := recover(); p != nil {
			rep.Status = audit.StatusFailed
			rep.Error = fmt.Sprintf("panic: %v", p)
			out = detectors.Output{}
		}
	}()

	out, err := runner.Run(ctx, report.Kind)
	if err != nil {
		rep.Status = audit.StatusFailed
		rep.Error = err.Error()
		return rep, detectors.Output{}
	}
	rep.Status = audit.StatusRan
	rep.Violations = len(out.Violations)
	rep.Exempt = out.Exempt
	return rep, out
}

// GetRun returns an archived run
func (uc *RunAuditUseCase) GetRun(ctx context.Context, runID uuid.UUID) (*audit.Result, error) {
	if uc.repo == nil {
		return nil, ErrArchiveUnavailable
	}
	return uc.repo.GetByID(ctx, runID)
}

// ListRuns returns the newest archived runs
func (uc *RunAuditUseCase) ListRuns(ctx context.Context, limit int) ([]*audit.Result, error) {
	if uc.repo == nil {
		return nil, ErrArchiveUnavailable
	}
	return uc.repo.ListRecent(ctx, limit)
}

func (uc *RunAuditUseCase) observeAudit(outcome string, started time.Time) {
	if uc.metrics != nil {
		uc.metrics.ObserveAudit(outcome, uc.now().Sub(started))
	}
}

func (uc *RunAuditUseCase) observeDetector(r audit.DetectorReport) {
	if uc.metrics != nil {
		uc.metrics.ObserveDetector(string(r.Kind), string(r.Status), r.Duration)
	}
}

func (uc *RunAuditUseCase) observeSkipped(skipped fleet.SkippedCounts) {
	if uc.metrics == nil {
		return
	}
	for src, n := range skipped {
		uc.metrics.AddSkipped(string(src), n)
	}
}

func (uc *RunAuditUseCase) observeResult(result *audit.Result, raw []violation.RawViolation) {
	if uc.metrics == nil {
		return
	}
	byType := make(map[violation.Type]int)
	for _, v := range raw {
		byType[v.Type]++
	}
	for t, n := range byType {
		uc.metrics.AddViolations(string(t), n)
	}
	uc.metrics.AddIncidents(len(result.ConsolidatedViolations))
}
