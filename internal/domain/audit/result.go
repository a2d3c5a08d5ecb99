package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
)

// DetectorKind names one of the fixed set of detectors
type DetectorKind string

const (
	DetectorFuelTheft    DetectorKind = "fuel_theft"
	DetectorEnhancedFuel DetectorKind = "enhanced_fuel"
	DetectorMPG          DetectorKind = "mpg"
	DetectorGhostJob     DetectorKind = "ghost_job"
	DetectorIdle         DetectorKind = "idle"
	DetectorAfterHours   DetectorKind = "after_hours"
	DetectorFuelPattern  DetectorKind = "fuel_pattern"
)

// AllDetectors lists every detector in reporting order
var AllDetectors = []DetectorKind{
	DetectorFuelTheft,
	DetectorEnhancedFuel,
	DetectorMPG,
	DetectorGhostJob,
	DetectorIdle,
	DetectorAfterHours,
	DetectorFuelPattern,
}

// DetectorStatus is the outcome of one detector in one run
type DetectorStatus string

const (
	StatusRan         DetectorStatus = "ran"
	StatusUnavailable DetectorStatus = "unavailable" // required source missing
	StatusDisabled    DetectorStatus = "disabled"
	StatusFailed      DetectorStatus = "failed"
)

// DetectorReport tells the caller what each detector did and why
type DetectorReport struct {
	Kind       DetectorKind   `json:"kind"`
	Status     DetectorStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Violations int            `json:"violations"`
	Exempt     int            `json:"exempt,omitempty"` // records skipped for insufficient history or missing fields
	Duration   time.Duration  `json:"duration_ns"`
}

// SourceCoverage is the time span and volume of one loaded source
type SourceCoverage struct {
	Source       fleet.Source `json:"source"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
	RecordCount  int          `json:"record_count"`
	SkippedCount int          `json:"skipped_count"`
}

// Span returns End - Start
func (c SourceCoverage) Span() time.Duration {
	return c.End.Sub(c.Start)
}

// OverlapKind classifies a coverage warning
type OverlapKind string

const (
	OverlapNone    OverlapKind = "no_overlap"
	OverlapLimited OverlapKind = "limited_overlap"
)

// OverlapWarning flags two sources whose time windows barely intersect
type OverlapWarning struct {
	Kind    OverlapKind  `json:"warning_type"`
	SourceA fleet.Source `json:"source_a"`
	SourceB fleet.Source `json:"source_b"`
	Ratio   float64      `json:"overlap_ratio"`
	Message string       `json:"message"`
}

// VehicleImpact is the financial exposure attributed to one vehicle
type VehicleImpact struct {
	VehicleID             string          `json:"vehicle_id"`
	TotalLoss             decimal.Decimal `json:"total_loss"`
	ViolationCount        int             `json:"violation_count"`
	WeeklyEstimate        decimal.Decimal `json:"weekly_estimate"`
	MonthlyEstimate       decimal.Decimal `json:"monthly_estimate"`
	HighestSingleIncident decimal.Decimal `json:"highest_single_incident"`
	ViolationMethods      []string        `json:"violation_methods"`
}

// FinancialSummary aggregates estimated losses over the audited period
type FinancialSummary struct {
	Vehicles             map[string]VehicleImpact `json:"vehicles"`
	TotalFleetLoss       decimal.Decimal          `json:"total_fleet_loss"`
	WeeklyFleetEstimate  decimal.Decimal          `json:"weekly_fleet_estimate"`
	MonthlyFleetEstimate decimal.Decimal          `json:"monthly_fleet_estimate"`
	VehiclesFlagged      int                      `json:"vehicles_flagged"`
	TotalViolations      int                      `json:"total_violations"`
	WorstOffender        string                   `json:"worst_offender,omitempty"`
	PeriodDays           float64                  `json:"period_days"`
}

// Result is everything one audit run produces
type Result struct {
	RunID                  uuid.UUID                                 `json:"run_id"`
	StartedAt              time.Time                                 `json:"started_at"`
	FinishedAt             time.Time                                 `json:"finished_at"`
	ConsolidatedViolations []violation.ConsolidatedViolation         `json:"consolidated_violations"`
	RawViolations          map[DetectorKind][]violation.RawViolation `json:"raw_violations"`
	FinancialSummary       FinancialSummary                          `json:"financial_summary"`
	OverlapWarnings        []OverlapWarning                          `json:"overlap_warnings"`
	Coverage               []SourceCoverage                          `json:"coverage"`
	DataQuality            fleet.DataQuality                         `json:"data_quality"`
	Detectors              []DetectorReport                          `json:"detectors"`
	SkippedRecords         fleet.SkippedCounts                       `json:"skipped_records"`
	DuplicatePings         int                                       `json:"duplicate_pings"`
	UnresolvedVehicles     int                                       `json:"unresolved_vehicles"`
}

// RawCount returns the number of raw findings across all detectors
func (r *Result) RawCount() int {
	n := 0
	for _, vs := range r.RawViolations {
		n += len(vs)
	}
	return n
}

// Report returns the report for a detector, or false if it is missing
func (r *Result) Report(kind DetectorKind) (DetectorReport, bool) {
	for _, d := range r.Detectors {
		if d.Kind == kind {
			return d, true
		}
	}
	return DetectorReport{}, false
}
