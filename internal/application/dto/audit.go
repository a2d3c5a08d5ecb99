package dto

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
)

// RunAuditRequest is the body of POST /api/v1/audits.
// Params is an optional partial override; fields it omits keep their configured values.
type RunAuditRequest struct {
	GPS    []fleet.GPSPing         `json:"gps,omitempty"`
	Fuel   []fleet.FuelTransaction `json:"fuel,omitempty"`
	Jobs   []fleet.JobRecord       `json:"jobs,omitempty"`
	Params json.RawMessage         `json:"params,omitempty"`
}

// ToInput converts the request into engine input and the parameters to run with.
// A nil *audit.Params means the defaults apply unchanged.
func (r RunAuditRequest) ToInput(defaults audit.Params) (fleet.Input, *audit.Params, error) {
	in := fleet.Input{GPS: r.GPS, Fuel: r.Fuel, Jobs: r.Jobs}
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return in, nil, nil
	}

	p := cloneParams(defaults)
	if err := json.Unmarshal(r.Params, &p); err != nil {
		return in, nil, fmt.Errorf("%w: %v", audit.ErrInvalidParams, err)
	}
	return in, &p, nil
}

// cloneParams copies the reference-typed fields so decoding an override
// never writes through to the shared defaults
func cloneParams(p audit.Params) audit.Params {
	p.Tanks.PerVehicle = maps.Clone(p.Tanks.PerVehicle)
	p.CardVehicles = maps.Clone(p.CardVehicles)
	p.BusinessHours.Days = slices.Clone(p.BusinessHours.Days)
	return p
}

// RunSummary is one row of GET /api/v1/audits
type RunSummary struct {
	RunID           uuid.UUID       `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Incidents       int             `json:"incidents"`
	RawFindings     int             `json:"raw_findings"`
	VehiclesFlagged int             `json:"vehicles_flagged"`
	WorstOffender   string          `json:"worst_offender,omitempty"`
	TotalFleetLoss  decimal.Decimal `json:"total_fleet_loss"`
	MonthlyEstimate decimal.Decimal `json:"monthly_fleet_estimate"`
	FailedDetectors []string        `json:"failed_detectors,omitempty"`
}

// NewRunSummary condenses a stored run
func NewRunSummary(r *audit.Result) RunSummary {
	s := RunSummary{
		RunID:           r.RunID,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Incidents:       len(r.ConsolidatedViolations),
		RawFindings:     r.RawCount(),
		VehiclesFlagged: r.FinancialSummary.VehiclesFlagged,
		WorstOffender:   r.FinancialSummary.WorstOffender,
		TotalFleetLoss:  r.FinancialSummary.TotalFleetLoss,
		MonthlyEstimate: r.FinancialSummary.MonthlyFleetEstimate,
	}
	for _, d := range r.Detectors {
		if d.Status == audit.StatusFailed {
			s.FailedDetectors = append(s.FailedDetectors, string(d.Kind))
		}
	}
	return s
}

// RunList is the body of GET /api/v1/audits
type RunList struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// NewRunList builds the list response
func NewRunList(results []*audit.Result) RunList {
	runs := make([]RunSummary, 0, len(results))
	for _, r := range results {
		runs = append(runs, NewRunSummary(r))
	}
	return RunList{Runs: runs, Count: len(runs)}
}
