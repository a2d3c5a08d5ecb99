package impact

import (
	"sort"

	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
)

const (
	daysPerWeek  = 7
	daysPerMonth = 30.4
	minDays      = 1.0
)

// PeriodDays returns the audited span across loaded sources in days, never less than one
func PeriodDays(ds *fleet.Dataset) float64 {
	start, end, ok := ds.AuditedPeriod()
	if !ok {
		return minDays
	}
	days := end.Sub(start).Hours() / 24
	if days < minDays {
		return minDays
	}
	return days
}

// Estimate totals incident losses per vehicle and for the fleet, and projects them
// to weekly and monthly rates over the audited period. Each incident counts its
// consolidated loss once.
func Estimate(incidents []violation.ConsolidatedViolation, periodDays float64) audit.FinancialSummary {
	if periodDays < minDays {
		periodDays = minDays
	}
	days := decimal.NewFromFloat(periodDays)
	weekly := func(total decimal.Decimal) decimal.Decimal {
		return total.Mul(decimal.NewFromInt(daysPerWeek)).Div(days).Round(2)
	}
	monthly := func(total decimal.Decimal) decimal.Decimal {
		return total.Mul(decimal.NewFromFloat(daysPerMonth)).Div(days).Round(2)
	}

	summary := audit.FinancialSummary{
		Vehicles:        make(map[string]audit.VehicleImpact),
		TotalFleetLoss:  decimal.Zero,
		TotalViolations: len(incidents),
		PeriodDays:      periodDays,
	}

	methods := make(map[string]map[string]struct{})
	for _, c := range incidents {
		vi, ok := summary.Vehicles[c.VehicleID]
		if !ok {
			vi = audit.VehicleImpact{
				VehicleID:             c.VehicleID,
				TotalLoss:             decimal.Zero,
				HighestSingleIncident: decimal.Zero,
			}
			methods[c.VehicleID] = make(map[string]struct{})
		}
		vi.TotalLoss = vi.TotalLoss.Add(c.EstimatedLoss)
		vi.ViolationCount++
		vi.HighestSingleIncident = decimal.Max(vi.HighestSingleIncident, c.EstimatedLoss)
		for _, m := range c.DetectionMethods {
			methods[c.VehicleID][m] = struct{}{}
		}
		summary.Vehicles[c.VehicleID] = vi
		summary.TotalFleetLoss = summary.TotalFleetLoss.Add(c.EstimatedLoss)
	}

	vehicleIDs := make([]string, 0, len(summary.Vehicles))
	for id := range summary.Vehicles {
		vehicleIDs = append(vehicleIDs, id)
	}
	sort.Strings(vehicleIDs)

	worst := decimal.Zero
	for _, id := range vehicleIDs {
		vi := summary.Vehicles[id]
		vi.WeeklyEstimate = weekly(vi.TotalLoss)
		vi.MonthlyEstimate = monthly(vi.TotalLoss)
		vi.ViolationMethods = make([]string, 0, len(methods[id]))
		for m := range methods[id] {
			vi.ViolationMethods = append(vi.ViolationMethods, m)
		}
		sort.Strings(vi.ViolationMethods)
		summary.Vehicles[id] = vi

		if summary.WorstOffender == "" || vi.TotalLoss.GreaterThan(worst) {
			summary.WorstOffender = id
			worst = vi.TotalLoss
		}
	}

	summary.VehiclesFlagged = len(summary.Vehicles)
	summary.WeeklyFleetEstimate = weekly(summary.TotalFleetLoss)
	summary.MonthlyFleetEstimate = monthly(summary.TotalFleetLoss)
	return summary
}
