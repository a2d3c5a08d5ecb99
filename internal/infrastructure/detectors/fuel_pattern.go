package detectors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
)

const (
	unusualTimeConfidence = 0.6
	unusualSiteConfidence = 0.55
	volumeConfidence      = 0.7
)

// detectFuelPatterns is the fallback for fleets without telemetry. It reuses the
// behavioral checks of the enhanced detector and adds time and station unusualness;
// every finding is discounted because nothing corroborates it.
func (e *Engine) detectFuelPatterns(ctx context.Context) (Output, error) {
	var out Output
	ep := e.params.Enhanced
	fp := e.params.FuelPattern

	hits, exempt := behavioralDeviations(e.ds.Fuel, amountsByHolder, ep.MinHistory, ep.DeviationStdDevs, ep.DeviationMinStdFrac)
	out.Exempt += exempt
	for _, h := range hits {
		out.add(e.deviationViolation(h, violation.TypeFuelPatternDeviation, deviationConfidence))
	}

	// volumes are only trustworthy once the export reports gallons on most tickets
	if e.quality.Tier >= fleet.TierNoPrice {
		volumes, _ := behavioralDeviations(e.ds.Fuel, gallonsByVehicle, ep.MinHistory, ep.DeviationStdDevs, ep.DeviationMinStdFrac)
		for _, h := range volumes {
			out.add(e.volumeViolation(h))
		}
	}

	for _, tx := range e.ds.Fuel {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if v, ok := e.checkUnusualTime(tx); ok {
			out.add(v)
		}
	}

	for _, vehicleID := range e.ds.FuelVehicles() {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		txs := e.ds.FuelFor(vehicleID)
		capacity := e.params.Tanks.For(vehicleID)

		for _, h := range rapidRefills(txs, fp.RapidWindow, ep.RapidRefillMinFraction, capacity, e.price) {
			out.add(e.rapidRefillViolation(h, capacity, violation.TypeFuelPatternRapidRefill, rapidRefillConfidence))
		}
		out.Violations = append(out.Violations, e.unusualSites(vehicleID, txs)...)
	}

	for i := range out.Violations {
		out.Violations[i].Confidence *= fp.ConfidenceFactor
	}
	return out, nil
}

func (e *Engine) volumeViolation(h deviationHit) violation.RawViolation {
	v := e.newFuelFinding(h.tx, violation.TypeFuelPatternVolume)
	v.Severity = violation.SeverityHigh
	v.Confidence = volumeConfidence
	v.EstimatedLoss = e.lossFromGallons(h.value-h.mean, h.tx.UnitPrice(e.price))
	v.Description = fmt.Sprintf("Unusually large purchase of %.1f gallons for %s (normal %.1f +/- %.1f)",
		h.value, reportingVehicle(h.tx), h.mean, h.stdDev)
	v.AddMetric("gallons", h.value)
	v.AddMetric("mean_gallons", h.mean)
	v.AddMetric("z_score", h.zScore)
	v.AddMetric("history", float64(h.history))
	return v
}

func (e *Engine) checkUnusualTime(tx fleet.FuelTransaction) (violation.RawViolation, bool) {
	fp := e.params.FuelPattern
	local := e.clock.Local(tx.Timestamp)
	quiet := inQuietHours(local.Hour(), fp.QuietStartHour, fp.QuietEndHour)
	workday := e.clock.IsBusinessDay(tx.Timestamp)
	if !quiet && workday {
		return violation.RawViolation{}, false
	}

	v := e.newFuelFinding(tx, violation.TypeFuelPatternUnusualTime)
	v.Severity = violation.SeverityLow
	v.Confidence = unusualTimeConfidence
	v.EstimatedLoss = decimal.Zero
	v.Description = fmt.Sprintf("Fuel purchase of $%s on %s at %s", tx.Amount().StringFixed(2), local.Weekday(), local.Format("15:04"))
	v.AddMetric("local_hour", float64(local.Hour()))
	if !workday {
		v.AddMetric("non_business_day", 1)
	}
	return v, true
}

// inQuietHours reports whether hour lies in [start, end), wrapping past midnight when start > end
func inQuietHours(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

// unusualSites flags one-off stations for vehicles that otherwise spread their purchases
// across several regular stations
func (e *Engine) unusualSites(vehicleID string, txs []fleet.FuelTransaction) []violation.RawViolation {
	fp := e.params.FuelPattern
	if len(txs) < fp.MinPurchasesForSites {
		return nil
	}

	visits := make(map[string][]fleet.FuelTransaction)
	for _, tx := range txs {
		key := siteKey(tx.Location)
		if key == "" {
			continue
		}
		visits[key] = append(visits[key], tx)
	}
	if len(visits) < fp.MinDistinctSites {
		return nil
	}

	keys := make([]string, 0, len(visits))
	for k := range visits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []violation.RawViolation
	for _, k := range keys {
		if len(visits[k]) != 1 {
			continue
		}
		tx := visits[k][0]
		v := e.newFuelFinding(tx, violation.TypeFuelPatternUnusualSite)
		v.Severity = violation.SeverityLow
		v.Confidence = unusualSiteConfidence
		v.EstimatedLoss = decimal.Zero
		v.Description = fmt.Sprintf("Only purchase by %s at %s out of %d purchases at %d stations",
			vehicleID, tx.Location, len(txs), len(visits))
		v.AddMetric("stations", float64(len(visits)))
		out = append(out, v)
	}
	return out
}

// siteKey normalizes a station: coordinates rounded to ~100 m, else the lower-cased address
func siteKey(l fleet.Location) string {
	if l.HasCoordinates() {
		return fmt.Sprintf("%.3f,%.3f", l.Coordinates.Latitude, l.Coordinates.Longitude)
	}
	return strings.ToLower(strings.Join(strings.Fields(l.Address), " "))
}
