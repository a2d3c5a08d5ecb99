package detectors

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
	"fleet-audit/internal/infrastructure/spatial"
)

const (
	afterHoursConfidence  = 0.85
	afterHoursMediumMiles = 5.0
	afterHoursHighMiles   = 50.0
)

// detectAfterHours groups moving pings outside business hours into excursions
func (e *Engine) detectAfterHours(ctx context.Context) (Output, error) {
	var out Output
	ap := e.params.AfterHours

	for _, vehicleID := range e.ds.GPSVehicles() {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		track := e.ds.PingsFor(vehicleID)

		var excursion []fleet.GPSPing
		flush := func() {
			if len(excursion) > 0 {
				out.add(e.afterHoursViolation(vehicleID, excursion))
				excursion = nil
			}
		}

		for i, p := range track {
			if spatial.SpeedAt(track, i) <= ap.MovingSpeedMPH || e.clock.IsBusinessTime(p.Timestamp) {
				continue
			}
			if n := len(excursion); n > 0 && p.Timestamp.Sub(excursion[n-1].Timestamp) > ap.MergeGap {
				flush()
			}
			excursion = append(excursion, p)
		}
		flush()
	}
	return out, nil
}

func (e *Engine) afterHoursViolation(vehicleID string, excursion []fleet.GPSPing) violation.RawViolation {
	first, last := excursion[0], excursion[len(excursion)-1]
	miles := e.matcher.PathMiles(vehicleID, first.Timestamp, last.Timestamp)

	severity := violation.SeverityLow
	switch {
	case miles >= afterHoursHighMiles:
		severity = violation.SeverityHigh
	case miles >= afterHoursMediumMiles:
		severity = violation.SeverityMedium
	}

	local := e.clock.Local(first.Timestamp)
	v := violation.RawViolation{
		Type:            violation.TypeAfterHours,
		VehicleID:       vehicleID,
		Timestamp:       first.Timestamp,
		Location:        pingLocation(first),
		Severity:        severity,
		Confidence:      afterHoursConfidence,
		EstimatedLoss:   decimal.NewFromFloat(miles).Mul(decimal.NewFromFloat(e.params.AfterHours.CostPerMile)),
		DetectionMethod: "after_hours_gps",
		Description: fmt.Sprintf("%s drove %.1f miles outside business hours on %s from %s for %s",
			vehicleID, miles, local.Weekday(), local.Format("15:04"), last.Timestamp.Sub(first.Timestamp).Round(time.Minute)),
		Evidence: violation.Evidence{
			Source:    fleet.SourceGPS,
			RecordIDs: []string{pingRef(first), pingRef(last)},
		},
	}
	v.AddMetric("miles", miles)
	v.AddMetric("moving_pings", float64(len(excursion)))
	v.AddMetric("local_hour", float64(local.Hour()))
	if !e.clock.IsBusinessDay(first.Timestamp) {
		v.AddMetric("non_business_day", 1)
	}
	return v
}
