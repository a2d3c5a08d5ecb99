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

const idleConfidence = 0.8

// detectIdle finds maximal runs of stationary pings lasting at least the idle threshold
func (e *Engine) detectIdle(ctx context.Context) (Output, error) {
	var out Output

	for _, vehicleID := range e.ds.GPSVehicles() {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		for _, run := range idleRuns(e.ds.PingsFor(vehicleID), e.params.Idle.SpeedMPH) {
			if v, ok := e.idleViolation(vehicleID, run); ok {
				out.add(v)
			}
		}
	}
	return out, nil
}

// idleRuns splits a track into maximal runs of consecutive pings slower than speedMPH.
// A single moving ping ends a run.
func idleRuns(track []fleet.GPSPing, speedMPH float64) [][]fleet.GPSPing {
	var (
		runs  [][]fleet.GPSPing
		start = -1
	)
	for i := range track {
		if spatial.SpeedAt(track, i) < speedMPH {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, track[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, track[start:])
	}
	return runs
}

func (e *Engine) idleViolation(vehicleID string, run []fleet.GPSPing) (violation.RawViolation, bool) {
	ip := e.params.Idle
	first, last := run[0], run[len(run)-1]
	duration := last.Timestamp.Sub(first.Timestamp)
	if duration < ip.Threshold {
		return violation.RawViolation{}, false
	}

	severity := violation.SeverityHigh
	switch {
	case duration < 2*ip.Threshold:
		severity = violation.SeverityLow
	case duration < 4*ip.Threshold:
		severity = violation.SeverityMedium
	}

	gallons := duration.Hours() * ip.GallonsPerHour
	v := violation.RawViolation{
		Type:            violation.TypeIdleAbuse,
		VehicleID:       vehicleID,
		Timestamp:       first.Timestamp,
		Location:        pingLocation(first),
		Severity:        severity,
		Confidence:      idleConfidence,
		EstimatedLoss:   decimal.NewFromFloat(gallons).Mul(e.price),
		DetectionMethod: "idle_gps",
		Description: fmt.Sprintf("%s idled for %s starting %s",
			vehicleID, duration.Round(time.Minute), first.Timestamp.UTC().Format("2006-01-02 15:04")),
		Evidence: violation.Evidence{
			Source:    fleet.SourceGPS,
			RecordIDs: []string{pingRef(first), pingRef(last)},
		},
	}
	v.AddMetric("idle_minutes", duration.Minutes())
	v.AddMetric("pings", float64(len(run)))
	v.AddMetric("fuel_gallons", gallons)
	return v, true
}

// pingRef identifies a ping in evidence; pings carry no ID of their own
func pingRef(p fleet.GPSPing) string {
	return p.VehicleID + "@" + p.Timestamp.UTC().Format(time.RFC3339)
}
