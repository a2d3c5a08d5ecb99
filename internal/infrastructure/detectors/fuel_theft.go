package detectors

import (
	"context"
	"fmt"
	"math"

	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
)

const (
	fuelTheftNoPingConfidence  = 0.75
	fuelTheftNearMissBase      = 0.6
	fuelTheftNearMissSpan      = 0.35
	fuelTheftNearMissSaturates = 4.0 // ratio-1 at which confidence stops growing
)

// detectFuelTheft flags purchases made while the vehicle was somewhere else
func (e *Engine) detectFuelTheft(ctx context.Context) (Output, error) {
	var out Output
	p := e.params

	for _, tx := range e.ds.Fuel {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if tx.VehicleID == "" || !e.matcher.HasVehicle(tx.VehicleID) {
			out.Exempt++
			continue
		}

		if !tx.Location.HasCoordinates() {
			if v, ok := e.fuelTheftTimeOnly(tx); ok {
				out.add(v)
			}
			continue
		}

		target := *tx.Location.Coordinates
		res := e.matcher.FindNearby(tx.VehicleID, tx.Timestamp, &target, p.TimeThreshold, p.DistanceThresholdMiles)
		if res.Found() {
			continue
		}

		v := e.newFuelTheft(tx)
		nearest, ok := e.matcher.Nearest(tx.VehicleID, tx.Timestamp, target, p.TimeThreshold)
		if !ok {
			v.Severity = violation.SeverityHigh
			v.Confidence = fuelTheftNoPingConfidence
			v.Description = fmt.Sprintf("Fuel purchase of $%s at %s with no GPS signal from %s within %s",
				tx.Amount().StringFixed(2), tx.Location, tx.VehicleID, p.TimeThreshold)
			out.add(v)
			continue
		}

		ratio := nearest.DistanceMiles / p.DistanceThresholdMiles
		v.Confidence = fuelTheftNearMissBase + fuelTheftNearMissSpan*math.Min(1, (ratio-1)/fuelTheftNearMissSaturates)
		v.Severity = violation.SeverityMedium
		if ratio >= 2 {
			v.Severity = violation.SeverityHigh
		}
		v.Description = fmt.Sprintf("Fuel purchase of $%s at %s while %s was %.1f miles away",
			tx.Amount().StringFixed(2), tx.Location, tx.VehicleID, nearest.DistanceMiles)
		v.AddMetric("distance_miles", nearest.DistanceMiles)
		v.AddMetric("distance_ratio", ratio)
		v.AddMetric("ping_offset_minutes", nearest.Offset.Minutes())
		out.add(v)
	}

	return out, nil
}

// fuelTheftTimeOnly handles stations known only by address: without coordinates the
// best available evidence is that the vehicle reported nothing around the purchase.
func (e *Engine) fuelTheftTimeOnly(tx fleet.FuelTransaction) (violation.RawViolation, bool) {
	p := e.params
	res := e.matcher.FindNearby(tx.VehicleID, tx.Timestamp, nil, p.TimeThreshold, p.DistanceThresholdMiles)
	if res.Found() {
		return violation.RawViolation{}, false
	}

	v := e.newFuelTheft(tx)
	v.Severity = violation.SeverityMedium
	v.Confidence = fuelTheftNoPingConfidence * p.LocationUnknownFactor
	v.DetectionMethod = "fuel_theft_time_only"
	v.Description = fmt.Sprintf("Fuel purchase of $%s at %s (location not geocoded) with no GPS signal from %s within %s",
		tx.Amount().StringFixed(2), tx.Location, tx.VehicleID, p.TimeThreshold)
	v.AddMetric("location_checked", 0)
	return v, true
}

func (e *Engine) newFuelTheft(tx fleet.FuelTransaction) violation.RawViolation {
	v := violation.RawViolation{
		Type:            violation.TypeFuelTheft,
		VehicleID:       tx.VehicleID,
		DriverID:        tx.DriverID,
		Timestamp:       tx.Timestamp,
		Location:        locationOf(tx.Location),
		EstimatedLoss:   tx.Amount(),
		DetectionMethod: "fuel_theft_gps",
		Evidence: violation.Evidence{
			Source:    fleet.SourceFuel,
			RecordIDs: []string{tx.TransactionID},
		},
	}
	v.AddMetric("amount", tx.Amount().InexactFloat64())
	return v
}
