package detectors

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
)

const (
	mpgIdleRefillConfidence = 0.9
	mpgHighConfidence       = 0.75
	mpgLowConfidence        = 0.95
	mpgDeviationConfidence  = 0.7
)

// segment is the driving between two consecutive fuel-ups of one vehicle
type segment struct {
	from, to  fleet.FuelTransaction
	miles     float64
	gallons   float64
	estimated bool
	price     decimal.Decimal
}

func (s segment) mpg() float64 {
	return s.miles / s.gallons
}

// detectMPG compares GPS mileage with the fuel bought to cover it
func (e *Engine) detectMPG(ctx context.Context) (Output, error) {
	var out Output
	mp := e.params.MPG

	for _, vehicleID := range e.ds.FuelVehicles() {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if !e.matcher.HasVehicle(vehicleID) {
			continue
		}

		txs := e.ds.FuelFor(vehicleID)
		var trailing []float64

		for i := 1; i < len(txs); i++ {
			seg, ok := e.buildSegment(vehicleID, txs[i-1], txs[i])
			if !ok {
				out.Exempt++
				continue
			}

			if seg.miles < mp.MinMiles {
				out.add(e.idleRefill(seg))
				continue
			}

			mpg := seg.mpg()
			switch {
			case mpg > mp.MaxPlausibleMPG:
				out.add(e.mpgHigh(seg, mpg))
				continue
			case mpg < mp.MinPlausibleMPG:
				out.add(e.mpgLow(seg, mpg))
				continue
			}

			if len(trailing) >= mp.TrailingMin {
				window := trailing
				if len(window) > mp.TrailingWindow {
					window = window[len(window)-mp.TrailingWindow:]
				}
				mean := stat.Mean(window, nil)
				if ratio := math.Abs(mpg-mean) / mean; ratio > mp.DeviationRatio {
					out.add(e.mpgDeviation(seg, mpg, mean, ratio))
				}
			}
			trailing = append(trailing, mpg)
		}
	}

	return out, nil
}

// buildSegment measures the miles between two fuel-ups and the gallons bought at
// the second one. ok is false when the interval has no telemetry or the fill is too small
// (or empty) to judge.
func (e *Engine) buildSegment(vehicleID string, from, to fleet.FuelTransaction) (segment, bool) {
	if len(e.matcher.Between(vehicleID, from.Timestamp, to.Timestamp)) < 2 {
		return segment{}, false
	}
	gallons, estimated := to.EffectiveGallons(e.price)
	if gallons <= 0 || gallons < e.params.MPG.MinGallons {
		return segment{}, false
	}
	return segment{
		from:      from,
		to:        to,
		miles:     e.matcher.PathMiles(vehicleID, from.Timestamp, to.Timestamp),
		gallons:   gallons,
		estimated: estimated,
		price:     to.UnitPrice(e.price),
	}, true
}

func (e *Engine) idleRefill(seg segment) violation.RawViolation {
	v := e.newSegmentFinding(seg, violation.TypeMPGIdleRefill)
	v.Severity = violation.SeverityHigh
	v.Confidence = mpgIdleRefillConfidence
	v.EstimatedLoss = e.lossFromGallons(seg.gallons, seg.price).Mul(decimal.NewFromFloat(e.params.MPG.IdleRefillLossFactor))
	v.Description = fmt.Sprintf("%.1f gallons bought after only %.1f miles driven since the previous fill-up",
		seg.gallons, seg.miles)
	return v
}

func (e *Engine) mpgHigh(seg segment, mpg float64) violation.RawViolation {
	v := e.newSegmentFinding(seg, violation.TypeMPGHigh)
	v.Severity = violation.SeverityMedium
	v.Confidence = mpgHighConfidence
	v.EstimatedLoss = decimal.Zero
	v.Description = fmt.Sprintf("Implausible %.1f MPG (%.1f miles on %.1f gallons) - possible unreported fuel or odometer tampering",
		mpg, seg.miles, seg.gallons)
	v.AddMetric("mpg", mpg)
	return v
}

func (e *Engine) mpgLow(seg segment, mpg float64) violation.RawViolation {
	mp := e.params.MPG
	v := e.newSegmentFinding(seg, violation.TypeMPGLow)
	v.Severity = violation.SeverityHigh
	v.Confidence = mpgLowConfidence
	v.EstimatedLoss = e.lossFromGallons(seg.gallons-seg.miles/mp.BaselineMPG, seg.price)
	v.Description = fmt.Sprintf("Only %.1f MPG (%.1f miles on %.1f gallons) - fuel bought far beyond what was driven",
		mpg, seg.miles, seg.gallons)
	v.AddMetric("mpg", mpg)
	v.AddMetric("baseline_mpg", mp.BaselineMPG)
	return v
}

func (e *Engine) mpgDeviation(seg segment, mpg, mean, ratio float64) violation.RawViolation {
	v := e.newSegmentFinding(seg, violation.TypeMPGDeviation)
	v.Severity = violation.SeverityMedium
	v.Confidence = mpgDeviationConfidence
	v.EstimatedLoss = decimal.Zero
	if mpg < mean {
		v.EstimatedLoss = e.lossFromGallons(seg.gallons-seg.miles/mean, seg.price)
	}
	v.Description = fmt.Sprintf("%.1f MPG is %.0f%% off this vehicle's recent average of %.1f MPG",
		mpg, ratio*100, mean)
	v.AddMetric("mpg", mpg)
	v.AddMetric("trailing_mpg", mean)
	v.AddMetric("deviation_ratio", ratio)
	return v
}

func (e *Engine) newSegmentFinding(seg segment, typ violation.Type) violation.RawViolation {
	v := violation.RawViolation{
		Type:            typ,
		VehicleID:       seg.to.VehicleID,
		DriverID:        seg.to.DriverID,
		Timestamp:       seg.to.Timestamp,
		Location:        locationOf(seg.to.Location),
		DetectionMethod: string(typ),
		Evidence: violation.Evidence{
			Source:    fleet.SourceFuel,
			RecordIDs: []string{seg.from.TransactionID, seg.to.TransactionID},
		},
	}
	v.AddMetric("miles", seg.miles)
	v.AddMetric("gallons", seg.gallons)
	if seg.estimated {
		v.AddMetric("gallons_estimated", 1)
	}
	return v
}
