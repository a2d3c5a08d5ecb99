package detectors

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
	"fleet-audit/internal/infrastructure/spatial"
)

// Output is what one detector produced
type Output struct {
	Violations []violation.RawViolation
	Exempt     int // records that could not be evaluated (missing fields, short history)
}

func (o *Output) add(v violation.RawViolation) {
	o.Violations = append(o.Violations, v)
}

// Engine runs the fixed set of detectors against one dataset.
// Everything it holds is read-only after NewEngine, so Run may be called concurrently.
type Engine struct {
	ds      *fleet.Dataset
	matcher *spatial.Matcher
	params  audit.Params
	clock   audit.Clock
	quality fleet.DataQuality
	price   decimal.Decimal
}

// NewEngine prepares detectors for a dataset. params must already be validated.
func NewEngine(ds *fleet.Dataset, params audit.Params) (*Engine, error) {
	clock, err := params.BusinessHours.Clock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audit.ErrInvalidParams, err)
	}
	return &Engine{
		ds:      ds,
		matcher: spatial.NewMatcher(ds),
		params:  params,
		clock:   clock,
		quality: fleet.AssessQuality(ds.Fuel),
		price:   params.FuelPriceDecimal(),
	}, nil
}

// Quality returns the fuel data-quality assessment used to scale confidence
func (e *Engine) Quality() fleet.DataQuality {
	return e.quality
}

// Availability decides whether a detector can run on this dataset.
// runnable is false when a required source is missing or the detector is switched off;
// the returned report then carries the reason.
func (e *Engine) Availability(kind audit.DetectorKind) (report audit.DetectorReport, runnable bool) {
	report = audit.DetectorReport{Kind: kind}
	hasGPS := e.ds.Has(fleet.SourceGPS)
	hasFuel := e.ds.Has(fleet.SourceFuel)
	hasJobs := e.ds.Has(fleet.SourceJobs)
	f := e.params.Features

	unavailable := func(reason string) (audit.DetectorReport, bool) {
		report.Status = audit.StatusUnavailable
		report.Reason = reason
		return report, false
	}
	disabled := func() (audit.DetectorReport, bool) {
		report.Status = audit.StatusDisabled
		report.Reason = "disabled by configuration"
		return report, false
	}

	switch kind {
	case audit.DetectorFuelTheft:
		if !hasGPS || !hasFuel {
			return unavailable("requires GPS and fuel data")
		}
	case audit.DetectorEnhancedFuel:
		if !f.EnhancedFuel {
			return disabled()
		}
		if !hasFuel {
			return unavailable("requires fuel data")
		}
	case audit.DetectorMPG:
		if !f.MPG {
			return disabled()
		}
		if !hasGPS || !hasFuel {
			return unavailable("requires GPS and fuel data")
		}
	case audit.DetectorGhostJob:
		if !hasGPS || !hasJobs {
			return unavailable("requires GPS and job data")
		}
	case audit.DetectorIdle, audit.DetectorAfterHours:
		if !hasGPS {
			return unavailable("requires GPS data")
		}
	case audit.DetectorFuelPattern:
		if !f.FuelPatternOnly {
			return disabled()
		}
		if !hasFuel {
			return unavailable("requires fuel data")
		}
		if hasGPS {
			return unavailable("GPS data present; GPS correlation replaces fuel-only analysis")
		}
	default:
		return unavailable("unknown detector")
	}

	report.Status = audit.StatusRan
	return report, true
}

// Run executes one detector and returns its sealed findings
func (e *Engine) Run(ctx context.Context, kind audit.DetectorKind) (Output, error) {
	var (
		out Output
		err error
	)

	switch kind {
	case audit.DetectorFuelTheft:
		out, err = e.detectFuelTheft(ctx)
	case audit.DetectorEnhancedFuel:
		out, err = e.detectEnhancedFuel(ctx)
	case audit.DetectorMPG:
		out, err = e.detectMPG(ctx)
	case audit.DetectorGhostJob:
		out, err = e.detectGhostJobs(ctx)
	case audit.DetectorIdle:
		out, err = e.detectIdle(ctx)
	case audit.DetectorAfterHours:
		out, err = e.detectAfterHours(ctx)
	case audit.DetectorFuelPattern:
		out, err = e.detectFuelPatterns(ctx)
	default:
		return Output{}, fmt.Errorf("%w: %s", ErrUnknownDetector, kind)
	}
	if err != nil {
		return Output{}, err
	}

	mult := e.quality.ConfidenceMultiplier
	for i := range out.Violations {
		out.Violations[i].Confidence *= mult
		out.Violations[i] = out.Violations[i].Sealed()
	}
	violation.SortRaw(out.Violations)
	return out, nil
}

// lossFromGallons prices a gallon figure at the fallback fuel price
func (e *Engine) lossFromGallons(gallons float64, price decimal.Decimal) decimal.Decimal {
	if gallons <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(gallons).Mul(price)
}

// locationOf returns a copy of a record location suitable for a finding
func locationOf(l fleet.Location) *fleet.Location {
	loc := l
	return &loc
}

func pingLocation(p fleet.GPSPing) *fleet.Location {
	c := p.Coordinates()
	return &fleet.Location{Coordinates: &c}
}
