package detectors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
)

const (
	overfillHighFactor       = 1.5 // multiple of tank capacity that makes an overfill high severity
	overfillHighConfidence   = 0.95
	overfillMediumConfidence = 0.85
	mixedOverConfidence      = 0.75
	mixedUnderConfidence     = 0.5
	priceExcessConfidence    = 0.75
	pricePremiumConfidence   = 0.6
	deviationConfidence      = 0.7
	rapidRefillConfidence    = 0.9
	dailyExcessConfidence    = 0.85
	offHoursConfidence       = 0.5
	gpsUncorroboratedBoost   = 0.05
)

// detectEnhancedFuel runs the fuel-card heuristics. GPS is optional and only
// raises confidence for purchases the vehicle's telemetry does not place at the station.
func (e *Engine) detectEnhancedFuel(ctx context.Context) (Output, error) {
	var out Output
	ep := e.params.Enhanced

	for _, tx := range e.ds.Fuel {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if v, ok := e.checkOverfill(tx); ok {
			out.add(e.withGPSBoost(tx, v))
		}
		if v, ok := e.checkMixedPurchase(tx); ok {
			out.add(e.withGPSBoost(tx, v))
		}
		if v, ok := e.checkOffHours(tx); ok {
			out.add(v)
		}
	}

	hits, exempt := behavioralDeviations(e.ds.Fuel, amountsByHolder, ep.MinHistory, ep.DeviationStdDevs, ep.DeviationMinStdFrac)
	out.Exempt += exempt
	for _, h := range hits {
		out.add(e.withGPSBoost(h.tx, e.deviationViolation(h, violation.TypeEnhancedPatternDev, deviationConfidence)))
	}

	for _, vehicleID := range e.ds.FuelVehicles() {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		txs := e.ds.FuelFor(vehicleID)
		capacity := e.params.Tanks.For(vehicleID)

		for _, h := range rapidRefills(txs, ep.RapidRefillWindow, ep.RapidRefillMinFraction, capacity, e.price) {
			out.add(e.withGPSBoost(h.cur, e.rapidRefillViolation(h, capacity, violation.TypeEnhancedRapidRefill, rapidRefillConfidence)))
		}
		out.Violations = append(out.Violations, e.dailyExcess(vehicleID, txs, capacity)...)
	}

	return out, nil
}

func (e *Engine) checkOverfill(tx fleet.FuelTransaction) (violation.RawViolation, bool) {
	gallons, estimated := tx.EffectiveGallons(e.price)
	capacity := e.params.Tanks.For(tx.VehicleID)
	limit := capacity * e.params.Enhanced.OverfillFactor
	if gallons <= limit {
		return violation.RawViolation{}, false
	}

	price := tx.UnitPrice(e.price)
	v := e.newFuelFinding(tx, violation.TypeEnhancedOverfill)
	v.Severity = violation.SeverityMedium
	v.Confidence = overfillMediumConfidence
	if gallons > capacity*overfillHighFactor {
		v.Severity = violation.SeverityHigh
		v.Confidence = overfillHighConfidence
	}
	v.EstimatedLoss = e.lossFromGallons(gallons-capacity, price)
	v.Description = fmt.Sprintf("Purchase of %.1f gallons exceeds the %.0f gallon tank of %s",
		gallons, capacity, reportingVehicle(tx))
	v.AddMetric("gallons", gallons)
	v.AddMetric("tank_capacity", capacity)
	if estimated {
		v.AddMetric("gallons_estimated", 1)
	}
	return v, true
}

func (e *Engine) checkMixedPurchase(tx fleet.FuelTransaction) (violation.RawViolation, bool) {
	if !tx.HasGallons() {
		return violation.RawViolation{}, false
	}
	if !tx.HasPrice() {
		return e.checkMarketPrice(tx)
	}
	ep := e.params.Enhanced

	expected := tx.Gallons.Decimal.Mul(tx.PricePerGallon.Decimal)
	diff := tx.Amount().Sub(expected)
	tolerance := decimal.Max(
		decimal.NewFromFloat(ep.PriceToleranceAbs),
		expected.Mul(decimal.NewFromFloat(ep.PriceTolerancePct)),
	)
	if diff.Abs().LessThanOrEqual(tolerance) {
		return violation.RawViolation{}, false
	}

	v := e.newFuelFinding(tx, violation.TypeEnhancedMixedPurchase)
	if diff.IsPositive() {
		v.Severity = violation.SeverityMedium
		v.Confidence = mixedOverConfidence
		v.EstimatedLoss = diff
		v.Description = fmt.Sprintf("Ticket total $%s is $%s more than %s gallons at $%s - likely includes non-fuel items",
			tx.Amount().StringFixed(2), diff.StringFixed(2), tx.Gallons.Decimal.StringFixed(1), tx.PricePerGallon.Decimal.StringFixed(3))
	} else {
		v.Severity = violation.SeverityLow
		v.Confidence = mixedUnderConfidence
		v.EstimatedLoss = decimal.Zero
		v.Description = fmt.Sprintf("Ticket total $%s is $%s less than %s gallons at $%s",
			tx.Amount().StringFixed(2), diff.Abs().StringFixed(2), tx.Gallons.Decimal.StringFixed(1), tx.PricePerGallon.Decimal.StringFixed(3))
	}
	v.AddMetric("expected_amount", expected.InexactFloat64())
	v.AddMetric("difference", diff.InexactFloat64())
	return v, true
}

// checkMarketPrice judges tickets exported without a per-gallon price by the implied
// price against the fleet fuel price: a total far above the expected range points to
// non-fuel items, a merely high $/gal to premium fuel or extras.
func (e *Engine) checkMarketPrice(tx fleet.FuelTransaction) (violation.RawViolation, bool) {
	ep := e.params.Enhanced
	amount := tx.Amount()
	if !amount.IsPositive() {
		return violation.RawViolation{}, false
	}

	gallons := tx.Gallons.Decimal
	implied := amount.Div(gallons)
	ceiling := e.price.Add(decimal.NewFromFloat(ep.MarketPriceTolerance))
	maxExpected := gallons.Mul(ceiling)

	var v violation.RawViolation
	switch {
	case amount.GreaterThan(maxExpected.Mul(decimal.NewFromFloat(ep.PriceExcessFactor))):
		excess := amount.Sub(maxExpected)
		v = e.newFuelFinding(tx, violation.TypeEnhancedMixedPurchase)
		v.DetectionMethod = "enhanced_fuel_price_excess"
		v.Severity = violation.SeverityMedium
		v.Confidence = priceExcessConfidence
		v.EstimatedLoss = excess
		v.Description = fmt.Sprintf("Ticket total $%s is $%s more than expected for %s gallons ($%s/gal vs about $%s/gal) - likely includes non-fuel items",
			amount.StringFixed(2), excess.StringFixed(2), gallons.StringFixed(1), implied.StringFixed(2), e.price.StringFixed(2))
	case implied.GreaterThan(e.price.Add(decimal.NewFromFloat(ep.PricePremium))):
		v = e.newFuelFinding(tx, violation.TypeEnhancedPricePremium)
		v.Severity = violation.SeverityLow
		v.Confidence = pricePremiumConfidence
		v.EstimatedLoss = decimal.Max(decimal.Zero, amount.Sub(maxExpected))
		v.Description = fmt.Sprintf("Implied price of $%s/gal against about $%s/gal - premium fuel or extras on the ticket",
			implied.StringFixed(2), e.price.StringFixed(2))
	default:
		return violation.RawViolation{}, false
	}

	v.AddMetric("implied_price_per_gallon", implied.InexactFloat64())
	v.AddMetric("expected_max_amount", maxExpected.InexactFloat64())
	return v, true
}

func (e *Engine) checkOffHours(tx fleet.FuelTransaction) (violation.RawViolation, bool) {
	if e.clock.IsBusinessTime(tx.Timestamp) {
		return violation.RawViolation{}, false
	}
	local := e.clock.Local(tx.Timestamp)

	v := e.newFuelFinding(tx, violation.TypeEnhancedOffHours)
	v.Severity = violation.SeverityLow
	v.Confidence = offHoursConfidence
	v.EstimatedLoss = decimal.Zero
	v.Description = fmt.Sprintf("Fuel purchase on %s at %s, outside business hours",
		local.Weekday(), local.Format("15:04"))
	v.AddMetric("local_hour", float64(local.Hour()))
	if !e.clock.IsBusinessDay(tx.Timestamp) {
		v.AddMetric("non_business_day", 1)
	}
	return v, true
}

func (e *Engine) deviationViolation(h deviationHit, typ violation.Type, confidence float64) violation.RawViolation {
	v := e.newFuelFinding(h.tx, typ)
	v.Severity = violation.SeverityMedium
	v.Confidence = confidence
	v.EstimatedLoss = h.tx.Amount().Sub(decimal.NewFromFloat(h.mean))
	v.Description = fmt.Sprintf("Purchase of $%s is %.1f standard deviations above the usual $%.2f for %s",
		h.tx.Amount().StringFixed(2), h.zScore, h.mean, h.tx.HolderKey())
	v.AddMetric("z_score", h.zScore)
	v.AddMetric("mean_amount", h.mean)
	v.AddMetric("std_dev", h.stdDev)
	v.AddMetric("history", float64(h.history))
	return v
}

func (e *Engine) rapidRefillViolation(h refillHit, capacity float64, typ violation.Type, confidence float64) violation.RawViolation {
	v := e.newFuelFinding(h.cur, typ)
	v.Evidence.RecordIDs = []string{h.prev.TransactionID, h.cur.TransactionID}
	v.Severity = violation.SeverityHigh
	v.Confidence = confidence
	v.EstimatedLoss = h.cur.Amount().Mul(decimal.NewFromFloat(e.params.Enhanced.RapidRefillLossFactor))
	v.Description = fmt.Sprintf("Refill of %.1f gallons only %s after a %.1f gallon fill on a %.0f gallon tank",
		h.curGallons, h.gap.Round(time.Minute), h.prevGallons, capacity)
	v.AddMetric("gap_hours", h.gap.Hours())
	v.AddMetric("previous_gallons", h.prevGallons)
	v.AddMetric("gallons", h.curGallons)
	if h.estimated {
		v.AddMetric("gallons_estimated", 1)
	}
	return v
}

// dailyExcess flags local days on which one vehicle bought more than its tank could reasonably use
func (e *Engine) dailyExcess(vehicleID string, txs []fleet.FuelTransaction, capacity float64) []violation.RawViolation {
	type day struct {
		txs     []fleet.FuelTransaction
		gallons float64
	}
	var (
		order []string
		days  = make(map[string]*day)
	)
	for _, tx := range txs {
		key := e.clock.Local(tx.Timestamp).Format("2006-01-02")
		d, ok := days[key]
		if !ok {
			d = &day{}
			days[key] = d
			order = append(order, key)
		}
		g, _ := tx.EffectiveGallons(e.price)
		d.txs = append(d.txs, tx)
		d.gallons += g
	}

	limit := capacity * e.params.Enhanced.DailyExcessFactor
	var out []violation.RawViolation
	for _, key := range order {
		d := days[key]
		if len(d.txs) < 2 || d.gallons <= limit {
			continue
		}
		first := d.txs[0]
		ids := make([]string, 0, len(d.txs))
		for _, tx := range d.txs {
			ids = append(ids, tx.TransactionID)
		}

		v := e.newFuelFinding(first, violation.TypeEnhancedDailyExcess)
		v.Location = &fleet.Location{Address: "Multiple locations"}
		v.Evidence.RecordIDs = ids
		v.Severity = violation.SeverityMedium
		v.Confidence = dailyExcessConfidence
		v.EstimatedLoss = e.lossFromGallons(d.gallons-limit, e.price)
		v.Description = fmt.Sprintf("%d purchases on %s totaling %.1f gallons for %s (tank %.0f gallons)",
			len(d.txs), key, d.gallons, vehicleID, capacity)
		v.AddMetric("gallons", d.gallons)
		v.AddMetric("purchases", float64(len(d.txs)))
		out = append(out, v)
	}
	return out
}

// withGPSBoost raises confidence when the vehicle has telemetry that does not place it at the purchase
func (e *Engine) withGPSBoost(tx fleet.FuelTransaction, v violation.RawViolation) violation.RawViolation {
	if tx.VehicleID == "" || !e.matcher.HasVehicle(tx.VehicleID) {
		return v
	}
	p := e.params
	res := e.matcher.FindNearby(tx.VehicleID, tx.Timestamp, tx.Location.Coordinates, p.TimeThreshold, p.DistanceThresholdMiles)
	if res.Found() {
		return v
	}
	v.Confidence = math.Min(1, v.Confidence+gpsUncorroboratedBoost)
	v.AddMetric("gps_uncorroborated", 1)
	return v
}

func (e *Engine) newFuelFinding(tx fleet.FuelTransaction, typ violation.Type) violation.RawViolation {
	v := violation.RawViolation{
		Type:            typ,
		VehicleID:       reportingVehicle(tx),
		DriverID:        tx.DriverID,
		Timestamp:       tx.Timestamp,
		Location:        locationOf(tx.Location),
		DetectionMethod: string(typ),
		Evidence: violation.Evidence{
			Source:    fleet.SourceFuel,
			RecordIDs: []string{tx.TransactionID},
		},
	}
	v.AddMetric("amount", tx.Amount().InexactFloat64())
	return v
}
