package detectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
	tu "fleet-audit/internal/testutil"
)

func withTank(vehicleID string, gallons float64) func(*audit.Params) {
	return func(p *audit.Params) {
		p.Tanks.PerVehicle = map[string]float64{vehicleID: gallons}
	}
}

func TestEnhancedFuel_Overfill(t *testing.T) {
	tests := []struct {
		name     string
		gallons  float64
		expected []violation.Severity
	}{
		{name: "within tank", gallons: 30, expected: nil},
		{name: "within the 5% allowance", gallons: 36.5, expected: nil},
		{name: "just over the allowance", gallons: 40, expected: []violation.Severity{violation.SeverityMedium}},
		{name: "far over the tank", gallons: 60, expected: []violation.Severity{violation.SeverityHigh}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, fleet.Input{
				Fuel: []fleet.FuelTransaction{tu.FullFuel("V42", tu.At(14, 0), tt.gallons, 3.5, baseLat, baseLon)},
			}, withTank("V42", 35))

			out := runDetector(t, e, audit.DetectorEnhancedFuel)
			hits := ofType(out.Violations, violation.TypeEnhancedOverfill)
			require.Len(t, hits, len(tt.expected))
			for i, sev := range tt.expected {
				assert.Equal(t, sev, hits[i].Severity)
				assert.GreaterOrEqual(t, hits[i].Severity.Rank(), violation.SeverityMedium.Rank())
				assert.True(t, hits[i].EstimatedLoss.Equal(tu.Dec((tt.gallons-35)*3.5)), "got %s", hits[i].EstimatedLoss)
			}
		})
	}
}

func TestEnhancedFuel_OverfillOnlyFinding(t *testing.T) {
	e := newTestEngine(t, fleet.Input{
		GPS:  []fleet.GPSPing{tu.Ping("V42", tu.At(14, 2), baseLat, baseLon, 0)},
		Fuel: []fleet.FuelTransaction{tu.FullFuel("V42", tu.At(14, 0), 60, 3.5, baseLat, baseLon)},
	}, withTank("V42", 35))

	out := runDetector(t, e, audit.DetectorEnhancedFuel)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, violation.TypeEnhancedOverfill, out.Violations[0].Type)
	assert.InDelta(t, 0.95, out.Violations[0].Confidence, 1e-9, "GPS places the vehicle at the pump, no boost")
}

func TestEnhancedFuel_GPSMismatchRaisesConfidence(t *testing.T) {
	e := newTestEngine(t, fleet.Input{
		GPS:  []fleet.GPSPing{tu.Ping("V42", tu.At(14, 2), baseLat+1, baseLon, 0)},
		Fuel: []fleet.FuelTransaction{tu.FullFuel("V42", tu.At(14, 0), 40, 3.5, baseLat, baseLon)},
	}, withTank("V42", 35))

	out := runDetector(t, e, audit.DetectorEnhancedFuel)
	hits := ofType(out.Violations, violation.TypeEnhancedOverfill)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.85+0.05, hits[0].Confidence, 1e-9)
}

func TestEnhancedFuel_MixedPurchase(t *testing.T) {
	tests := []struct {
		name     string
		total    float64
		expected violation.Severity
		loss     float64
	}{
		{name: "matching ticket", total: 35.00},
		{name: "within a dollar", total: 35.90},
		{name: "snacks on the ticket", total: 50.00, expected: violation.SeverityMedium, loss: 15},
		{name: "undercharged", total: 20.00, expected: violation.SeverityLow, loss: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := tu.Fuel("V1", tu.At(10, 0), tt.total, tu.WithGallons(10), tu.WithPrice(3.5), tu.WithCoords(baseLat, baseLon))
			e := newTestEngine(t, fleet.Input{Fuel: []fleet.FuelTransaction{tx}})

			hits := ofType(runDetector(t, e, audit.DetectorEnhancedFuel).Violations, violation.TypeEnhancedMixedPurchase)
			if tt.expected == "" {
				assert.Empty(t, hits)
				return
			}
			require.Len(t, hits, 1)
			assert.Equal(t, tt.expected, hits[0].Severity)
			assert.True(t, hits[0].EstimatedLoss.Equal(tu.Dec(tt.loss)), "got %s", hits[0].EstimatedLoss)
		})
	}
}

func TestEnhancedFuel_BehavioralDeviation(t *testing.T) {
	amounts := []float64{40, 42, 38, 41, 39, 90}
	var fuel []fleet.FuelTransaction
	for i, a := range amounts {
		// weekdays only so no off-hours findings
		fuel = append(fuel, tu.Fuel("V1", tu.Day(i%5, 10, 0).Add(time.Duration(i/5)*7*24*time.Hour), a, tu.WithDriver("D1")))
	}

	e := newTestEngine(t, fleet.Input{Fuel: fuel})
	out := runDetector(t, e, audit.DetectorEnhancedFuel)

	hits := ofType(out.Violations, violation.TypeEnhancedPatternDev)
	require.Len(t, hits, 1)
	assert.Equal(t, violation.SeverityMedium, hits[0].Severity)
	assert.True(t, hits[0].EstimatedLoss.Equal(tu.Dec(50)), "loss is amount minus the mean, got %s", hits[0].EstimatedLoss)
	assert.Greater(t, hits[0].Evidence.Metrics["z_score"], 3.0)
	assert.Equal(t, 5, out.Exempt, "first five purchases have too little history")
}

func TestEnhancedFuel_DeviationNeedsHistory(t *testing.T) {
	var fuel []fleet.FuelTransaction
	for i, a := range []float64{40, 41, 39, 90} {
		fuel = append(fuel, tu.Fuel("V1", tu.Day(i, 10, 0), a, tu.WithDriver("D1")))
	}

	e := newTestEngine(t, fleet.Input{Fuel: fuel})
	out := runDetector(t, e, audit.DetectorEnhancedFuel)
	assert.Empty(t, ofType(out.Violations, violation.TypeEnhancedPatternDev))
	assert.Equal(t, 4, out.Exempt)
}

func TestEnhancedFuel_RapidRefillAndDailyExcess(t *testing.T) {
	e := newTestEngine(t, fleet.Input{
		Fuel: []fleet.FuelTransaction{
			tu.FullFuel("V1", tu.At(9, 0), 20, 3.5, baseLat, baseLon, tu.WithID("T1")),
			tu.FullFuel("V1", tu.At(11, 0), 20, 3.5, baseLat, baseLon, tu.WithID("T2")),
		},
	})
	out := runDetector(t, e, audit.DetectorEnhancedFuel)

	rapid := ofType(out.Violations, violation.TypeEnhancedRapidRefill)
	require.Len(t, rapid, 1)
	assert.Equal(t, violation.SeverityHigh, rapid[0].Severity)
	assert.Equal(t, []string{"T1", "T2"}, rapid[0].Evidence.RecordIDs)
	assert.True(t, rapid[0].EstimatedLoss.Equal(tu.Dec(35)), "half the second ticket, got %s", rapid[0].EstimatedLoss)

	daily := ofType(out.Violations, violation.TypeEnhancedDailyExcess)
	require.Len(t, daily, 1)
	assert.Equal(t, violation.SeverityMedium, daily[0].Severity)
	assert.Equal(t, "9.38", daily[0].EstimatedLoss.StringFixed(2), "2.5 gallons over the daily limit at the fallback price")
}

func TestEnhancedFuel_RapidRefillNeedsLargeFills(t *testing.T) {
	e := newTestEngine(t, fleet.Input{
		Fuel: []fleet.FuelTransaction{
			tu.FullFuel("V1", tu.At(9, 0), 20, 3.5, baseLat, baseLon),
			tu.FullFuel("V1", tu.At(11, 0), 5, 3.5, baseLat, baseLon),
			tu.FullFuel("V1", tu.At(17, 0), 20, 3.5, baseLat, baseLon),
		},
	})
	out := runDetector(t, e, audit.DetectorEnhancedFuel)
	assert.Empty(t, ofType(out.Violations, violation.TypeEnhancedRapidRefill))
}

func TestEnhancedFuel_OffHours(t *testing.T) {
	saturday := tu.Day(5, 2, 0)
	e := newTestEngine(t, fleet.Input{
		Fuel: []fleet.FuelTransaction{
			tu.FullFuel("V7", saturday, 10, 3.5, baseLat, baseLon),
			tu.FullFuel("V7", tu.At(10, 0), 10, 3.5, baseLat, baseLon),
		},
	})
	out := runDetector(t, e, audit.DetectorEnhancedFuel)

	hits := ofType(out.Violations, violation.TypeEnhancedOffHours)
	require.Len(t, hits, 1)
	assert.Equal(t, saturday, hits[0].Timestamp)
	assert.Equal(t, violation.SeverityLow, hits[0].Severity)
	assert.True(t, hits[0].EstimatedLoss.IsZero())
	assert.Equal(t, 1.0, hits[0].Evidence.Metrics["non_business_day"])
}

func TestEnhancedFuel_MarketPriceWithoutUnitPrice(t *testing.T) {
	tests := []struct {
		name     string
		total    float64
		expected violation.Type
		method   string
		severity violation.Severity
		loss     float64
	}{
		{name: "ordinary ticket", total: 37.50},
		{name: "below the premium margin", total: 47.00},
		{name: "premium fuel or extras", total: 50.00, expected: violation.TypeEnhancedPricePremium,
			method: "enhanced_fuel_price_premium", severity: violation.SeverityLow, loss: 10},
		{name: "non-fuel items on the ticket", total: 95.00, expected: violation.TypeEnhancedMixedPurchase,
			method: "enhanced_fuel_price_excess", severity: violation.SeverityMedium, loss: 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 10 gallons, no unit price: judged against $3.75 +/- $0.25
			tx := tu.Fuel("V1", tu.At(10, 0), tt.total, tu.WithGallons(10), tu.WithCoords(baseLat, baseLon))
			e := newTestEngine(t, fleet.Input{Fuel: []fleet.FuelTransaction{tx}})
			out := runDetector(t, e, audit.DetectorEnhancedFuel)

			premium := ofType(out.Violations, violation.TypeEnhancedPricePremium)
			mixed := ofType(out.Violations, violation.TypeEnhancedMixedPurchase)
			if tt.expected == "" {
				assert.Empty(t, premium)
				assert.Empty(t, mixed)
				return
			}

			hits := ofType(out.Violations, tt.expected)
			require.Len(t, hits, 1)
			assert.Len(t, append(premium, mixed...), 1, "one price finding per ticket")
			assert.Equal(t, tt.method, hits[0].DetectionMethod)
			assert.Equal(t, tt.severity, hits[0].Severity)
			assert.True(t, hits[0].EstimatedLoss.Equal(tu.Dec(tt.loss)), "got %s", hits[0].EstimatedLoss)
			assert.InDelta(t, tt.total/10, hits[0].Evidence.Metrics["implied_price_per_gallon"], 1e-9)
		})
	}
}

func TestEnhancedFuel_SpikeAfterSteadyHistory(t *testing.T) {
	var fuel []fleet.FuelTransaction
	for i := 0; i < 5; i++ {
		fuel = append(fuel, tu.Fuel("V1", tu.Day(i, 10, 0), 40, tu.WithDriver("D1")))
	}
	fuel = append(fuel, tu.Fuel("V1", tu.Day(7, 10, 0), 120, tu.WithDriver("D1")))

	e := newTestEngine(t, fleet.Input{Fuel: fuel})
	hits := ofType(runDetector(t, e, audit.DetectorEnhancedFuel).Violations, violation.TypeEnhancedPatternDev)

	require.Len(t, hits, 1)
	assert.InDelta(t, 2.0, hits[0].Evidence.Metrics["std_dev"], 1e-9, "floored at 5% of the $40 mean")
	assert.InDelta(t, 40.0, hits[0].Evidence.Metrics["z_score"], 1e-9)
	assert.True(t, hits[0].EstimatedLoss.Equal(tu.Dec(80)), "got %s", hits[0].EstimatedLoss)
}

func TestBehavioralDeviations_SteadyHistoryWithoutFloor(t *testing.T) {
	var fuel []fleet.FuelTransaction
	for i := 0; i < 5; i++ {
		fuel = append(fuel, tu.Fuel("V1", tu.Day(i, 10, 0), 40))
	}
	fuel = append(fuel, tu.Fuel("V1", tu.Day(7, 10, 0), 120))

	hits, exempt := behavioralDeviations(fuel, amountsByHolder, 5, 3, 0)
	assert.Empty(t, hits, "zero spread cannot be scored")
	assert.Equal(t, 5, exempt)
}
