package fleet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fleet-audit/internal/domain/fleet"
	tu "fleet-audit/internal/testutil"
)

func TestAssessQuality(t *testing.T) {
	const lat, lon = 32.7767, -96.797

	amountOnly := tu.Fuel("V1", tu.At(10, 0), 40)
	gallonsOnly := tu.Fuel("V1", tu.At(11, 0), 35, tu.WithGallons(10), tu.WithCoords(lat, lon))
	complete := tu.FullFuel("V1", tu.At(12, 0), 10, 3.5, lat, lon)

	const (
		suggestGallons = "Export gallons per transaction to enable tank-capacity and MPG checks"
		suggestPrice   = "Include price per gallon so mixed fuel and non-fuel tickets can be detected"
		suggestCoords  = "Include station coordinates or full addresses so purchases can be matched against GPS"
	)

	tests := []struct {
		name        string
		fuel        []fleet.FuelTransaction
		tier        fleet.QualityTier
		multiplier  float64
		suggestions []string
	}{
		{name: "no fuel", tier: fleet.TierNone, multiplier: 1.0},
		{
			name:        "amounts only",
			fuel:        []fleet.FuelTransaction{amountOnly, amountOnly},
			tier:        fleet.TierAmountOnly,
			multiplier:  0.6,
			suggestions: []string{suggestGallons, suggestPrice, suggestCoords},
		},
		{
			name:        "gallons on some tickets",
			fuel:        []fleet.FuelTransaction{amountOnly, gallonsOnly},
			tier:        fleet.TierPartial,
			multiplier:  0.75,
			suggestions: []string{suggestGallons, suggestPrice, suggestCoords},
		},
		{
			name:        "gallons without price",
			fuel:        []fleet.FuelTransaction{gallonsOnly, gallonsOnly, gallonsOnly},
			tier:        fleet.TierNoPrice,
			multiplier:  0.9,
			suggestions: []string{suggestPrice},
		},
		{
			name:       "complete export",
			fuel:       []fleet.FuelTransaction{complete, complete},
			tier:       fleet.TierComplete,
			multiplier: 1.0,
		},
		{
			name:        "complete at the coverage cutoff",
			fuel:        []fleet.FuelTransaction{complete, complete, complete, complete, amountOnly},
			tier:        fleet.TierComplete,
			multiplier:  1.0,
			suggestions: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := fleet.AssessQuality(tt.fuel)

			assert.Equal(t, tt.tier, q.Tier)
			assert.InDelta(t, tt.multiplier, q.ConfidenceMultiplier, 1e-9)
			assert.Equal(t, tt.multiplier, tt.tier.Multiplier())
			assert.Equal(t, tt.suggestions, q.Suggestions)
			assert.Equal(t, len(tt.fuel), q.TotalRecords)
			assert.NotEmpty(t, q.Description)
		})
	}
}
