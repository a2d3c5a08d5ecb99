package detectors

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
	tu "fleet-audit/internal/testutil"
)

const milesPerDegree = 69.0945

func TestDetectMPG_Segments(t *testing.T) {
	fills := func(secondGallons float64) []fleet.FuelTransaction {
		return []fleet.FuelTransaction{
			tu.FullFuel("V1", tu.At(8, 0), 10, 3.5, baseLat, baseLon, tu.WithID("F1")),
			tu.FullFuel("V1", tu.At(16, 0), secondGallons, 3.5, baseLat, baseLon, tu.WithID("F2")),
		}
	}

	tests := []struct {
		name     string
		gps      []fleet.GPSPing
		fuel     []fleet.FuelTransaction
		expected violation.Type
		severity violation.Severity
		loss     float64
	}{
		{
			name: "vehicle never moved",
			gps: []fleet.GPSPing{
				tu.Ping("V1", tu.At(8, 0), baseLat, baseLon, 0),
				tu.Ping("V1", tu.At(12, 0), baseLat, baseLon, 0),
				tu.Ping("V1", tu.At(16, 0), baseLat, baseLon, 0),
			},
			fuel:     fills(15),
			expected: violation.TypeMPGIdleRefill,
			severity: violation.SeverityHigh,
			loss:     15 * 3.5 * 0.8,
		},
		{
			name: "far too much fuel for the miles",
			gps: []fleet.GPSPing{
				tu.Ping("V1", tu.At(8, 0), baseLat, baseLon, 0),
				tu.Ping("V1", tu.At(9, 0), baseLat+0.1, baseLon, 40),
				tu.Ping("V1", tu.At(10, 0), baseLat+0.2, baseLon, 40),
				tu.Ping("V1", tu.At(11, 0), baseLat+0.3, baseLon, 40),
				tu.Ping("V1", tu.At(16, 0), baseLat+0.3, baseLon, 0),
			},
			fuel:     fills(15),
			expected: violation.TypeMPGLow,
			severity: violation.SeverityHigh,
			loss:     (15 - 0.3*milesPerDegree/10.5) * 3.5,
		},
		{
			name: "implausibly good economy",
			gps: []fleet.GPSPing{
				tu.Ping("V1", tu.At(8, 0), baseLat, baseLon, 0),
				tu.Ping("V1", tu.At(16, 0), baseLat+3, baseLon, 0),
			},
			fuel:     fills(5),
			expected: violation.TypeMPGHigh,
			severity: violation.SeverityMedium,
			loss:     0,
		},
		{
			name: "ordinary driving",
			gps: []fleet.GPSPing{
				tu.Ping("V1", tu.At(8, 0), baseLat, baseLon, 0),
				tu.Ping("V1", tu.At(16, 0), baseLat+1.5, baseLon, 0),
			},
			fuel: fills(10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, fleet.Input{GPS: tt.gps, Fuel: tt.fuel})
			out := runDetector(t, e, audit.DetectorMPG)

			if tt.expected == "" {
				assert.Empty(t, out.Violations)
				return
			}
			require.Len(t, out.Violations, 1)
			v := out.Violations[0]
			assert.Equal(t, tt.expected, v.Type)
			assert.Equal(t, tt.severity, v.Severity)
			assert.InDelta(t, tt.loss, v.EstimatedLoss.InexactFloat64(), 0.05)
			assert.Equal(t, []string{"F1", "F2"}, v.Evidence.RecordIDs)
		})
	}
}

func TestDetectMPG_TrailingDeviation(t *testing.T) {
	// 10 gallons per fill; 10 MPG for three segments then 5 MPG
	step := 100 / milesPerDegree
	lats := []float64{baseLat, baseLat + step, baseLat + 2*step, baseLat + 3*step, baseLat + 3.5*step}

	var (
		gps  []fleet.GPSPing
		fuel []fleet.FuelTransaction
	)
	for day, lat := range lats {
		ts := tu.Day(day, 8, 0)
		gps = append(gps, tu.Ping("V1", ts, lat, baseLon, 0))
		fuel = append(fuel, tu.FullFuel("V1", ts, 10, 3.5, lat, baseLon))
	}

	e := newTestEngine(t, fleet.Input{GPS: gps, Fuel: fuel})
	out := runDetector(t, e, audit.DetectorMPG)

	require.Len(t, out.Violations, 1)
	v := out.Violations[0]
	assert.Equal(t, violation.TypeMPGDeviation, v.Type)
	assert.Equal(t, violation.SeverityMedium, v.Severity)
	assert.Equal(t, tu.Day(4, 8, 0), v.Timestamp)
	assert.InDelta(t, 0.5, v.Evidence.Metrics["deviation_ratio"], 0.01)
	assert.InDelta(t, 5*3.5, v.EstimatedLoss.InexactFloat64(), 0.05)
}

func TestDetectMPG_SkipsUnjudgeableSegments(t *testing.T) {
	e := newTestEngine(t, fleet.Input{
		GPS: []fleet.GPSPing{tu.Ping("V1", tu.At(12, 0), baseLat, baseLon, 0)},
		Fuel: []fleet.FuelTransaction{
			tu.FullFuel("V1", tu.At(8, 0), 10, 3.5, baseLat, baseLon),
			tu.FullFuel("V1", tu.At(16, 0), 12, 3.5, baseLat, baseLon),   // one ping only: no mileage
			tu.FullFuel("V1", tu.Day(1, 8, 0), 2, 3.5, baseLat, baseLon), // top-up below the minimum
		},
	})

	out := runDetector(t, e, audit.DetectorMPG)
	assert.Empty(t, out.Violations)
	assert.Equal(t, 2, out.Exempt)
}

func TestDetectMPG_EmptyFillIsNotJudged(t *testing.T) {
	p := audit.DefaultParams()
	p.MPG.MinGallons = 0 // rejected by Validate; the guard must hold regardless

	ds := fleet.NewDataset(fleet.Input{
		GPS: []fleet.GPSPing{
			tu.Ping("V1", tu.At(8, 0), baseLat, baseLon, 0),
			tu.Ping("V1", tu.At(16, 0), baseLat+12/milesPerDegree, baseLon, 0),
		},
		Fuel: []fleet.FuelTransaction{
			tu.FullFuel("V1", tu.At(8, 0), 12, 3.5, baseLat, baseLon),
			tu.Fuel("V1", tu.At(16, 0), 0),
		},
	}, nil)
	e, err := NewEngine(ds, p)
	require.NoError(t, err)

	out := runDetector(t, e, audit.DetectorMPG)
	assert.Empty(t, out.Violations)
	assert.Equal(t, 1, out.Exempt)

	_, err = json.Marshal(out.Violations)
	assert.NoError(t, err)
}
