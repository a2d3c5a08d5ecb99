package detectors

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
	tu "fleet-audit/internal/testutil"
)

const (
	baseLat = 32.7767
	baseLon = -96.7970
)

func newTestEngine(t *testing.T, in fleet.Input, tweaks ...func(*audit.Params)) *Engine {
	t.Helper()
	p := audit.DefaultParams()
	for _, tweak := range tweaks {
		tweak(&p)
	}
	require.NoError(t, p.Validate())

	e, err := NewEngine(fleet.NewDataset(in, p.CardVehicles), p)
	require.NoError(t, err)
	return e
}

func runDetector(t *testing.T, e *Engine, kind audit.DetectorKind) Output {
	t.Helper()
	out, err := e.Run(context.Background(), kind)
	require.NoError(t, err)
	return out
}

func ofType(vs []violation.RawViolation, typ violation.Type) []violation.RawViolation {
	var out []violation.RawViolation
	for _, v := range vs {
		if v.Type == typ {
			out = append(out, v)
		}
	}
	return out
}

func TestEngine_Availability(t *testing.T) {
	gps := []fleet.GPSPing{tu.Ping("V1", tu.At(10, 0), baseLat, baseLon, 0)}
	fuel := []fleet.FuelTransaction{tu.FullFuel("V1", tu.At(10, 0), 10, 3.5, baseLat, baseLon)}
	jobs := []fleet.JobRecord{tu.Job("J1", "V1", tu.At(10, 0), baseLat, baseLon)}

	tests := []struct {
		name     string
		input    fleet.Input
		tweak    func(*audit.Params)
		expected map[audit.DetectorKind]audit.DetectorStatus
	}{
		{
			name:  "all sources",
			input: fleet.Input{GPS: gps, Fuel: fuel, Jobs: jobs},
			expected: map[audit.DetectorKind]audit.DetectorStatus{
				audit.DetectorFuelTheft:    audit.StatusRan,
				audit.DetectorEnhancedFuel: audit.StatusRan,
				audit.DetectorMPG:          audit.StatusRan,
				audit.DetectorGhostJob:     audit.StatusRan,
				audit.DetectorIdle:         audit.StatusRan,
				audit.DetectorAfterHours:   audit.StatusRan,
				audit.DetectorFuelPattern:  audit.StatusUnavailable,
			},
		},
		{
			name:  "fuel only",
			input: fleet.Input{Fuel: fuel},
			expected: map[audit.DetectorKind]audit.DetectorStatus{
				audit.DetectorFuelTheft:    audit.StatusUnavailable,
				audit.DetectorEnhancedFuel: audit.StatusRan,
				audit.DetectorMPG:          audit.StatusUnavailable,
				audit.DetectorGhostJob:     audit.StatusUnavailable,
				audit.DetectorIdle:         audit.StatusUnavailable,
				audit.DetectorAfterHours:   audit.StatusUnavailable,
				audit.DetectorFuelPattern:  audit.StatusRan,
			},
		},
		{
			name:  "GPS and jobs",
			input: fleet.Input{GPS: gps, Jobs: jobs},
			expected: map[audit.DetectorKind]audit.DetectorStatus{
				audit.DetectorFuelTheft:    audit.StatusUnavailable,
				audit.DetectorEnhancedFuel: audit.StatusUnavailable,
				audit.DetectorGhostJob:     audit.StatusRan,
				audit.DetectorIdle:         audit.StatusRan,
				audit.DetectorAfterHours:   audit.StatusRan,
				audit.DetectorFuelPattern:  audit.StatusUnavailable,
			},
		},
		{
			name:  "optional detectors switched off",
			input: fleet.Input{GPS: gps, Fuel: fuel},
			tweak: func(p *audit.Params) {
				p.Features = audit.Features{}
			},
			expected: map[audit.DetectorKind]audit.DetectorStatus{
				audit.DetectorFuelTheft:    audit.StatusRan,
				audit.DetectorEnhancedFuel: audit.StatusDisabled,
				audit.DetectorMPG:          audit.StatusDisabled,
				audit.DetectorFuelPattern:  audit.StatusDisabled,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tweaks []func(*audit.Params)
			if tt.tweak != nil {
				tweaks = append(tweaks, tt.tweak)
			}
			e := newTestEngine(t, tt.input, tweaks...)
			for kind, status := range tt.expected {
				rep, runnable := e.Availability(kind)
				assert.Equal(t, status, rep.Status, "detector %s", kind)
				assert.Equal(t, status == audit.StatusRan, runnable, "detector %s", kind)
				if status != audit.StatusRan {
					assert.NotEmpty(t, rep.Reason, "detector %s", kind)
				}
			}
		})
	}
}

func TestEngine_RunUnknownDetector(t *testing.T) {
	e := newTestEngine(t, fleet.Input{})
	_, err := e.Run(context.Background(), audit.DetectorKind("astrology"))
	assert.ErrorIs(t, err, ErrUnknownDetector)
}

func TestEngine_RunHonoursCancellation(t *testing.T) {
	e := newTestEngine(t, fleet.Input{
		GPS: tu.Track("V1", tu.At(10, 0), 0, 1, baseLat, baseLon, 0),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, audit.DetectorIdle)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_QualityMultiplierScalesConfidence(t *testing.T) {
	// amount-only fuel export: tier 1, multiplier 0.6
	e := newTestEngine(t, fleet.Input{
		GPS:  []fleet.GPSPing{tu.Ping("V1", tu.At(8, 0), baseLat, baseLon, 0)},
		Fuel: []fleet.FuelTransaction{tu.Fuel("V1", tu.At(14, 0), 40, tu.WithCoords(baseLat, baseLon))},
	})
	assert.Equal(t, fleet.TierAmountOnly, e.Quality().Tier)

	out := runDetector(t, e, audit.DetectorFuelTheft)
	require.Len(t, out.Violations, 1)
	assert.InDelta(t, 0.75*0.6, out.Violations[0].Confidence, 1e-9)
}

func TestEngine_FindingsAreSealed(t *testing.T) {
	e := newTestEngine(t, fleet.Input{
		Fuel: []fleet.FuelTransaction{tu.FullFuel("V1", tu.At(10, 0), 60, 3.5, baseLat, baseLon)},
	})

	first := runDetector(t, e, audit.DetectorEnhancedFuel)
	second := runDetector(t, e, audit.DetectorEnhancedFuel)
	require.NotEmpty(t, first.Violations)
	for i, v := range first.Violations {
		assert.NotEqual(t, uuid.Nil, v.ID)
		assert.Equal(t, v.ID, second.Violations[i].ID, "IDs are deterministic")
		assert.True(t, v.EstimatedLoss.Equal(v.EstimatedLoss.Round(2)), "loss rounded to cents")
		assert.False(t, v.EstimatedLoss.IsNegative())
	}
}
