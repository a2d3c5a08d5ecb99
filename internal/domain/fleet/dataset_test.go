package fleet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-audit/internal/domain/fleet"
	tu "fleet-audit/internal/testutil"
)

func TestNewDataset_DropsMalformedRecords(t *testing.T) {
	negative := -5.0
	badCoords := &fleet.Coordinates{Latitude: 95, Longitude: 0}

	in := fleet.Input{
		GPS: []fleet.GPSPing{
			tu.Ping("V1", tu.At(9, 0), 32.7, -96.8, 10),
			tu.Ping("", tu.At(9, 5), 32.7, -96.8, 10),
			{VehicleID: "V1", Latitude: 32.7, Longitude: -96.8},
			tu.Ping("V1", tu.At(9, 10), 91, -96.8, 10),
			{VehicleID: "V1", Timestamp: tu.At(9, 15), Latitude: 32.7, Longitude: -96.8, Speed: &negative},
		},
		Fuel: []fleet.FuelTransaction{
			tu.Fuel("V1", tu.At(10, 0), 40),
			tu.Fuel("", tu.At(10, 5), 40),
			{VehicleID: "V1", TotalAmount: tu.NullDec(40)},
			{VehicleID: "V1", Timestamp: tu.At(10, 15)},
			tu.Fuel("V1", tu.At(10, 20), -1),
			tu.Fuel("V1", tu.At(10, 25), 40, tu.WithGallons(-2)),
			tu.Fuel("V1", tu.At(10, 30), 40, func(tx *fleet.FuelTransaction) { tx.Location.Coordinates = badCoords }),
		},
		Jobs: []fleet.JobRecord{
			tu.Job("J1", "V1", tu.At(11, 0), 32.7, -96.8),
			{JobID: "J2", VehicleID: "V1", Address: "depot"},
			{JobID: "J3", VehicleID: "V1", ScheduledTime: tu.At(11, 30)},
			{JobID: "J4", VehicleID: "V1", ScheduledTime: tu.At(11, 45), Coordinates: badCoords},
		},
	}

	ds := fleet.NewDataset(in, nil)

	tests := []struct {
		source  fleet.Source
		kept    int
		skipped int
	}{
		{source: fleet.SourceGPS, kept: 1, skipped: 4},
		{source: fleet.SourceFuel, kept: 1, skipped: 6},
		{source: fleet.SourceJobs, kept: 1, skipped: 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			assert.Equal(t, tt.kept, ds.Count(tt.source))
			assert.Equal(t, tt.skipped, ds.Skipped[tt.source])
		})
	}
	assert.Equal(t, 13, ds.Skipped.Total())
}

func TestNewDataset_DuplicatePingsKeepFirst(t *testing.T) {
	ds := tu.Dataset(fleet.Input{GPS: []fleet.GPSPing{
		tu.Ping("V1", tu.At(9, 10), 32.8, -96.8, 0),
		tu.Ping("V1", tu.At(9, 0), 32.7, -96.8, 0),
		tu.Ping("V1", tu.At(9, 0), 40.0, -100.0, 0),
		tu.Ping("V2", tu.At(9, 0), 40.0, -100.0, 0),
	}})

	assert.Equal(t, 1, ds.DuplicatePings)
	assert.Zero(t, ds.Skipped.Total(), "duplicates are not malformed")

	pings := ds.PingsFor("V1")
	require.Len(t, pings, 2)
	assert.Equal(t, tu.At(9, 0), pings[0].Timestamp)
	assert.Equal(t, 32.7, pings[0].Latitude, "first occurrence wins")
	assert.Equal(t, tu.At(9, 10), pings[1].Timestamp)
	assert.Len(t, ds.PingsFor("V2"), 1, "same timestamp on another vehicle is not a duplicate")
}

func TestNewDataset_SynthesizesStableIDs(t *testing.T) {
	build := func(total float64) *fleet.Dataset {
		return tu.Dataset(fleet.Input{
			Fuel: []fleet.FuelTransaction{
				tu.Fuel("V1", tu.At(10, 0), total),
				tu.Fuel("V1", tu.At(11, 0), 30, tu.WithID("EXPORTED-1")),
			},
			Jobs: []fleet.JobRecord{{VehicleID: "V1", ScheduledTime: tu.At(12, 0), Address: "depot"}},
		})
	}

	first, second := build(40), build(40)
	require.Len(t, first.Fuel, 2)

	synthesized := first.Fuel[0].TransactionID
	assert.NotEmpty(t, synthesized)
	assert.Equal(t, synthesized, second.Fuel[0].TransactionID)
	assert.NotEqual(t, synthesized, build(41).Fuel[0].TransactionID)
	assert.Equal(t, "EXPORTED-1", first.Fuel[1].TransactionID)

	assert.NotEmpty(t, first.Jobs[0].JobID)
	assert.Equal(t, first.Jobs[0].JobID, second.Jobs[0].JobID)
}

func TestNewDataset_ResolvesCards(t *testing.T) {
	ds := fleet.NewDataset(fleet.Input{Fuel: []fleet.FuelTransaction{
		tu.Fuel("", tu.At(10, 0), 40, tu.WithCard("C-100")),
		tu.Fuel("", tu.At(11, 0), 40, tu.WithCard("C-999")),
		tu.Fuel(" V2 ", tu.At(12, 0), 40),
	}}, map[string]string{"C-100": "V1"})

	assert.Equal(t, "V1", ds.Fuel[0].VehicleID)
	assert.Equal(t, 1, ds.UnresolvedVehicles)
	assert.Equal(t, []string{"V1", "V2"}, ds.FuelVehicles(), "unresolved cards have no vehicle index")
	assert.Equal(t, "card:C-999", ds.Fuel[1].HolderKey())
}

func TestDataset_AuditedPeriod(t *testing.T) {
	tests := []struct {
		name      string
		in        fleet.Input
		wantOK    bool
		wantStart int // hours after tu.At(0, 0)
		wantEnd   int
	}{
		{name: "nothing loaded"},
		{
			name:      "gps only",
			in:        fleet.Input{GPS: tu.Track("V1", tu.At(8, 0), 0, 1, 32.7, -96.8, 0)},
			wantOK:    true,
			wantStart: 8,
			wantEnd:   8,
		},
		{
			name: "union across sources",
			in: fleet.Input{
				GPS:  append(tu.Track("V1", tu.At(8, 0), 0, 1, 32.7, -96.8, 0), tu.Ping("V1", tu.At(10, 0), 32.7, -96.8, 0)),
				Fuel: []fleet.FuelTransaction{tu.Fuel("V1", tu.At(6, 0), 40)},
				Jobs: []fleet.JobRecord{tu.Job("J1", "V1", tu.Day(1, 9, 0), 32.7, -96.8)},
			},
			wantOK:    true,
			wantStart: 6,
			wantEnd:   33,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := tu.Dataset(tt.in).AuditedPeriod()
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tu.At(tt.wantStart, 0), start)
			assert.Equal(t, tu.At(tt.wantEnd, 0), end)
		})
	}
}

func TestDataset_EmptyAndVehicles(t *testing.T) {
	assert.True(t, tu.Dataset(fleet.Input{GPS: []fleet.GPSPing{tu.Ping("", tu.At(9, 0), 0, 0, 0)}}).Empty())

	ds := tu.Dataset(fleet.Input{
		GPS:  []fleet.GPSPing{tu.Ping("V3", tu.At(9, 0), 32.7, -96.8, 0)},
		Fuel: []fleet.FuelTransaction{tu.Fuel("V1", tu.At(10, 0), 40)},
		Jobs: []fleet.JobRecord{tu.Job("J1", "V2", tu.At(11, 0), 32.7, -96.8)},
	})
	assert.False(t, ds.Empty())
	assert.Equal(t, []string{"V1", "V2", "V3"}, ds.Vehicles())
	assert.Equal(t, []string{"V3"}, ds.GPSVehicles())
}
