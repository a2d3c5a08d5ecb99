package fleet

import (
	"sort"
	"strings"
	"time"
)

// Input carries the three optional record collections handed over by the parsers.
// A nil or empty slice means the source was not loaded.
type Input struct {
	GPS  []GPSPing         `json:"gps,omitempty"`
	Fuel []FuelTransaction `json:"fuel,omitempty"`
	Jobs []JobRecord       `json:"jobs,omitempty"`
}

// SkippedCounts counts records dropped per source because they failed validation
type SkippedCounts map[Source]int

// Total returns the number of dropped records across all sources
func (s SkippedCounts) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Dataset is the validated, ordered view of one audit run's input.
// It is read-only once built and safe for concurrent readers.
type Dataset struct {
	GPS  []GPSPing
	Fuel []FuelTransaction
	Jobs []JobRecord

	Skipped            SkippedCounts
	DuplicatePings     int
	UnresolvedVehicles int // fuel records left with a card but no vehicle

	pingsByVehicle map[string][]GPSPing
	fuelByVehicle  map[string][]FuelTransaction
	vehicles       []string
}

// NewDataset validates and orders the input.
// Malformed records are dropped and counted, duplicate pings keep the first occurrence,
// and cardVehicles fills in vehicle IDs for card-only fuel records.
func NewDataset(in Input, cardVehicles map[string]string) *Dataset {
	ds := &Dataset{
		Skipped:        SkippedCounts{},
		pingsByVehicle: make(map[string][]GPSPing),
		fuelByVehicle:  make(map[string][]FuelTransaction),
	}

	ds.loadGPS(in.GPS)
	ds.loadFuel(in.Fuel, cardVehicles)
	ds.loadJobs(in.Jobs)
	ds.indexVehicles()

	return ds
}

func (ds *Dataset) loadGPS(pings []GPSPing) {
	type pingKey struct {
		vehicle string
		ts      int64
	}
	seen := make(map[pingKey]struct{}, len(pings))

	for _, p := range pings {
		p.VehicleID = strings.TrimSpace(p.VehicleID)
		if err := p.Validate(); err != nil {
			ds.Skipped[SourceGPS]++
			continue
		}
		key := pingKey{vehicle: p.VehicleID, ts: p.Timestamp.UnixNano()}
		if _, dup := seen[key]; dup {
			ds.DuplicatePings++
			continue
		}
		seen[key] = struct{}{}
		ds.GPS = append(ds.GPS, p)
	}

	// Stable sort keeps first-occurrence order for equal keys
	sort.SliceStable(ds.GPS, func(i, j int) bool {
		if ds.GPS[i].VehicleID != ds.GPS[j].VehicleID {
			return ds.GPS[i].VehicleID < ds.GPS[j].VehicleID
		}
		return ds.GPS[i].Timestamp.Before(ds.GPS[j].Timestamp)
	})

	for _, p := range ds.GPS {
		ds.pingsByVehicle[p.VehicleID] = append(ds.pingsByVehicle[p.VehicleID], p)
	}
}

func (ds *Dataset) loadFuel(txns []FuelTransaction, cardVehicles map[string]string) {
	for _, t := range txns {
		t.VehicleID = strings.TrimSpace(t.VehicleID)
		t.CardID = strings.TrimSpace(t.CardID)
		if err := t.Validate(); err != nil {
			ds.Skipped[SourceFuel]++
			continue
		}
		if t.VehicleID == "" {
			if v, ok := cardVehicles[t.CardID]; ok {
				t.VehicleID = v
			} else {
				ds.UnresolvedVehicles++
			}
		}
		if t.TransactionID == "" {
			t.TransactionID = t.synthesizeID()
		}
		ds.Fuel = append(ds.Fuel, t)
	}

	sort.SliceStable(ds.Fuel, func(i, j int) bool {
		if !ds.Fuel[i].Timestamp.Equal(ds.Fuel[j].Timestamp) {
			return ds.Fuel[i].Timestamp.Before(ds.Fuel[j].Timestamp)
		}
		return ds.Fuel[i].TransactionID < ds.Fuel[j].TransactionID
	})

	for _, t := range ds.Fuel {
		if t.VehicleID != "" {
			ds.fuelByVehicle[t.VehicleID] = append(ds.fuelByVehicle[t.VehicleID], t)
		}
	}
}

func (ds *Dataset) loadJobs(jobs []JobRecord) {
	for _, j := range jobs {
		j.VehicleID = strings.TrimSpace(j.VehicleID)
		if err := j.Validate(); err != nil {
			ds.Skipped[SourceJobs]++
			continue
		}
		if j.JobID == "" {
			j.JobID = j.synthesizeID()
		}
		ds.Jobs = append(ds.Jobs, j)
	}

	sort.SliceStable(ds.Jobs, func(i, j int) bool {
		if !ds.Jobs[i].ScheduledTime.Equal(ds.Jobs[j].ScheduledTime) {
			return ds.Jobs[i].ScheduledTime.Before(ds.Jobs[j].ScheduledTime)
		}
		return ds.Jobs[i].JobID < ds.Jobs[j].JobID
	})
}

func (ds *Dataset) indexVehicles() {
	set := make(map[string]struct{})
	for v := range ds.pingsByVehicle {
		set[v] = struct{}{}
	}
	for v := range ds.fuelByVehicle {
		set[v] = struct{}{}
	}
	for _, j := range ds.Jobs {
		if j.VehicleID != "" {
			set[j.VehicleID] = struct{}{}
		}
	}
	ds.vehicles = make([]string, 0, len(set))
	for v := range set {
		ds.vehicles = append(ds.vehicles, v)
	}
	sort.Strings(ds.vehicles)
}

// Has reports whether a source was loaded with at least one valid record
func (ds *Dataset) Has(src Source) bool {
	return ds.Count(src) > 0
}

// Count returns the number of valid records for a source
func (ds *Dataset) Count(src Source) int {
	switch src {
	case SourceGPS:
		return len(ds.GPS)
	case SourceFuel:
		return len(ds.Fuel)
	case SourceJobs:
		return len(ds.Jobs)
	default:
		return 0
	}
}

// Empty reports whether no source carries valid records
func (ds *Dataset) Empty() bool {
	return !ds.Has(SourceGPS) && !ds.Has(SourceFuel) && !ds.Has(SourceJobs)
}

// Vehicles returns every vehicle ID seen in any source, sorted
func (ds *Dataset) Vehicles() []string {
	return ds.vehicles
}

// GPSVehicles returns vehicles that reported telemetry, sorted
func (ds *Dataset) GPSVehicles() []string {
	out := make([]string, 0, len(ds.pingsByVehicle))
	for v := range ds.pingsByVehicle {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// FuelVehicles returns vehicles with at least one resolved fuel purchase, sorted
func (ds *Dataset) FuelVehicles() []string {
	out := make([]string, 0, len(ds.fuelByVehicle))
	for v := range ds.fuelByVehicle {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// PingsFor returns a vehicle's pings in timestamp order
func (ds *Dataset) PingsFor(vehicleID string) []GPSPing {
	return ds.pingsByVehicle[vehicleID]
}

// FuelFor returns a vehicle's fuel purchases in timestamp order
func (ds *Dataset) FuelFor(vehicleID string) []FuelTransaction {
	return ds.fuelByVehicle[vehicleID]
}

// Span returns the first and last timestamp of a source; ok is false when the source is absent
func (ds *Dataset) Span(src Source) (start, end time.Time, ok bool) {
	first := true
	extend := func(ts time.Time) {
		if first {
			start, end, first = ts, ts, false
			return
		}
		if ts.Before(start) {
			start = ts
		}
		if ts.After(end) {
			end = ts
		}
	}

	switch src {
	case SourceGPS:
		for _, p := range ds.GPS {
			extend(p.Timestamp)
		}
	case SourceFuel:
		for _, t := range ds.Fuel {
			extend(t.Timestamp)
		}
	case SourceJobs:
		for _, j := range ds.Jobs {
			extend(j.ScheduledTime)
		}
	}
	return start, end, !first
}

// AuditedPeriod returns the span covered by all loaded sources together
func (ds *Dataset) AuditedPeriod() (start, end time.Time, ok bool) {
	for _, src := range AllSources {
		s, e, has := ds.Span(src)
		if !has {
			continue
		}
		if !ok {
			start, end, ok = s, e, true
			continue
		}
		if s.Before(start) {
			start = s
		}
		if e.After(end) {
			end = e
		}
	}
	return start, end, ok
}
