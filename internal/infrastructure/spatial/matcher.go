package spatial

import (
	"math"
	"sort"
	"time"

	"fleet-audit/internal/domain/fleet"
)

const earthRadiusMiles = 3958.8

// HaversineMiles returns the great-circle distance between two points in statute miles
func HaversineMiles(a, b fleet.Coordinates) float64 {
	lat1Rad := a.Latitude * math.Pi / 180
	lat2Rad := b.Latitude * math.Pi / 180
	deltaLat := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMiles * c
}

// Match is a ping found near a target event
type Match struct {
	Ping          fleet.GPSPing
	DistanceMiles float64 // 0 when the location was not checked
	Offset        time.Duration
}

// MatchResult holds the pings that satisfied a query.
// LocationChecked is false when the target had no coordinates and only time was compared.
type MatchResult struct {
	Matches         []Match
	LocationChecked bool
}

// Found reports whether at least one ping matched
func (r MatchResult) Found() bool {
	return len(r.Matches) > 0
}

// Matcher answers "was this vehicle near X around time T" over a dataset.
// It only reads the dataset and is safe for concurrent use.
type Matcher struct {
	ds *fleet.Dataset
}

// NewMatcher creates a matcher over the dataset's per-vehicle ping index
func NewMatcher(ds *fleet.Dataset) *Matcher {
	return &Matcher{ds: ds}
}

// HasVehicle reports whether the vehicle reported any telemetry
func (m *Matcher) HasVehicle(vehicleID string) bool {
	return len(m.ds.PingsFor(vehicleID)) > 0
}

// InWindow returns the vehicle's pings with timestamps in [t-window, t+window], in time order
func (m *Matcher) InWindow(vehicleID string, t time.Time, window time.Duration) []fleet.GPSPing {
	return m.Between(vehicleID, t.Add(-window), t.Add(window))
}

// Between returns the vehicle's pings with timestamps in [from, to], in time order
func (m *Matcher) Between(vehicleID string, from, to time.Time) []fleet.GPSPing {
	pings := m.ds.PingsFor(vehicleID)
	lo := sort.Search(len(pings), func(i int) bool {
		return !pings[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(pings), func(i int) bool {
		return pings[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil
	}
	return pings[lo:hi]
}

// FindNearby returns the vehicle's pings within window of t and within radiusMiles of target.
// A nil target degrades to a time-only match.
// Matches are ordered by timestamp, ties broken by distance.
func (m *Matcher) FindNearby(vehicleID string, t time.Time, target *fleet.Coordinates, window time.Duration, radiusMiles float64) MatchResult {
	candidates := m.InWindow(vehicleID, t, window)
	res := MatchResult{LocationChecked: target != nil}

	for _, p := range candidates {
		mt := Match{Ping: p, Offset: p.Timestamp.Sub(t)}
		if target != nil {
			mt.DistanceMiles = HaversineMiles(p.Coordinates(), *target)
			if mt.DistanceMiles > radiusMiles {
				continue
			}
		}
		res.Matches = append(res.Matches, mt)
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		a, b := res.Matches[i], res.Matches[j]
		if !a.Ping.Timestamp.Equal(b.Ping.Timestamp) {
			return a.Ping.Timestamp.Before(b.Ping.Timestamp)
		}
		return a.DistanceMiles < b.DistanceMiles
	})
	return res
}

// Nearest returns the in-window ping closest to target regardless of radius.
// ok is false when the vehicle has no ping in the window.
func (m *Matcher) Nearest(vehicleID string, t time.Time, target fleet.Coordinates, window time.Duration) (Match, bool) {
	var best Match
	found := false
	for _, p := range m.InWindow(vehicleID, t, window) {
		d := HaversineMiles(p.Coordinates(), target)
		if !found || d < best.DistanceMiles {
			best = Match{Ping: p, DistanceMiles: d, Offset: p.Timestamp.Sub(t)}
			found = true
		}
	}
	return best, found
}

// PathMiles sums the distance between consecutive pings in [from, to]
func (m *Matcher) PathMiles(vehicleID string, from, to time.Time) float64 {
	return PathMiles(m.Between(vehicleID, from, to))
}

// PathMiles sums the distance between consecutive pings of an ordered track
func PathMiles(track []fleet.GPSPing) float64 {
	total := 0.0
	for i := 1; i < len(track); i++ {
		total += HaversineMiles(track[i-1].Coordinates(), track[i].Coordinates())
	}
	return total
}

// ImpliedSpeedMPH returns the speed implied by two consecutive pings.
// Zero-length intervals report 0.
func ImpliedSpeedMPH(prev, cur fleet.GPSPing) float64 {
	hours := cur.Timestamp.Sub(prev.Timestamp).Hours()
	if hours <= 0 {
		return 0
	}
	return HaversineMiles(prev.Coordinates(), cur.Coordinates()) / hours
}

// SpeedAt returns the reported speed of track[i], or the speed implied by the previous ping
// when the tracker did not report one. The first ping of a track without a reported speed
// takes the speed implied towards the next ping.
func SpeedAt(track []fleet.GPSPing, i int) float64 {
	if s := track[i].Speed; s != nil {
		return *s
	}
	switch {
	case i > 0:
		return ImpliedSpeedMPH(track[i-1], track[i])
	case len(track) > 1:
		return ImpliedSpeedMPH(track[0], track[1])
	default:
		return 0
	}
}
