package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"fleet-audit/internal/domain/fleet"
)

// ErrEmptyAddress is returned for blank lookups
var ErrEmptyAddress = errors.New("empty address")

// Geocoder resolves a free-text address to coordinates.
// found is false when the address is unknown; err is reserved for lookup failures.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (coords fleet.Coordinates, found bool, err error)
}

// Normalize folds an address into a lookup key: lower case, punctuation dropped,
// whitespace collapsed
func Normalize(address string) string {
	var b strings.Builder
	b.Grow(len(address))
	space := false
	for _, r := range strings.ToLower(address) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == ',' || r == '-' || r == '/':
			space = true
		}
	}
	return b.String()
}

// StaticGeocoder answers from a fixed table of known sites (stations, depots, customer addresses)
type StaticGeocoder struct {
	sites map[string]fleet.Coordinates
}

// NewStaticGeocoder creates a geocoder over sites keyed by address
func NewStaticGeocoder(sites map[string]fleet.Coordinates) *StaticGeocoder {
	g := &StaticGeocoder{sites: make(map[string]fleet.Coordinates, len(sites))}
	for addr, c := range sites {
		if key := Normalize(addr); key != "" && c.Valid() {
			g.sites[key] = c
		}
	}
	return g
}

// Geocode looks the normalized address up in the table
func (g *StaticGeocoder) Geocode(_ context.Context, address string) (fleet.Coordinates, bool, error) {
	key := Normalize(address)
	if key == "" {
		return fleet.Coordinates{}, false, ErrEmptyAddress
	}
	c, ok := g.sites[key]
	return c, ok, nil
}

// Len returns the number of usable sites
func (g *StaticGeocoder) Len() int {
	return len(g.sites)
}

// Entry is a cached geocoding outcome; misses are cached too
type Entry struct {
	Coordinates fleet.Coordinates `json:"coordinates"`
	Found       bool              `json:"found"`
}

// Cache stores outcomes by normalized address
type Cache interface {
	Lookup(ctx context.Context, key string) (entry Entry, hit bool, err error)
	Store(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// CachedGeocoder consults the cache before the wrapped geocoder.
// Cache failures degrade to a direct lookup.
type CachedGeocoder struct {
	next  Geocoder
	cache Cache
	ttl   time.Duration
}

// NewCachedGeocoder wraps next with cache
func NewCachedGeocoder(next Geocoder, cache Cache, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, cache: cache, ttl: ttl}
}

// Geocode implements Geocoder
func (g *CachedGeocoder) Geocode(ctx context.Context, address string) (fleet.Coordinates, bool, error) {
	key := Normalize(address)
	if key == "" {
		return fleet.Coordinates{}, false, ErrEmptyAddress
	}

	if e, hit, err := g.cache.Lookup(ctx, key); err == nil && hit {
		return e.Coordinates, e.Found, nil
	}

	c, found, err := g.next.Geocode(ctx, address)
	if err != nil {
		return fleet.Coordinates{}, false, fmt.Errorf("geocode %q: %w", address, err)
	}
	// best effort, the answer is still good without the cache
	_ = g.cache.Store(ctx, key, Entry{Coordinates: c, Found: found}, g.ttl)
	return c, found, nil
}

// Stats counts what ResolveInput did. Records whose lookup failed are also Unresolved.
type Stats struct {
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

// ResolveInput fills coordinates for fuel purchases and jobs that only carry an address.
// Records that cannot be resolved keep their text-only location so matching falls back
// to time-only checks. The caller's slices are not modified.
// A cancelled context stops the pass and returns its error.
func ResolveInput(ctx context.Context, g Geocoder, in fleet.Input) (fleet.Input, Stats, error) {
	var stats Stats
	memo := make(map[string]*fleet.Coordinates)

	resolve := func(address string) (*fleet.Coordinates, error) {
		key := Normalize(address)
		if c, ok := memo[key]; ok {
			return c, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, found, err := g.Geocode(ctx, address)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			stats.Failed++
			memo[key] = nil
			return nil, nil
		}
		var out *fleet.Coordinates
		if found {
			out = &c
		}
		memo[key] = out
		return out, nil
	}

	out := fleet.Input{GPS: in.GPS}

	if in.Fuel != nil {
		out.Fuel = make([]fleet.FuelTransaction, len(in.Fuel))
		copy(out.Fuel, in.Fuel)
		for i := range out.Fuel {
			loc := &out.Fuel[i].Location
			if loc.Coordinates != nil || Normalize(loc.Address) == "" {
				continue
			}
			c, err := resolve(loc.Address)
			if err != nil {
				return in, stats, err
			}
			if c == nil {
				stats.Unresolved++
				continue
			}
			loc.Coordinates = c
			stats.Resolved++
		}
	}

	if in.Jobs != nil {
		out.Jobs = make([]fleet.JobRecord, len(in.Jobs))
		copy(out.Jobs, in.Jobs)
		for i := range out.Jobs {
			j := &out.Jobs[i]
			if j.Coordinates != nil || Normalize(j.Address) == "" {
				continue
			}
			c, err := resolve(j.Address)
			if err != nil {
				return in, stats, err
			}
			if c == nil {
				stats.Unresolved++
				continue
			}
			j.Coordinates = c
			stats.Resolved++
		}
	}

	return out, stats, nil
}
