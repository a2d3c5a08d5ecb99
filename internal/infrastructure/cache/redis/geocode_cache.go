package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"fleet-audit/internal/infrastructure/geocode"
)

// GeocodeCache stores geocoding outcomes so repeated audits skip the lookup
type GeocodeCache struct {
	client *Client
}

// NewGeocodeCache creates a new geocode cache
func NewGeocodeCache(client *Client) *GeocodeCache {
	return &GeocodeCache{client: client}
}

func geocodeKey(address string) string {
	return fmt.Sprintf("geocode:%s", address)
}

// Lookup returns the cached outcome for a normalized address
func (c *GeocodeCache) Lookup(ctx context.Context, address string) (geocode.Entry, bool, error) {
	raw, err := c.client.Get(ctx, geocodeKey(address))
	if errors.Is(err, redis.Nil) {
		return geocode.Entry{}, false, nil
	}
	if err != nil {
		return geocode.Entry{}, false, fmt.Errorf("failed to read geocode cache: %w", err)
	}

	var e geocode.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return geocode.Entry{}, false, fmt.Errorf("failed to decode geocode entry: %w", err)
	}
	return e, true, nil
}

// Store caches an outcome, including misses
func (c *GeocodeCache) Store(ctx context.Context, address string, e geocode.Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode geocode entry: %w", err)
	}
	if err := c.client.Set(ctx, geocodeKey(address), string(data), ttl); err != nil {
		return fmt.Errorf("failed to write geocode cache: %w", err)
	}
	return nil
}
