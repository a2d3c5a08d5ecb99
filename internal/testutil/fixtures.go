package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/fleet"
)

// Monday is midnight UTC on Monday 4 March 2024; fixtures are laid out relative to it
var Monday = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

// At returns Monday at hh:mm UTC
func At(hour, minute int) time.Time {
	return Monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Day returns hh:mm UTC on the given number of days after Monday
func Day(days, hour, minute int) time.Time {
	return At(hour, minute).AddDate(0, 0, days)
}

// Dec builds a decimal from a float
func Dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// NullDec builds a present NullDecimal from a float
func NullDec(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

// Ping creates a GPS ping with a reported speed
func Ping(vehicleID string, ts time.Time, lat, lon, speed float64) fleet.GPSPing {
	s := speed
	return fleet.GPSPing{VehicleID: vehicleID, Timestamp: ts, Latitude: lat, Longitude: lon, Speed: &s}
}

// PingNoSpeed creates a GPS ping whose tracker did not report speed
func PingNoSpeed(vehicleID string, ts time.Time, lat, lon float64) fleet.GPSPing {
	return fleet.GPSPing{VehicleID: vehicleID, Timestamp: ts, Latitude: lat, Longitude: lon}
}

// Track creates pings every interval starting at start, all at one position with one speed
func Track(vehicleID string, start time.Time, interval time.Duration, n int, lat, lon, speed float64) []fleet.GPSPing {
	pings := make([]fleet.GPSPing, 0, n)
	for i := 0; i < n; i++ {
		pings = append(pings, Ping(vehicleID, start.Add(time.Duration(i)*interval), lat, lon, speed))
	}
	return pings
}

// FuelOption customizes a fuel transaction fixture
type FuelOption func(*fleet.FuelTransaction)

// WithGallons sets exported gallons
func WithGallons(g float64) FuelOption {
	return func(t *fleet.FuelTransaction) { t.Gallons = NullDec(g) }
}

// WithPrice sets the exported per-gallon price
func WithPrice(p float64) FuelOption {
	return func(t *fleet.FuelTransaction) { t.PricePerGallon = NullDec(p) }
}

// WithCoords sets the station coordinates
func WithCoords(lat, lon float64) FuelOption {
	return func(t *fleet.FuelTransaction) {
		t.Location.Coordinates = &fleet.Coordinates{Latitude: lat, Longitude: lon}
	}
}

// WithAddress sets the station address
func WithAddress(addr string) FuelOption {
	return func(t *fleet.FuelTransaction) { t.Location.Address = addr }
}

// WithDriver sets the driver
func WithDriver(id string) FuelOption {
	return func(t *fleet.FuelTransaction) { t.DriverID = id }
}

// WithCard sets the card ID
func WithCard(id string) FuelOption {
	return func(t *fleet.FuelTransaction) { t.CardID = id }
}

// WithID sets the transaction ID
func WithID(id string) FuelOption {
	return func(t *fleet.FuelTransaction) { t.TransactionID = id }
}

// Fuel creates a fuel transaction with a total amount
func Fuel(vehicleID string, ts time.Time, total float64, opts ...FuelOption) fleet.FuelTransaction {
	t := fleet.FuelTransaction{VehicleID: vehicleID, Timestamp: ts, TotalAmount: NullDec(total)}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// FullFuel creates a transaction with gallons, price, matching total and station coordinates
func FullFuel(vehicleID string, ts time.Time, gallons, price, lat, lon float64, opts ...FuelOption) fleet.FuelTransaction {
	total := decimal.NewFromFloat(gallons).Mul(decimal.NewFromFloat(price)).Round(2).InexactFloat64()
	base := []FuelOption{WithGallons(gallons), WithPrice(price), WithCoords(lat, lon)}
	return Fuel(vehicleID, ts, total, append(base, opts...)...)
}

// Job creates a completed job with site coordinates
func Job(jobID, vehicleID string, ts time.Time, lat, lon float64) fleet.JobRecord {
	return fleet.JobRecord{
		JobID:         jobID,
		VehicleID:     vehicleID,
		ScheduledTime: ts,
		Address:       jobID + " site",
		Coordinates:   &fleet.Coordinates{Latitude: lat, Longitude: lon},
		Status:        fleet.JobCompleted,
	}
}

// Dataset builds a dataset with no card mapping
func Dataset(in fleet.Input) *fleet.Dataset {
	return fleet.NewDataset(in, nil)
}
