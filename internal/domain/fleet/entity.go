package fleet

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source identifies one of the three independently supplied record sets
type Source string

const (
	SourceGPS  Source = "gps"
	SourceFuel Source = "fuel"
	SourceJobs Source = "jobs"
)

// AllSources lists the sources in their canonical order
var AllSources = []Source{SourceGPS, SourceFuel, SourceJobs}

// JobStatus represents the completion state reported by the dispatch system
type JobStatus string

const (
	JobCompleted  JobStatus = "completed"
	JobIncomplete JobStatus = "incomplete"
)

// recordNamespace seeds deterministic IDs synthesized for records that arrive without one
var recordNamespace = uuid.MustParse("6f1c2a52-4d0b-4f43-9a53-2e8f3c1d7b10")

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the pair lies inside the WGS84 range
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// String renders the pair for descriptions
func (c Coordinates) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// Location is where a fuel purchase or job happened.
// Parsers often only have the station or site address; Coordinates is nil until geocoded.
type Location struct {
	Address     string       `json:"address,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// HasCoordinates reports whether the location can be used for distance checks
func (l Location) HasCoordinates() bool {
	return l.Coordinates != nil && l.Coordinates.Valid()
}

// String renders the most precise form available
func (l Location) String() string {
	switch {
	case l.Address != "":
		return l.Address
	case l.Coordinates != nil:
		return l.Coordinates.String()
	default:
		return "unknown location"
	}
}

// GPSPing is a single telemetry sample reported by a vehicle tracker
type GPSPing struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"` // mph, nil when the tracker does not report it
}

// Coordinates returns the ping position
func (p GPSPing) Coordinates() Coordinates {
	return Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Validate checks the minimal required field set for a GPS ping
func (p GPSPing) Validate() error {
	if strings.TrimSpace(p.VehicleID) == "" {
		return ErrMissingVehicleID
	}
	if p.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if !p.Coordinates().Valid() {
		return ErrInvalidCoordinates
	}
	if p.Speed != nil && *p.Speed < 0 {
		return ErrNegativeSpeed
	}
	return nil
}

// FuelTransaction is one fuel-card purchase
type FuelTransaction struct {
	TransactionID string    `json:"transaction_id,omitempty"`
	VehicleID     string    `json:"vehicle_id,omitempty"`
	CardID        string    `json:"card_id,omitempty"`
	DriverID      string    `json:"driver_id,omitempty"`
	CardLast4     string    `json:"card_last4,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Location      Location  `json:"location"`

	// Amounts - gallons and price are optional depending on the card provider export
	Gallons        decimal.NullDecimal `json:"gallons"`
	PricePerGallon decimal.NullDecimal `json:"price_per_gallon"`
	TotalAmount    decimal.NullDecimal `json:"total_amount"`
}

// Validate checks the minimal required field set for a fuel transaction.
// A cost that does not match gallons x price is NOT a validation failure.
func (t FuelTransaction) Validate() error {
	if strings.TrimSpace(t.VehicleID) == "" && strings.TrimSpace(t.CardID) == "" {
		return ErrMissingVehicleOrCard
	}
	if t.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if !t.TotalAmount.Valid {
		return ErrMissingAmount
	}
	if t.TotalAmount.Decimal.IsNegative() {
		return ErrNegativeAmount
	}
	if t.Gallons.Valid && t.Gallons.Decimal.IsNegative() {
		return ErrNegativeGallons
	}
	if t.Location.Coordinates != nil && !t.Location.Coordinates.Valid() {
		return ErrInvalidCoordinates
	}
	return nil
}

// HasGallons reports whether a usable gallon figure was exported
func (t FuelTransaction) HasGallons() bool {
	return t.Gallons.Valid && t.Gallons.Decimal.IsPositive()
}

// HasPrice reports whether a usable per-gallon price was exported
func (t FuelTransaction) HasPrice() bool {
	return t.PricePerGallon.Valid && t.PricePerGallon.Decimal.IsPositive()
}

// Amount returns the ticket total
func (t FuelTransaction) Amount() decimal.Decimal {
	return t.TotalAmount.Decimal
}

// UnitPrice returns the best available price per gallon: exported price,
// then total / gallons, then the supplied fallback.
func (t FuelTransaction) UnitPrice(fallback decimal.Decimal) decimal.Decimal {
	if t.HasPrice() {
		return t.PricePerGallon.Decimal
	}
	if t.HasGallons() && t.Amount().IsPositive() {
		return t.Amount().Div(t.Gallons.Decimal)
	}
	return fallback
}

// EffectiveGallons returns exported gallons, or an estimate from the total at
// the fallback price. estimated is true when the figure is derived.
func (t FuelTransaction) EffectiveGallons(fallbackPrice decimal.Decimal) (gallons float64, estimated bool) {
	if t.HasGallons() {
		return t.Gallons.Decimal.InexactFloat64(), false
	}
	if fallbackPrice.IsPositive() && t.Amount().IsPositive() {
		return t.Amount().Div(fallbackPrice).InexactFloat64(), true
	}
	return 0, true
}

// HolderKey identifies whose spending history a transaction belongs to:
// the driver when known, otherwise the card, otherwise the vehicle.
func (t FuelTransaction) HolderKey() string {
	switch {
	case t.DriverID != "":
		return "driver:" + t.DriverID
	case t.CardID != "":
		return "card:" + t.CardID
	default:
		return "vehicle:" + t.VehicleID
	}
}

// synthesizeID derives a stable transaction ID from the identifying fields
func (t FuelTransaction) synthesizeID() string {
	name := fmt.Sprintf("%s|%s|%s|%s", t.VehicleID, t.CardID, t.Timestamp.UTC().Format(time.RFC3339Nano), t.TotalAmount.Decimal.String())
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// JobRecord is a scheduled job from the dispatch system
type JobRecord struct {
	JobID         string              `json:"job_id"`
	ScheduledTime time.Time           `json:"scheduled_time"`
	Address       string              `json:"address,omitempty"`
	Coordinates   *Coordinates        `json:"coordinates,omitempty"`
	VehicleID     string              `json:"vehicle_id,omitempty"`
	DriverID      string              `json:"driver_id,omitempty"`
	Status        JobStatus           `json:"status"`
	BilledAmount  decimal.NullDecimal `json:"billed_amount"`
}

// Validate checks the minimal required field set for a job
func (j JobRecord) Validate() error {
	if j.ScheduledTime.IsZero() {
		return ErrMissingScheduledTime
	}
	if strings.TrimSpace(j.Address) == "" && j.Coordinates == nil {
		return ErrMissingJobSite
	}
	if j.Coordinates != nil && !j.Coordinates.Valid() {
		return ErrInvalidCoordinates
	}
	return nil
}

// IsCompleted reports whether dispatch marked the job as done
func (j JobRecord) IsCompleted() bool {
	return strings.EqualFold(string(j.Status), string(JobCompleted))
}

// Site returns the job location
func (j JobRecord) Site() Location {
	return Location{Address: j.Address, Coordinates: j.Coordinates}
}

func (j JobRecord) synthesizeID() string {
	name := fmt.Sprintf("%s|%s|%s", j.VehicleID, j.ScheduledTime.UTC().Format(time.RFC3339Nano), j.Address)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}
