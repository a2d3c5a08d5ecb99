package violation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/fleet"
)

// Type is the kind of suspicious activity a detector reports
type Type string

const (
	TypeFuelTheft Type = "fuel_theft"

	TypeEnhancedOverfill       Type = "enhanced_fuel_overfill"
	TypeEnhancedMixedPurchase  Type = "enhanced_fuel_mixed_purchase"
	TypeEnhancedPricePremium   Type = "enhanced_fuel_price_premium"
	TypeEnhancedPatternDev     Type = "enhanced_fuel_pattern_deviation"
	TypeEnhancedRapidRefill    Type = "enhanced_fuel_rapid_refill"
	TypeEnhancedDailyExcess    Type = "enhanced_fuel_daily_excess"
	TypeEnhancedOffHours       Type = "enhanced_fuel_off_hours"
	TypeMPGHigh                Type = "mpg_fraud_high"
	TypeMPGLow                 Type = "mpg_fraud_low"
	TypeMPGIdleRefill          Type = "mpg_fraud_idle_refill"
	TypeMPGDeviation           Type = "mpg_fraud_deviation"
	TypeGhostJob               Type = "ghost_job"
	TypeIdleAbuse              Type = "idle_abuse"
	TypeAfterHours             Type = "after_hours"
	TypeFuelPatternDeviation   Type = "fuel_pattern_deviation"
	TypeFuelPatternVolume      Type = "fuel_pattern_excessive_volume"
	TypeFuelPatternRapidRefill Type = "fuel_pattern_rapid_refill"
	TypeFuelPatternUnusualTime Type = "fuel_pattern_unusual_time"
	TypeFuelPatternUnusualSite Type = "fuel_pattern_unusual_location"
)

// Severity indicates how serious a finding is
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities; unknown values rank below low
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// MaxSeverity returns the more severe of a and b
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// violationNamespace seeds deterministic violation IDs
var violationNamespace = uuid.MustParse("0b6f7c4e-9a8d-4c1e-b7f2-5d3a9e6c8f21")

// Evidence points back at the source records behind a finding
type Evidence struct {
	Source    fleet.Source       `json:"source"`
	RecordIDs []string           `json:"record_ids,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// RawViolation is a single finding produced by exactly one detector.
// Detectors build it, call Sealed, and never touch it again.
type RawViolation struct {
	ID              uuid.UUID       `json:"id"`
	Type            Type            `json:"violation_type"`
	VehicleID       string          `json:"vehicle_id"`
	DriverID        string          `json:"driver_id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	Location        *fleet.Location `json:"location,omitempty"`
	Severity        Severity        `json:"severity"`
	Confidence      float64         `json:"confidence"`     // 0.0 to 1.0
	EstimatedLoss   decimal.Decimal `json:"estimated_loss"` // never negative
	Description     string          `json:"description"`
	DetectionMethod string          `json:"detection_method"`
	Evidence        Evidence        `json:"evidence"`
}

// AddMetric records a numeric fact supporting the finding
func (v *RawViolation) AddMetric(key string, value float64) {
	if v.Evidence.Metrics == nil {
		v.Evidence.Metrics = make(map[string]float64)
	}
	v.Evidence.Metrics[key] = value
}

// Sealed clamps confidence and loss into range and assigns the deterministic ID
func (v RawViolation) Sealed() RawViolation {
	v.Confidence = ClampConfidence(v.Confidence)
	if v.EstimatedLoss.IsNegative() {
		v.EstimatedLoss = decimal.Zero
	}
	v.EstimatedLoss = v.EstimatedLoss.Round(2)
	if v.DetectionMethod == "" {
		v.DetectionMethod = string(v.Type)
	}
	name := fmt.Sprintf("%s|%s|%s|%s", v.Type, v.VehicleID, v.Timestamp.UTC().Format(time.RFC3339Nano), strings.Join(v.Evidence.RecordIDs, ","))
	v.ID = uuid.NewSHA1(violationNamespace, []byte(name))
	return v
}

// ClampConfidence bounds a confidence value to [0, 1]
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// SortRaw orders raw findings by vehicle, time, type and ID so merges are deterministic
func SortRaw(vs []RawViolation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.VehicleID != b.VehicleID {
			return a.VehicleID < b.VehicleID
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ID.String() < b.ID.String()
	})
}

// ConsolidatedViolation is one real-world incident backed by one or more raw findings
type ConsolidatedViolation struct {
	ID               uuid.UUID       `json:"id"`
	VehicleID        string          `json:"vehicle_id"`
	DriverID         string          `json:"driver_id,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`     // earliest member
	EndTimestamp     time.Time       `json:"end_timestamp"` // latest member
	Location         *fleet.Location `json:"location,omitempty"`
	Types            []Type          `json:"violation_types"`
	DetectionMethods []string        `json:"detection_methods"`
	Severity         Severity        `json:"severity"`
	Confidence       float64         `json:"confidence"`
	EstimatedLoss    decimal.Decimal `json:"estimated_loss"` // max of members, never summed
	Description      string          `json:"description"`
	Members          []RawViolation  `json:"members"`
}

// FromRaw wraps a single finding as a one-member incident
func FromRaw(r RawViolation) ConsolidatedViolation {
	return ConsolidatedViolation{
		ID:               r.ID,
		VehicleID:        r.VehicleID,
		DriverID:         r.DriverID,
		Timestamp:        r.Timestamp,
		EndTimestamp:     r.Timestamp,
		Location:         r.Location,
		Types:            []Type{r.Type},
		DetectionMethods: []string{r.DetectionMethod},
		Severity:         r.Severity,
		Confidence:       r.Confidence,
		EstimatedLoss:    r.EstimatedLoss,
		Description:      r.Description,
		Members:          []RawViolation{r},
	}
}

// IsCorroborated reports whether more than one detection method backs the incident
func (c ConsolidatedViolation) IsCorroborated() bool {
	return len(c.DetectionMethods) > 1
}

// HasType reports whether any member is of type t
func (c ConsolidatedViolation) HasType(t Type) bool {
	for _, mt := range c.Types {
		if mt == t {
			return true
		}
	}
	return false
}
