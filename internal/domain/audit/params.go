package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Params holds every tunable threshold of an audit run.
// Durations decode from strings such as "15m" when loaded through config.
type Params struct {
	// Fuel-theft correlation (GPS + fuel)
	DistanceThresholdMiles float64       `mapstructure:"distance_threshold_miles" json:"distance_threshold_miles" validate:"gt=0"`
	TimeThreshold          time.Duration `mapstructure:"time_threshold" json:"time_threshold" validate:"gt=0"`
	LocationUnknownFactor  float64       `mapstructure:"location_unknown_factor" json:"location_unknown_factor" validate:"gt=0,lte=1"`

	// Ghost jobs (GPS + jobs)
	JobDistanceMiles float64       `mapstructure:"job_distance_threshold_miles" json:"job_distance_threshold_miles" validate:"gt=0"`
	JobTimeBuffer    time.Duration `mapstructure:"job_time_buffer" json:"job_time_buffer" validate:"gt=0"`
	GhostJobCost     float64       `mapstructure:"ghost_job_cost" json:"ghost_job_cost" validate:"gte=0"`

	// Fleet facts
	FuelPrice    float64           `mapstructure:"fuel_price" json:"fuel_price" validate:"gt=0"` // fallback $/gal
	Tanks        TankCapacities    `mapstructure:"tanks" json:"tanks"`
	CardVehicles map[string]string `mapstructure:"card_vehicles" json:"card_vehicles,omitempty"`

	BusinessHours BusinessHours       `mapstructure:"business_hours" json:"business_hours"`
	Idle          IdleParams          `mapstructure:"idle" json:"idle"`
	AfterHours    AfterHoursParams    `mapstructure:"after_hours" json:"after_hours"`
	Enhanced      EnhancedFuelParams  `mapstructure:"enhanced_fuel" json:"enhanced_fuel"`
	MPG           MPGParams           `mapstructure:"mpg" json:"mpg"`
	FuelPattern   FuelPatternParams   `mapstructure:"fuel_pattern" json:"fuel_pattern"`
	Consolidation ConsolidationParams `mapstructure:"consolidation" json:"consolidation"`
	Coverage      CoverageParams      `mapstructure:"coverage" json:"coverage"`
	Features      Features            `mapstructure:"features" json:"features"`
}

// TankCapacities gives the usable tank size per vehicle, in gallons
type TankCapacities struct {
	DefaultGallons float64            `mapstructure:"default_gallons" json:"default_gallons" validate:"gt=0"`
	PerVehicle     map[string]float64 `mapstructure:"per_vehicle" json:"per_vehicle,omitempty" validate:"dive,gt=0"`
}

// For returns the tank capacity of a vehicle, falling back to the fleet default
func (t TankCapacities) For(vehicleID string) float64 {
	if c, ok := t.PerVehicle[vehicleID]; ok && c > 0 {
		return c
	}
	return t.DefaultGallons
}

// IdleParams configures idle-episode detection
type IdleParams struct {
	Threshold      time.Duration `mapstructure:"threshold" json:"threshold" validate:"gt=0"`
	SpeedMPH       float64       `mapstructure:"speed_mph" json:"speed_mph" validate:"gt=0"`
	GallonsPerHour float64       `mapstructure:"gallons_per_hour" json:"gallons_per_hour" validate:"gte=0"`
}

// AfterHoursParams configures the after-hours excursion detector
type AfterHoursParams struct {
	MovingSpeedMPH float64       `mapstructure:"moving_speed_mph" json:"moving_speed_mph" validate:"gte=0"`
	MergeGap       time.Duration `mapstructure:"merge_gap" json:"merge_gap" validate:"gt=0"`
	CostPerMile    float64       `mapstructure:"cost_per_mile" json:"cost_per_mile" validate:"gte=0"`
}

// EnhancedFuelParams configures the fuel-card heuristics
type EnhancedFuelParams struct {
	OverfillFactor         float64       `mapstructure:"overfill_factor" json:"overfill_factor" validate:"gte=1"`
	PriceToleranceAbs      float64       `mapstructure:"price_tolerance_abs" json:"price_tolerance_abs" validate:"gte=0"`
	PriceTolerancePct      float64       `mapstructure:"price_tolerance_pct" json:"price_tolerance_pct" validate:"gte=0,lt=1"`
	MinHistory             int           `mapstructure:"min_history" json:"min_history" validate:"gte=2"`
	DeviationStdDevs       float64       `mapstructure:"deviation_std_devs" json:"deviation_std_devs" validate:"gt=0"`
	DeviationMinStdFrac    float64       `mapstructure:"deviation_min_std_fraction" json:"deviation_min_std_fraction" validate:"gte=0,lt=1"` // std-dev floor as a share of the mean
	RapidRefillWindow      time.Duration `mapstructure:"rapid_refill_window" json:"rapid_refill_window" validate:"gt=0"`
	RapidRefillMinFraction float64       `mapstructure:"rapid_refill_min_fraction" json:"rapid_refill_min_fraction" validate:"gt=0,lte=1"`
	RapidRefillLossFactor  float64       `mapstructure:"rapid_refill_loss_factor" json:"rapid_refill_loss_factor" validate:"gte=0,lte=1"`
	DailyExcessFactor      float64       `mapstructure:"daily_excess_factor" json:"daily_excess_factor" validate:"gte=1"`

	// Tickets without a per-gallon price are judged against FuelPrice
	MarketPriceTolerance float64 `mapstructure:"market_price_tolerance" json:"market_price_tolerance" validate:"gte=0"` // $/gal
	PriceExcessFactor    float64 `mapstructure:"price_excess_factor" json:"price_excess_factor" validate:"gte=1"`
	PricePremium         float64 `mapstructure:"price_premium" json:"price_premium" validate:"gt=0"` // $/gal above FuelPrice
}

// MPGParams configures the MPG analyzer
type MPGParams struct {
	MinMiles             float64 `mapstructure:"min_miles" json:"min_miles" validate:"gte=0"`
	MinGallons           float64 `mapstructure:"min_gallons" json:"min_gallons" validate:"gt=0"`
	MinPlausibleMPG      float64 `mapstructure:"min_plausible_mpg" json:"min_plausible_mpg" validate:"gt=0"`
	MaxPlausibleMPG      float64 `mapstructure:"max_plausible_mpg" json:"max_plausible_mpg" validate:"gtfield=MinPlausibleMPG"`
	BaselineMPG          float64 `mapstructure:"baseline_mpg" json:"baseline_mpg" validate:"gt=0"`
	TrailingWindow       int     `mapstructure:"trailing_window" json:"trailing_window" validate:"gte=1"`
	TrailingMin          int     `mapstructure:"trailing_min" json:"trailing_min" validate:"gte=1"`
	DeviationRatio       float64 `mapstructure:"deviation_ratio" json:"deviation_ratio" validate:"gt=0"`
	IdleRefillLossFactor float64 `mapstructure:"idle_refill_loss_factor" json:"idle_refill_loss_factor" validate:"gte=0,lte=1"`
}

// FuelPatternParams configures the fuel-only fallback analyzer
type FuelPatternParams struct {
	ConfidenceFactor     float64       `mapstructure:"confidence_factor" json:"confidence_factor" validate:"gt=0,lte=1"`
	RapidWindow          time.Duration `mapstructure:"rapid_window" json:"rapid_window" validate:"gt=0"`
	QuietStartHour       int           `mapstructure:"quiet_start_hour" json:"quiet_start_hour" validate:"gte=0,lte=23"` // unusual from this hour...
	QuietEndHour         int           `mapstructure:"quiet_end_hour" json:"quiet_end_hour" validate:"gte=0,lte=23"`     // ...until this hour
	MinPurchasesForSites int           `mapstructure:"min_purchases_for_sites" json:"min_purchases_for_sites" validate:"gte=1"`
	MinDistinctSites     int           `mapstructure:"min_distinct_sites" json:"min_distinct_sites" validate:"gte=1"`
}

// ConsolidationParams controls how raw findings are merged into incidents.
// The boost is a heuristic: each extra corroborating method adds CorroborationBoost.
type ConsolidationParams struct {
	DedupWindow        time.Duration `mapstructure:"dedup_window" json:"dedup_window" validate:"gte=0"`
	CorroborationBoost float64       `mapstructure:"corroboration_boost" json:"corroboration_boost" validate:"gte=0,lte=1"`
	MaxConfidence      float64       `mapstructure:"max_confidence" json:"max_confidence" validate:"gt=0,lte=1"`
}

// CoverageParams controls overlap warnings
type CoverageParams struct {
	LimitedOverlapRatio float64 `mapstructure:"limited_overlap_ratio" json:"limited_overlap_ratio" validate:"gte=0,lte=1"`
}

// Features toggles the optional detectors
type Features struct {
	EnhancedFuel    bool `mapstructure:"enhanced_fuel" json:"enhanced_fuel"`
	MPG             bool `mapstructure:"mpg" json:"mpg"`
	FuelPatternOnly bool `mapstructure:"fuel_pattern_only" json:"fuel_pattern_only"`
}

// DefaultParams returns the thresholds used when the caller supplies none
func DefaultParams() Params {
	return Params{
		DistanceThresholdMiles: 1.0,
		TimeThreshold:          15 * time.Minute,
		LocationUnknownFactor:  0.7,
		JobDistanceMiles:       0.5,
		JobTimeBuffer:          30 * time.Minute,
		GhostJobCost:           75,
		FuelPrice:              3.75,
		Tanks: TankCapacities{
			DefaultGallons: 25,
			PerVehicle:     map[string]float64{},
		},
		CardVehicles:  map[string]string{},
		BusinessHours: DefaultBusinessHours(),
		Idle: IdleParams{
			Threshold:      10 * time.Minute,
			SpeedMPH:       3,
			GallonsPerHour: 0.8,
		},
		AfterHours: AfterHoursParams{
			MovingSpeedMPH: 5,
			MergeGap:       30 * time.Minute,
			CostPerMile:    0.65,
		},
		Enhanced: EnhancedFuelParams{
			OverfillFactor:         1.05,
			PriceToleranceAbs:      1.00,
			PriceTolerancePct:      0.05,
			MinHistory:             5,
			DeviationStdDevs:       3.0,
			RapidRefillWindow:      4 * time.Hour,
			RapidRefillMinFraction: 0.5,
			RapidRefillLossFactor:  0.5,
			DailyExcessFactor:      1.5,
			DeviationMinStdFrac:    0.05,
			MarketPriceTolerance:   0.25,
			PriceExcessFactor:      1.3,
			PricePremium:           1.00,
		},
		MPG: MPGParams{
			MinMiles:             5,
			MinGallons:           3,
			MinPlausibleMPG:      3,
			MaxPlausibleMPG:      30,
			BaselineMPG:          10.5,
			TrailingWindow:       5,
			TrailingMin:          3,
			DeviationRatio:       0.4,
			IdleRefillLossFactor: 0.8,
		},
		FuelPattern: FuelPatternParams{
			ConfidenceFactor:     0.8,
			RapidWindow:          2 * time.Hour,
			QuietStartHour:       22,
			QuietEndHour:         5,
			MinPurchasesForSites: 5,
			MinDistinctSites:     4,
		},
		Consolidation: ConsolidationParams{
			DedupWindow:        30 * time.Minute,
			CorroborationBoost: 0.05,
			MaxConfidence:      1.0,
		},
		Coverage: CoverageParams{
			LimitedOverlapRatio: 0.2,
		},
		Features: Features{
			EnhancedFuel:    true,
			MPG:             true,
			FuelPatternOnly: true,
		},
	}
}

// FuelPriceDecimal returns the fallback fuel price as a decimal
func (p Params) FuelPriceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.FuelPrice)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects out-of-range parameters before any detector runs
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidParams, describeValidation(err))
	}
	if err := p.BusinessHours.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.MPG.TrailingMin > p.MPG.TrailingWindow {
		return fmt.Errorf("%w: mpg.trailing_min must not exceed mpg.trailing_window", ErrInvalidParams)
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return strings.Join(msgs, "; ")
}
