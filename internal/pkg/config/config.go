package config

import (
	"fmt"
	"time"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`

	// Audit holds the engine thresholds. Per-vehicle facts live in Vehicles
	// because viper lower-cases map keys and vehicle IDs are case-sensitive.
	Audit    audit.Params    `mapstructure:"audit"`
	Vehicles []VehicleConfig `mapstructure:"vehicles" validate:"dive"`
	Sites    []SiteConfig    `mapstructure:"sites" validate:"dive"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" validate:"gte=0"`
	AuditTimeout    time.Duration `mapstructure:"audit_timeout" validate:"gte=0"`
	Parallelism     int           `mapstructure:"parallelism" validate:"gte=0"` // concurrent detectors per run, 0 = all
}

// DatabaseConfig holds PostgreSQL configuration for the audit archive
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required_if=Enabled true"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// RedisConfig holds Redis configuration for the geocode cache and run store
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port          int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db" validate:"gte=0"`
	PoolSize      int           `mapstructure:"pool_size" validate:"gte=0"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	GeocodeTTL    time.Duration `mapstructure:"geocode_ttl" validate:"gte=0"`
	RunTTL        time.Duration `mapstructure:"run_ttl" validate:"gte=0"`
	MaxRecentRuns int           `mapstructure:"max_recent_runs" validate:"gte=0"`
}

// MetricsConfig holds metrics configuration. Metrics are served at /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// VehicleConfig describes one fleet vehicle
type VehicleConfig struct {
	ID          string   `mapstructure:"id" validate:"required"`
	TankGallons float64  `mapstructure:"tank_gallons" validate:"gte=0"` // 0 uses the fleet default
	Cards       []string `mapstructure:"cards" validate:"dive,required"`
}

// SiteConfig is a known address with its coordinates, used for geocoding
type SiteConfig struct {
	Address   string  `mapstructure:"address" validate:"required"`
	Latitude  float64 `mapstructure:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `mapstructure:"longitude" validate:"gte=-180,lte=180"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    64 << 20,
			AuditTimeout:    time.Minute,
		},
		Database: DatabaseConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			User:            "fleet_audit",
			Password:        "",
			Name:            "fleet_audit",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          6379,
			Password:      "",
			DB:            0,
			PoolSize:      10,
			ReadTimeout:   3 * time.Second,
			WriteTimeout:  3 * time.Second,
			GeocodeTTL:    30 * 24 * time.Hour,
			RunTTL:        7 * 24 * time.Hour,
			MaxRecentRuns: 100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Audit: audit.DefaultParams(),
	}
}

// AuditParams returns the engine parameters with the vehicle list folded in
func (c *Config) AuditParams() audit.Params {
	p := c.Audit
	perVehicle := make(map[string]float64, len(p.Tanks.PerVehicle)+len(c.Vehicles))
	for id, g := range p.Tanks.PerVehicle {
		perVehicle[id] = g
	}
	cards := make(map[string]string, len(p.CardVehicles))
	for card, id := range p.CardVehicles {
		cards[card] = id
	}

	for _, v := range c.Vehicles {
		if v.TankGallons > 0 {
			perVehicle[v.ID] = v.TankGallons
		}
		for _, card := range v.Cards {
			cards[card] = v.ID
		}
	}
	p.Tanks.PerVehicle = perVehicle
	p.CardVehicles = cards
	return p
}

// SiteTable returns the configured sites keyed by address
func (c *Config) SiteTable() map[string]fleet.Coordinates {
	sites := make(map[string]fleet.Coordinates, len(c.Sites))
	for _, s := range c.Sites {
		sites[s.Address] = fleet.Coordinates{Latitude: s.Latitude, Longitude: s.Longitude}
	}
	return sites
}

// Addr returns the host:port the HTTP server listens on
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
