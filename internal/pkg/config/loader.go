package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. FLEET_SERVER_PORT
const EnvPrefix = "FLEET"

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	// Set defaults from DefaultConfig
	setDefaults(v, cfg)

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file not found is ok - we use defaults and env vars
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal into config struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key that may be overridden from the environment;
// viper only consults the environment for keys it already knows.
func setDefaults(v *viper.Viper, cfg *Config) {
	// Server defaults
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", cfg.Server.MaxBodyBytes)
	v.SetDefault("server.audit_timeout", cfg.Server.AuditTimeout)
	v.SetDefault("server.parallelism", cfg.Server.Parallelism)

	// Database defaults
	v.SetDefault("database.enabled", cfg.Database.Enabled)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.name", cfg.Database.Name)
	v.SetDefault("database.ssl_mode", cfg.Database.SSLMode)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	// Redis defaults
	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.host", cfg.Redis.Host)
	v.SetDefault("redis.port", cfg.Redis.Port)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)
	v.SetDefault("redis.geocode_ttl", cfg.Redis.GeocodeTTL)
	v.SetDefault("redis.run_ttl", cfg.Redis.RunTTL)
	v.SetDefault("redis.max_recent_runs", cfg.Redis.MaxRecentRuns)

	// Metrics and logging
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	// Audit thresholds most often tuned per deployment
	a := cfg.Audit
	v.SetDefault("audit.fuel_price", a.FuelPrice)
	v.SetDefault("audit.distance_threshold_miles", a.DistanceThresholdMiles)
	v.SetDefault("audit.time_threshold", a.TimeThreshold)
	v.SetDefault("audit.job_distance_threshold_miles", a.JobDistanceMiles)
	v.SetDefault("audit.job_time_buffer", a.JobTimeBuffer)
	v.SetDefault("audit.ghost_job_cost", a.GhostJobCost)
	v.SetDefault("audit.tanks.default_gallons", a.Tanks.DefaultGallons)
	v.SetDefault("audit.business_hours.start_hour", a.BusinessHours.StartHour)
	v.SetDefault("audit.business_hours.end_hour", a.BusinessHours.EndHour)
	v.SetDefault("audit.business_hours.timezone", a.BusinessHours.Timezone)
	v.SetDefault("audit.consolidation.dedup_window", a.Consolidation.DedupWindow)
	v.SetDefault("audit.consolidation.corroboration_boost", a.Consolidation.CorroborationBoost)
	v.SetDefault("audit.features.enhanced_fuel", a.Features.EnhancedFuel)
	v.SetDefault("audit.features.mpg", a.Features.MPG)
	v.SetDefault("audit.features.fuel_pattern_only", a.Features.FuelPatternOnly)
}
