package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	auditapp "fleet-audit/internal/application/audit"
	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/infrastructure/cache/redis"
	"fleet-audit/internal/infrastructure/database/memory"
	"fleet-audit/internal/infrastructure/database/postgres"
	"fleet-audit/internal/infrastructure/geocode"
	"fleet-audit/internal/pkg/config"
	"fleet-audit/internal/pkg/logger"
)

const version = "1.0.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", ".env", "Path to a .env file (ignored if missing)")
	gpsPath := flag.String("gps", "", "GPS pings JSON file")
	fuelPath := flag.String("fuel", "", "Fuel transactions JSON file")
	jobsPath := flag.String("jobs", "", "Job records JSON file")
	outPath := flag.String("out", "", "Write the audit result here instead of stdout")
	serve := flag.Bool("serve", false, "Run the HTTP API instead of a one-shot audit")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", *envFile, err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load config, using defaults: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := connect(cfg, log)
	defer deps.close()

	if *serve {
		err = runServer(ctx, cfg, deps, log)
	} else {
		err = runBatch(ctx, cfg, deps, batchFiles{gps: *gpsPath, fuel: *fuelPath, jobs: *jobsPath, out: *outPath}, log)
	}
	if err != nil {
		log.Error("fleet audit failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// dependencies are the optional backing services; nil fields mean unavailable
type dependencies struct {
	db       *postgres.Client
	redis    *redis.Client
	archive  audit.RunRepository
	geocoder geocode.Geocoder
	mode     string
}

func (d *dependencies) close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.redis != nil {
		d.redis.Close()
	}
}

// connect reaches the configured services. Any that fail are logged and skipped
// so the engine can still run in limited mode.
func connect(cfg *config.Config, log *zap.Logger) *dependencies {
	deps := &dependencies{mode: "standalone"}

	if cfg.Database.Enabled {
		db, err := postgres.NewClient(postgres.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Name:            cfg.Database.Name,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.Warn("database connection failed (running in limited mode)", zap.Error(err))
		} else if err := db.Migrate(); err != nil {
			log.Warn("audit archive migration failed (database archive disabled)", zap.Error(err))
			db.Close()
		} else {
			log.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.Int("port", cfg.Database.Port))
			deps.db = db
		}
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis connection failed (geocode cache disabled)", zap.Error(err))
		} else {
			log.Info("connected to Redis", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
			deps.redis = rc
		}
	}

	switch {
	case deps.db != nil:
		deps.archive = postgres.NewAuditRunRepository(deps.db)
		deps.mode = "postgres"
	case deps.redis != nil:
		deps.archive = redis.NewRunStore(deps.redis, cfg.Redis.RunTTL, cfg.Redis.MaxRecentRuns)
		deps.mode = "redis"
	}

	if sites := geocode.NewStaticGeocoder(cfg.SiteTable()); sites.Len() > 0 {
		deps.geocoder = sites
		if deps.redis != nil {
			deps.geocoder = geocode.NewCachedGeocoder(sites, redis.NewGeocodeCache(deps.redis), cfg.Redis.GeocodeTTL)
		}
		log.Info("geocoding enabled", zap.Int("sites", sites.Len()))
	}

	return deps
}

// newUseCase wires the audit use case. Server mode always keeps an archive so
// runs can be fetched back; the one-shot CLI only archives to real storage.
func newUseCase(cfg *config.Config, deps *dependencies, log *zap.Logger, serverMode bool, opts ...auditapp.Option) *auditapp.RunAuditUseCase {
	archive := deps.archive
	if archive == nil && serverMode {
		archive = memory.NewRunRepository(cfg.Redis.MaxRecentRuns)
	}

	base := []auditapp.Option{
		auditapp.WithLogger(log),
		auditapp.WithParallelism(cfg.Server.Parallelism),
	}
	if archive != nil {
		base = append(base, auditapp.WithRepository(archive))
	}
	if deps.geocoder != nil {
		base = append(base, auditapp.WithGeocoder(deps.geocoder))
	}
	return auditapp.NewRunAuditUseCase(cfg.AuditParams(), append(base, opts...)...)
}
