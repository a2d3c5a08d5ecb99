package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	auditapp "fleet-audit/internal/application/audit"
	"fleet-audit/internal/infrastructure/http/router"
	"fleet-audit/internal/interfaces/http/handler"
	"fleet-audit/internal/pkg/config"
	"fleet-audit/internal/pkg/metrics"
)

func runServer(ctx context.Context, cfg *config.Config, deps *dependencies, log *zap.Logger) error {
	log.Info("starting fleet audit API", zap.String("version", version), zap.String("addr", cfg.Server.Addr()), zap.String("archive", deps.mode))

	var (
		m              *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		metricsHandler = handler.MetricsHandler(reg)
	}

	opts := []auditapp.Option{auditapp.WithTimeout(cfg.Server.AuditTimeout)}
	if m != nil {
		opts = append(opts, auditapp.WithMetrics(m))
	}
	uc := newUseCase(cfg, deps, log, true, opts...)

	checks := map[string]handler.HealthChecker{}
	if deps.db != nil {
		checks["postgres"] = deps.db
	}
	if deps.redis != nil {
		checks["redis"] = deps.redis
	}

	r := router.NewRouter(
		handler.NewAuditHandler(uc, cfg.Server.MaxBodyBytes, log),
		handler.NewHealthHandler(checks, version, deps.mode),
		metricsHandler,
		m,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}
