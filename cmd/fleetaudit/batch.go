package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	auditapp "fleet-audit/internal/application/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/pkg/config"
)

type batchFiles struct {
	gps, fuel, jobs string
	out             string
}

func runBatch(ctx context.Context, cfg *config.Config, deps *dependencies, files batchFiles, log *zap.Logger) error {
	if files.gps == "" && files.fuel == "" && files.jobs == "" {
		return errors.New("nothing to audit: pass at least one of -gps, -fuel, -jobs (or -serve)")
	}

	var in fleet.Input
	if err := readRecords(files.gps, &in.GPS); err != nil {
		return err
	}
	if err := readRecords(files.fuel, &in.Fuel); err != nil {
		return err
	}
	if err := readRecords(files.jobs, &in.Jobs); err != nil {
		return err
	}
	log.Info("records loaded",
		zap.Int("gps", len(in.GPS)),
		zap.Int("fuel", len(in.Fuel)),
		zap.Int("jobs", len(in.Jobs)),
	)

	uc := newUseCase(cfg, deps, log, false)
	result, err := uc.Execute(ctx, auditapp.RunAuditInput{Input: in})
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if files.out != "" {
		f, err := os.Create(files.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// readRecords decodes a JSON array file into dst; an empty path leaves dst nil
func readRecords[T any](path string, dst *[]T) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
