package audit

import (
	"context"

	"github.com/google/uuid"
)

// RunRepository archives audit runs
type RunRepository interface {
	// Save stores a finished run
	Save(ctx context.Context, result *Result) error

	// GetByID retrieves a run by its run ID
	GetByID(ctx context.Context, runID uuid.UUID) (*Result, error)

	// ListRecent returns the most recent runs, newest first
	ListRecent(ctx context.Context, limit int) ([]*Result, error)
}
