package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fleet-audit/internal/domain/audit"
)

// AuditRunModel is the database model for archived audit runs.
// Summary columns are queryable; the full result is kept as JSON.
type AuditRunModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	StartedAt       time.Time       `gorm:"index;not null"`
	FinishedAt      time.Time       `gorm:"not null"`
	Incidents       int             `gorm:"not null"`
	RawFindings     int             `gorm:"not null"`
	VehiclesFlagged int             `gorm:"not null"`
	WorstOffender   string          `gorm:"type:varchar(100)"`
	TotalFleetLoss  decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	WeeklyEstimate  decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	MonthlyEstimate decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	PeriodDays      float64         `gorm:"not null"`
	SkippedRecords  int             `gorm:"not null"`
	Warnings        int             `gorm:"not null"`
	Result          string          `gorm:"type:jsonb;not null"`
	CreatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for audit runs
func (AuditRunModel) TableName() string {
	return "audit_runs"
}

// AuditRunRepository implements audit.RunRepository
type AuditRunRepository struct {
	db *gorm.DB
}

// NewAuditRunRepository creates a new audit run repository
func NewAuditRunRepository(client *Client) *AuditRunRepository {
	return &AuditRunRepository{db: client.DB()}
}

// Save stores a finished run
func (r *AuditRunRepository) Save(ctx context.Context, result *audit.Result) error {
	model, err := resultToModel(result)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save audit run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID
func (r *AuditRunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*audit.Result, error) {
	var model AuditRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, audit.ErrRunNotFound
		}
		return nil, err
	}
	return modelToResult(&model)
}

// ListRecent returns the newest runs first
func (r *AuditRunRepository) ListRecent(ctx context.Context, limit int) ([]*audit.Result, error) {
	var models []AuditRunModel
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	results := make([]*audit.Result, 0, len(models))
	for i := range models {
		result, err := modelToResult(&models[i])
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func resultToModel(result *audit.Result) (*AuditRunModel, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit run: %w", err)
	}

	fs := result.FinancialSummary
	return &AuditRunModel{
		ID:              result.RunID,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
		Incidents:       len(result.ConsolidatedViolations),
		RawFindings:     result.RawCount(),
		VehiclesFlagged: fs.VehiclesFlagged,
		WorstOffender:   fs.WorstOffender,
		TotalFleetLoss:  fs.TotalFleetLoss,
		WeeklyEstimate:  fs.WeeklyFleetEstimate,
		MonthlyEstimate: fs.MonthlyFleetEstimate,
		PeriodDays:      fs.PeriodDays,
		SkippedRecords:  result.SkippedRecords.Total(),
		Warnings:        len(result.OverlapWarnings),
		Result:          string(data),
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func modelToResult(model *AuditRunModel) (*audit.Result, error) {
	var result audit.Result
	if err := json.Unmarshal([]byte(model.Result), &result); err != nil {
		return nil, fmt.Errorf("failed to decode audit run %s: %w", model.ID, err)
	}
	return &result, nil
}
