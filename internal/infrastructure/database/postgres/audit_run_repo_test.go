package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
	tu "fleet-audit/internal/testutil"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "audit", Password: "secret", Name: "fleet", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=audit password=secret dbname=fleet sslmode=disable", cfg.DSN())
}

func TestAuditRunModel_TableName(t *testing.T) {
	assert.Equal(t, "audit_runs", AuditRunModel{}.TableName())
}

func TestResultModelMapping(t *testing.T) {
	raw := violation.RawViolation{
		Type:          violation.TypeGhostJob,
		VehicleID:     "V7",
		Timestamp:     tu.At(14, 0),
		Severity:      violation.SeverityHigh,
		Confidence:    0.85,
		EstimatedLoss: tu.Dec(75),
		Description:   "job J2 has no GPS presence",
	}.Sealed()

	result := &audit.Result{
		RunID:                  uuid.MustParse("3f9a2c1e-8b7d-4e6f-a5c4-1b2d3e4f5a6b"),
		StartedAt:              tu.At(12, 0),
		FinishedAt:             tu.At(12, 2),
		ConsolidatedViolations: []violation.ConsolidatedViolation{violation.FromRaw(raw)},
		RawViolations:          map[audit.DetectorKind][]violation.RawViolation{audit.DetectorGhostJob: {raw}},
		FinancialSummary: audit.FinancialSummary{
			TotalFleetLoss:       tu.Dec(75),
			WeeklyFleetEstimate:  tu.Dec(75),
			MonthlyFleetEstimate: tu.Dec(325.71),
			VehiclesFlagged:      1,
			WorstOffender:        "V7",
			PeriodDays:           7,
		},
		OverlapWarnings: []audit.OverlapWarning{{Kind: audit.OverlapLimited, SourceA: fleet.SourceGPS, SourceB: fleet.SourceJobs}},
		SkippedRecords:  fleet.SkippedCounts{fleet.SourceGPS: 2, fleet.SourceFuel: 1},
	}

	model, err := resultToModel(result)
	require.NoError(t, err)

	assert.Equal(t, result.RunID, model.ID)
	assert.Equal(t, 1, model.Incidents)
	assert.Equal(t, 1, model.RawFindings)
	assert.Equal(t, 1, model.VehiclesFlagged)
	assert.Equal(t, "V7", model.WorstOffender)
	assert.Equal(t, 3, model.SkippedRecords)
	assert.Equal(t, 1, model.Warnings)
	assert.True(t, model.TotalFleetLoss.Equal(tu.Dec(75)))

	back, err := modelToResult(model)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, back.RunID)
	require.Len(t, back.ConsolidatedViolations, 1)
	assert.Equal(t, raw.ID, back.ConsolidatedViolations[0].ID)
	assert.True(t, back.ConsolidatedViolations[0].EstimatedLoss.Equal(tu.Dec(75)))
	assert.Len(t, back.RawViolations[audit.DetectorGhostJob], 1)
}

func TestModelToResult_CorruptPayload(t *testing.T) {
	_, err := modelToResult(&AuditRunModel{ID: uuid.New(), Result: "{not json"})
	assert.Error(t, err)
}
