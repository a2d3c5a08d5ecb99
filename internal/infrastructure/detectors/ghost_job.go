package detectors

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/fleet"
	"fleet-audit/internal/domain/violation"
)

const ghostJobConfidence = 0.85

// detectGhostJobs flags completed jobs the assigned vehicle never visited
func (e *Engine) detectGhostJobs(ctx context.Context) (Output, error) {
	var out Output
	p := e.params

	for _, job := range e.ds.Jobs {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if !job.IsCompleted() {
			continue
		}
		if job.Coordinates == nil || job.VehicleID == "" || !e.matcher.HasVehicle(job.VehicleID) {
			out.Exempt++
			continue
		}

		res := e.matcher.FindNearby(job.VehicleID, job.ScheduledTime, job.Coordinates, p.JobTimeBuffer, p.JobDistanceMiles)
		if res.Found() {
			continue
		}

		loss := decimal.NewFromFloat(p.GhostJobCost)
		if job.BilledAmount.Valid && job.BilledAmount.Decimal.IsPositive() {
			loss = job.BilledAmount.Decimal
		}

		site := job.Site()
		v := violation.RawViolation{
			Type:            violation.TypeGhostJob,
			VehicleID:       job.VehicleID,
			DriverID:        job.DriverID,
			Timestamp:       job.ScheduledTime,
			Location:        &site,
			Severity:        violation.SeverityHigh,
			Confidence:      ghostJobConfidence,
			EstimatedLoss:   loss,
			DetectionMethod: "ghost_job_gps",
			Description: fmt.Sprintf("Job %s at %s marked completed but %s was never within %.1f miles of the site within %s of %s",
				job.JobID, site, job.VehicleID, p.JobDistanceMiles, p.JobTimeBuffer, job.ScheduledTime.UTC().Format("2006-01-02 15:04")),
			Evidence: violation.Evidence{
				Source:    fleet.SourceJobs,
				RecordIDs: []string{job.JobID},
			},
		}
		if nearest, ok := e.matcher.Nearest(job.VehicleID, job.ScheduledTime, *job.Coordinates, p.JobTimeBuffer); ok {
			v.AddMetric("nearest_ping_miles", nearest.DistanceMiles)
		}
		out.add(v)
	}

	return out, nil
}
