package coverage

import (
	"fmt"
	"time"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/fleet"
)

// Report is the temporal coverage of one run
type Report struct {
	Sources  []audit.SourceCoverage
	Warnings []audit.OverlapWarning
}

// Analyze computes the span of every loaded source and warns about pairs whose
// windows do not intersect, or intersect for less than limitedRatio of the shorter span.
// It is advisory only and never blocks detection.
func Analyze(ds *fleet.Dataset, p audit.CoverageParams) Report {
	var rep Report
	for _, src := range fleet.AllSources {
		start, end, ok := ds.Span(src)
		if !ok {
			continue
		}
		rep.Sources = append(rep.Sources, audit.SourceCoverage{
			Source:       src,
			Start:        start,
			End:          end,
			RecordCount:  ds.Count(src),
			SkippedCount: ds.Skipped[src],
		})
	}

	for i := 0; i < len(rep.Sources); i++ {
		for j := i + 1; j < len(rep.Sources); j++ {
			if w, ok := compare(rep.Sources[i], rep.Sources[j], p.LimitedOverlapRatio); ok {
				rep.Warnings = append(rep.Warnings, w)
			}
		}
	}
	return rep
}

func compare(a, b audit.SourceCoverage, limitedRatio float64) (audit.OverlapWarning, bool) {
	start := later(a.Start, b.Start)
	end := earlier(a.End, b.End)

	if end.Before(start) {
		return audit.OverlapWarning{
			Kind:    audit.OverlapNone,
			SourceA: a.Source,
			SourceB: b.Source,
			Ratio:   0,
			Message: fmt.Sprintf("%s data (%s to %s) and %s data (%s to %s) do not overlap; cross-source checks will find nothing",
				a.Source, day(a.Start), day(a.End), b.Source, day(b.Start), day(b.End)),
		}, true
	}

	shorter := a.Span()
	if b.Span() < shorter {
		shorter = b.Span()
	}
	ratio := 1.0
	if shorter > 0 {
		ratio = float64(end.Sub(start)) / float64(shorter)
	}
	if ratio >= limitedRatio {
		return audit.OverlapWarning{}, false
	}

	return audit.OverlapWarning{
		Kind:    audit.OverlapLimited,
		SourceA: a.Source,
		SourceB: b.Source,
		Ratio:   ratio,
		Message: fmt.Sprintf("%s and %s data overlap for only %.0f%% of the shorter period (%s to %s)",
			a.Source, b.Source, ratio*100, day(start), day(end)),
	}, true
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
