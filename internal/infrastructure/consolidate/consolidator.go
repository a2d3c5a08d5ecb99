package consolidate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/domain/violation"
)

// incidentNamespace seeds IDs of multi-member incidents
var incidentNamespace = uuid.MustParse("5c8e2d0a-71f4-4b9e-a3c6-0d9b4e7f1a62")

// unit is something the linker can chain: a raw finding or an existing incident
type unit struct {
	vehicleID string
	start     time.Time
	end       time.Time
	members   []violation.RawViolation
}

// Consolidate merges raw findings of the same vehicle whose timestamps chain together
// within the dedup window. Severity and loss take the maximum member; confidence
// takes the best member plus a boost per additional detection method.
func Consolidate(raw []violation.RawViolation, p audit.ConsolidationParams) []violation.ConsolidatedViolation {
	units := make([]unit, 0, len(raw))
	for _, r := range raw {
		units = append(units, unit{
			vehicleID: r.VehicleID,
			start:     r.Timestamp,
			end:       r.Timestamp,
			members:   []violation.RawViolation{r},
		})
	}
	return link(units, p)
}

// Reconsolidate runs the same merge over existing incidents. Feeding it the output of
// Consolidate returns the same incidents.
func Reconsolidate(incidents []violation.ConsolidatedViolation, p audit.ConsolidationParams) []violation.ConsolidatedViolation {
	units := make([]unit, 0, len(incidents))
	for _, c := range incidents {
		members := make([]violation.RawViolation, len(c.Members))
		copy(members, c.Members)
		units = append(units, unit{
			vehicleID: c.VehicleID,
			start:     c.Timestamp,
			end:       c.EndTimestamp,
			members:   members,
		})
	}
	return link(units, p)
}

// link applies single-linkage clustering per vehicle: a unit joins the current
// cluster when it starts no later than DedupWindow after the cluster's latest timestamp.
func link(units []unit, p audit.ConsolidationParams) []violation.ConsolidatedViolation {
	byVehicle := make(map[string][]unit)
	for _, u := range units {
		byVehicle[u.vehicleID] = append(byVehicle[u.vehicleID], u)
	}

	out := make([]violation.ConsolidatedViolation, 0, len(units))
	for vehicleID, vu := range byVehicle {
		sort.SliceStable(vu, func(i, j int) bool {
			if !vu[i].start.Equal(vu[j].start) {
				return vu[i].start.Before(vu[j].start)
			}
			return vu[i].members[0].ID.String() < vu[j].members[0].ID.String()
		})

		var (
			cluster []violation.RawViolation
			end     time.Time
		)
		for _, u := range vu {
			if len(cluster) > 0 && u.start.Sub(end) > p.DedupWindow {
				out = append(out, merge(vehicleID, cluster, p))
				cluster = nil
			}
			if len(cluster) == 0 || u.end.After(end) {
				end = u.end
			}
			cluster = append(cluster, u.members...)
		}
		if len(cluster) > 0 {
			out = append(out, merge(vehicleID, cluster, p))
		}
	}

	Sort(out)
	return out
}

// merge folds the members of one cluster into an incident
func merge(vehicleID string, members []violation.RawViolation, p audit.ConsolidationParams) violation.ConsolidatedViolation {
	if len(members) == 1 {
		c := violation.FromRaw(members[0])
		c.Confidence = math.Min(p.MaxConfidence, c.Confidence)
		return c
	}
	violation.SortRaw(members)

	primary := members[0]
	best := members[0]
	c := violation.ConsolidatedViolation{
		VehicleID:     vehicleID,
		Timestamp:     members[0].Timestamp,
		EndTimestamp:  members[0].Timestamp,
		Severity:      members[0].Severity,
		EstimatedLoss: members[0].EstimatedLoss,
		Members:       members,
	}

	types := make(map[violation.Type]struct{})
	methods := make(map[string]struct{})
	for _, m := range members {
		types[m.Type] = struct{}{}
		methods[m.DetectionMethod] = struct{}{}

		if c.DriverID == "" {
			c.DriverID = m.DriverID
		}
		if m.Timestamp.Before(c.Timestamp) {
			c.Timestamp = m.Timestamp
		}
		if m.Timestamp.After(c.EndTimestamp) {
			c.EndTimestamp = m.Timestamp
		}
		c.Severity = violation.MaxSeverity(c.Severity, m.Severity)
		c.EstimatedLoss = decimal.Max(c.EstimatedLoss, m.EstimatedLoss)
		if m.Confidence > best.Confidence {
			best = m
		}
		if outranks(m, primary) {
			primary = m
		}
	}

	c.Types = make([]violation.Type, 0, len(types))
	for t := range types {
		c.Types = append(c.Types, t)
	}
	sort.Slice(c.Types, func(i, j int) bool { return c.Types[i] < c.Types[j] })

	c.DetectionMethods = make([]string, 0, len(methods))
	for m := range methods {
		c.DetectionMethods = append(c.DetectionMethods, m)
	}
	sort.Strings(c.DetectionMethods)

	// every member carries exactly one method, so the best member accounts for one of them
	corroborating := len(c.DetectionMethods) - 1
	c.Confidence = math.Min(p.MaxConfidence, best.Confidence+p.CorroborationBoost*float64(corroborating))

	c.Location = primary.Location
	c.Description = primary.Description
	if corroborating > 0 {
		c.Description = fmt.Sprintf("%s (corroborated by %d detection methods: %s)",
			primary.Description, len(c.DetectionMethods), strings.Join(c.DetectionMethods, ", "))
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID.String())
	}
	sort.Strings(ids)
	c.ID = uuid.NewSHA1(incidentNamespace, []byte(strings.Join(ids, "|")))
	return c
}

// outranks picks the member that describes an incident: most severe, then most confident
func outranks(a, b violation.RawViolation) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.EstimatedLoss.GreaterThan(b.EstimatedLoss)
}

// Sort orders incidents most severe first: severity, confidence and loss descending,
// then timestamp, vehicle and ID ascending
func Sort(cs []violation.ConsolidatedViolation) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.EstimatedLoss.Equal(b.EstimatedLoss) {
			return a.EstimatedLoss.GreaterThan(b.EstimatedLoss)
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.VehicleID != b.VehicleID {
			return a.VehicleID < b.VehicleID
		}
		return a.ID.String() < b.ID.String()
	})
}
