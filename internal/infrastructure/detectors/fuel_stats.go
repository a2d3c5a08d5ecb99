package detectors

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"fleet-audit/internal/domain/fleet"
)

// deviationHit is a purchase far above the history of its group
type deviationHit struct {
	tx      fleet.FuelTransaction
	value   float64
	mean    float64
	stdDev  float64
	zScore  float64
	history int
}

// deviationSeries picks what a deviation check compares: the group a purchase
// belongs to and the measured value; ok is false for purchases that carry no value.
type deviationSeries struct {
	group func(fleet.FuelTransaction) string
	value func(fleet.FuelTransaction) (v float64, ok bool)
}

// amountsByHolder tracks ticket totals per driver, else card, else vehicle
var amountsByHolder = deviationSeries{
	group: fleet.FuelTransaction.HolderKey,
	value: func(tx fleet.FuelTransaction) (float64, bool) {
		return tx.Amount().InexactFloat64(), true
	},
}

// gallonsByVehicle tracks exported volumes per vehicle
var gallonsByVehicle = deviationSeries{
	group: reportingVehicle,
	value: func(tx fleet.FuelTransaction) (float64, bool) {
		if !tx.HasGallons() {
			return 0, false
		}
		return tx.Gallons.Decimal.InexactFloat64(), true
	},
}

// behavioralDeviations compares every purchase against the prior purchases of the
// same group. Groups with fewer than minHistory prior values are not judged and
// count towards exempt. The standard deviation is floored at minStdFrac of the mean
// so a spike after a perfectly steady history is still measurable.
// fuel must be in timestamp order.
func behavioralDeviations(fuel []fleet.FuelTransaction, series deviationSeries, minHistory int, threshold, minStdFrac float64) (hits []deviationHit, exempt int) {
	history := make(map[string][]float64)

	for _, tx := range fuel {
		value, ok := series.value(tx)
		if !ok {
			continue
		}
		key := series.group(tx)
		prior := history[key]
		history[key] = append(prior, value)

		if len(prior) < minHistory {
			exempt++
			continue
		}

		mean, std := stat.MeanStdDev(prior, nil)
		std = math.Max(std, minStdFrac*math.Abs(mean))
		if std == 0 {
			continue
		}
		z := (value - mean) / std
		if z > threshold {
			hits = append(hits, deviationHit{tx: tx, value: value, mean: mean, stdDev: std, zScore: z, history: len(prior)})
		}
	}
	return hits, exempt
}

// refillHit is a second large fill shortly after another one for the same vehicle
type refillHit struct {
	prev, cur               fleet.FuelTransaction
	prevGallons, curGallons float64
	estimated               bool
	gap                     time.Duration
}

// rapidRefills finds consecutive fills of one vehicle within window where both
// fills took at least minFraction of the tank. Missing gallons are estimated
// from the amount at the fallback price. txs must be one vehicle's purchases in time order.
func rapidRefills(txs []fleet.FuelTransaction, window time.Duration, minFraction, capacity float64, price decimal.Decimal) []refillHit {
	var hits []refillHit
	floor := capacity * minFraction

	for i := 1; i < len(txs); i++ {
		prev, cur := txs[i-1], txs[i]
		gap := cur.Timestamp.Sub(prev.Timestamp)
		if gap > window {
			continue
		}
		prevGal, prevEst := prev.EffectiveGallons(price)
		curGal, curEst := cur.EffectiveGallons(price)
		if prevGal < floor || curGal < floor {
			continue
		}
		hits = append(hits, refillHit{
			prev:        prev,
			cur:         cur,
			prevGallons: prevGal,
			curGallons:  curGal,
			estimated:   prevEst || curEst,
			gap:         gap,
		})
	}
	return hits
}

// reportingVehicle names the vehicle a purchase is attributed to; purchases on
// cards that could not be mapped to a vehicle are grouped under their card.
func reportingVehicle(tx fleet.FuelTransaction) string {
	if tx.VehicleID != "" {
		return tx.VehicleID
	}
	return "card:" + tx.CardID
}
