package fleet

// QualityTier grades how complete the fuel-card export is.
// Higher tiers let every detector trust its own arithmetic more.
type QualityTier int

const (
	TierNone       QualityTier = 0 // no fuel data loaded
	TierAmountOnly QualityTier = 1
	TierPartial    QualityTier = 2
	TierNoPrice    QualityTier = 3
	TierComplete   QualityTier = 4
)

// coverageCutoff is the share of records a field must be present on to count for a tier
const coverageCutoff = 0.8

// DataQuality summarizes the fuel source and the confidence multiplier it implies
type DataQuality struct {
	Tier                 QualityTier `json:"tier"`
	Description          string      `json:"description"`
	ConfidenceMultiplier float64     `json:"confidence_multiplier"`
	TotalRecords         int         `json:"total_records"`
	WithGallons          int         `json:"with_gallons"`
	WithPrice            int         `json:"with_price"`
	WithCoordinates      int         `json:"with_coordinates"`
	Suggestions          []string    `json:"improvement_suggestions,omitempty"`
}

var tierMultipliers = map[QualityTier]float64{
	TierNone:       1.0,
	TierAmountOnly: 0.6,
	TierPartial:    0.75,
	TierNoPrice:    0.9,
	TierComplete:   1.0,
}

var tierDescriptions = map[QualityTier]string{
	TierNone:       "No fuel data loaded",
	TierAmountOnly: "Transaction amounts only - volume checks use estimated gallons",
	TierPartial:    "Gallons reported on some transactions",
	TierNoPrice:    "Gallons and amounts reported, no per-gallon price",
	TierComplete:   "Gallons, price per gallon and amounts reported",
}

// Multiplier returns the confidence multiplier for the tier
func (t QualityTier) Multiplier() float64 {
	if m, ok := tierMultipliers[t]; ok {
		return m
	}
	return 1.0
}

// AssessQuality classifies a fuel source into a data-quality tier
func AssessQuality(fuel []FuelTransaction) DataQuality {
	q := DataQuality{TotalRecords: len(fuel)}
	if len(fuel) == 0 {
		q.Tier = TierNone
		q.Description = tierDescriptions[TierNone]
		q.ConfidenceMultiplier = TierNone.Multiplier()
		return q
	}

	for _, t := range fuel {
		if t.HasGallons() {
			q.WithGallons++
		}
		if t.HasPrice() {
			q.WithPrice++
		}
		if t.Location.HasCoordinates() {
			q.WithCoordinates++
		}
	}

	total := float64(len(fuel))
	gallonsShare := float64(q.WithGallons) / total
	priceShare := float64(q.WithPrice) / total

	switch {
	case gallonsShare >= coverageCutoff && priceShare >= coverageCutoff:
		q.Tier = TierComplete
	case gallonsShare >= coverageCutoff:
		q.Tier = TierNoPrice
	case q.WithGallons > 0:
		q.Tier = TierPartial
	default:
		q.Tier = TierAmountOnly
	}

	q.Description = tierDescriptions[q.Tier]
	q.ConfidenceMultiplier = q.Tier.Multiplier()

	if gallonsShare < coverageCutoff {
		q.Suggestions = append(q.Suggestions, "Export gallons per transaction to enable tank-capacity and MPG checks")
	}
	if priceShare < coverageCutoff {
		q.Suggestions = append(q.Suggestions, "Include price per gallon so mixed fuel and non-fuel tickets can be detected")
	}
	if float64(q.WithCoordinates)/total < coverageCutoff {
		q.Suggestions = append(q.Suggestions, "Include station coordinates or full addresses so purchases can be matched against GPS")
	}

	return q
}
