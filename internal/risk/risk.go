// Package risk maps a correlation confidence to a severity tier.
package risk

// Risk is the severity tier of a correlated event.
type Risk string

const (
	Low  Risk = "low"
	Med  Risk = "med"
	High Risk = "high"
)

// Tier thresholds. Boundaries are inclusive at the lower bound of each
// tier: exactly 0.80 is high, exactly 0.55 is med.
const (
	HighThreshold = 0.80
	MedThreshold  = 0.55
)

// DefaultConfidence is assumed wherever an alert is manufactured without an
// explicit score. It maps to Med.
const DefaultConfidence = 0.6

// Classify maps a confidence in [0,1] to a risk tier.
func Classify(confidence float64) Risk {
	switch {
	case confidence >= HighThreshold:
		return High
	case confidence >= MedThreshold:
		return Med
	default:
		return Low
	}
}
