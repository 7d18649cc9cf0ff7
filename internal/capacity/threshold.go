// Package capacity derives severity tiers and the growth prediction from
// aggregated cluster totals.
package capacity

import "pvescope/internal/model"

// Thresholds are the tier boundaries, applied independently per resource.
// Boundaries are closed on the lower bound: a ratio exactly at Warning is
// already warning, exactly at Critical is already critical.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds matches the configuration defaults.
var DefaultThresholds = Thresholds{Warning: 0.75, Critical: 0.90}

// Classify maps a ratio to its tier. Undefined ratios get their own tier,
// never ok.
func (t Thresholds) Classify(r model.Ratio) model.Tier {
	switch {
	case !r.Defined:
		return model.TierUnknown
	case r.Value >= t.Critical:
		return model.TierCritical
	case r.Value >= t.Warning:
		return model.TierWarning
	default:
		return model.TierOK
	}
}
