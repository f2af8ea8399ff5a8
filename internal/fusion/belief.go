package fusion

import "math"

// BeliefMass is a Dempster-Shafer mass assignment over the frame
// {anomaly, normal} plus total uncertainty.
type BeliefMass struct {
	Anomaly     float64 `json:"anomaly"`
	Normal      float64 `json:"normal"`
	Uncertainty float64 `json:"uncertainty"`
}

// Combine applies Dempster's rule of combination, dividing out the conflict
// between contradictory assignments.
func (m BeliefMass) Combine(o BeliefMass) BeliefMass {
	conflict := m.Anomaly*o.Normal + m.Normal*o.Anomaly
	normalizer := math.Max(1-conflict, eps)

	return BeliefMass{
		Anomaly:     (m.Anomaly*o.Anomaly + m.Anomaly*o.Uncertainty + m.Uncertainty*o.Anomaly) / normalizer,
		Normal:      (m.Normal*o.Normal + m.Normal*o.Uncertainty + m.Uncertainty*o.Normal) / normalizer,
		Uncertainty: m.Uncertainty * o.Uncertainty / normalizer,
	}
}

// Normalized rescales the mass so the three components sum to one.
func (m BeliefMass) Normalized() BeliefMass {
	total := m.Anomaly + m.Normal + m.Uncertainty
	if total < eps {
		return BeliefMass{Uncertainty: 1}
	}
	return BeliefMass{
		Anomaly:     m.Anomaly / total,
		Normal:      m.Normal / total,
		Uncertainty: m.Uncertainty / total,
	}
}
