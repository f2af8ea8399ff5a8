package models

// AnomalyKind labels the shape of a detected anomaly.
type AnomalyKind string

const (
	AnomalyPoint       AnomalyKind = "point"
	AnomalyContextual  AnomalyKind = "contextual"
	AnomalyCollective  AnomalyKind = "collective"
	AnomalyChangePoint AnomalyKind = "change_point"
	AnomalySpike       AnomalyKind = "spike"
	AnomalyDrop        AnomalyKind = "drop"
	AnomalyDrift       AnomalyKind = "drift"
	AnomalyOscillation AnomalyKind = "oscillation"
)

// Anomaly is one flagged sample within a window. Immutable after creation;
// merge passes only filter and deduplicate.
type Anomaly struct {
	Index      int         `json:"index"`
	Value      float64     `json:"value"`
	Score      float64     `json:"score"`
	Kind       AnomalyKind `json:"kind"`
	Confidence float64     `json:"confidence"`
}
