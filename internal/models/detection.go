package models

import "time"

// DetectionKind categorises a fused detection by the phenomenon observed.
type DetectionKind string

const (
	DetectionThermalAnomaly    DetectionKind = "thermal_anomaly"
	DetectionSeismicEvent      DetectionKind = "seismic_event"
	DetectionEMFSpike          DetectionKind = "emf_spike"
	DetectionInfrasoundEvent   DetectionKind = "infrasound_event"
	DetectionUltrasonicEvent   DetectionKind = "ultrasonic_event"
	DetectionRadiationSpike    DetectionKind = "radiation_spike"
	DetectionEntropyAnomaly    DetectionKind = "entropy_anomaly"
	DetectionRFAnomaly         DetectionKind = "rf_anomaly"
	DetectionLaserInterruption DetectionKind = "laser_interruption"
	DetectionStaticDischarge   DetectionKind = "static_discharge"
	DetectionIonizationChange  DetectionKind = "ionization_change"
	DetectionLightAnomaly      DetectionKind = "light_anomaly"
	DetectionCorrelated        DetectionKind = "correlated_anomaly"
	DetectionUnknown           DetectionKind = "unknown"
)

// detectionKinds maps each sensor type to the detection kind it evidences.
var detectionKinds = map[SensorType]DetectionKind{
	SensorThermalImager:    DetectionThermalAnomaly,
	SensorThermalArray:     DetectionThermalAnomaly,
	SensorGeophone:         DetectionSeismicEvent,
	SensorAccelerometer:    DetectionSeismicEvent,
	SensorEMFProbe:         DetectionEMFSpike,
	SensorFluxGate:         DetectionEMFSpike,
	SensorTriField:         DetectionEMFSpike,
	SensorInfrasound:       DetectionInfrasoundEvent,
	SensorUltrasonic:       DetectionUltrasonicEvent,
	SensorGeigerCounter:    DetectionRadiationSpike,
	SensorScintillator:     DetectionRadiationSpike,
	SensorQRNG:             DetectionEntropyAnomaly,
	SensorThermalNoise:     DetectionEntropyAnomaly,
	SensorSDRReceiver:      DetectionRFAnomaly,
	SensorSpectrumAnalyzer: DetectionRFAnomaly,
	SensorLaserGrid:        DetectionLaserInterruption,
	SensorStaticMeter:      DetectionStaticDischarge,
	SensorIonCounter:       DetectionIonizationChange,
	SensorSpectrometer:     DetectionLightAnomaly,
	SensorLightMeter:       DetectionLightAnomaly,
}

// DetectionKindFor returns the detection kind evidenced by a sensor type.
func DetectionKindFor(t SensorType) DetectionKind {
	if kind, ok := detectionKinds[t]; ok {
		return kind
	}
	return DetectionUnknown
}

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForConfidence maps a fused confidence onto a severity level.
func SeverityForConfidence(confidence float64) Severity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.7:
		return SeverityHigh
	case confidence >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SensorContribution is an immutable snapshot of one sensor's evidence
// joined into a fusion or correlation result.
type SensorContribution struct {
	SensorID     string     `json:"sensor_id"`
	SensorType   SensorType `json:"sensor_type"`
	Weight       float64    `json:"weight"`
	ReadingValue float64    `json:"reading_value"`
	AnomalyScore float64    `json:"anomaly_score"`
}

// Classification is the heuristic category assigned to a detection.
type Classification struct {
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

// Detection is the terminal record emitted to the export layer.
// Created once by the orchestrator, immutable thereafter.
type Detection struct {
	ID               string               `json:"id"`
	Timestamp        time.Time            `json:"timestamp"`
	Kind             DetectionKind        `json:"kind"`
	Confidence       float64              `json:"confidence"`
	Severity         Severity             `json:"severity"`
	Sensors          []SensorContribution `json:"sensors"`
	AnomalyCount     int                  `json:"anomaly_count"`
	CorrelationScore float64              `json:"correlation_score"`
	EntropyDeviation float64              `json:"entropy_deviation"`
	Classification   *Classification      `json:"classification,omitempty"`
	WindowStart      time.Time            `json:"window_start"`
	WindowEnd        time.Time            `json:"window_end"`
}

// CorrelationEvent reports a temporally correlated multi-sensor burst.
// Produced by one correlator check and consumed immediately by fusion.
type CorrelationEvent struct {
	Timestamp  time.Time            `json:"timestamp"`
	Sensors    []SensorContribution `json:"sensors"`
	Confidence float64              `json:"confidence"`
	LagMs      int64                `json:"lag_ms"`
}
