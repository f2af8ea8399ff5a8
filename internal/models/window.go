package models

import "time"

// SensorType enumerates the supported measurement channel categories.
type SensorType string

const (
	SensorThermalImager    SensorType = "thermal_imager"
	SensorThermalArray     SensorType = "thermal_array"
	SensorGeophone         SensorType = "geophone"
	SensorAccelerometer    SensorType = "accelerometer"
	SensorEMFProbe         SensorType = "emf_probe"
	SensorFluxGate         SensorType = "flux_gate"
	SensorTriField         SensorType = "tri_field"
	SensorInfrasound       SensorType = "infrasound"
	SensorUltrasonic       SensorType = "ultrasonic"
	SensorGeigerCounter    SensorType = "geiger_counter"
	SensorScintillator     SensorType = "scintillator"
	SensorQRNG             SensorType = "qrng"
	SensorThermalNoise     SensorType = "thermal_noise"
	SensorSDRReceiver      SensorType = "sdr_receiver"
	SensorSpectrumAnalyzer SensorType = "spectrum_analyzer"
	SensorLaserGrid        SensorType = "laser_grid"
	SensorStaticMeter      SensorType = "static_meter"
	SensorIonCounter       SensorType = "ion_counter"
	SensorSpectrometer     SensorType = "spectrometer"
	SensorLightMeter       SensorType = "light_meter"
)

// SampleWindow is one bounded slice of samples from a single sensor stream.
// It is immutable once handed to the analysis components.
type SampleWindow struct {
	SensorID   string     `json:"sensor_id"`
	SensorType SensorType `json:"sensor_type"`
	Timestamp  time.Time  `json:"timestamp"`
	Sequence   uint64     `json:"sequence"`
	Data       []float64  `json:"data"`
	SampleRate float64    `json:"sample_rate"`
	Quality    float64    `json:"quality"`
}

// Mean returns the average sample value, or zero for an empty window.
func (w SampleWindow) Mean() float64 {
	if len(w.Data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.Data {
		sum += v
	}
	return sum / float64(len(w.Data))
}

// DefaultReliabilityWeights returns the baseline per-sensor-type trust table
// consulted by the fusion strategies. Types absent from the table weigh 0.5.
func DefaultReliabilityWeights() map[SensorType]float64 {
	return map[SensorType]float64{
		SensorThermalImager:    0.85,
		SensorThermalArray:     0.80,
		SensorGeophone:         0.80,
		SensorAccelerometer:    0.75,
		SensorEMFProbe:         0.70,
		SensorFluxGate:         0.85,
		SensorTriField:         0.70,
		SensorInfrasound:       0.75,
		SensorUltrasonic:       0.75,
		SensorGeigerCounter:    0.90,
		SensorScintillator:     0.85,
		SensorQRNG:             0.80,
		SensorThermalNoise:     0.70,
		SensorSDRReceiver:      0.70,
		SensorSpectrumAnalyzer: 0.70,
		SensorLaserGrid:        0.95,
		SensorStaticMeter:      0.60,
		SensorIonCounter:       0.60,
		SensorSpectrometer:     0.65,
		SensorLightMeter:       0.65,
	}
}

// DefaultReliabilityWeight is used for sensor types missing from the table.
const DefaultReliabilityWeight = 0.5
