// Package classify assigns detections to one of five heuristic categories
// using fixed linear combinations of detection indicators.
package classify

import (
	"math"

	"github.com/glowmesh/fusion-engine/internal/models"
)

// Category names. Scores for all five are always reported alongside the
// winning category.
const (
	CategoryNatural     = "natural"
	CategoryElectronic  = "electronic"
	CategoryHuman       = "human"
	CategoryBiological  = "biological"
	CategoryUnexplained = "unexplained"
)

// features are the indicator values extracted from one detection.
type features struct {
	isThermal        float64
	isEMF            float64
	isAcoustic       float64
	isSeismic        float64
	sensorCount      float64
	correlation      float64
	entropyDeviation float64
	confidence       float64
	multiSensor      float64
}

func extract(d models.Detection) features {
	f := features{
		sensorCount:      float64(len(d.Sensors)),
		correlation:      d.CorrelationScore,
		entropyDeviation: math.Min(d.EntropyDeviation, 1),
		confidence:       d.Confidence,
	}
	switch d.Kind {
	case models.DetectionThermalAnomaly:
		f.isThermal = 1
	case models.DetectionEMFSpike:
		f.isEMF = 1
	case models.DetectionInfrasoundEvent, models.DetectionUltrasonicEvent:
		f.isAcoustic = 1
	case models.DetectionSeismicEvent:
		f.isSeismic = 1
	}
	if len(d.Sensors) > 2 {
		f.multiSensor = 1
	}
	return f
}

// Classify scores all categories for the detection, normalizes the scores to
// sum to one and returns the arg-max category.
func Classify(d models.Detection) models.Classification {
	f := extract(d)

	scores := map[string]float64{
		CategoryNatural: math.Min(
			f.isSeismic*0.3+(1-f.correlation)*0.3+(1-f.entropyDeviation)*0.4, 1),
		CategoryElectronic: math.Min(
			f.isEMF*0.6+singleSensorBonus(f.sensorCount)*0.4, 1),
		CategoryHuman: math.Min(
			(f.isThermal+f.isAcoustic+f.isSeismic)/3*0.7, 1),
		CategoryBiological: math.Min(
			acousticBonus(f.isAcoustic)+f.isSeismic*0.3+(1-f.isThermal)*0.2, 1),
		CategoryUnexplained: math.Min(
			(f.correlation*0.3+f.entropyDeviation*0.3+f.multiSensor*0.2+f.confidence*0.2)*1.2, 1),
	}

	var total float64
	for _, s := range scores {
		total += s
	}
	if total > 0 {
		for k := range scores {
			scores[k] /= total
		}
	}

	best := CategoryUnexplained
	bestScore := -1.0
	// Deterministic tie-break over the fixed category order.
	for _, name := range []string{CategoryNatural, CategoryElectronic, CategoryHuman, CategoryBiological, CategoryUnexplained} {
		if scores[name] > bestScore {
			best = name
			bestScore = scores[name]
		}
	}

	return models.Classification{
		Category:   best,
		Confidence: bestScore,
		Scores:     scores,
	}
}

func singleSensorBonus(count float64) float64 {
	if count <= 1 {
		return 0.5
	}
	return 0
}

func acousticBonus(isAcoustic float64) float64 {
	if isAcoustic > 0.5 {
		return 0.3
	}
	return 0
}
