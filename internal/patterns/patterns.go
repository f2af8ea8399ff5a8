// Package patterns finds structural features in sample windows: periodicity,
// transients, trends, step changes and recurring motifs.
package patterns

import (
	"fmt"
	"math"
	"sort"

	"github.com/glowmesh/fusion-engine/internal/stats"
)

const eps = 1e-10

// Kind labels a detected pattern.
type Kind string

const (
	KindPeriodic   Kind = "periodic"
	KindTransient  Kind = "transient"
	KindTrend      Kind = "trend"
	KindStepChange Kind = "step_change"
	KindRecurring  Kind = "recurring"
)

// Pattern is one structural feature located in a window.
type Pattern struct {
	Kind        Kind    `json:"kind"`
	StartIndex  int     `json:"start_index"`
	Length      int     `json:"length"`
	Confidence  float64 `json:"confidence"`
	Period      float64 `json:"period,omitempty"`
	Description string  `json:"description"`
}

// Detector runs every pattern finder over a window.
type Detector struct {
	minLength int
}

// NewDetector builds a detector; minLength is both the shortest window worth
// scanning and the motif subsequence length.
func NewDetector(minLength int) *Detector {
	if minLength < 4 {
		minLength = 4
	}
	return &Detector{minLength: minLength}
}

// Find returns every pattern in the window. Windows shorter than the minimum
// length yield none.
func (d *Detector) Find(data []float64) []Pattern {
	if len(data) < d.minLength {
		return nil
	}

	var out []Pattern
	if p, ok := DetectPeriodicity(data); ok {
		out = append(out, p)
	}
	out = append(out, DetectTransients(data)...)
	if p, ok := DetectTrend(data); ok {
		out = append(out, p)
	}
	out = append(out, DetectStepChanges(data)...)
	out = append(out, d.detectMotifs(data)...)
	return out
}

// DetectPeriodicity finds the first autocorrelation rebound above 0.3 after
// a trough, then walks forward to the local autocorrelation maximum and
// reports that lag as the period. The walk matters: the rebound crosses the
// threshold on the rising flank, several lags short of the true period.
func DetectPeriodicity(data []float64) (Pattern, bool) {
	n := len(data)
	if n < 32 {
		return Pattern{}, false
	}

	mean := stats.Mean(data)
	var variance float64
	for _, v := range data {
		variance += (v - mean) * (v - mean)
	}
	if variance < eps {
		return Pattern{}, false
	}

	maxLag := n / 2
	const threshold = 0.3
	inTrough := false

	for lag := 1; lag < maxLag; lag++ {
		ac := autocorr(data, mean, variance, lag)

		if ac < threshold {
			inTrough = true
		}
		if inTrough && ac > threshold {
			bestLag, bestAC := lag, ac
			for next := lag + 1; next < maxLag; next++ {
				nextAC := autocorr(data, mean, variance, next)
				if nextAC <= bestAC {
					break
				}
				bestLag, bestAC = next, nextAC
			}
			return Pattern{
				Kind:        KindPeriodic,
				StartIndex:  0,
				Length:      n,
				Confidence:  math.Min(bestAC, 1),
				Period:      float64(bestLag),
				Description: fmt.Sprintf("periodic signal with period %d", bestLag),
			}, true
		}
	}
	return Pattern{}, false
}

func autocorr(data []float64, mean, variance float64, lag int) float64 {
	var sum float64
	for i := 0; i < len(data)-lag; i++ {
		sum += (data[i] - mean) * (data[i+lag] - mean)
	}
	return sum / variance
}

// DetectTransients flags runs of at least 3 samples whose short-term energy
// exceeds the mean by three standard deviations.
func DetectTransients(data []float64) []Pattern {
	if len(data) < 10 {
		return nil
	}

	const window = 5
	energies := make([]float64, 0, len(data)-window+1)
	for i := 0; i+window <= len(data); i++ {
		var e float64
		for _, v := range data[i : i+window] {
			e += v * v
		}
		energies = append(energies, e/window)
	}

	meanE := stats.Mean(energies)
	var varE float64
	for _, e := range energies {
		varE += (e - meanE) * (e - meanE)
	}
	stdE := math.Sqrt(varE / float64(len(energies)))
	threshold := meanE + 3*stdE

	var out []Pattern
	inTransient := false
	start := 0

	for i, e := range energies {
		switch {
		case e > threshold && !inTransient:
			inTransient = true
			start = i
		case e <= threshold && inTransient:
			inTransient = false
			length := i - start
			if length < 3 {
				continue
			}
			peak := energies[start]
			for _, v := range energies[start:i] {
				if v > peak {
					peak = v
				}
			}
			out = append(out, Pattern{
				Kind:        KindTransient,
				StartIndex:  start,
				Length:      length,
				Confidence:  math.Min((peak-threshold)/threshold, 1),
				Description: fmt.Sprintf("transient at index %d, length %d", start, length),
			})
		}
	}
	return out
}

// DetectTrend reports a window-wide linear trend when the regression fit has
// R-squared above 0.3.
func DetectTrend(data []float64) (Pattern, bool) {
	if len(data) < 20 {
		return Pattern{}, false
	}

	n := float64(len(data))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range data {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, y := range data {
		ssTot += (y - meanY) * (y - meanY)
		fit := slope*float64(i) + intercept
		ssRes += (y - fit) * (y - fit)
	}

	rSquared := 0.0
	if ssTot > eps {
		rSquared = 1 - ssRes/ssTot
	}

	if rSquared <= 0.3 || math.Abs(slope) <= 1e-6 {
		return Pattern{}, false
	}

	direction := "upward"
	if slope < 0 {
		direction = "downward"
	}
	return Pattern{
		Kind:        KindTrend,
		StartIndex:  0,
		Length:      len(data),
		Confidence:  rSquared,
		Description: fmt.Sprintf("linear %s trend (r2=%.2f)", direction, rSquared),
	}, true
}

// DetectStepChanges compares adjacent sliding-window means and reports
// locations where they differ by more than two local standard deviations.
// The local scale pools the two flanking windows; the global deviation would
// absorb the step itself and never flag it. Nearby repeats within one window
// length are suppressed.
func DetectStepChanges(data []float64) []Pattern {
	if len(data) < 20 {
		return nil
	}

	if stats.StdDev(data) < eps {
		return nil
	}

	window := len(data) / 10
	if window < 5 {
		return nil
	}

	var out []Pattern
	for i := window; i < len(data)-window; i++ {
		left := data[i-window : i]
		right := data[i : i+window]

		diff := math.Abs(stats.Mean(right) - stats.Mean(left))
		localStd := math.Max((stats.StdDev(left)+stats.StdDev(right))/2, eps)
		if diff <= 2*localStd {
			continue
		}
		if len(out) > 0 && i-out[len(out)-1].StartIndex <= window {
			continue
		}
		out = append(out, Pattern{
			Kind:        KindStepChange,
			StartIndex:  i,
			Length:      1,
			Confidence:  math.Min(diff/localStd/3, 1),
			Description: fmt.Sprintf("step change at index %d (%.2f local sigma)", i, diff/localStd),
		})
	}
	return out
}

// detectMotifs is a simplified matrix profile: z-normalized distances between
// non-overlapping subsequences, reporting up to three closest pairs.
func (d *Detector) detectMotifs(data []float64) []Pattern {
	motifLength := d.minLength
	if len(data) < motifLength*3 {
		return nil
	}

	nSub := len(data) - motifLength + 1
	minDist := make([]float64, nSub)
	nearest := make([]int, nSub)
	for i := range minDist {
		minDist[i] = math.MaxFloat64
	}

	means := make([]float64, nSub)
	stds := make([]float64, nSub)
	for i := 0; i < nSub; i++ {
		sub := data[i : i+motifLength]
		means[i] = stats.Mean(sub)
		var v float64
		for _, x := range sub {
			v += (x - means[i]) * (x - means[i])
		}
		stds[i] = math.Sqrt(v / float64(motifLength))
	}

	for i := 0; i < nSub; i++ {
		if stds[i] < eps {
			continue
		}
		for j := i + motifLength; j < nSub; j++ {
			if stds[j] < eps {
				continue
			}
			var dist float64
			for k := 0; k < motifLength; k++ {
				za := (data[i+k] - means[i]) / stds[i]
				zb := (data[j+k] - means[j]) / stds[j]
				dist += (za - zb) * (za - zb)
			}
			dist = math.Sqrt(dist)

			if dist < minDist[i] {
				minDist[i] = dist
				nearest[i] = j
			}
			if dist < minDist[j] {
				minDist[j] = dist
				nearest[j] = i
			}
		}
	}

	threshold := 0.5 * math.Sqrt(float64(motifLength))
	type candidate struct {
		idx  int
		dist float64
	}
	var candidates []candidate
	for i, dist := range minDist {
		if dist < threshold {
			candidates = append(candidates, candidate{i, dist})
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })

	var out []Pattern
	reported := make(map[int]struct{})
	for _, c := range candidates {
		if len(out) >= 3 {
			break
		}
		if _, ok := reported[c.idx]; ok {
			continue
		}
		if _, ok := reported[nearest[c.idx]]; ok {
			continue
		}
		reported[c.idx] = struct{}{}
		reported[nearest[c.idx]] = struct{}{}

		out = append(out, Pattern{
			Kind:        KindRecurring,
			StartIndex:  c.idx,
			Length:      motifLength,
			Confidence:  1 - c.dist/threshold,
			Period:      math.Abs(float64(nearest[c.idx] - c.idx)),
			Description: fmt.Sprintf("recurring motif at %d and %d", c.idx, nearest[c.idx]),
		})
	}
	return out
}
