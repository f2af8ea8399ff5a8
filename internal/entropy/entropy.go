// Package entropy implements the entropy and complexity measure suite used to
// characterise sensor sample windows. All estimators return documented neutral
// values on degenerate input instead of errors or NaN.
package entropy

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/glowmesh/fusion-engine/internal/stats"
)

const eps = 1e-10

const histogramBins = 256

// Result carries every measure computed for one window.
type Result struct {
	Shannon float64 `json:"shannon"`
	Renyi   float64 `json:"renyi"`
	Tsallis float64 `json:"tsallis"`

	Sample      float64   `json:"sample"`
	Approximate float64   `json:"approximate"`
	Permutation float64   `json:"permutation"`
	Multiscale  []float64 `json:"multiscale"`

	Spectral float64 `json:"spectral"`
	Wavelet  float64 `json:"wavelet"`

	LZComplexity       float64 `json:"lz_complexity"`
	KolmogorovEstimate float64 `json:"kolmogorov_estimate"`
	HurstExponent      float64 `json:"hurst_exponent"`

	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`

	AnomalyScore float64 `json:"anomaly_score"`
	Anomalous    bool    `json:"anomalous"`
}

func neutralResult() Result {
	return Result{HurstExponent: 0.5}
}

// Analyzer runs the full measure suite and scores deviation from a tracked
// per-stream Shannon baseline. Safe for concurrent use.
type Analyzer struct {
	threshold float64

	mu          sync.RWMutex
	baseline    float64
	hasBaseline bool
}

// NewAnalyzer builds an analyzer flagging windows whose combined score
// exceeds threshold.
func NewAnalyzer(threshold float64) *Analyzer {
	return &Analyzer{threshold: threshold}
}

// SetBaseline fixes the Shannon baseline used by the anomaly score. Until a
// baseline is set the window's own Shannon entropy is used, so the deviation
// term stays zero.
func (a *Analyzer) SetBaseline(shannon float64) {
	a.mu.Lock()
	a.baseline = shannon
	a.hasBaseline = true
	a.mu.Unlock()
}

// Baseline reports the tracked Shannon baseline, if one has been set.
func (a *Analyzer) Baseline() (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baseline, a.hasBaseline
}

// Analyze computes every measure for the window.
func (a *Analyzer) Analyze(data []float64) Result {
	if len(data) == 0 {
		return neutralResult()
	}

	r := Result{
		Shannon:       Shannon(data),
		Renyi:         Renyi(data, 2),
		Tsallis:       Tsallis(data, 2),
		Sample:        SampleEntropy(data, 2, 0.2),
		Approximate:   ApproximateEntropy(data, 2, 0.2),
		Permutation:   PermutationEntropy(data, 3, 1),
		Multiscale:    MultiscaleEntropy(data, 2, 0.2, 10),
		Spectral:      SpectralEntropy(data),
		Wavelet:       WaveletEntropy(data),
		LZComplexity:  LZComplexity(data),
		HurstExponent: HurstExponent(data),
	}
	r.KolmogorovEstimate = kolmogorovFromLZ(r.LZComplexity, len(data))
	r.Skewness, r.Kurtosis = moments(data)

	r.AnomalyScore = a.score(r.Shannon, r.Sample, r.Spectral)
	r.Anomalous = r.AnomalyScore > a.threshold
	return r
}

// score combines Shannon deviation from baseline, excessive regularity and
// spectral extremes into a single scalar.
func (a *Analyzer) score(shannon, sample, spectral float64) float64 {
	a.mu.RLock()
	baseline := a.baseline
	if !a.hasBaseline {
		baseline = shannon
	}
	a.mu.RUnlock()

	score := math.Abs(shannon-baseline) / math.Max(baseline, eps)
	if sample < 0.1 {
		score += 2.0
	}
	if spectral < 0.2 || spectral > 0.95 {
		score += 1.5
	}
	return score
}

// histogram bins data into histogramBins equal-width bins over its range and
// returns the occupied-bin probabilities.
func histogram(data []float64) []float64 {
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	rng := math.Max(max-min, eps)

	counts := make([]int, histogramBins)
	for _, v := range data {
		bin := int((v - min) / rng * float64(histogramBins-1))
		counts[bin]++
	}

	n := float64(len(data))
	probs := make([]float64, 0, histogramBins)
	for _, c := range counts {
		if c > 0 {
			probs = append(probs, float64(c)/n)
		}
	}
	return probs
}

// Shannon computes histogram Shannon entropy in bits.
func Shannon(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var h float64
	for _, p := range histogram(data) {
		h -= p * math.Log2(p)
	}
	return h
}

// Renyi computes order-alpha Rényi entropy; alpha near 1 degrades to Shannon.
func Renyi(data []float64, alpha float64) float64 {
	if len(data) == 0 {
		return 0
	}
	if math.Abs(alpha-1) < eps {
		return Shannon(data)
	}
	var sum float64
	for _, p := range histogram(data) {
		sum += math.Pow(p, alpha)
	}
	if sum < eps {
		return 0
	}
	return math.Log2(sum) / (1 - alpha)
}

// Tsallis computes order-q Tsallis entropy; q near 1 degrades to Shannon.
func Tsallis(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}
	if math.Abs(q-1) < eps {
		return Shannon(data)
	}
	var sum float64
	for _, p := range histogram(data) {
		sum += math.Pow(p, q)
	}
	return (1 - sum) / (q - 1)
}

// SampleEntropy measures signal regularity at embedding dimension m with
// tolerance rMult standard deviations. Zero for short or perfectly regular
// windows.
func SampleEntropy(data []float64, m int, rMult float64) float64 {
	n := len(data)
	if n < m+2 {
		return 0
	}

	r := rMult * stats.StdDev(data)

	var countM, countM1 int
	for i := 0; i < n-m; i++ {
		for j := i + 1; j < n-m; j++ {
			matchM := true
			for k := 0; k < m; k++ {
				if math.Abs(data[i+k]-data[j+k]) > r {
					matchM = false
					break
				}
			}
			if !matchM {
				continue
			}
			countM++
			if math.Abs(data[i+m]-data[j+m]) <= r {
				countM1++
			}
		}
	}

	if countM == 0 || countM1 == 0 {
		return 0
	}
	return -math.Log(float64(countM1) / float64(countM))
}

// ApproximateEntropy is the self-match-including variant of sample entropy.
func ApproximateEntropy(data []float64, m int, rMult float64) float64 {
	return phi(data, m, rMult) - phi(data, m+1, rMult)
}

func phi(data []float64, m int, rMult float64) float64 {
	n := len(data)
	if n < m {
		return 0
	}

	r := rMult * stats.StdDev(data)
	count := n - m + 1

	var sum float64
	for i := 0; i < count; i++ {
		matches := 0
		for j := 0; j < count; j++ {
			within := true
			for k := 0; k < m; k++ {
				if math.Abs(data[i+k]-data[j+k]) > r {
					within = false
					break
				}
			}
			if within {
				matches++
			}
		}
		c := float64(matches) / float64(count)
		if c > 0 {
			sum += math.Log(c)
		}
	}
	return sum / float64(count)
}

// PermutationEntropy computes ordinal-pattern entropy of order m at the given
// delay, normalized to [0,1] by ln(m!).
func PermutationEntropy(data []float64, m, delay int) float64 {
	if len(data) < m*delay {
		return 0
	}

	nPatterns := len(data) - (m-1)*delay
	patterns := make(map[string]int, nPatterns)
	indices := make([]int, m)
	key := make([]byte, m)

	for i := 0; i < nPatterns; i++ {
		for k := range indices {
			indices[k] = k
		}
		sort.SliceStable(indices, func(a, b int) bool {
			return data[i+indices[a]*delay] < data[i+indices[b]*delay]
		})
		for k, idx := range indices {
			key[k] = byte(idx)
		}
		patterns[string(key)]++
	}

	maxEntropy := 0.0
	for i := 2; i <= m; i++ {
		maxEntropy += math.Log(float64(i))
	}
	if maxEntropy < eps {
		return 0
	}

	n := float64(nPatterns)
	var h float64
	for _, c := range patterns {
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return h / maxEntropy
}

// MultiscaleEntropy computes sample entropy of coarse-grained series at
// scales 1..scales.
func MultiscaleEntropy(data []float64, m int, rMult float64, scales int) []float64 {
	out := make([]float64, 0, scales)
	for scale := 1; scale <= scales; scale++ {
		out = append(out, SampleEntropy(coarseGrain(data, scale), m, rMult))
	}
	return out
}

func coarseGrain(data []float64, scale int) []float64 {
	if scale <= 1 {
		return data
	}
	out := make([]float64, 0, len(data)/scale+1)
	for i := 0; i < len(data); i += scale {
		end := i + scale
		if end > len(data) {
			end = len(data)
		}
		sum := 0.0
		for _, v := range data[i:end] {
			sum += v
		}
		out = append(out, sum/float64(end-i))
	}
	return out
}

// SpectralEntropy computes the Shannon entropy of the Hann-windowed power
// spectral density, normalized by log2(N/2) so a flat spectrum scores 1.
func SpectralEntropy(data []float64) float64 {
	if len(data) < 4 {
		return 0
	}

	n := nextPowerOfTwo(len(data))
	padded := make([]float64, n)
	for i, v := range data {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(len(data)-1)))
		padded[i] = v * w
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, padded)

	half := n / 2
	power := make([]float64, half)
	var total float64
	for i := 0; i < half; i++ {
		p := real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
		power[i] = p
		total += p
	}
	if total < eps {
		return 0
	}

	var h float64
	for _, p := range power {
		p /= total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h / math.Log2(float64(half))
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// WaveletEntropy computes the entropy of detail energy across Haar
// decomposition levels, normalized by log2(levels).
func WaveletEntropy(data []float64) float64 {
	if len(data) < 8 {
		return 0
	}

	var levels []float64
	current := append([]float64(nil), data...)
	sqrt2 := math.Sqrt2

	for len(current) >= 2 {
		half := len(current) / 2
		approx := make([]float64, 0, half)
		var energy float64
		for i := 0; i+1 < len(current); i += 2 {
			approx = append(approx, (current[i]+current[i+1])/sqrt2)
			d := (current[i] - current[i+1]) / sqrt2
			energy += d * d
		}
		levels = append(levels, energy)
		current = approx
	}

	var total float64
	for _, e := range levels {
		total += e
	}
	if total < eps {
		return 0
	}

	var h float64
	for _, e := range levels {
		p := e / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h / math.Log2(float64(len(levels)))
}

// LZComplexity computes Lempel-Ziv complexity of the median-binarized window,
// normalized by the n/log2(n) maximum for a binary alphabet.
func LZComplexity(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	median := stats.Median(data)
	binary := make([]byte, len(data))
	for i, v := range data {
		if v >= median {
			binary[i] = 1
		}
	}

	n := len(binary)
	c := 1
	i, k := 0, 1

	for i+k <= n {
		sub := binary[i : i+k]
		searchEnd := i + k - 1

		exists := false
		for j := 0; j < searchEnd; j++ {
			if j+k > searchEnd {
				break
			}
			if bytesEqual(binary[j:j+k], sub) {
				exists = true
				break
			}
		}

		if exists {
			k++
		} else {
			c++
			i += k
			k = 1
		}
	}

	if n < 2 {
		return 0
	}
	return float64(c) * math.Log2(float64(n)) / float64(n)
}

func bytesEqual(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// kolmogorovFromLZ derives the Kolmogorov complexity estimate from the
// normalized LZ complexity. Uncomputable in general; this is the standard
// compression-based proxy.
func kolmogorovFromLZ(lz float64, n int) float64 {
	if n < 2 {
		return 0
	}
	return lz * math.Log2(float64(n)) / float64(n)
}

// HurstExponent estimates long-range dependence via rescaled-range analysis,
// clamped to [0,1]. Windows under 32 samples return the neutral 0.5.
func HurstExponent(data []float64) float64 {
	n := len(data)
	if n < 32 {
		return 0.5
	}

	var logRS, logN []float64
	for size := 8; size < n/2; size += 4 {
		var rsSum float64
		count := 0

		for i := 0; i+size <= n; i += size {
			subset := data[i : i+size]
			mean := stats.Mean(subset)

			sum, minC, maxC := 0.0, math.MaxFloat64, -math.MaxFloat64
			for _, v := range subset {
				sum += v - mean
				if sum < minC {
					minC = sum
				}
				if sum > maxC {
					maxC = sum
				}
			}

			s := stats.StdDev(subset)
			if s > eps {
				rsSum += (maxC - minC) / s
				count++
			}
		}

		if count > 0 {
			logRS = append(logRS, math.Log(rsSum/float64(count)))
			logN = append(logN, math.Log(float64(size)))
		}
	}

	if len(logRS) < 2 {
		return 0.5
	}
	return clamp(regressionSlope(logN, logRS), 0, 1)
}

// moments returns population skewness and excess kurtosis, zero for n < 4 or
// constant data.
func moments(data []float64) (skewness, kurtosis float64) {
	if len(data) < 4 {
		return 0, 0
	}
	n := float64(len(data))
	mean := stats.Mean(data)
	std := stats.StdDev(data)
	if std < eps {
		return 0, 0
	}
	var m3, m4 float64
	for _, v := range data {
		z := (v - mean) / std
		m3 += z * z * z
		m4 += z * z * z * z
	}
	return m3 / n, m4/n - 3
}

// regressionSlope is the least-squares slope of ys against xs.
func regressionSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if math.Abs(denom) < eps {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
