// Package stats provides the shared statistical primitives consumed by the
// analysis and fusion components. Every function tolerates degenerate input
// (n < 2, zero variance) by returning a neutral result instead of panicking.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const eps = 1e-10

// Summary collects the descriptive statistics of one sample window.
type Summary struct {
	Count                  int     `json:"count"`
	Mean                   float64 `json:"mean"`
	Median                 float64 `json:"median"`
	Mode                   float64 `json:"mode"`
	HasMode                bool    `json:"has_mode"`
	StdDev                 float64 `json:"std_dev"`
	Variance               float64 `json:"variance"`
	Min                    float64 `json:"min"`
	Max                    float64 `json:"max"`
	Range                  float64 `json:"range"`
	Q1                     float64 `json:"q1"`
	Q3                     float64 `json:"q3"`
	IQR                    float64 `json:"iqr"`
	Skewness               float64 `json:"skewness"`
	Kurtosis               float64 `json:"kurtosis"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
}

// Summarize computes the full descriptive summary of data.
func Summarize(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	count := len(data)
	mean := stat.Mean(data, nil)
	variance := Variance(data)
	stdDev := math.Sqrt(variance)

	s := Summary{
		Count:    count,
		Mean:     mean,
		Median:   medianSorted(sorted),
		StdDev:   stdDev,
		Variance: variance,
		Min:      sorted[0],
		Max:      sorted[count-1],
		Q1:       percentileSorted(sorted, 25),
		Q3:       percentileSorted(sorted, 75),
	}
	s.Range = s.Max - s.Min
	s.IQR = s.Q3 - s.Q1
	s.Skewness, s.Kurtosis = Moments(data)
	if math.Abs(mean) > eps {
		s.CoefficientOfVariation = stdDev / math.Abs(mean)
	}
	s.Mode, s.HasMode = modeSorted(sorted)
	return s
}

// Mean returns the arithmetic mean, or zero for empty data.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// Variance returns the unbiased sample variance, or zero when n < 2.
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// StdDev returns the sample standard deviation, or zero when n < 2.
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// Median returns the middle value of data, or zero for empty data.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return medianSorted(sorted)
}

func medianSorted(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// MAD returns the median absolute deviation around the supplied median.
func MAD(data []float64, median float64) float64 {
	if len(data) == 0 {
		return 0
	}
	deviations := make([]float64, len(data))
	for i, v := range data {
		deviations[i] = math.Abs(v - median)
	}
	return Median(deviations)
}

// Percentile returns the p-th percentile (0-100) of data using linear
// interpolation between closest ranks. p<=0 yields the minimum, p>=100 the
// maximum.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	k := p / 100 * float64(len(sorted)-1)
	f := int(math.Floor(k))
	c := int(math.Ceil(k))
	if f == c || c >= len(sorted) {
		return sorted[f]
	}
	return sorted[f] + (sorted[c]-sorted[f])*(k-float64(f))
}

// modeSorted estimates the mode by binning into sqrt(n) bins and returning
// the centre of the most populated bin. Reports false when too few samples
// support a meaningful estimate.
func modeSorted(sorted []float64) (float64, bool) {
	if len(sorted) == 0 {
		return 0, false
	}
	nBins := int(math.Sqrt(float64(len(sorted))))
	if nBins < 3 {
		return 0, false
	}

	min := sorted[0]
	max := sorted[len(sorted)-1]
	binWidth := (max - min) / float64(nBins)
	if binWidth < eps {
		return min, true
	}

	bins := make([]int, nBins)
	for _, v := range sorted {
		bin := int((v - min) / binWidth)
		if bin >= nBins {
			bin = nBins - 1
		}
		bins[bin]++
	}

	maxBin, maxCount := 0, -1
	for i, c := range bins {
		if c > maxCount {
			maxBin, maxCount = i, c
		}
	}
	return min + (float64(maxBin)+0.5)*binWidth, true
}

// Moments returns bias-corrected skewness and excess kurtosis. Both are zero
// when n <= 3 or the data has no spread.
func Moments(data []float64) (skewness, kurtosis float64) {
	n := float64(len(data))
	if len(data) <= 3 {
		return 0, 0
	}
	mean := stat.Mean(data, nil)
	std := StdDev(data)
	if std < eps {
		return 0, 0
	}

	var m3, m4 float64
	for _, v := range data {
		z := (v - mean) / std
		m3 += z * z * z
		m4 += z * z * z * z
	}

	skewness = m3 * n / ((n - 1) * (n - 2))
	kurtosis = m4*n*(n+1)/((n-1)*(n-2)*(n-3)) - 3*(n-1)*(n-1)/((n-2)*(n-3))
	return skewness, kurtosis
}
