package entropy

import (
	"math"
	"sort"
)

// ComplexityResult carries the nonlinear dynamics measures of one window.
type ComplexityResult struct {
	FractalDimension     float64 `json:"fractal_dimension"`
	CorrelationDimension float64 `json:"correlation_dimension"`
	LyapunovExponent     float64 `json:"lyapunov_exponent"`
	RecurrenceRate       float64 `json:"recurrence_rate"`
	Determinism          float64 `json:"determinism"`
	Laminarity           float64 `json:"laminarity"`
	EntropyRate          float64 `json:"entropy_rate"`
}

// AnalyzeComplexity computes the full complexity result. Windows shorter
// than 100 samples return the zero result.
func AnalyzeComplexity(data []float64) ComplexityResult {
	if len(data) < 100 {
		return ComplexityResult{}
	}

	rr, det, lam := recurrenceQuantification(data)
	return ComplexityResult{
		FractalDimension:     BoxCountingDimension(data),
		CorrelationDimension: CorrelationDimension(data),
		LyapunovExponent:     LyapunovExponent(data),
		RecurrenceRate:       rr,
		Determinism:          det,
		Laminarity:           lam,
		EntropyRate:          EntropyRate(data),
	}
}

// BoxCountingDimension estimates the fractal dimension of the signal graph by
// box counting at scales 8..128, clamped to [1,2]. Short windows return 1.
func BoxCountingDimension(data []float64) float64 {
	n := len(data)
	if n < 16 {
		return 1
	}

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

	var logN, logR []float64
	for _, scale := range []int{8, 16, 32, 64, 128} {
		if scale > n {
			break
		}
		boxSize := 1.0 / float64(scale)

		boxes := make(map[[2]int]struct{})
		for i, v := range data {
			t := float64(i) / float64(n)
			norm := (v - min) / rng
			boxes[[2]int{int(t / boxSize), int(norm / boxSize)}] = struct{}{}
		}

		logN = append(logN, math.Log(float64(len(boxes))))
		logR = append(logR, math.Log(boxSize))
	}

	if len(logN) < 2 {
		return 1
	}
	return clamp(-regressionSlope(logR, logN), 1, 2)
}

// embed builds delay vectors of the given dimension.
func embed(data []float64, dim, delay int) [][]float64 {
	nVectors := len(data) - (dim-1)*delay
	if nVectors <= 0 {
		return nil
	}
	vectors := make([][]float64, nVectors)
	for i := range vectors {
		v := make([]float64, dim)
		for d := 0; d < dim; d++ {
			v[d] = data[i+d*delay]
		}
		vectors[i] = v
	}
	return vectors
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CorrelationDimension estimates the Grassberger-Procaccia correlation
// dimension at embedding dimension 3, clamped to [0.1, 10].
func CorrelationDimension(data []float64) float64 {
	if len(data) < 50 {
		return 1
	}

	vectors := embed(data, 3, 1)
	nVectors := len(vectors)
	if nVectors < 20 {
		return 1
	}

	// Radii span the 10th to 90th percentile of pairwise distances in a
	// bounded sample of vectors.
	sample := nVectors
	if sample > 100 {
		sample = 100
	}
	var dists []float64
	for i := 0; i < sample; i++ {
		for j := i + 1; j < sample; j++ {
			dists = append(dists, euclidean(vectors[i], vectors[j]))
		}
	}
	sort.Float64s(dists)

	rMin, rMax := 0.01, 1.0
	if len(dists) > 0 {
		rMin = dists[len(dists)/10]
		rMax = dists[len(dists)*9/10]
	}
	if rMin < eps {
		rMin = eps
	}
	if rMax <= rMin {
		return 1
	}

	var logC, logR []float64
	for i := 0; i < 10; i++ {
		r := rMin * math.Pow(rMax/rMin, float64(i)/9)

		count := 0
		for a := 0; a < nVectors; a++ {
			for b := a + 1; b < nVectors; b++ {
				if euclidean(vectors[a], vectors[b]) < r {
					count++
				}
			}
		}

		c := 2 * float64(count) / float64(nVectors*(nVectors-1))
		if c > 0 {
			logC = append(logC, math.Log(c))
			logR = append(logR, math.Log(r))
		}
	}

	if len(logC) < 3 {
		return 1
	}
	return clamp(regressionSlope(logR, logC), 0.1, 10)
}

// LyapunovExponent estimates the largest Lyapunov exponent from nearest
// neighbour divergence over ten steps, excluding temporally close neighbours.
func LyapunovExponent(data []float64) float64 {
	if len(data) < 100 {
		return 0
	}

	vectors := embed(data, 3, 1)
	nVectors := len(vectors)
	if nVectors < 50 {
		return 0
	}

	const horizon = 10
	var sumLogDiv float64
	count := 0

	for i := 0; i < nVectors-horizon; i++ {
		minDist := math.MaxFloat64
		nn := -1

		for j := 0; j < nVectors; j++ {
			if abs(i-j) < horizon {
				continue
			}
			d := euclidean(vectors[i], vectors[j])
			if d < minDist && d > eps {
				minDist = d
				nn = j
			}
		}

		if nn < 0 || nn+horizon >= nVectors {
			continue
		}
		final := euclidean(vectors[i+horizon], vectors[nn+horizon])
		if final > eps && minDist > eps {
			sumLogDiv += math.Log(final / minDist)
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return sumLogDiv / (float64(count) * horizon)
}

// recurrenceQuantification computes recurrence rate, determinism and
// laminarity at embedding dimension 2 with a threshold of 10% of the maximum
// sampled distance. Laminarity counts genuine vertical line structures of
// length two or more.
func recurrenceQuantification(data []float64) (rate, determinism, laminarity float64) {
	if len(data) < 50 {
		return 0, 0, 0
	}

	vectors := embed(data, 2, 1)
	nVectors := len(vectors)

	sample := nVectors
	if sample > 50 {
		sample = 50
	}
	var maxDist float64
	for i := 0; i < sample; i++ {
		for j := i + 1; j < sample; j++ {
			if d := euclidean(vectors[i], vectors[j]); d > maxDist {
				maxDist = d
			}
		}
	}
	threshold := 0.1 * maxDist
	if threshold < eps {
		return 0, 0, 0
	}

	recurrent := make([][]bool, nVectors)
	for i := range recurrent {
		recurrent[i] = make([]bool, nVectors)
		for j := 0; j < nVectors; j++ {
			recurrent[i][j] = euclidean(vectors[i], vectors[j]) < threshold
		}
	}

	recurrencePoints := 0
	diagPoints := 0
	for i := 0; i < nVectors; i++ {
		for j := 0; j < nVectors; j++ {
			if !recurrent[i][j] {
				continue
			}
			recurrencePoints++
			if i > 0 && j > 0 && recurrent[i-1][j-1] {
				diagPoints++
			}
		}
	}

	// Vertical line structures: runs of length >= 2 within each column.
	vertPoints := 0
	for j := 0; j < nVectors; j++ {
		run := 0
		for i := 0; i <= nVectors; i++ {
			if i < nVectors && recurrent[i][j] {
				run++
				continue
			}
			if run >= 2 {
				vertPoints += run
			}
			run = 0
		}
	}

	total := float64(nVectors * nVectors)
	rate = float64(recurrencePoints) / total
	if recurrencePoints > 0 {
		determinism = float64(diagPoints) / float64(recurrencePoints)
		laminarity = float64(vertPoints) / float64(recurrencePoints)
	}
	return rate, determinism, laminarity
}

// EntropyRate estimates the per-symbol entropy production as the slope of
// block entropy over block sizes 1, 2, 4, 8 on a 16-symbol discretization.
func EntropyRate(data []float64) float64 {
	if len(data) < 100 {
		return 0
	}

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

	const nSymbols = 16
	symbols := make([]byte, len(data))
	for i, v := range data {
		symbols[i] = byte((v - min) / rng * (nSymbols - 1))
	}

	var sizes, entropies []float64
	for _, blockSize := range []int{1, 2, 4, 8} {
		if len(symbols) < blockSize*10 {
			continue
		}

		counts := make(map[string]int)
		total := len(symbols) - blockSize + 1
		for i := 0; i < total; i++ {
			counts[string(symbols[i:i+blockSize])]++
		}

		var h float64
		for _, c := range counts {
			p := float64(c) / float64(total)
			h -= p * math.Log2(p)
		}

		sizes = append(sizes, float64(blockSize))
		entropies = append(entropies, h)
	}

	if len(sizes) < 2 {
		return 0
	}
	return regressionSlope(sizes, entropies)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
