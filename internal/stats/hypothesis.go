package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// TestResult reports one hypothesis test outcome. Significance uses the
// conventional 0.05 level.
type TestResult struct {
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

func neutralResult() TestResult {
	return TestResult{Statistic: 0, PValue: 1, Significant: false}
}

// WelchTTest compares the means of two samples without assuming equal
// variances. Returns the neutral result when either sample has fewer than
// two values or both variances vanish.
func WelchTTest(a, b []float64) TestResult {
	if len(a) < 2 || len(b) < 2 {
		return neutralResult()
	}

	meanA, meanB := Mean(a), Mean(b)
	varA, varB := Variance(a), Variance(b)
	nA, nB := float64(len(a)), float64(len(b))

	se := varA/nA + varB/nB
	if se < eps {
		return neutralResult()
	}

	t := (meanA - meanB) / math.Sqrt(se)

	// Welch-Satterthwaite degrees of freedom.
	df := se * se / (varA*varA/(nA*nA*(nA-1)) + varB*varB/(nB*nB*(nB-1)))
	if df < 1 {
		df = 1
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(t))
	return TestResult{Statistic: t, PValue: p, Significant: p < 0.05}
}

// MannWhitneyU is the rank-sum test for a difference in distribution between
// two samples, using the normal approximation with tie correction.
func MannWhitneyU(a, b []float64) TestResult {
	nA, nB := len(a), len(b)
	if nA < 2 || nB < 2 {
		return neutralResult()
	}

	type obs struct {
		value float64
		fromA bool
	}
	combined := make([]obs, 0, nA+nB)
	for _, v := range a {
		combined = append(combined, obs{v, true})
	}
	for _, v := range b {
		combined = append(combined, obs{v, false})
	}
	sort.Slice(combined, func(i, j int) bool { return combined[i].value < combined[j].value })

	// Midranks for ties, accumulating the tie correction term.
	ranks := make([]float64, len(combined))
	var tieTerm float64
	for i := 0; i < len(combined); {
		j := i
		for j < len(combined) && combined[j].value == combined[i].value {
			j++
		}
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		t := float64(j - i)
		tieTerm += t*t*t - t
		i = j
	}

	var rankSumA float64
	for i, o := range combined {
		if o.fromA {
			rankSumA += ranks[i]
		}
	}

	fA, fB := float64(nA), float64(nB)
	u := rankSumA - fA*(fA+1)/2
	mu := fA * fB / 2

	n := fA + fB
	variance := fA * fB / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if variance < eps {
		return neutralResult()
	}

	z := (u - mu) / math.Sqrt(variance)
	p := 2 * distuv.UnitNormal.CDF(-math.Abs(z))
	return TestResult{Statistic: u, PValue: p, Significant: p < 0.05}
}

// KolmogorovSmirnov tests the sample against a supplied reference CDF.
// The p-value uses the asymptotic Kolmogorov distribution.
func KolmogorovSmirnov(data []float64, cdf func(float64) float64) TestResult {
	n := len(data)
	if n < 2 || cdf == nil {
		return neutralResult()
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	var d float64
	for i, v := range sorted {
		f := cdf(v)
		lower := f - float64(i)/float64(n)
		upper := float64(i+1)/float64(n) - f
		if lower > d {
			d = lower
		}
		if upper > d {
			d = upper
		}
	}

	p := ksPValue(d, n)
	return TestResult{Statistic: d, PValue: p, Significant: p < 0.05}
}

// ksPValue evaluates the asymptotic Kolmogorov survival series
// 2*sum (-1)^(k-1) exp(-2 k^2 lambda^2).
func ksPValue(d float64, n int) float64 {
	lambda := (math.Sqrt(float64(n)) + 0.12 + 0.11/math.Sqrt(float64(n))) * d
	if lambda < eps {
		return 1
	}
	var sum float64
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k)*float64(k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}
