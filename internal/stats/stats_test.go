package stats

import (
	"math"
	"testing"
)

func TestSummarizeBasic(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	s := Summarize(data)

	if s.Count != 8 {
		t.Fatalf("count = %d, want 8", s.Count)
	}
	if math.Abs(s.Mean-5) > 1e-9 {
		t.Fatalf("mean = %f, want 5", s.Mean)
	}
	if math.Abs(s.Median-4.5) > 1e-9 {
		t.Fatalf("median = %f, want 4.5", s.Median)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Fatalf("min/max = %f/%f, want 2/9", s.Min, s.Max)
	}
	if math.Abs(s.Range-7) > 1e-9 {
		t.Fatalf("range = %f, want 7", s.Range)
	}
	if s.Variance <= 0 {
		t.Fatalf("variance = %f, want > 0", s.Variance)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 || s.Mean != 0 || s.StdDev != 0 {
		t.Fatalf("empty summary not neutral: %+v", s)
	}
}

func TestMedianOddEven(t *testing.T) {
	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("odd median = %f, want 2", got)
	}
	if got := Median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Fatalf("even median = %f, want 2.5", got)
	}
}

func TestPercentileBounds(t *testing.T) {
	data := []float64{10, 20, 30, 40, 50}
	if got := Percentile(data, 0); got != 10 {
		t.Fatalf("p0 = %f, want 10", got)
	}
	if got := Percentile(data, 100); got != 50 {
		t.Fatalf("p100 = %f, want 50", got)
	}
	if got := Percentile(data, 50); got != 30 {
		t.Fatalf("p50 = %f, want 30", got)
	}
	// Linear interpolation between ranks.
	if got := Percentile(data, 25); got != 20 {
		t.Fatalf("p25 = %f, want 20", got)
	}
	if got := Percentile(data, 10); math.Abs(got-14) > 1e-9 {
		t.Fatalf("p10 = %f, want 14", got)
	}
}

func TestMAD(t *testing.T) {
	data := []float64{1, 1, 2, 2, 4, 6, 9}
	med := Median(data)
	if med != 2 {
		t.Fatalf("median = %f, want 2", med)
	}
	if got := MAD(data, med); got != 1 {
		t.Fatalf("mad = %f, want 1", got)
	}
}

func TestMomentsConstant(t *testing.T) {
	skew, kurt := Moments([]float64{5, 5, 5, 5, 5, 5})
	if skew != 0 || kurt != 0 {
		t.Fatalf("constant data moments = %f/%f, want 0/0", skew, kurt)
	}
}

func TestMomentsSkewedRight(t *testing.T) {
	data := []float64{1, 1, 1, 1, 1, 1, 1, 1, 2, 10}
	skew, _ := Moments(data)
	if skew <= 0 {
		t.Fatalf("right-skewed data has skewness %f, want > 0", skew)
	}
}

func TestWelchTTestDistinctMeans(t *testing.T) {
	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = float64(i%5) + 0.0
		b[i] = float64(i%5) + 10.0
	}
	r := WelchTTest(a, b)
	if !r.Significant {
		t.Fatalf("shifted samples not significant: p = %f", r.PValue)
	}
	if r.Statistic >= 0 {
		t.Fatalf("t statistic = %f, want negative (a below b)", r.Statistic)
	}
}

func TestWelchTTestNeutralSmall(t *testing.T) {
	r := WelchTTest([]float64{1}, []float64{2, 3})
	if r.PValue != 1 || r.Significant {
		t.Fatalf("undersized sample result = %+v, want neutral", r)
	}
}

func TestMannWhitneyShifted(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	b := []float64{101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	r := MannWhitneyU(a, b)
	if !r.Significant {
		t.Fatalf("disjoint samples not significant: p = %f", r.PValue)
	}
}

func TestMannWhitneyIdentical(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	r := MannWhitneyU(a, a)
	if r.Significant {
		t.Fatalf("identical samples flagged significant: p = %f", r.PValue)
	}
}

func TestKolmogorovSmirnovUniform(t *testing.T) {
	uniformCDF := func(x float64) float64 {
		if x < 0 {
			return 0
		}
		if x > 1 {
			return 1
		}
		return x
	}

	// Evenly spaced points on [0,1] match the uniform CDF closely.
	n := 50
	data := make([]float64, n)
	for i := range data {
		data[i] = (float64(i) + 0.5) / float64(n)
	}
	r := KolmogorovSmirnov(data, uniformCDF)
	if r.Significant {
		t.Fatalf("uniform sample rejected: D = %f p = %f", r.Statistic, r.PValue)
	}

	// All mass at one point is far from uniform.
	for i := range data {
		data[i] = 0.999
	}
	r = KolmogorovSmirnov(data, uniformCDF)
	if !r.Significant {
		t.Fatalf("degenerate sample accepted: D = %f p = %f", r.Statistic, r.PValue)
	}
}

func TestKolmogorovSmirnovNeutral(t *testing.T) {
	r := KolmogorovSmirnov([]float64{1}, nil)
	if r.PValue != 1 || r.Significant {
		t.Fatalf("neutral case = %+v", r)
	}
}
