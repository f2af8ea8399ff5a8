package entropy

import (
	"math"
	"math/rand"
	"testing"
)

func constantWindow(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = 4.2
	}
	return data
}

func noiseWindow(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.Float64()
	}
	return data
}

func TestConstantWindowNeutral(t *testing.T) {
	data := constantWindow(256)

	if got := Shannon(data); got != 0 {
		t.Fatalf("Shannon(const) = %f, want 0", got)
	}
	if got := SampleEntropy(data, 2, 0.2); got != 0 {
		t.Fatalf("SampleEntropy(const) = %f, want 0", got)
	}
	if got := HurstExponent(data); got != 0.5 {
		t.Fatalf("HurstExponent(const) = %f, want 0.5", got)
	}
	if got := SpectralEntropy(data); math.IsNaN(got) {
		t.Fatalf("SpectralEntropy(const) is NaN")
	}
	if got := WaveletEntropy(data); got != 0 {
		t.Fatalf("WaveletEntropy(const) = %f, want 0", got)
	}
}

func TestShannonOrdering(t *testing.T) {
	noise := noiseWindow(1024, 1)
	sine := make([]float64, 1024)
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * float64(i) / 64)
	}

	hNoise := Shannon(noise)
	hSine := Shannon(sine)
	if hNoise <= hSine {
		t.Fatalf("Shannon noise %f <= sine %f", hNoise, hSine)
	}
}

func TestRenyiBelowShannon(t *testing.T) {
	data := noiseWindow(512, 2)
	// Rényi entropy is non-increasing in alpha, so order 2 sits at or
	// below Shannon (order 1).
	if r, s := Renyi(data, 2), Shannon(data); r > s+1e-9 {
		t.Fatalf("Renyi2 %f > Shannon %f", r, s)
	}
}

func TestPermutationEntropyMonotone(t *testing.T) {
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i)
	}
	// A strictly increasing series has a single ordinal pattern.
	if got := PermutationEntropy(data, 3, 1); got != 0 {
		t.Fatalf("PermutationEntropy(monotone) = %f, want 0", got)
	}

	if got := PermutationEntropy(noiseWindow(500, 3), 3, 1); got < 0.9 {
		t.Fatalf("PermutationEntropy(noise) = %f, want near 1", got)
	}
}

func TestSpectralEntropySineVsNoise(t *testing.T) {
	sine := make([]float64, 512)
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * float64(i) / 32)
	}
	hSine := SpectralEntropy(sine)
	hNoise := SpectralEntropy(noiseWindow(512, 4))
	if hSine >= hNoise {
		t.Fatalf("spectral entropy sine %f >= noise %f", hSine, hNoise)
	}
	if hNoise > 1.0+1e-9 {
		t.Fatalf("spectral entropy %f exceeds 1", hNoise)
	}
}

func TestLZComplexityNoiseAboveConstant(t *testing.T) {
	lzNoise := LZComplexity(noiseWindow(512, 5))
	lzConst := LZComplexity(constantWindow(512))
	if lzNoise <= lzConst {
		t.Fatalf("LZ noise %f <= constant %f", lzNoise, lzConst)
	}
}

func TestHurstTrendingSeries(t *testing.T) {
	// A strong trend is persistent, so H should land in the upper half.
	data := make([]float64, 512)
	rng := rand.New(rand.NewSource(6))
	for i := range data {
		data[i] = float64(i)*0.5 + rng.Float64()*0.1
	}
	h := HurstExponent(data)
	if h < 0.5 || h > 1 {
		t.Fatalf("Hurst(trend) = %f, want in [0.5, 1]", h)
	}
}

func TestMultiscaleLength(t *testing.T) {
	ms := MultiscaleEntropy(noiseWindow(400, 7), 2, 0.2, 10)
	if len(ms) != 10 {
		t.Fatalf("multiscale length = %d, want 10", len(ms))
	}
	for i, v := range ms {
		if math.IsNaN(v) {
			t.Fatalf("multiscale[%d] is NaN", i)
		}
	}
}

func TestAnalyzerBaselineDeviation(t *testing.T) {
	a := NewAnalyzer(3.0)
	noise := noiseWindow(512, 8)

	a.SetBaseline(Shannon(noise))
	rSame := a.Analyze(noise)

	// A spike collapses the histogram and shifts Shannon far from the
	// noise baseline.
	spike := append([]float64(nil), noise...)
	spike[100] = 1000
	rSpike := a.Analyze(spike)

	if rSpike.AnomalyScore <= rSame.AnomalyScore {
		t.Fatalf("spike score %f <= baseline score %f", rSpike.AnomalyScore, rSame.AnomalyScore)
	}
}

func TestAnalyzerEmptyWindow(t *testing.T) {
	a := NewAnalyzer(3.0)
	r := a.Analyze(nil)
	if r.HurstExponent != 0.5 || r.Shannon != 0 || r.Anomalous {
		t.Fatalf("empty window result not neutral: %+v", r)
	}
}

func TestComplexityShortWindowNeutral(t *testing.T) {
	r := AnalyzeComplexity(noiseWindow(50, 9))
	if r != (ComplexityResult{}) {
		t.Fatalf("short window complexity not neutral: %+v", r)
	}
}

func TestComplexityBounds(t *testing.T) {
	r := AnalyzeComplexity(noiseWindow(300, 10))

	if r.FractalDimension < 1 || r.FractalDimension > 2 {
		t.Fatalf("fractal dimension %f outside [1,2]", r.FractalDimension)
	}
	if r.CorrelationDimension < 0.1 || r.CorrelationDimension > 10 {
		t.Fatalf("correlation dimension %f outside [0.1,10]", r.CorrelationDimension)
	}
	if r.RecurrenceRate < 0 || r.RecurrenceRate > 1 {
		t.Fatalf("recurrence rate %f outside [0,1]", r.RecurrenceRate)
	}
	if r.Determinism < 0 || r.Determinism > 1 {
		t.Fatalf("determinism %f outside [0,1]", r.Determinism)
	}
	if r.Laminarity < 0 || r.Laminarity > 1 {
		t.Fatalf("laminarity %f outside [0,1]", r.Laminarity)
	}
}

func TestLaminarityFromVerticalLines(t *testing.T) {
	// A slowly varying staircase signal dwells in states, producing block
	// recurrences with real vertical line structures.
	data := make([]float64, 200)
	for i := range data {
		data[i] = float64(i / 20)
	}
	_, det, lam := recurrenceQuantification(data)
	if lam <= 0 {
		t.Fatalf("laminarity = %f, want > 0 for dwelling signal", lam)
	}
	// Vertical structures are computed independently, not scaled from
	// determinism.
	if det > 0 && math.Abs(lam-0.8*det) < 1e-12 {
		t.Fatalf("laminarity %f is exactly 0.8*determinism %f", lam, det)
	}
}

func TestEntropyRateNoisePositive(t *testing.T) {
	rate := EntropyRate(noiseWindow(1000, 11))
	if rate <= 0 {
		t.Fatalf("entropy rate of noise = %f, want > 0", rate)
	}
}
