// Package signalproc extracts time-domain, frequency-domain and temporal
// envelope features from sensor waveforms.
package signalproc

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/glowmesh/fusion-engine/internal/stats"
)

const eps = 1e-10

// octaveBandEdges delimit the ten octave bands reported in Features.
var octaveBandEdges = []float64{20, 40, 80, 160, 320, 640, 1280, 2560, 5120, 10240, 20480}

// Features is the full waveform feature vector for one window.
type Features struct {
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"std_dev"`
	RMS           float64 `json:"rms"`
	PeakToPeak    float64 `json:"peak_to_peak"`
	CrestFactor   float64 `json:"crest_factor"`
	ZeroCrossings int     `json:"zero_crossings"`

	DominantFrequency float64 `json:"dominant_frequency"`
	SpectralCentroid  float64 `json:"spectral_centroid"`
	SpectralBandwidth float64 `json:"spectral_bandwidth"`
	SpectralRolloff   float64 `json:"spectral_rolloff"`
	SpectralFlatness  float64 `json:"spectral_flatness"`

	BandEnergies []float64 `json:"band_energies,omitempty"`

	AttackTime float64 `json:"attack_time"`
	DecayTime  float64 `json:"decay_time"`
}

// Extract computes the feature vector. Empty input yields the zero value.
func Extract(data []float64, sampleRate float64) Features {
	if len(data) == 0 {
		return Features{}
	}

	f := timeDomain(data)
	frequencyDomain(&f, data, sampleRate)
	f.AttackTime, f.DecayTime = envelopeTimes(data, sampleRate)
	return f
}

func timeDomain(data []float64) Features {
	n := float64(len(data))
	mean := stats.Mean(data)

	var sumSq float64
	min, max := data[0], data[0]
	for _, v := range data {
		sumSq += v * v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	rms := math.Sqrt(sumSq / n)

	crest := 0.0
	if rms > eps {
		crest = math.Max(math.Abs(max), math.Abs(min)) / rms
	}

	// Crossings of the mean level, not literal zero.
	crossings := 0
	for i := 1; i < len(data); i++ {
		if (data[i-1]-mean)*(data[i]-mean) < 0 {
			crossings++
		}
	}

	return Features{
		Mean:          mean,
		StdDev:        stats.StdDev(data),
		RMS:           rms,
		PeakToPeak:    max - min,
		CrestFactor:   crest,
		ZeroCrossings: crossings,
	}
}

func frequencyDomain(f *Features, data []float64, sampleRate float64) {
	if len(data) < 4 || sampleRate <= 0 {
		return
	}

	power, freqResolution := PowerSpectrum(data, sampleRate)

	var total float64
	for _, p := range power {
		total += p
	}
	if total < eps {
		return
	}

	maxIdx := 0
	var centroid float64
	for i, p := range power {
		if p > power[maxIdx] {
			maxIdx = i
		}
		centroid += float64(i) * freqResolution * p
	}
	centroid /= total

	var bandwidth float64
	for i, p := range power {
		d := float64(i)*freqResolution - centroid
		bandwidth += d * d * p
	}
	bandwidth = math.Sqrt(bandwidth / total)

	// Rolloff frequency containing 85% of spectral energy.
	target := total * 0.85
	cumsum := 0.0
	rolloffIdx := 0
	for i, p := range power {
		cumsum += p
		if cumsum >= target {
			rolloffIdx = i
			break
		}
	}

	arithmeticMean := total / float64(len(power))
	var logSum float64
	for _, p := range power {
		if p > eps {
			logSum += math.Log(p)
		} else {
			logSum += math.Log(eps)
		}
	}
	geometricMean := math.Exp(logSum / float64(len(power)))

	f.DominantFrequency = float64(maxIdx) * freqResolution
	f.SpectralCentroid = centroid
	f.SpectralBandwidth = bandwidth
	f.SpectralRolloff = float64(rolloffIdx) * freqResolution
	if arithmeticMean > eps {
		f.SpectralFlatness = geometricMean / arithmeticMean
	}
	f.BandEnergies = bandEnergies(power, freqResolution, total)
}

// PowerSpectrum returns the Hann-windowed positive-frequency power spectrum
// and its bin resolution in Hz.
func PowerSpectrum(data []float64, sampleRate float64) ([]float64, float64) {
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
	for i := 0; i < half; i++ {
		power[i] = real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
	}
	return power, sampleRate / float64(n)
}

// bandEnergies returns each octave band's fraction of total spectral energy.
func bandEnergies(power []float64, freqResolution, total float64) []float64 {
	var bands []float64
	for i := 1; i < len(octaveBandEdges); i++ {
		lowBin := int(octaveBandEdges[i-1] / freqResolution)
		highBin := int(octaveBandEdges[i] / freqResolution)
		if highBin > len(power) {
			highBin = len(power)
		}
		if lowBin >= highBin || lowBin >= len(power) {
			continue
		}
		var energy float64
		for _, p := range power[lowBin:highBin] {
			energy += p
		}
		bands = append(bands, energy/total)
	}
	return bands
}

// envelopeTimes derives attack and decay times from a moving-RMS envelope.
// Attack is time to reach 90% of the envelope peak, decay is time from the
// peak down to 10%.
func envelopeTimes(data []float64, sampleRate float64) (attack, decay float64) {
	if len(data) < 10 || sampleRate <= 0 {
		return 0, 0
	}

	windowSize := int(sampleRate * 0.01)
	if windowSize < 3 {
		windowSize = 3
	}
	if max := len(data) / 4; windowSize > max {
		windowSize = max
	}

	envelope := make([]float64, 0, len(data)-windowSize+1)
	for i := 0; i+windowSize <= len(data); i++ {
		var sumSq float64
		for _, v := range data[i : i+windowSize] {
			sumSq += v * v
		}
		envelope = append(envelope, math.Sqrt(sumSq/float64(windowSize)))
	}
	if len(envelope) == 0 {
		return 0, 0
	}

	maxEnv := envelope[0]
	peakIdx := 0
	for i, e := range envelope {
		if e > maxEnv {
			maxEnv = e
			peakIdx = i
		}
	}
	if maxEnv < eps {
		return 0, 0
	}

	attackIdx := len(envelope)
	for i, e := range envelope {
		if e >= 0.9*maxEnv {
			attackIdx = i
			break
		}
	}

	decayIdx := len(envelope) - peakIdx
	for i, e := range envelope[peakIdx:] {
		if e <= 0.1*maxEnv {
			decayIdx = i
			break
		}
	}

	return float64(attackIdx) / sampleRate, float64(decayIdx) / sampleRate
}

// BandpassFilter applies a cascaded 2nd-order Butterworth high-pass then
// low-pass between lowFreq and highFreq. Inputs under 8 samples pass through
// unchanged.
func BandpassFilter(data []float64, sampleRate, lowFreq, highFreq float64) []float64 {
	if len(data) < 8 || sampleRate <= 0 {
		return append([]float64(nil), data...)
	}

	const q = 0.707
	w0Low := 2 * math.Pi * lowFreq / sampleRate
	w0High := 2 * math.Pi * highFreq / sampleRate
	alphaLow := math.Sin(w0Low) / (2 * q)
	alphaHigh := math.Sin(w0High) / (2 * q)

	// High-pass biquad at the low cutoff.
	hpB0 := (1 + math.Cos(w0Low)) / 2
	hpB1 := -(1 + math.Cos(w0Low))
	hpB2 := (1 + math.Cos(w0Low)) / 2
	hpA0 := 1 + alphaLow
	hpA1 := -2 * math.Cos(w0Low)
	hpA2 := 1 - alphaLow

	hpOut := make([]float64, len(data))
	for i := 2; i < len(data); i++ {
		hpOut[i] = (hpB0/hpA0)*data[i] +
			(hpB1/hpA0)*data[i-1] +
			(hpB2/hpA0)*data[i-2] -
			(hpA1/hpA0)*hpOut[i-1] -
			(hpA2/hpA0)*hpOut[i-2]
	}

	// Low-pass biquad at the high cutoff.
	lpB0 := (1 - math.Cos(w0High)) / 2
	lpB1 := 1 - math.Cos(w0High)
	lpB2 := (1 - math.Cos(w0High)) / 2
	lpA0 := 1 + alphaHigh
	lpA1 := -2 * math.Cos(w0High)
	lpA2 := 1 - alphaHigh

	out := make([]float64, len(data))
	for i := 2; i < len(data); i++ {
		out[i] = (lpB0/lpA0)*hpOut[i] +
			(lpB1/lpA0)*hpOut[i-1] +
			(lpB2/lpA0)*hpOut[i-2] -
			(lpA1/lpA0)*out[i-1] -
			(lpA2/lpA0)*out[i-2]
	}
	return out
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
