// Package anomaly implements the ensemble anomaly detector: statistical
// Z-score and MAD tests, an isolation forest, CUSUM change detection and a
// one-dimensional local outlier factor, merged into one deduplicated list.
package anomaly

import (
	"math"
	"math/rand"
	"sort"

	"github.com/glowmesh/fusion-engine/internal/models"
	"github.com/glowmesh/fusion-engine/internal/stats"
)

const eps = 1e-10

// Detector runs every method over a window. Not safe for concurrent use; the
// orchestrator owns one per worker.
type Detector struct {
	threshold float64
	rng       *rand.Rand
}

// NewDetector builds a detector with the given Z-score threshold. The RNG
// drives isolation forest splits; pass a seeded source for deterministic
// tests.
func NewDetector(threshold float64, rng *rand.Rand) *Detector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Detector{threshold: threshold, rng: rng}
}

// Detect runs all methods and returns the merged anomaly list: one entry per
// index keeping the highest score, ordered by descending score.
func (d *Detector) Detect(data []float64) []models.Anomaly {
	var found []models.Anomaly
	found = append(found, d.detectStatistical(data)...)
	found = append(found, d.detectIsolationForest(data)...)
	found = append(found, DetectCUSUM(data)...)
	found = append(found, DetectLOF(data)...)
	return merge(found)
}

// merge keeps the maximum-score anomaly per index and sorts descending.
func merge(found []models.Anomaly) []models.Anomaly {
	byIndex := make(map[int]models.Anomaly, len(found))
	for _, a := range found {
		if best, ok := byIndex[a.Index]; !ok || a.Score > best.Score {
			byIndex[a.Index] = a
		}
	}

	out := make([]models.Anomaly, 0, len(byIndex))
	for _, a := range byIndex {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// detectStatistical flags Z-score outliers past the configured threshold and
// modified-Z (MAD) outliers past 3.5.
func (d *Detector) detectStatistical(data []float64) []models.Anomaly {
	if len(data) < 10 {
		return nil
	}

	var out []models.Anomaly
	mean := stats.Mean(data)
	std := stats.StdDev(data)

	flagged := make(map[int]struct{})
	if std > eps {
		for i, x := range data {
			z := math.Abs(x-mean) / std
			if z <= d.threshold {
				continue
			}
			kind := models.AnomalySpike
			if x < mean {
				kind = models.AnomalyDrop
			}
			out = append(out, models.Anomaly{
				Index:      i,
				Value:      x,
				Score:      z,
				Kind:       kind,
				Confidence: zConfidence(z),
			})
			flagged[i] = struct{}{}
		}
	}

	median := stats.Median(data)
	mad := stats.MAD(data, median)
	if mad > eps {
		const madThreshold = 3.5
		for i, x := range data {
			if _, ok := flagged[i]; ok {
				continue
			}
			modZ := math.Abs(0.6745 * (x - median) / mad)
			if modZ <= madThreshold {
				continue
			}
			out = append(out, models.Anomaly{
				Index:      i,
				Value:      x,
				Score:      modZ,
				Kind:       models.AnomalyPoint,
				Confidence: zConfidence(modZ),
			})
		}
	}
	return out
}

// DetectCUSUM accumulates deviations beyond half a standard deviation of
// slack against a reference level and reports a change point when either
// accumulator crosses five standard deviations. The reference level is seeded
// from the opening samples and rebaselined onto the new regime after each
// trigger, so one sustained shift yields one change point instead of
// re-triggering for as long as the series stays offset.
func DetectCUSUM(data []float64) []models.Anomaly {
	if len(data) < 20 {
		return nil
	}

	std := stats.StdDev(data)
	if std < eps {
		return nil
	}

	k := 0.5 * std
	h := 5.0 * std

	const seedLen = 10
	// Median resists a spike sitting inside the rebaseline span.
	mean := stats.Median(data[:seedLen])

	rebaseline := func(after int) float64 {
		end := after + 1 + seedLen
		if end > len(data) {
			end = len(data)
		}
		if end <= after+1 {
			return mean
		}
		return stats.Median(data[after+1 : end])
	}

	var out []models.Anomaly
	var pos, neg float64

	for i, x := range data {
		pos = math.Max(pos+x-mean-k, 0)
		neg = math.Max(neg-x+mean-k, 0)

		if pos <= h && neg <= h {
			continue
		}
		s := math.Max(pos, neg)
		out = append(out, models.Anomaly{
			Index:      i,
			Value:      x,
			Score:      s / h,
			Kind:       models.AnomalyChangePoint,
			Confidence: math.Min(s/h, 1),
		})
		pos, neg = 0, 0
		mean = rebaseline(i)
	}
	return out
}

// DetectLOF computes a one-dimensional local outlier factor with k=5
// neighbours, flagging points whose LOF exceeds 1.5.
func DetectLOF(data []float64) []models.Anomaly {
	if len(data) < 20 {
		return nil
	}

	const k = 5
	var out []models.Anomaly

	lrdOf := func(i int) (float64, bool) {
		dists := make([]float64, 0, len(data)-1)
		for j, y := range data {
			if j == i {
				continue
			}
			dists = append(dists, math.Abs(data[i]-y))
		}
		sort.Float64s(dists)

		kDist := dists[k-1]
		if kDist < eps {
			return 0, false
		}
		var reach float64
		for _, d := range dists[:k] {
			reach += math.Max(d, kDist)
		}
		return k / reach, true
	}

	for i, x := range data {
		lrd, ok := lrdOf(i)
		if !ok {
			continue
		}

		// Neighbour indices of i by distance.
		type nd struct {
			idx  int
			dist float64
		}
		neighbours := make([]nd, 0, len(data)-1)
		for j, y := range data {
			if j == i {
				continue
			}
			neighbours = append(neighbours, nd{j, math.Abs(x - y)})
		}
		sort.Slice(neighbours, func(a, b int) bool { return neighbours[a].dist < neighbours[b].dist })

		var sumLRD float64
		count := 0
		for _, nb := range neighbours[:k] {
			if nlrd, ok := lrdOf(nb.idx); ok {
				sumLRD += nlrd
				count++
			}
		}
		if count == 0 {
			continue
		}

		lof := (sumLRD / float64(count)) / lrd
		if lof <= 1.5 {
			continue
		}
		out = append(out, models.Anomaly{
			Index:      i,
			Value:      x,
			Score:      lof,
			Kind:       models.AnomalyContextual,
			Confidence: math.Min((lof-1)/2, 1),
		})
	}
	return out
}

// zConfidence converts a Z magnitude into two-tailed probability mass.
func zConfidence(z float64) float64 {
	return math.Erf(z / math.Sqrt2)
}
