// Package correlator tracks recent per-sensor activity and detects temporally
// correlated anomalous bursts across distinct sensors.
package correlator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/glowmesh/fusion-engine/internal/fusion"
	"github.com/glowmesh/fusion-engine/internal/models"
)

const eps = 1e-10

// WeightFunc resolves the reliability weight for a sensor type. The fusion
// engine's weight table is injected here so runtime overrides apply to
// correlation events too.
type WeightFunc func(models.SensorType) float64

// Options configure the correlator.
type Options struct {
	BufferDuration    time.Duration // how long readings are retained
	CorrelationWindow time.Duration // lookback for burst detection
	MinConfidence     float64       // minimum event confidence
	MinSensors        int           // distinct sensors required
	Now               func() time.Time
}

func (o *Options) withDefaults() {
	if o.BufferDuration <= 0 {
		o.BufferDuration = 10 * time.Second
	}
	if o.CorrelationWindow <= 0 {
		o.CorrelationWindow = 2 * time.Second
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.5
	}
	if o.MinSensors < 2 {
		o.MinSensors = 2
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type entry struct {
	timestamp  time.Time
	value      float64
	sensorType models.SensorType
	score      float64
	used       bool
}

// Correlator holds rolling per-sensor buffers. Safe for concurrent use.
type Correlator struct {
	opts   Options
	weight WeightFunc

	mu      sync.RWMutex
	buffers map[string][]entry
}

// New builds a correlator. weight may be nil, in which case the default
// reliability table is consulted.
func New(opts Options, weight WeightFunc) *Correlator {
	opts.withDefaults()
	if weight == nil {
		table := models.DefaultReliabilityWeights()
		weight = func(t models.SensorType) float64 {
			if w, ok := table[t]; ok {
				return w
			}
			return models.DefaultReliabilityWeight
		}
	}
	return &Correlator{
		opts:    opts,
		weight:  weight,
		buffers: make(map[string][]entry),
	}
}

// AddWindow records a window's mean value and quick anomaly score, pruning
// entries older than the buffer duration.
func (c *Correlator) AddWindow(w models.SampleWindow) {
	e := entry{
		timestamp:  w.Timestamp,
		value:      w.Mean(),
		sensorType: w.SensorType,
		score:      fusion.ReadingScore(w),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := append(c.buffers[w.SensorID], e)
	cutoff := c.opts.Now().Add(-c.opts.BufferDuration)
	start := 0
	for start < len(buf) && buf[start].timestamp.Before(cutoff) {
		start++
	}
	c.buffers[w.SensorID] = buf[start:]
}

// CheckCorrelation looks for anomalous readings (score > 0.3) from at least
// the minimum number of distinct sensors within the correlation window. Each
// sensor contributes once, through its best-scoring reading. Confidence is
// 0.6 times the average score plus 0.4 times sensor diversity over five,
// capped at one; events below the minimum confidence return nil. Readings
// that fed an event are consumed, so one burst fires one event rather than
// re-firing on every check while its entries remain buffered.
func (c *Correlator) CheckCorrelation() *models.CorrelationEvent {
	now := c.opts.Now()
	windowStart := now.Add(-c.opts.CorrelationWindow)

	c.mu.Lock()
	defer c.mu.Unlock()

	type hitRef struct {
		sensorID string
		idx      int
	}
	var hits []hitRef
	best := make(map[string]int)
	for sensorID, buf := range c.buffers {
		for i := len(buf) - 1; i >= 0; i-- {
			if buf[i].timestamp.Before(windowStart) {
				break
			}
			if buf[i].used || buf[i].score <= 0.3 {
				continue
			}
			hits = append(hits, hitRef{sensorID, i})
			if j, ok := best[sensorID]; !ok || buf[i].score > buf[j].score {
				best[sensorID] = i
			}
		}
	}
	if len(best) < c.opts.MinSensors {
		return nil
	}

	sensors := make([]models.SensorContribution, 0, len(best))
	var sumScore float64
	var earliest, latest time.Time
	for sensorID, i := range best {
		e := c.buffers[sensorID][i]
		sensors = append(sensors, models.SensorContribution{
			SensorID:     sensorID,
			SensorType:   e.sensorType,
			Weight:       c.weight(e.sensorType),
			ReadingValue: e.value,
			AnomalyScore: e.score,
		})
		sumScore += e.score
		if earliest.IsZero() || e.timestamp.Before(earliest) {
			earliest = e.timestamp
		}
		if e.timestamp.After(latest) {
			latest = e.timestamp
		}
	}
	sort.Slice(sensors, func(a, b int) bool { return sensors[a].SensorID < sensors[b].SensorID })

	avgScore := sumScore / float64(len(best))
	diversity := float64(len(best)) / 5
	confidence := math.Min(avgScore*0.6+diversity*0.4, 1)
	if confidence <= c.opts.MinConfidence {
		return nil
	}

	for _, h := range hits {
		c.buffers[h.sensorID][h.idx].used = true
	}

	return &models.CorrelationEvent{
		Timestamp:  now,
		Sensors:    sensors,
		Confidence: confidence,
		LagMs:      latest.Sub(earliest).Milliseconds(),
	}
}

// CrossCorrelate computes the best lagged Pearson correlation between two
// sensors' buffered values, scanning lags in both directions. The returned
// lag is in milliseconds assuming roughly 100ms reading spacing. Reports
// false when either buffer is too short or has no variance.
func (c *Correlator) CrossCorrelate(sensor1, sensor2 string, maxLag time.Duration) (corr float64, lagMs int64, ok bool) {
	c.mu.RLock()
	buf1, ok1 := c.buffers[sensor1]
	buf2, ok2 := c.buffers[sensor2]
	if !ok1 || !ok2 || len(buf1) < 10 || len(buf2) < 10 {
		c.mu.RUnlock()
		return 0, 0, false
	}
	values1 := make([]float64, len(buf1))
	for i, e := range buf1 {
		values1[i] = e.value
	}
	values2 := make([]float64, len(buf2))
	for i, e := range buf2 {
		values2[i] = e.value
	}
	c.mu.RUnlock()

	mean1, std1 := meanStd(values1)
	mean2, std2 := meanStd(values2)
	if std1 < eps || std2 < eps {
		return 0, 0, false
	}

	n := len(values1)
	if len(values2) < n {
		n = len(values2)
	}
	maxLagSteps := int(maxLag.Milliseconds() / 100)
	if limit := n / 2; maxLagSteps > limit {
		maxLagSteps = limit
	}

	var bestCorr float64
	var bestLag int64
	for lag := 0; lag < maxLagSteps; lag++ {
		// sensor2 leading
		if r := pearson(values1[lag:], values2[:n-lag], mean1, mean2, std1, std2); math.Abs(r) > math.Abs(bestCorr) {
			bestCorr = r
			bestLag = int64(lag) * 100
		}
		// sensor1 leading
		if r := pearson(values1[:n-lag], values2[lag:], mean1, mean2, std1, std2); math.Abs(r) > math.Abs(bestCorr) {
			bestCorr = r
			bestLag = -int64(lag) * 100
		}
	}
	return bestCorr, bestLag, true
}

// CorrelationMatrix cross-correlates every buffered sensor pair. Keys are
// ordered "a|b" with a < b lexically.
func (c *Correlator) CorrelationMatrix() map[string]float64 {
	c.mu.RLock()
	ids := make([]string, 0, len(c.buffers))
	for id := range c.buffers {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)

	matrix := make(map[string]float64)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if corr, _, ok := c.CrossCorrelate(ids[i], ids[j], 2*time.Second); ok {
				matrix[ids[i]+"|"+ids[j]] = corr
			}
		}
	}
	return matrix
}

func meanStd(values []float64) (mean, std float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / n)
}

func pearson(v1, v2 []float64, mean1, mean2, std1, std2 float64) float64 {
	n := len(v1)
	if len(v2) < n {
		n = len(v2)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += (v1[i] - mean1) * (v2[i] - mean2)
	}
	return sum / (float64(n) * std1 * std2)
}
