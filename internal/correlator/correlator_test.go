package correlator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/glowmesh/fusion-engine/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func spikeWindow(id string, st models.SensorType, ts time.Time, seed int64) models.SampleWindow {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, 64)
	for i := range data {
		data[i] = rng.NormFloat64() * 0.01
	}
	data[32] = 100
	return models.SampleWindow{SensorID: id, SensorType: st, Timestamp: ts, Data: data, Quality: 1}
}

func quietWindow(id string, st models.SensorType, ts time.Time, seed int64) models.SampleWindow {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, 64)
	for i := range data {
		data[i] = rng.NormFloat64() * 0.01
	}
	return models.SampleWindow{SensorID: id, SensorType: st, Timestamp: ts, Data: data, Quality: 1}
}

func TestCheckCorrelationTwoSensors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	c.AddWindow(spikeWindow("emf-1", models.SensorEMFProbe, now.Add(-500*time.Millisecond), 1))
	c.AddWindow(spikeWindow("geo-1", models.SensorGeophone, now.Add(-300*time.Millisecond), 2))

	ev := c.CheckCorrelation()
	if ev == nil {
		t.Fatal("no correlation event for two simultaneous spikes")
	}
	if ev.Confidence <= 0.5 || ev.Confidence > 1 {
		t.Fatalf("confidence = %f, want in (0.5, 1]", ev.Confidence)
	}
	if ev.LagMs != 200 {
		t.Fatalf("lag = %d ms, want 200", ev.LagMs)
	}
	if len(ev.Sensors) < 2 {
		t.Fatalf("sensors = %d, want >= 2", len(ev.Sensors))
	}
}

func TestCheckCorrelationSingleSensor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	c.AddWindow(spikeWindow("emf-1", models.SensorEMFProbe, now.Add(-500*time.Millisecond), 3))
	c.AddWindow(spikeWindow("emf-1", models.SensorEMFProbe, now.Add(-300*time.Millisecond), 4))

	if ev := c.CheckCorrelation(); ev != nil {
		t.Fatalf("single sensor produced event: %+v", ev)
	}
}

func TestCheckCorrelationQuietSensors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	c.AddWindow(quietWindow("a", models.SensorEMFProbe, now.Add(-time.Second), 5))
	c.AddWindow(quietWindow("b", models.SensorGeophone, now.Add(-time.Second), 6))

	if ev := c.CheckCorrelation(); ev != nil {
		t.Fatalf("quiet sensors produced event: %+v", ev)
	}
}

func TestCheckCorrelationFiresOncePerBurst(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	c.AddWindow(spikeWindow("emf-1", models.SensorEMFProbe, now.Add(-500*time.Millisecond), 20))
	c.AddWindow(spikeWindow("geo-1", models.SensorGeophone, now.Add(-300*time.Millisecond), 21))

	if ev := c.CheckCorrelation(); ev == nil {
		t.Fatal("no event for fresh burst")
	}
	// Same buffered entries must not re-fire on subsequent checks.
	if ev := c.CheckCorrelation(); ev != nil {
		t.Fatalf("consumed burst re-fired: %+v", ev)
	}

	// A new burst fires again.
	c.AddWindow(spikeWindow("emf-1", models.SensorEMFProbe, now.Add(-100*time.Millisecond), 22))
	c.AddWindow(spikeWindow("geo-1", models.SensorGeophone, now.Add(-100*time.Millisecond), 23))
	if ev := c.CheckCorrelation(); ev == nil {
		t.Fatal("fresh readings after a consumed burst produced no event")
	}
}

func TestCheckCorrelationOneContributionPerSensor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	// Several anomalous readings per sensor within the window.
	for i := 0; i < 5; i++ {
		off := time.Duration(-1900+i*100) * time.Millisecond
		c.AddWindow(spikeWindow("emf-1", models.SensorEMFProbe, now.Add(off), int64(30+i)))
		c.AddWindow(spikeWindow("geo-1", models.SensorGeophone, now.Add(off), int64(40+i)))
	}

	ev := c.CheckCorrelation()
	if ev == nil {
		t.Fatal("no event")
	}
	if len(ev.Sensors) != 2 {
		t.Fatalf("sensors = %d, want one contribution per identity", len(ev.Sensors))
	}
	seen := map[string]bool{}
	for _, s := range ev.Sensors {
		if seen[s.SensorID] {
			t.Fatalf("duplicate contribution for %s", s.SensorID)
		}
		seen[s.SensorID] = true
	}
}

func TestCheckCorrelationOutsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	// Anomalous but 5s old, outside the 2s correlation window.
	c.AddWindow(spikeWindow("a", models.SensorEMFProbe, now.Add(-5*time.Second), 7))
	c.AddWindow(spikeWindow("b", models.SensorGeophone, now.Add(-5*time.Second), 8))

	if ev := c.CheckCorrelation(); ev != nil {
		t.Fatalf("stale spikes produced event: %+v", ev)
	}
}

func TestBufferPruning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	// Older than the 10s buffer duration, pruned on next insert.
	c.AddWindow(quietWindow("a", models.SensorEMFProbe, now.Add(-20*time.Second), 9))
	c.AddWindow(quietWindow("a", models.SensorEMFProbe, now.Add(-time.Second), 10))

	c.mu.RLock()
	defer c.mu.RUnlock()
	if n := len(c.buffers["a"]); n != 1 {
		t.Fatalf("buffer length = %d, want 1 after pruning", n)
	}
}

func TestCrossCorrelateIdenticalSeries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	for i := 0; i < 20; i++ {
		ts := now.Add(time.Duration(i-20) * 100 * time.Millisecond)
		v := math.Sin(float64(i) / 3)
		w := models.SampleWindow{SensorID: "a", SensorType: models.SensorEMFProbe, Timestamp: ts, Data: []float64{v}, Quality: 1}
		c.AddWindow(w)
		w.SensorID = "b"
		c.AddWindow(w)
	}

	corr, lag, ok := c.CrossCorrelate("a", "b", 2*time.Second)
	if !ok {
		t.Fatal("cross-correlation unavailable for populated buffers")
	}
	if corr < 0.99 {
		t.Fatalf("identical series correlation = %f, want ~1", corr)
	}
	if lag != 0 {
		t.Fatalf("identical series lag = %d, want 0", lag)
	}
}

func TestCrossCorrelateShortBuffers(t *testing.T) {
	c := New(Options{}, nil)
	if _, _, ok := c.CrossCorrelate("a", "b", time.Second); ok {
		t.Fatal("cross-correlation reported for missing sensors")
	}
}

func TestCorrelationMatrix(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, nil)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		ts := now.Add(time.Duration(i-20) * 100 * time.Millisecond)
		v := rng.NormFloat64()
		for _, id := range []string{"a", "b", "c"} {
			c.AddWindow(models.SampleWindow{SensorID: id, SensorType: models.SensorEMFProbe, Timestamp: ts, Data: []float64{v + rng.NormFloat64()*0.01}, Quality: 1})
		}
	}

	matrix := c.CorrelationMatrix()
	if len(matrix) != 3 {
		t.Fatalf("matrix size = %d, want 3 pairs", len(matrix))
	}
	for pair, corr := range matrix {
		if math.Abs(corr) > 1.000001 {
			t.Fatalf("pair %s correlation %f out of range", pair, corr)
		}
	}
}

func TestWeightFuncInjected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Options{Now: fixedClock(now)}, func(models.SensorType) float64 { return 0.123 })

	c.AddWindow(spikeWindow("x", models.SensorEMFProbe, now.Add(-time.Second), 12))
	c.AddWindow(spikeWindow("y", models.SensorGeophone, now.Add(-time.Second), 13))

	ev := c.CheckCorrelation()
	if ev == nil {
		t.Fatal("no event")
	}
	for _, s := range ev.Sensors {
		if s.Weight != 0.123 {
			t.Fatalf("weight = %f, want injected 0.123", s.Weight)
		}
	}
}
