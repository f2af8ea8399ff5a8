package engine

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/glowmesh/fusion-engine/internal/config"
	"github.com/glowmesh/fusion-engine/internal/models"
	"github.com/glowmesh/fusion-engine/internal/utils"
)

type capturePublisher struct {
	mu        sync.Mutex
	published []models.Detection
}

func (p *capturePublisher) Publish(_ context.Context, d models.Detection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, d)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, pub *capturePublisher) *Engine {
	t.Helper()
	e, err := New(cfg, utils.NewLogger("error", false), pub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// spikeWindow is near-silence with one large excursion, so its reading score
// lands close to one.
func spikeWindow(sensorID string, sensorType models.SensorType, ts time.Time) models.SampleWindow {
	data := make([]float64, 64)
	for i := range data {
		data[i] = 0.01 * math.Sin(float64(i))
	}
	data[32] = 50.0
	return models.SampleWindow{
		SensorID:   sensorID,
		SensorType: sensorType,
		Timestamp:  ts,
		Data:       data,
		SampleRate: 1000,
		Quality:    1.0,
	}
}

// rampWindow has no outliers and a maximum z-score well under two, keeping
// its reading score below the detection gate.
func rampWindow(sensorID string, ts time.Time) models.SampleWindow {
	data := make([]float64, 64)
	for i := range data {
		data[i] = float64(i)
	}
	return models.SampleWindow{
		SensorID:   sensorID,
		SensorType: models.SensorGeophone,
		Timestamp:  ts,
		Data:       data,
		SampleRate: 1000,
		Quality:    1.0,
	}
}

func noiseWindow(sensorID string, rng *rand.Rand, ts time.Time) models.SampleWindow {
	data := make([]float64, 256)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return models.SampleWindow{
		SensorID:   sensorID,
		SensorType: models.SensorThermalNoise,
		Timestamp:  ts,
		Data:       data,
		SampleRate: 1000,
		Quality:    1.0,
	}
}

func TestProcessWindowRejectsOversized(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.MaxWindow = 64
	e := newTestEngine(t, cfg, &capturePublisher{})

	w := rampWindow("s1", time.Now())
	w.Data = make([]float64, 128)

	if _, err := e.ProcessWindow(context.Background(), w); err == nil {
		t.Fatal("oversized window accepted")
	}
	if got := e.Stats().WindowsRejected; got != 1 {
		t.Fatalf("rejected = %d, want 1", got)
	}
}

func TestProcessWindowRejectsEmpty(t *testing.T) {
	e := newTestEngine(t, testConfig(t), &capturePublisher{})
	if _, err := e.ProcessWindow(context.Background(), models.SampleWindow{SensorID: "s1"}); err == nil {
		t.Fatal("empty window accepted")
	}
}

func TestEntropyDeviationTracksBaseline(t *testing.T) {
	e := newTestEngine(t, testConfig(t), &capturePublisher{})
	rng := rand.New(rand.NewSource(11))
	ctx := context.Background()

	first, err := e.ProcessWindow(ctx, noiseWindow("s1", rng, time.Now()))
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	if first.EntropyDeviation != 0 {
		t.Fatalf("first window deviation = %f, want 0", first.EntropyDeviation)
	}

	for i := 0; i < 4; i++ {
		r, err := e.ProcessWindow(ctx, noiseWindow("s1", rng, time.Now()))
		if err != nil {
			t.Fatalf("ProcessWindow: %v", err)
		}
		if r.EntropyDeviation > 0.5 {
			t.Fatalf("noise-vs-noise deviation = %f, want small", r.EntropyDeviation)
		}
	}

	// A constant window has zero Shannon entropy, a full departure from the
	// noise baseline.
	constant := models.SampleWindow{
		SensorID:   "s1",
		SensorType: models.SensorThermalNoise,
		Timestamp:  time.Now(),
		Data:       make([]float64, 256),
		SampleRate: 1000,
		Quality:    1.0,
	}
	for i := range constant.Data {
		constant.Data[i] = 1.0
	}
	r, err := e.ProcessWindow(ctx, constant)
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	if r.EntropyDeviation < 0.9 {
		t.Fatalf("constant-window deviation = %f, want near 1", r.EntropyDeviation)
	}
}

func TestCorrelatedSpikesEmitCorrelatedDetection(t *testing.T) {
	pub := &capturePublisher{}
	e := newTestEngine(t, testConfig(t), pub)
	ctx := context.Background()
	now := time.Now()

	if _, err := e.ProcessWindow(ctx, spikeWindow("emf-1", models.SensorEMFProbe, now)); err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	report, err := e.ProcessWindow(ctx, spikeWindow("geo-1", models.SensorGeophone, now))
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}

	if report.Correlation == nil {
		t.Fatal("no correlation event for simultaneous spikes on two sensors")
	}
	if report.Detection == nil {
		t.Fatal("no detection emitted")
	}
	d := report.Detection
	if d.Kind != models.DetectionCorrelated {
		t.Fatalf("kind = %s, want %s", d.Kind, models.DetectionCorrelated)
	}
	if d.Confidence <= 0.5 {
		t.Fatalf("confidence = %f, want > 0.5", d.Confidence)
	}
	if d.CorrelationScore <= 0.5 {
		t.Fatalf("correlation score = %f, want > 0.5", d.CorrelationScore)
	}
	if len(d.Sensors) < 2 {
		t.Fatalf("sensor contributions = %d, want >= 2", len(d.Sensors))
	}
	if d.Classification == nil {
		t.Fatal("detection missing classification")
	}
	if d.ID == "" || d.Severity == "" {
		t.Fatalf("incomplete detection: %+v", d)
	}
	if pub.count() == 0 {
		t.Fatal("publisher never invoked")
	}

	recent := e.Recent(10)
	if len(recent) == 0 {
		t.Fatal("no recent detections")
	}
	if recent[0].ID != d.ID {
		t.Fatal("Recent is not newest-first")
	}
}

func TestQuietWindowNoDetection(t *testing.T) {
	pub := &capturePublisher{}
	e := newTestEngine(t, testConfig(t), pub)

	report, err := e.ProcessWindow(context.Background(), rampWindow("s1", time.Now()))
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	if report.Detection != nil {
		t.Fatalf("ramp window produced detection %+v", report.Detection)
	}
	if pub.count() != 0 {
		t.Fatal("publisher invoked for quiet window")
	}
}

func TestAnomalousSpikeAloneEmitsDetection(t *testing.T) {
	e := newTestEngine(t, testConfig(t), &capturePublisher{})

	report, err := e.ProcessWindow(context.Background(), spikeWindow("emf-1", models.SensorEMFProbe, time.Now()))
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	if len(report.Anomalies) == 0 {
		t.Fatal("spike not flagged as anomaly")
	}
	if report.Detection == nil {
		t.Fatal("anomalous high-confidence window produced no detection")
	}
	if report.Detection.Kind != models.DetectionEMFSpike {
		t.Fatalf("kind = %s, want %s", report.Detection.Kind, models.DetectionEMFSpike)
	}
	if report.Detection.AnomalyCount != len(report.Anomalies) {
		t.Fatalf("anomaly count = %d, want %d", report.Detection.AnomalyCount, len(report.Anomalies))
	}
}

// TestBuriedSpikeVersusPureNoise runs two fresh pipelines over identical
// noise streams; only one stream's final window carries a large buried
// excursion. The spiky run must emit a detection naming its sensor, the pure
// noise run must stay quiet, and the spike window must depart further from
// the learned entropy baseline than the matching noise window does.
func TestBuriedSpikeVersusPureNoise(t *testing.T) {
	longNoiseWindow := func(sensorID string, rng *rand.Rand, ts time.Time) models.SampleWindow {
		data := make([]float64, 1000)
		for i := range data {
			data[i] = rng.Float64()*2 - 1
		}
		return models.SampleWindow{
			SensorID:   sensorID,
			SensorType: models.SensorEMFProbe,
			Timestamp:  ts,
			Data:       data,
			SampleRate: 1000,
			Quality:    1.0,
		}
	}

	run := func(sensorID string, spike bool, pub *capturePublisher) Report {
		e := newTestEngine(t, testConfig(t), pub)
		rng := rand.New(rand.NewSource(77))
		ctx := context.Background()
		now := time.Now()

		// Settle the per-stream entropy baseline on plain noise first.
		for i := 0; i < 3; i++ {
			if _, err := e.ProcessWindow(ctx, longNoiseWindow(sensorID, rng, now.Add(time.Duration(i)*time.Second))); err != nil {
				t.Fatalf("ProcessWindow baseline %d: %v", i, err)
			}
		}

		final := longNoiseWindow(sensorID, rng, now.Add(4*time.Second))
		if spike {
			final.Data[500] = 50.0
		}
		report, err := e.ProcessWindow(ctx, final)
		if err != nil {
			t.Fatalf("ProcessWindow final: %v", err)
		}
		return report
	}

	spikePub := &capturePublisher{}
	spikeReport := run("emf-7", true, spikePub)
	noisePub := &capturePublisher{}
	noiseReport := run("emf-7", false, noisePub)

	if noiseReport.Detection != nil {
		t.Fatalf("pure noise produced detection %+v", noiseReport.Detection)
	}
	if noisePub.count() != 0 {
		t.Fatal("publisher invoked for pure noise run")
	}

	d := spikeReport.Detection
	if d == nil {
		t.Fatal("buried spike produced no detection")
	}
	if d.Confidence <= 0.5 {
		t.Fatalf("confidence = %f, want > 0.5", d.Confidence)
	}
	found := false
	for _, s := range d.Sensors {
		if s.SensorID == "emf-7" {
			found = true
		}
	}
	if !found {
		t.Fatalf("detection does not name originating sensor: %+v", d.Sensors)
	}
	if len(spikeReport.Anomalies) == 0 {
		t.Fatal("buried spike not flagged by the ensemble")
	}
	if spikePub.count() != 1 {
		t.Fatalf("published detections = %d, want 1", spikePub.count())
	}

	if spikeReport.EntropyDeviation <= noiseReport.EntropyDeviation {
		t.Fatalf("entropy deviation %f not above matching noise run %f",
			spikeReport.EntropyDeviation, noiseReport.EntropyDeviation)
	}
}

func TestStatsCounters(t *testing.T) {
	e := newTestEngine(t, testConfig(t), &capturePublisher{})
	ctx := context.Background()

	if _, err := e.ProcessWindow(ctx, rampWindow("s1", time.Now())); err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	if _, err := e.ProcessWindow(ctx, spikeWindow("emf-1", models.SensorEMFProbe, time.Now())); err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}

	s := e.Stats()
	if s.WindowsProcessed != 2 {
		t.Fatalf("processed = %d, want 2", s.WindowsProcessed)
	}
	if s.Detections != 1 {
		t.Fatalf("detections = %d, want 1", s.Detections)
	}
	if s.LatencyP50 <= 0 {
		t.Fatalf("latency p50 = %s, want > 0", s.LatencyP50)
	}
}

func TestWindowEnd(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := models.SampleWindow{Timestamp: ts, Data: make([]float64, 1000), SampleRate: 1000}
	if got := windowEnd(w); got != ts.Add(time.Second) {
		t.Fatalf("windowEnd = %s, want %s", got, ts.Add(time.Second))
	}
	w.SampleRate = 0
	if got := windowEnd(w); got != ts {
		t.Fatalf("windowEnd with zero rate = %s, want start", got)
	}
}
