// Package engine orchestrates the per-window analysis pipeline: entropy and
// complexity measures, waveform features, pattern finding, anomaly detection,
// cross-sensor correlation, fusion and classification.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowmesh/fusion-engine/internal/anomaly"
	"github.com/glowmesh/fusion-engine/internal/bus"
	"github.com/glowmesh/fusion-engine/internal/classify"
	"github.com/glowmesh/fusion-engine/internal/config"
	"github.com/glowmesh/fusion-engine/internal/correlator"
	"github.com/glowmesh/fusion-engine/internal/entropy"
	"github.com/glowmesh/fusion-engine/internal/export"
	"github.com/glowmesh/fusion-engine/internal/fusion"
	"github.com/glowmesh/fusion-engine/internal/metrics"
	"github.com/glowmesh/fusion-engine/internal/models"
	"github.com/glowmesh/fusion-engine/internal/patterns"
	"github.com/glowmesh/fusion-engine/internal/signalproc"
	"github.com/glowmesh/fusion-engine/internal/utils"
)

const (
	eps             = 1e-10
	baselineDecay   = 0.9
	recentCapacity  = 1000
	latencyCapacity = 512
)

// Report is the full analysis output for one window. Detection is nil when
// the window did not warrant one.
type Report struct {
	Window           models.SampleWindow       `json:"window"`
	Entropy          entropy.Result            `json:"entropy"`
	Complexity       entropy.ComplexityResult  `json:"complexity"`
	Signal           signalproc.Features       `json:"signal"`
	Patterns         []patterns.Pattern        `json:"patterns,omitempty"`
	Anomalies        []models.Anomaly          `json:"anomalies,omitempty"`
	EntropyDeviation float64                   `json:"entropy_deviation"`
	Correlation      *models.CorrelationEvent  `json:"correlation,omitempty"`
	Detection        *models.Detection         `json:"detection,omitempty"`
}

// baselineState tracks a per-stream exponentially weighted Shannon baseline.
type baselineState struct {
	analyzer *entropy.Analyzer
	ewma     float64
	seen     bool
}

// Stats is a snapshot of engine throughput for health reporting.
type Stats struct {
	WindowsProcessed uint64        `json:"windows_processed"`
	WindowsRejected  uint64        `json:"windows_rejected"`
	Detections       uint64        `json:"detections"`
	LatencyP50       time.Duration `json:"latency_p50"`
	LatencyP99       time.Duration `json:"latency_p99"`
}

// Engine runs the analysis pipeline over incoming windows. Safe for
// concurrent use.
type Engine struct {
	log       *slog.Logger
	publisher export.Publisher

	anomalyThreshold float64
	maxWindow        int
	minConfidence    float64

	detector *anomaly.Detector
	finder   *patterns.Detector
	fuser    *fusion.Engine
	corr     *correlator.Correlator
	latency  *utils.LatencyTracker

	mu        sync.RWMutex
	baselines map[string]*baselineState
	recent    []models.Detection
	processed uint64
	rejected  uint64
	detected  uint64
}

// New wires the pipeline from configuration. publisher may be nil, in which
// case detections are kept in memory only.
func New(cfg *config.Config, logger *slog.Logger, publisher export.Publisher) (*Engine, error) {
	method, err := fusion.ParseMethod(cfg.Fusion.Method)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = export.NoopPublisher{}
	}

	fuser := fusion.NewEngine(method, cfg.Fusion.PriorAnomaly)
	corr := correlator.New(correlator.Options{
		BufferDuration:    time.Duration(cfg.Correlation.BufferMs) * time.Millisecond,
		CorrelationWindow: time.Duration(cfg.Correlation.WindowMs) * time.Millisecond,
		MinConfidence:     cfg.Correlation.MinConfidence,
		MinSensors:        cfg.Correlation.MinSensors,
	}, fuser.Weight)

	return &Engine{
		log:              logger,
		publisher:        publisher,
		anomalyThreshold: cfg.Analysis.AnomalyThreshold,
		maxWindow:        cfg.Analysis.MaxWindow,
		minConfidence:    cfg.Fusion.MinConfidence,
		detector:         anomaly.NewDetector(cfg.Analysis.AnomalyThreshold, rand.New(rand.NewSource(time.Now().UnixNano()))),
		finder:           patterns.NewDetector(cfg.Analysis.PatternMinLength),
		fuser:            fuser,
		corr:             corr,
		latency:          utils.NewLatencyTracker(latencyCapacity),
		baselines:        make(map[string]*baselineState),
	}, nil
}

// Fusion exposes the fusion engine so callers can inspect and override the
// reliability weight table at runtime.
func (e *Engine) Fusion() *fusion.Engine {
	return e.fuser
}

// Run consumes windows from the bus until the context is cancelled or the
// bus is closed. Rejected windows are logged and skipped.
func (e *Engine) Run(ctx context.Context, b *bus.Bus) error {
	ch, cancel := b.Subscribe()
	defer cancel()

	reportTicker := time.NewTicker(time.Minute)
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reportTicker.C:
			s := e.Stats()
			lat := e.latency.Summary()
			e.log.Info("pipeline latency",
				"windows", s.WindowsProcessed,
				"detections", s.Detections,
				"p50", lat.P50,
				"p95", lat.P95)
		case w, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := e.ProcessWindow(ctx, w); err != nil {
				e.log.Warn("window rejected",
					"sensor_id", w.SensorID,
					"sensor_type", w.SensorType,
					"samples", len(w.Data),
					"op", utils.AppErrorOp(err),
					"error", err)
			}
		}
	}
}

// ProcessWindow runs the full pipeline over one window and emits a detection
// when the fused evidence warrants it.
func (e *Engine) ProcessWindow(ctx context.Context, w models.SampleWindow) (Report, error) {
	start := time.Now()

	if len(w.Data) == 0 {
		e.reject(start)
		return Report{}, utils.NewAppError("engine.ProcessWindow", "empty sample window", nil)
	}
	if len(w.Data) > e.maxWindow {
		e.reject(start)
		return Report{}, utils.NewAppError("engine.ProcessWindow",
			fmt.Sprintf("window of %d samples exceeds limit %d", len(w.Data), e.maxWindow), nil)
	}

	entRes, deviation := e.analyzeEntropy(w)

	report := Report{
		Window:           w,
		Entropy:          entRes,
		Complexity:       entropy.AnalyzeComplexity(w.Data),
		Signal:           signalproc.Extract(w.Data, w.SampleRate),
		Patterns:         e.finder.Find(w.Data),
		Anomalies:        e.detector.Detect(w.Data),
		EntropyDeviation: deviation,
	}

	e.corr.AddWindow(w)
	event := e.corr.CheckCorrelation()
	if event != nil {
		report.Correlation = event
		metrics.ObserveCorrelationEvent()
	}

	fused := e.fuser.Fuse([]models.SampleWindow{w})

	if event != nil || (fused.Confidence >= e.minConfidence && (len(report.Anomalies) > 0 || entRes.Anomalous)) {
		d := e.buildDetection(w, fused, event, report)
		report.Detection = &d
		e.emit(ctx, d)
	}

	e.mu.Lock()
	e.processed++
	e.mu.Unlock()

	elapsed := time.Since(start)
	e.latency.Observe(elapsed)
	metrics.ObserveWindow(elapsed, metrics.OutcomeSuccess)
	return report, nil
}

// analyzeEntropy runs the entropy suite against the stream's tracked baseline
// and advances the baseline afterwards.
func (e *Engine) analyzeEntropy(w models.SampleWindow) (entropy.Result, float64) {
	e.mu.Lock()
	state, ok := e.baselines[w.SensorID]
	if !ok {
		state = &baselineState{analyzer: entropy.NewAnalyzer(e.anomalyThreshold)}
		e.baselines[w.SensorID] = state
	}
	e.mu.Unlock()

	res := state.analyzer.Analyze(w.Data)

	e.mu.Lock()
	defer e.mu.Unlock()

	deviation := 0.0
	if state.seen {
		deviation = math.Abs(res.Shannon-state.ewma) / math.Max(state.ewma, eps)
		state.ewma = baselineDecay*state.ewma + (1-baselineDecay)*res.Shannon
	} else {
		state.ewma = res.Shannon
		state.seen = true
	}
	state.analyzer.SetBaseline(state.ewma)
	return res, deviation
}

func (e *Engine) buildDetection(w models.SampleWindow, fused fusion.Result, event *models.CorrelationEvent, report Report) models.Detection {
	kind := fused.Kind
	confidence := fused.Confidence
	sensors := fused.Sensors
	correlationScore := 0.0

	if event != nil {
		kind = models.DetectionCorrelated
		confidence = math.Max(confidence, event.Confidence)
		sensors = event.Sensors
		correlationScore = event.Confidence
	}

	d := models.Detection{
		ID:               uuid.NewString(),
		Timestamp:        w.Timestamp,
		Kind:             kind,
		Confidence:       confidence,
		Severity:         models.SeverityForConfidence(confidence),
		Sensors:          sensors,
		AnomalyCount:     len(report.Anomalies),
		CorrelationScore: correlationScore,
		EntropyDeviation: report.EntropyDeviation,
		WindowStart:      w.Timestamp,
		WindowEnd:        windowEnd(w),
	}
	c := classify.Classify(d)
	d.Classification = &c
	return d
}

// emit records the detection and hands it to the export layer. Export
// failures are logged, not propagated; the detection is already recorded.
func (e *Engine) emit(ctx context.Context, d models.Detection) {
	e.mu.Lock()
	e.recent = append(e.recent, d)
	if len(e.recent) > recentCapacity {
		e.recent = e.recent[len(e.recent)-recentCapacity:]
	}
	e.detected++
	e.mu.Unlock()

	metrics.ObserveDetection(string(d.Kind))
	if err := e.publisher.Publish(ctx, d); err != nil {
		e.log.Error("publish detection failed", "detection_id", d.ID, "error", err)
	}

	e.log.Info("detection",
		"detection_id", d.ID,
		"kind", d.Kind,
		"confidence", d.Confidence,
		"severity", d.Severity,
		"sensors", len(d.Sensors),
		"window_seconds", utils.DurationSeconds(d.WindowStart, d.WindowEnd))
}

// Recent returns up to n detections, newest first.
func (e *Engine) Recent(n int) []models.Detection {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if n <= 0 || n > len(e.recent) {
		n = len(e.recent)
	}
	out := make([]models.Detection, 0, n)
	for i := len(e.recent) - 1; i >= len(e.recent)-n; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

// Stats reports throughput counters and latency percentiles.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	lat := e.latency.Summary()
	return Stats{
		WindowsProcessed: e.processed,
		WindowsRejected:  e.rejected,
		Detections:       e.detected,
		LatencyP50:       lat.P50,
		LatencyP99:       lat.P99,
	}
}

func (e *Engine) reject(start time.Time) {
	e.mu.Lock()
	e.rejected++
	e.mu.Unlock()
	metrics.ObserveWindow(time.Since(start), metrics.OutcomeError)
}

func windowEnd(w models.SampleWindow) time.Time {
	if w.SampleRate <= 0 {
		return w.Timestamp
	}
	span := float64(len(w.Data)) / w.SampleRate
	return w.Timestamp.Add(time.Duration(span * float64(time.Second)))
}
