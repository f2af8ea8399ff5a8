// Package api exposes the ingest and query surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/glowmesh/fusion-engine/internal/bus"
	"github.com/glowmesh/fusion-engine/internal/config"
	"github.com/glowmesh/fusion-engine/internal/engine"
	"github.com/glowmesh/fusion-engine/internal/models"
	"github.com/glowmesh/fusion-engine/internal/utils"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

// Server wraps the HTTP server implementation and lifecycle helpers.
type Server struct {
	cfg      config.ServerConfig
	log      *slog.Logger
	engine   *engine.Engine
	bus      *bus.Bus
	router   *mux.Router
	httpSrv  *http.Server
	listener net.Listener
}

// NewServer constructs an HTTP server bound to the configured address.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, eng *engine.Engine, b *bus.Bus) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	s := &Server{
		cfg:      cfg,
		log:      logger,
		engine:   eng,
		bus:      b,
		listener: lis,
	}
	s.routes()
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/windows", s.handleIngestWindow).Methods(http.MethodPost)
	api.HandleFunc("/detections/recent", s.handleRecentDetections).Methods(http.MethodGet)
	api.HandleFunc("/fusion/weights", s.handleGetWeights).Methods(http.MethodGet)
	api.HandleFunc("/fusion/weights", s.handlePutWeights).Methods(http.MethodPut)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// mux answers 404 for a known path with the wrong verb unless this
	// handler is set explicitly.
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	})

	s.router = r
}

// Start serves incoming requests until Shutdown is invoked.
func (s *Server) Start() error {
	if s.httpSrv == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	if err := s.httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, closing forcibly once ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpSrv == nil {
		return
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown", "error", err)
	}
}

// Address exposes the bound listener address (useful for tests).
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

func (s *Server) handleIngestWindow(w http.ResponseWriter, r *http.Request) {
	var window models.SampleWindow
	if err := json.NewDecoder(r.Body).Decode(&window); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid window payload: %v", err))
		return
	}
	if window.SensorID == "" {
		s.respondError(w, http.StatusBadRequest, "sensor_id is required")
		return
	}
	if len(window.Data) == 0 {
		s.respondError(w, http.StatusBadRequest, "data must not be empty")
		return
	}
	if window.Timestamp.IsZero() {
		window.Timestamp = time.Now().UTC()
	}

	s.bus.Publish(window)
	s.respondJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"sensor_id": window.SensorID,
		"sequence":  window.Sequence,
	})
}

func (s *Server) handleRecentDetections(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	detections := s.engine.Recent(limit)

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := utils.ParseRFC3339(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q: %v", raw, err))
			return
		}
		filtered := detections[:0]
		for _, d := range detections {
			if !d.Timestamp.Before(since) {
				filtered = append(filtered, d)
			}
		}
		detections = filtered
	}

	if detections == nil {
		detections = []models.Detection{}
	}
	s.respondJSON(w, http.StatusOK, detections)
}

func (s *Server) handleGetWeights(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.engine.Fusion().Weights())
}

func (s *Server) handlePutWeights(w http.ResponseWriter, r *http.Request) {
	var updates map[models.SensorType]float64
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid weight payload: %v", err))
		return
	}
	if len(updates) == 0 {
		s.respondError(w, http.StatusBadRequest, "no weights supplied")
		return
	}

	fuser := s.engine.Fusion()
	for sensorType, weight := range updates {
		fuser.SetWeight(sensorType, weight)
	}
	s.respondJSON(w, http.StatusOK, fuser.Weights())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  s.engine.Stats(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
