package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glowmesh/fusion-engine/internal/fusion"
	"github.com/glowmesh/fusion-engine/internal/utils"
)

// Config captures the settings required to boot the fusion engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Fusion      FusionConfig      `yaml:"fusion"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Export      ExportConfig      `yaml:"export"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AnalysisConfig tunes the per-window analyzers.
type AnalysisConfig struct {
	EntropyWindow    int     `yaml:"entropyWindow"`
	AnomalyThreshold float64 `yaml:"anomalyThreshold"`
	PatternMinLength int     `yaml:"patternMinLength"`
	FFTSize          int     `yaml:"fftSize"`
	MaxWindow        int     `yaml:"maxWindow"`
}

// FusionConfig selects the fusion strategy and its gates.
type FusionConfig struct {
	Method        string  `yaml:"method"`
	MinConfidence float64 `yaml:"minConfidence"`
	PriorAnomaly  float64 `yaml:"priorAnomaly"`
}

// CorrelationConfig tunes the cross-sensor correlator.
type CorrelationConfig struct {
	WindowMs       int64   `yaml:"windowMs"`
	BufferMs       int64   `yaml:"bufferMs"`
	MinSensors     int     `yaml:"minSensors"`
	MinConfidence  float64 `yaml:"minConfidence"`
	CheckIntervals int     `yaml:"checkIntervals"`
}

// ExportConfig configures detection delivery.
type ExportConfig struct {
	Redis RedisConfig `yaml:"redis"`
	File  FileConfig  `yaml:"file"`
}

// RedisConfig configures the Redis detection publisher.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FileConfig configures the on-disk detection exporter.
type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"`
}

// Load initialises Config from a YAML file and optional environment
// overrides, then validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FUSION_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Analysis: AnalysisConfig{
			EntropyWindow:    1024,
			AnomalyThreshold: 3.0,
			PatternMinLength: 16,
			FFTSize:          1024,
			MaxWindow:        8192,
		},
		Fusion: FusionConfig{
			Method:        string(fusion.MethodWeightedAverage),
			MinConfidence: 0.5,
			PriorAnomaly:  0.1,
		},
		Correlation: CorrelationConfig{
			WindowMs:      2000,
			BufferMs:      10000,
			MinSensors:    2,
			MinConfidence: 0.5,
		},
		Export: ExportConfig{
			File: FileConfig{Dir: "data/export", Format: "jsonl"},
		},
	}
}

// Validate rejects configurations that would only fail at analysis time.
func (c *Config) Validate() error {
	if _, err := fusion.ParseMethod(c.Fusion.Method); err != nil {
		return err
	}
	if c.Analysis.AnomalyThreshold <= 0 {
		return utils.NewAppError("config.Validate", "anomalyThreshold must be positive", nil)
	}
	if c.Analysis.MaxWindow <= 0 {
		return utils.NewAppError("config.Validate", "maxWindow must be positive", nil)
	}
	if c.Correlation.MinSensors < 2 {
		return utils.NewAppError("config.Validate", "minSensors must be at least 2", nil)
	}
	if c.Export.File.Enabled && c.Export.File.Format != "jsonl" && c.Export.File.Format != "csv" {
		return utils.NewAppError("config.Validate", fmt.Sprintf("unknown export format %q", c.Export.File.Format), nil)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FUSION_ENGINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FUSION_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FUSION_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FUSION_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FUSION_ENGINE_FUSION_METHOD"); v != "" {
		cfg.Fusion.Method = v
	}
	if v := os.Getenv("FUSION_ENGINE_ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.AnomalyThreshold = f
		}
	}
	if v := os.Getenv("FUSION_ENGINE_MAX_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxWindow = n
		}
	}
	if v := os.Getenv("FUSION_ENGINE_REDIS_ADDR"); v != "" {
		cfg.Export.Redis.Addr = v
	}
	if v := os.Getenv("FUSION_ENGINE_REDIS_ENABLED"); v != "" {
		cfg.Export.Redis.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("FUSION_ENGINE_REDIS_PASSWORD"); v != "" {
		cfg.Export.Redis.Password = v
	}
	if v := os.Getenv("FUSION_ENGINE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Export.Redis.DB = db
		}
	}
	if v := os.Getenv("FUSION_ENGINE_EXPORT_DIR"); v != "" {
		cfg.Export.File.Dir = v
	}
	if v := os.Getenv("FUSION_ENGINE_EXPORT_ENABLED"); v != "" {
		cfg.Export.File.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}
