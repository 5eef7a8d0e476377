package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents application configuration
type Config struct {
	Symbols             []string `yaml:"symbols"`
	Capital             float64  `yaml:"capital"`
	RiskPerTrade        float64  `yaml:"risk_per_trade"`
	StopLossPct         float64  `yaml:"stop_loss_pct"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	SizingPolicy        string   `yaml:"sizing_policy"`
	FixedQuantity       int64    `yaml:"fixed_quantity"`
	ReentryPolicy       string   `yaml:"reentry_policy"`
	PollIntervalSeconds float64  `yaml:"poll_interval_seconds"`
	DataPathTemplate    string   `yaml:"data_path_template"`
	DeriveFeatures      bool     `yaml:"derive_features"`
	ModelPath           string   `yaml:"model_path"`
	LogFolder           string   `yaml:"log_folder"`
	LogHold             *bool    `yaml:"log_hold"`
	SnapshotPath        string   `yaml:"snapshot_path"`
	Parallelism         int      `yaml:"parallelism"`

	Model     ModelConfig     `yaml:"model"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ModelConfig describes how to feed the model artifact
type ModelConfig struct {
	Features    []string `yaml:"features"`
	InputName   string   `yaml:"input_name"`
	LabelOutput string   `yaml:"label_output"`
	ProbaOutput string   `yaml:"proba_output"`
	ORTLibrary  string   `yaml:"ort_library"`
}

// TelemetryConfig represents the read-only HTTP surface. Empty address disables it.
type TelemetryConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

const symbolPlaceholder = "{symbol}"

// DefaultFeatures is the feature order the shipped classifier was trained on
var DefaultFeatures = []string{"Close", "Volume", "SMA_20", "SMA_50", "RSI_14", "MACD", "MACD_signal", "MACD_hist"}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from YAML file with env overrides
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.loadEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadEnvOverrides overrides config with environment variables
func (c *Config) loadEnvOverrides() error {
	if v := os.Getenv("TRADER_SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"TRADER_CAPITAL", &c.Capital},
		{"TRADER_RISK_PER_TRADE", &c.RiskPerTrade},
		{"TRADER_STOP_LOSS_PCT", &c.StopLossPct},
		{"TRADER_CONFIDENCE_THRESHOLD", &c.ConfidenceThreshold},
		{"TRADER_POLL_INTERVAL_SECONDS", &c.PollIntervalSeconds},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", f.key, v, err)
		}
		*f.dst = parsed
	}
	if v := os.Getenv("TRADER_MODEL_PATH"); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv("TRADER_SNAPSHOT_PATH"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv("TRADER_LOG_FOLDER"); v != "" {
		c.LogFolder = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// applyDefaults fills unset values. Zero numeric values count as unset.
func (c *Config) applyDefaults() {
	if c.Capital == 0 {
		c.Capital = 10000
	}
	if c.RiskPerTrade == 0 {
		c.RiskPerTrade = 0.01
	}
	if c.StopLossPct == 0 {
		c.StopLossPct = 0.005
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.SizingPolicy == "" {
		c.SizingPolicy = "risk"
	}
	if c.FixedQuantity == 0 {
		c.FixedQuantity = 10
	}
	if c.ReentryPolicy == "" {
		c.ReentryPolicy = "replace"
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 10
	}
	if c.DataPathTemplate == "" {
		c.DataPathTemplate = "data/" + symbolPlaceholder + "_features.csv"
	}
	if c.ModelPath == "" {
		c.ModelPath = "models/model.onnx"
	}
	if c.LogFolder == "" {
		c.LogFolder = "trade_logs"
	}
	if c.LogHold == nil {
		hold := true
		c.LogHold = &hold
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = "trade_logs/positions.csv"
	}
	if c.Parallelism == 0 {
		c.Parallelism = 1
	}
	if len(c.Model.Features) == 0 {
		c.Model.Features = append([]string(nil), DefaultFeatures...)
	}
	if c.Model.InputName == "" {
		c.Model.InputName = "float_input"
	}
	if c.Model.LabelOutput == "" {
		c.Model.LabelOutput = "label"
	}
	if c.Model.ProbaOutput == "" {
		c.Model.ProbaOutput = "probabilities"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// validate validates configuration
func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("symbols must not contain empty names")
		}
		if seen[s] {
			return fmt.Errorf("symbol %s listed twice", s)
		}
		seen[s] = true
	}
	if c.Capital < 0 {
		return fmt.Errorf("capital must not be negative, got %v", c.Capital)
	}
	if c.RiskPerTrade < 0 || c.RiskPerTrade > 1 {
		return fmt.Errorf("risk_per_trade must be in (0, 1], got %v", c.RiskPerTrade)
	}
	if c.StopLossPct < 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in (0, 1), got %v", c.StopLossPct)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("confidence_threshold must be in [0, 1), got %v", c.ConfidenceThreshold)
	}
	if c.FixedQuantity < 1 {
		return fmt.Errorf("fixed_quantity must be at least 1, got %d", c.FixedQuantity)
	}
	if c.PollIntervalSeconds < 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %v", c.PollIntervalSeconds)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if !strings.Contains(c.DataPathTemplate, symbolPlaceholder) {
		return fmt.Errorf("data_path_template must contain %s", symbolPlaceholder)
	}
	return nil
}

// PollInterval returns the delay between passes
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds * float64(time.Second))
}

// LogHoldDecisions reports whether HOLD evaluations are written to the trade log
func (c *Config) LogHoldDecisions() bool {
	return c.LogHold == nil || *c.LogHold
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
