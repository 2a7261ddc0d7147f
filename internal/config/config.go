package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration for the scanner.
type Config struct {
	Layer1         LayerConfig    `yaml:"layer1"`
	Layer2         LayerConfig    `yaml:"layer2"`
	Layer3         LayerConfig    `yaml:"layer3"`
	Weights        WeightsConfig  `yaml:"weights"`
	AlertThreshold float64        `yaml:"alert_threshold"`
	Cooldown       time.Duration  `yaml:"cooldown"`
	Volume         VolumeConfig   `yaml:"volume"`
	Provider       ProviderConfig `yaml:"provider"`
	Universe       UniverseConfig `yaml:"universe"`
	Workers        int            `yaml:"workers"`
	GracePeriod    time.Duration  `yaml:"grace_period"`
	HTTP           HTTPConfig     `yaml:"http"`
	Alerts         AlertsConfig   `yaml:"alerts"`
}

// LayerConfig configures one stage of the pump pipeline.
type LayerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Timeframe    string        `yaml:"timeframe"`
	Candles      int           `yaml:"candles"`
	Threshold    float64       `yaml:"threshold"`
	StageTimeout time.Duration `yaml:"stage_timeout"` // how long a candidate may sit at the stage this layer produces
}

// WeightsConfig holds the aggregation weights. They must sum to 1.
type WeightsConfig struct {
	Layer1 float64 `yaml:"layer1"`
	Layer2 float64 `yaml:"layer2"`
	Layer3 float64 `yaml:"layer3"`
}

// VolumeConfig configures the volume anomaly detector.
type VolumeConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Timeframes   []string      `yaml:"timeframes"`
	Profile      string        `yaml:"profile"`
	Custom       ProfileValues `yaml:"custom"` // used when Profile is "custom"
	ZMin         float64       `yaml:"z_min"`
	MinSamples   int           `yaml:"min_samples"`
	PriceMovePct float64       `yaml:"price_move_pct"`
}

// ProfileValues are the tunable thresholds of a sensitivity profile.
type ProfileValues struct {
	Multiplier     float64 `yaml:"multiplier"`
	MinIncreasePct float64 `yaml:"min_increase_pct"`
	Lookback       int     `yaml:"lookback"`
}

// UniverseConfig controls which symbols are scanned.
type UniverseConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	QuoteAsset      string        `yaml:"quote_asset"`
	Symbols         []string      `yaml:"symbols"` // explicit list, skips exchange discovery
	Exclude         []string      `yaml:"exclude"` // regular expressions matched against the symbol
	MinQuoteVolume  float64       `yaml:"min_quote_volume"`
}

// HTTPConfig configures the control and metrics server.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// AlertsConfig selects alert sinks and the cooldown backend.
type AlertsConfig struct {
	Sinks       []string `yaml:"sinks"` // log, postgres, websocket
	RedisAddr   string   `yaml:"redis_addr"`
	DatabaseURL string   `yaml:"database_url"`
}

var knownProfiles = map[string]bool{
	"conservative": true,
	"balanced":     true,
	"aggressive":   true,
	"custom":       true,
}

var knownSinks = map[string]bool{
	"log":       true,
	"postgres":  true,
	"websocket": true,
}

// Default returns a configuration that runs out of the box against Binance spot.
func Default() *Config {
	return &Config{
		Layer1: LayerConfig{
			Interval:     3 * time.Minute,
			Timeframe:    "5m",
			Candles:      40,
			Threshold:    60,
			StageTimeout: 45 * time.Minute,
		},
		Layer2: LayerConfig{
			Interval:     15 * time.Minute,
			Timeframe:    "1h",
			Candles:      60,
			Threshold:    60,
			StageTimeout: 4 * time.Hour,
		},
		Layer3: LayerConfig{
			Interval:  time.Hour,
			Timeframe: "4h",
			Candles:   60,
			Threshold: 60,
		},
		Weights:        WeightsConfig{Layer1: 0.3, Layer2: 0.4, Layer3: 0.3},
		AlertThreshold: 80,
		Cooldown:       2 * time.Hour,
		Volume: VolumeConfig{
			Interval:     5 * time.Minute,
			Timeframes:   []string{"5m", "15m", "1h"},
			Profile:      "balanced",
			ZMin:         2.0,
			MinSamples:   10,
			PriceMovePct: 2.0,
		},
		Provider: DefaultProviderConfig(),
		Universe: UniverseConfig{
			RefreshInterval: 30 * time.Minute,
			QuoteAsset:      "USDT",
			Exclude: []string{
				`^[A-Z0-9]{2,}(UP|DOWN|BULL|BEAR)USDT$`,
				`^[A-Z0-9]+[0-9]+[LS]USDT$`,
				`^(USDC|BUSD|TUSD|FDUSD|DAI|USDP)USDT$`,
			},
			MinQuoteVolume: 1_000_000,
		},
		Workers:     16,
		GracePeriod: 15 * time.Second,
		HTTP:        HTTPConfig{Addr: ":8088", Enabled: true},
		Alerts:      AlertsConfig{Sinks: []string{"log"}},
	}
}

// Load reads a YAML file over the defaults and applies environment overrides.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides deployment-specific values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PUMPRADAR_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := getenv("PUMPRADAR_REDIS_ADDR"); v != "" {
		c.Alerts.RedisAddr = v
	}
	if v := getenv("PUMPRADAR_DATABASE_URL"); v != "" {
		c.Alerts.DatabaseURL = v
	}
	if v := getenv("PUMPRADAR_PROFILE"); v != "" {
		c.Volume.Profile = v
	}
	if v := getenv("PUMPRADAR_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
}

// ConfigurationError reports every invalid setting found during validation.
// It is fatal at startup.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.ReplaceAll(e.Err.Error(), "\n", "; ")
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Validate checks thresholds, weights, intervals and patterns.
func (c *Config) Validate() error {
	var errs []error

	for name, layer := range map[string]LayerConfig{"layer1": c.Layer1, "layer2": c.Layer2, "layer3": c.Layer3} {
		errs = append(errs, layer.validate(name)...)
	}
	if c.Layer1.StageTimeout <= 0 {
		errs = append(errs, errors.New("layer1.stage_timeout must be positive"))
	}
	if c.Layer2.StageTimeout <= 0 {
		errs = append(errs, errors.New("layer2.stage_timeout must be positive"))
	}
	if !(c.Layer1.Interval < c.Layer2.Interval && c.Layer2.Interval < c.Layer3.Interval) {
		errs = append(errs, errors.New("layer intervals must increase from layer1 to layer3"))
	}

	w := c.Weights
	if w.Layer1 < 0 || w.Layer2 < 0 || w.Layer3 < 0 {
		errs = append(errs, errors.New("weights must be non-negative"))
	}
	if sum := w.Layer1 + w.Layer2 + w.Layer3; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("weights must sum to 1, got %.4f", sum))
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 100 {
		errs = append(errs, fmt.Errorf("alert_threshold %.2f outside [0,100]", c.AlertThreshold))
	}
	if c.Cooldown <= 0 {
		errs = append(errs, errors.New("cooldown must be positive"))
	}

	errs = append(errs, c.Volume.validate()...)

	if err := c.Provider.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Universe.RefreshInterval <= 0 {
		errs = append(errs, errors.New("universe.refresh_interval must be positive"))
	}
	if c.Universe.MinQuoteVolume < 0 {
		errs = append(errs, errors.New("universe.min_quote_volume must be >= 0"))
	}
	for _, p := range c.Universe.Exclude {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("universe.exclude %q: %w", p, err))
		}
	}

	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.GracePeriod < 0 {
		errs = append(errs, errors.New("grace_period must be >= 0"))
	}
	for _, s := range c.Alerts.Sinks {
		if !knownSinks[s] {
			errs = append(errs, fmt.Errorf("unknown alert sink %q", s))
		}
		if s == "postgres" && c.Alerts.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres sink requires alerts.database_url"))
		}
	}

	if len(errs) > 0 {
		return &ConfigurationError{Err: errors.Join(errs...)}
	}
	return nil
}

func (l LayerConfig) validate(name string) []error {
	var errs []error
	if l.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%s.interval must be positive", name))
	}
	if l.Timeframe == "" {
		errs = append(errs, fmt.Errorf("%s.timeframe is required", name))
	}
	if l.Candles < 2 {
		errs = append(errs, fmt.Errorf("%s.candles must be at least 2", name))
	}
	if l.Threshold < 0 || l.Threshold > 100 {
		errs = append(errs, fmt.Errorf("%s.threshold %.2f outside [0,100]", name, l.Threshold))
	}
	return errs
}

func (v VolumeConfig) validate() []error {
	var errs []error
	if v.Interval <= 0 {
		errs = append(errs, errors.New("volume.interval must be positive"))
	}
	if len(v.Timeframes) == 0 {
		errs = append(errs, errors.New("volume.timeframes must not be empty"))
	}
	if !knownProfiles[v.Profile] {
		errs = append(errs, fmt.Errorf("unknown volume profile %q", v.Profile))
	}
	if v.Profile == "custom" {
		if v.Custom.Multiplier <= 1 {
			errs = append(errs, errors.New("volume.custom.multiplier must be > 1"))
		}
		if v.Custom.MinIncreasePct <= 0 {
			errs = append(errs, errors.New("volume.custom.min_increase_pct must be positive"))
		}
		if v.Custom.Lookback < 2 {
			errs = append(errs, errors.New("volume.custom.lookback must be at least 2"))
		}
	}
	if v.ZMin <= 0 {
		errs = append(errs, errors.New("volume.z_min must be positive"))
	}
	if v.MinSamples < 2 {
		errs = append(errs, errors.New("volume.min_samples must be at least 2"))
	}
	if v.PriceMovePct <= 0 {
		errs = append(errs, errors.New("volume.price_move_pct must be positive"))
	}
	return errs
}
