package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"kestrel/internal/market"
	"kestrel/internal/rules"
	"kestrel/internal/trader"
	"kestrel/internal/universe"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the kestrel trader.
type Config struct {
	Strategy string            `yaml:"strategy"`
	Storage  Storage           `yaml:"storage"`
	Broker   Broker            `yaml:"broker"`
	Alpaca   Alpaca            `yaml:"alpaca"`
	Feed     Feed              `yaml:"feed"`
	Session  Session           `yaml:"session"`
	Bars     Bars              `yaml:"bars"`
	Universe universe.Config   `yaml:"universe"`
	Buyer    BuyerSection      `yaml:"buyer"`
	Seller   rules.ChainConfig `yaml:"seller"`
	Logging  Logging           `yaml:"logging"`
	Server   Server            `yaml:"server"`
	Metrics  Metrics           `yaml:"metrics"`
	Notify   Notify            `yaml:"notify"`
}

// Server configures the status API listener.
type Server struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Broker selects the execution backend and its order conventions.
type Broker struct {
	Kind      string  `yaml:"kind"` // "paper" or "alpaca"
	PaperCash float64 `yaml:"paper_cash"`
	Premium   float64 `yaml:"premium"` // SSE reference price nudge
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Feed configures the quote stream.
type Feed struct {
	URL              string `yaml:"url"`
	ReconnectSeconds int    `yaml:"reconnect_seconds"`
	TapeDir          string `yaml:"tape_dir"` // empty disables the tick tape
}

// Session bounds the trading day. Times are local "HH:MM".
type Session struct {
	Morning   market.TimeRange `yaml:"morning"`
	Afternoon market.TimeRange `yaml:"afternoon"`
	PrepareAt string           `yaml:"prepare_at"` // pre-open jobs
	SettleAt  string           `yaml:"settle_at"`  // post-close jobs
}

// Bars configures historical data used by indicator rules.
type Bars struct {
	TailLen       int `yaml:"tail_len"`
	BatchSize     int `yaml:"batch_size"`
	RatePerMinute int `yaml:"rate_per_minute"`
}

// BuyerSection selects and parameterizes the entry side.
type BuyerSection struct {
	trader.BuyerConfig `yaml:",inline"`
	Signal             SignalSection `yaml:"signal"`
}

// SignalSection parameterizes the entry signal.
type SignalSection struct {
	MinOpenRatio float64 `yaml:"min_open_ratio"`
	MaxOpenRatio float64 `yaml:"max_open_ratio"`
	MaxGainRatio float64 `yaml:"max_gain_ratio"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the Prometheus listener.
type Metrics struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// Notify configures the trade-notice webhook.
type Notify struct {
	WebhookURL string `yaml:"webhook_url"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Broker.Kind {
	case "paper", "alpaca":
	default:
		return fmt.Errorf("broker.kind %q: want paper or alpaca", c.Broker.Kind)
	}
	if c.Buyer.Slots <= 0 {
		return fmt.Errorf("buyer.slots must be positive")
	}
	if c.Buyer.SlotCash <= 0 {
		return fmt.Errorf("buyer.slot_cash must be positive")
	}
	if len(c.Seller.Rules) == 0 {
		return fmt.Errorf("seller.rules must name at least one rule")
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and
// overrides the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KESTREL_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_BROKER"); v != "" {
		cfg.Broker.Kind = v
	}
	if v := os.Getenv("KESTREL_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("KESTREL_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca SDK names take precedence over the YAML values.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
}
