package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
strategy: "kestrel"
storage:
  data_dir: "/tmp/kestrel/data"
  sqlite_path: "/tmp/kestrel/state.db"
broker:
  kind: "paper"
  paper_cash: 100000
  premium: 0.05
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
feed:
  url: "ws://localhost:9000/quotes"
  reconnect_seconds: 5
  tape_dir: "/tmp/kestrel/tape"
session:
  morning:
    begin: "09:30"
    end: "11:30"
  afternoon:
    begin: "13:00"
    end: "15:00"
  prepare_at: "09:05"
  settle_at: "15:10"
bars:
  tail_len: 60
  batch_size: 200
  rate_per_minute: 120
universe:
  prefixes: ["00", "60"]
  exclude: ["600519.SH"]
  max_size: 500
buyer:
  slots: 10
  slot_cash: 10000
  cycle_limit: 2
  min_price: 2
  signal:
    min_open_ratio: 0.92
    max_open_ratio: 0.99
seller:
  rules: ["hard-stop", "top-fall", "switch-out"]
  hard:
    earn_limit: 1.25
    risk_limit: 0.97
    risk_tight: 0.002
  fall:
    tiers:
      - {inc_min: 1.02, inc_max: 1.10, ratio: 0.03}
  switch:
    window:
      begin: "14:30"
      end: "14:57"
    min_hold: 1
    daily_up: 0.003
    floor: 0.80
logging:
  level: "info"
  format: "json"
metrics:
  addr: ":9102"
notify:
  webhook_url: ""
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	for _, key := range []string{"KESTREL_BROKER", "KESTREL_SQLITE_PATH", "APCA_API_KEY_ID", "LOG_LEVEL"} {
		os.Unsetenv(key)
	}

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Broker.Kind != "paper" || cfg.Broker.Premium != 0.05 {
		t.Errorf("broker = %+v", cfg.Broker)
	}
	if cfg.Buyer.Slots != 10 || cfg.Buyer.SlotCash != 10000 {
		t.Errorf("buyer = %+v", cfg.Buyer.BuyerConfig)
	}
	if cfg.Buyer.Signal.MinOpenRatio != 0.92 {
		t.Errorf("signal = %+v", cfg.Buyer.Signal)
	}
	if cfg.Feed.TapeDir != "/tmp/kestrel/tape" {
		t.Errorf("feed = %+v", cfg.Feed)
	}
	if len(cfg.Seller.Rules) != 3 || cfg.Seller.Rules[0] != "hard-stop" {
		t.Errorf("seller rules = %v", cfg.Seller.Rules)
	}
	if cfg.Seller.Switch.Window.Begin != "14:30" {
		t.Errorf("switch window = %+v", cfg.Seller.Switch.Window)
	}
	if len(cfg.Seller.Fall.Tiers) != 1 || cfg.Seller.Fall.Tiers[0].Ratio != 0.03 {
		t.Errorf("fall tiers = %v", cfg.Seller.Fall.Tiers)
	}
	if cfg.Session.Morning.Begin != "09:30" || cfg.Session.Afternoon.End != "15:00" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if len(cfg.Universe.Prefixes) != 2 {
		t.Errorf("universe = %+v", cfg.Universe)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KESTREL_BROKER", "alpaca")
	t.Setenv("KESTREL_SQLITE_PATH", "/var/lib/kestrel/state.db")
	t.Setenv("APCA_API_KEY_ID", "env-key")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.Kind != "alpaca" {
		t.Errorf("broker.kind = %q, want env override", cfg.Broker.Kind)
	}
	if cfg.Storage.SQLitePath != "/var/lib/kestrel/state.db" {
		t.Errorf("sqlite path = %q, want env override", cfg.Storage.SQLitePath)
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("api key = %q, want env override", cfg.Alpaca.APIKey)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown broker": `
broker: {kind: "ibkr"}
storage: {sqlite_path: "/tmp/s.db"}
buyer: {slots: 10, slot_cash: 10000}
seller: {rules: ["hard-stop"]}
`,
		"no exit rules": `
broker: {kind: "paper"}
storage: {sqlite_path: "/tmp/s.db"}
buyer: {slots: 10, slot_cash: 10000}
seller: {rules: []}
`,
		"missing sqlite path": `
broker: {kind: "paper"}
buyer: {slots: 10, slot_cash: 10000}
seller: {rules: ["hard-stop"]}
`,
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}
