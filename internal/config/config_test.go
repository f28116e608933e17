package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	var cfg Config
	cfg.Paper = true
	cfg.Wallet.ChainID = 137
	cfg.API.CLOBBaseURL = "https://clob.polymarket.com"
	cfg.Quoting.OrderSize = 5
	cfg.Quoting.IntervalSec = 60
	cfg.Selection.MaxMarkets = 10
	cfg.Risk.MaxPosition = 30
	cfg.Risk.TotalCapital = 65
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid paper config", func(c *Config) {}, ""},
		{"live mode needs signer", func(c *Config) { c.Paper = false }, "private_key"},
		{"live with signer passes", func(c *Config) {
			c.Paper = false
			c.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
		}, ""},
		{"missing chain id", func(c *Config) { c.Wallet.ChainID = 0 }, "chain_id"},
		{"bad signature type", func(c *Config) { c.Wallet.SignatureType = 7 }, "signature_type"},
		{"missing clob url", func(c *Config) { c.API.CLOBBaseURL = "" }, "clob_base_url"},
		{"zero order size", func(c *Config) { c.Quoting.OrderSize = 0 }, "order_size"},
		{"zero interval", func(c *Config) { c.Quoting.IntervalSec = 0 }, "interval_sec"},
		{"zero max markets", func(c *Config) { c.Selection.MaxMarkets = 0 }, "max_markets"},
		{"zero capital", func(c *Config) { c.Risk.TotalCapital = 0 }, "total_capital"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeClampsToCapital(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Risk.TotalCapital = 65
	cfg.Quoting.OrderSize = 20 // cap: floor(0.08*65) = 5
	cfg.Risk.MaxPosition = 100 // cap: floor(0.48*65) = 31

	notes := cfg.Normalize()
	if len(notes) != 2 {
		t.Fatalf("notes = %v, want 2 clamps", notes)
	}
	if cfg.Quoting.OrderSize != 5 {
		t.Errorf("order_size = %v, want 5", cfg.Quoting.OrderSize)
	}
	if cfg.Risk.MaxPosition != 31 {
		t.Errorf("max_position = %v, want 31", cfg.Risk.MaxPosition)
	}
}

func TestNormalizeOrderSizeFloor(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Risk.TotalCapital = 5 // floor(0.08*5) = 0, floored to 1
	cfg.Quoting.OrderSize = 3

	cfg.Normalize()
	if cfg.Quoting.OrderSize != 1 {
		t.Errorf("order_size = %v, want floor of 1", cfg.Quoting.OrderSize)
	}
}

func TestNormalizeLeavesCompliantConfig(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if notes := cfg.Normalize(); len(notes) != 0 {
		t.Errorf("unexpected clamps: %v", notes)
	}
}

func TestLoadFromFileWithDefaults(t *testing.T) {
	yaml := `
paper: true
quoting:
  order_size: 4
  base_spread_bps: 25
risk:
  total_capital: 100
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Quoting.OrderSize != 4 || cfg.Quoting.BaseSpreadBps != 25 {
		t.Errorf("quoting = %+v, want file values", cfg.Quoting)
	}
	if cfg.Risk.TotalCapital != 100 {
		t.Errorf("total_capital = %v, want 100", cfg.Risk.TotalCapital)
	}
	// Untouched keys fall back to defaults.
	if cfg.Quoting.IntervalSec != 60 {
		t.Errorf("interval_sec = %v, want default 60", cfg.Quoting.IntervalSec)
	}
	if cfg.Wallet.ChainID != 137 {
		t.Errorf("chain_id = %v, want default 137", cfg.Wallet.ChainID)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Paper {
		t.Error("default mode is not paper")
	}
	if cfg.API.CLOBBaseURL == "" {
		t.Error("default clob_base_url missing")
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Quoting.IntervalSec = 90
	if got := cfg.Interval(); got != 90*time.Second {
		t.Errorf("Interval() = %v, want 90s", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLY_PRIVATE_KEY", "deadbeef")
	t.Setenv("POLY_PAPER", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wallet.PrivateKey != "deadbeef" {
		t.Errorf("private key not taken from env")
	}
	if !cfg.Paper {
		t.Error("POLY_PAPER=true not honored")
	}
}
