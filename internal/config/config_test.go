package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: rotator\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Monitor.Mode != "rotate" {
		t.Fatalf("default mode = %s", cfg.Monitor.Mode)
	}
	if cfg.Monitor.CheckInterval != time.Minute {
		t.Fatalf("default check interval = %s", cfg.Monitor.CheckInterval)
	}
	if cfg.Monitor.Cooldown != 2*time.Minute {
		t.Fatalf("default cooldown = %s", cfg.Monitor.Cooldown)
	}
	if cfg.Feed.YieldsBaseURL != "https://yields.llama.fi" {
		t.Fatalf("default yields url = %s", cfg.Feed.YieldsBaseURL)
	}
	if cfg.LiFi.BaseURL != "https://li.quest/v1" {
		t.Fatalf("default lifi url = %s", cfg.LiFi.BaseURL)
	}
	if cfg.LiFi.SlippageBps != 50 {
		t.Fatalf("default slippage = %d", cfg.LiFi.SlippageBps)
	}
	if cfg.Executor.GasMultiplier != 1.2 {
		t.Fatalf("default gas multiplier = %v", cfg.Executor.GasMultiplier)
	}
	if cfg.Database.AdvisoryLockKey == 0 {
		t.Fatal("default advisory lock key missing")
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
monitor:
  mode: arbitrage
  check_interval: 30s
  min_profit_percent: 0.8
  source_chain_id: 42161
wallet:
  address: "0x2222222222222222222222222222222222222222"
scanner:
  rpc_overrides:
    ethereum:
      - "https://rpc.internal.example"
  baseline_apy:
    USDC: 3.5
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Monitor.Mode != "arbitrage" {
		t.Fatalf("mode = %s", cfg.Monitor.Mode)
	}
	if cfg.Monitor.CheckInterval != 30*time.Second {
		t.Fatalf("check interval = %s", cfg.Monitor.CheckInterval)
	}
	if cfg.Monitor.SourceChainID != 42161 {
		t.Fatalf("source chain = %d", cfg.Monitor.SourceChainID)
	}
	if cfg.Wallet.Address != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("wallet = %s", cfg.Wallet.Address)
	}
	if got := cfg.Scanner.RPCOverrides["ethereum"]; len(got) != 1 || got[0] != "https://rpc.internal.example" {
		t.Fatalf("rpc overrides = %v", cfg.Scanner.RPCOverrides)
	}
	if got := cfg.Scanner.BaselineAPY["USDC"]; got != 3.5 {
		t.Fatalf("baseline apy = %v", cfg.Scanner.BaselineAPY)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "monitor:\n  mode: turbo\n"},
		{"interval below floor", "monitor:\n  check_interval: 2s\n"},
		{"negative cooldown", "monitor:\n  cooldown: -1m\n"},
		{"zero gas ceiling", "monitor:\n  max_gas_cost_usd: 0\n"},
		{"slippage out of range", "lifi:\n  slippage_bps: 10000\n"},
		{"gas multiplier below one", "executor:\n  gas_multiplier: 0.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatalf("config accepted: %s", tt.yaml)
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Fatalf("default = %d, want 500", got)
	}
	if got := cfg.ResolveMaxPoints(40); got != 40 {
		t.Fatalf("override = %d, want 40", got)
	}
}
