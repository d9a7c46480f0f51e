package monitor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	appcfg "github.com/Ashar20/lifi-rotator/internal/config"
	"github.com/Ashar20/lifi-rotator/internal/planner"
)

// Mode selects the engine variant.
type Mode string

const (
	ModeRotate    Mode = "rotate"
	ModeArbitrage Mode = "arbitrage"
)

// Kind maps the mode to its planning variant.
func (m Mode) Kind() planner.Kind {
	if m == ModeArbitrage {
		return planner.KindArbitrage
	}
	return planner.KindRotation
}

// Config is the monitor's live policy. Updates replace the whole value and
// take effect on the next tick, never retroactively.
type Config struct {
	Mode Mode
	// MinAPYImprovement in percentage points (rotate mode).
	MinAPYImprovement decimal.Decimal
	// MinProfitPercent minimum spread in percent (arbitrage mode).
	MinProfitPercent decimal.Decimal
	// MinNetProfitUSD is the absolute net-benefit floor for auto-execution.
	MinNetProfitUSD     decimal.Decimal
	MaxGasCostUSD       decimal.Decimal
	MinPositionValueUSD decimal.Decimal
	CheckInterval       time.Duration
	Cooldown            time.Duration
	Testnet             bool
	SourceChainID       int64
	// MaxTradeAmount caps a single execution, in token base units.
	MaxTradeAmount string
}

// Validate rejects configurations the scheduler must never run with.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeRotate, ModeArbitrage:
	default:
		return fmt.Errorf("monitor: unknown mode %q", c.Mode)
	}
	if c.CheckInterval < appcfg.MinCheckInterval {
		return fmt.Errorf("monitor: check interval below minimum %s", appcfg.MinCheckInterval)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("monitor: cooldown cannot be negative")
	}
	if c.MaxGasCostUSD.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("monitor: max gas cost must be positive")
	}
	return nil
}

// FromAppConfig converts the boot-time config section into a live policy.
func FromAppConfig(mc appcfg.MonitorConfig) Config {
	return Config{
		Mode:                Mode(mc.Mode),
		MinAPYImprovement:   decimal.NewFromFloat(mc.MinAPYImprovement),
		MinProfitPercent:    decimal.NewFromFloat(mc.MinProfitPercent),
		MinNetProfitUSD:     decimal.NewFromFloat(mc.MinNetProfitUSD),
		MaxGasCostUSD:       decimal.NewFromFloat(mc.MaxGasCostUSD),
		MinPositionValueUSD: decimal.NewFromFloat(mc.MinPositionValueUSD),
		CheckInterval:       mc.CheckInterval,
		Cooldown:            mc.Cooldown,
		Testnet:             mc.Testnet,
		SourceChainID:       mc.SourceChainID,
		MaxTradeAmount:      mc.MaxTradeAmount,
	}
}

// persistedConfig is the wire shape for the stored policy. Durations are
// integer milliseconds, thresholds plain numbers.
type persistedConfig struct {
	Mode              string  `json:"mode"`
	MinAPYImprovement float64 `json:"minApyImprovement"`
	MinProfitPercent  float64 `json:"minProfitPercent"`
	MinNetProfitUSD   float64 `json:"minNetProfit"`
	MaxGasCost        float64 `json:"maxGasCost"`
	MinPositionValue  float64 `json:"minPositionValue"`
	CheckIntervalMs   int64   `json:"checkIntervalMs"`
	CooldownMs        int64   `json:"cooldownMs"`
	IsTestnet         bool    `json:"isTestnet"`
	SourceChainID     int64   `json:"sourceChainId,omitempty"`
	MaxTradeAmount    string  `json:"maxTradeAmount,omitempty"`
}

// MarshalJSON encodes the policy in its persisted wire shape.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(persistedConfig{
		Mode:              string(c.Mode),
		MinAPYImprovement: c.MinAPYImprovement.InexactFloat64(),
		MinProfitPercent:  c.MinProfitPercent.InexactFloat64(),
		MinNetProfitUSD:   c.MinNetProfitUSD.InexactFloat64(),
		MaxGasCost:        c.MaxGasCostUSD.InexactFloat64(),
		MinPositionValue:  c.MinPositionValueUSD.InexactFloat64(),
		CheckIntervalMs:   c.CheckInterval.Milliseconds(),
		CooldownMs:        c.Cooldown.Milliseconds(),
		IsTestnet:         c.Testnet,
		SourceChainID:     c.SourceChainID,
		MaxTradeAmount:    c.MaxTradeAmount,
	})
}

// UnmarshalJSON decodes the persisted wire shape.
func (c *Config) UnmarshalJSON(data []byte) error {
	var p persistedConfig
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Config{
		Mode:                Mode(p.Mode),
		MinAPYImprovement:   decimal.NewFromFloat(p.MinAPYImprovement),
		MinProfitPercent:    decimal.NewFromFloat(p.MinProfitPercent),
		MinNetProfitUSD:     decimal.NewFromFloat(p.MinNetProfitUSD),
		MaxGasCostUSD:       decimal.NewFromFloat(p.MaxGasCost),
		MinPositionValueUSD: decimal.NewFromFloat(p.MinPositionValue),
		CheckInterval:       time.Duration(p.CheckIntervalMs) * time.Millisecond,
		Cooldown:            time.Duration(p.CooldownMs) * time.Millisecond,
		Testnet:             p.IsTestnet,
		SourceChainID:       p.SourceChainID,
		MaxTradeAmount:      p.MaxTradeAmount,
	}
	return nil
}

// plannerConfig projects the policy onto the calculator's thresholds.
// Quotes are requested for fromAddress so their payloads are executable
// by that wallet.
func (c Config) plannerConfig(fromAddress string) planner.Config {
	return planner.Config{
		MinAPYImprovement: c.MinAPYImprovement,
		MinProfitPercent:  c.MinProfitPercent,
		MaxTradeAmount:    c.MaxTradeAmount,
		FromAddress:       fromAddress,
	}
}
