package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Ashar20/lifi-rotator/internal/logging"
)

// MinCheckInterval is the floor enforced on the monitor scan cadence.
const MinCheckInterval = 10 * time.Second

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Feed     FeedConfig     `mapstructure:"feed"`
	LiFi     LiFiConfig     `mapstructure:"lifi"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// WalletConfig identifies the wallet whose positions are scanned.
type WalletConfig struct {
	Address string `mapstructure:"address"`
}

// MonitorConfig is the tunable rotation policy. It is editable at runtime
// through the monitor and persisted through storage; this section only
// supplies the boot-time values.
type MonitorConfig struct {
	// Mode selects the engine variant: "rotate" (yield) or "arbitrage".
	Mode string `mapstructure:"mode"`
	// MinAPYImprovement is the minimum APY delta in percentage points (rotate mode).
	MinAPYImprovement float64 `mapstructure:"min_apy_improvement"`
	// MinProfitPercent is the minimum price spread in percent (arbitrage mode).
	MinProfitPercent float64 `mapstructure:"min_profit_percent"`
	// MinNetProfitUSD is the minimum absolute net benefit for auto-execution.
	MinNetProfitUSD     float64       `mapstructure:"min_net_profit_usd"`
	MaxGasCostUSD       float64       `mapstructure:"max_gas_cost_usd"`
	MinPositionValueUSD float64       `mapstructure:"min_position_value_usd"`
	CheckInterval       time.Duration `mapstructure:"check_interval"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
	Testnet             bool          `mapstructure:"testnet"`
	// SourceChainID restricts scanning to one chain when non-zero.
	SourceChainID int64 `mapstructure:"source_chain_id"`
	// MaxTradeAmount caps a single execution, in token base units.
	MaxTradeAmount string `mapstructure:"max_trade_amount"`
}

// ScannerConfig tunes per-chain balance reads.
type ScannerConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RPCOverrides replaces the built-in fallback list for a chain slug.
	RPCOverrides map[string][]string `mapstructure:"rpc_overrides"`
	// BaselineAPY maps token symbols to the yield the held balance already
	// earns, in percentage points. Unlisted tokens count as idle.
	BaselineAPY map[string]float64 `mapstructure:"baseline_apy"`
}

// FeedConfig covers the opportunity listing source.
type FeedConfig struct {
	YieldsBaseURL   string        `mapstructure:"yields_base_url"`
	PricesBaseURL   string        `mapstructure:"prices_base_url"`
	MinTVLUSD       float64       `mapstructure:"min_tvl_usd"`
	MaxPlausibleAPY float64       `mapstructure:"max_plausible_apy"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// LiFiConfig covers the cross-chain route aggregator.
type LiFiConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SlippageBps    int64         `mapstructure:"slippage_bps"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Integrator     string        `mapstructure:"integrator"`
}

// ExecutorConfig tunes transaction broadcast and confirmation.
type ExecutorConfig struct {
	PrivateKey     string        `mapstructure:"private_key"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	GasMultiplier  float64       `mapstructure:"gas_multiplier"`
	DryRun         bool          `mapstructure:"dry_run"`
}

// AlertingConfig defines alert routing for executions and failures.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROTATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rotator")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitor.mode", "rotate")
	v.SetDefault("monitor.min_apy_improvement", 2.0)
	v.SetDefault("monitor.min_profit_percent", 0.3)
	v.SetDefault("monitor.min_net_profit_usd", 1.0)
	v.SetDefault("monitor.max_gas_cost_usd", 10.0)
	v.SetDefault("monitor.min_position_value_usd", 50.0)
	v.SetDefault("monitor.check_interval", "1m")
	v.SetDefault("monitor.cooldown", "2m")
	v.SetDefault("monitor.testnet", false)
	v.SetDefault("monitor.source_chain_id", int64(0))
	v.SetDefault("monitor.max_trade_amount", "")

	v.SetDefault("scanner.request_timeout", "10s")

	v.SetDefault("feed.yields_base_url", "https://yields.llama.fi")
	v.SetDefault("feed.prices_base_url", "https://coins.llama.fi")
	v.SetDefault("feed.min_tvl_usd", 100000.0)
	v.SetDefault("feed.max_plausible_apy", 100.0)
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "rotator/1.0")

	v.SetDefault("lifi.base_url", "https://li.quest/v1")
	v.SetDefault("lifi.slippage_bps", int64(50))
	v.SetDefault("lifi.request_timeout", "15s")
	v.SetDefault("lifi.integrator", "rotator")

	v.SetDefault("executor.poll_interval", "2s")
	v.SetDefault("executor.confirm_timeout", "2m")
	v.SetDefault("executor.gas_multiplier", 1.2)
	v.SetDefault("executor.dry_run", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 10000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x726f7461))
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Monitor.Mode {
	case "rotate", "arbitrage":
	default:
		return fmt.Errorf("monitor.mode must be \"rotate\" or \"arbitrage\"")
	}
	if c.Monitor.CheckInterval < MinCheckInterval {
		return fmt.Errorf("monitor.check_interval must be at least %s", MinCheckInterval)
	}
	if c.Monitor.Cooldown < 0 {
		return fmt.Errorf("monitor.cooldown cannot be negative")
	}
	if c.Monitor.MinAPYImprovement < 0 || c.Monitor.MinProfitPercent < 0 {
		return fmt.Errorf("monitor thresholds cannot be negative")
	}
	if c.Monitor.MaxGasCostUSD <= 0 {
		return fmt.Errorf("monitor.max_gas_cost_usd must be greater than zero")
	}
	if c.Feed.MinTVLUSD < 0 {
		return fmt.Errorf("feed.min_tvl_usd cannot be negative")
	}
	if c.LiFi.SlippageBps <= 0 || c.LiFi.SlippageBps >= 10_000 {
		return fmt.Errorf("lifi.slippage_bps must be between 1 and 9999")
	}
	if c.Executor.GasMultiplier < 1 {
		return fmt.Errorf("executor.gas_multiplier must be at least 1")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
