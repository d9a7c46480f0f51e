// Package app wires configuration into the engine and backs the CLI
// commands.
package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashar20/lifi-rotator/internal/alerting"
	"github.com/Ashar20/lifi-rotator/internal/chain"
	"github.com/Ashar20/lifi-rotator/internal/config"
	"github.com/Ashar20/lifi-rotator/internal/executor"
	"github.com/Ashar20/lifi-rotator/internal/feed"
	"github.com/Ashar20/lifi-rotator/internal/lifi"
	"github.com/Ashar20/lifi-rotator/internal/monitor"
	"github.com/Ashar20/lifi-rotator/internal/planner"
	"github.com/Ashar20/lifi-rotator/internal/scanner"
	"github.com/Ashar20/lifi-rotator/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newScanner() *scanner.Scanner {
	return scanner.New(scanner.Options{
		Timeout:      a.Config.Scanner.RequestTimeout,
		RPCOverrides: a.Config.Scanner.RPCOverrides,
		BaselineAPY:  a.Config.Scanner.BaselineAPY,
	}, nil, a.Logger)
}

func (a *App) chains() []chain.Chain {
	return chain.Universe(a.Config.Monitor.Testnet)
}

func (a *App) newFeeds() monitor.Feeds {
	chains := a.chains()
	yields := feed.NewYields(feed.Options{
		BaseURL:   a.Config.Feed.YieldsBaseURL,
		MinTVLUSD: a.Config.Feed.MinTVLUSD,
		// A triple-digit APY on a stable pool is almost always a data glitch.
		MaxPlausibleAPY: a.Config.Feed.MaxPlausibleAPY,
		Timeout:         a.Config.Feed.RequestTimeout,
		UserAgent:       a.Config.Feed.UserAgent,
	}, chains, a.Logger)

	prices := feed.NewPrices(feed.Options{
		BaseURL:   a.Config.Feed.PricesBaseURL,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, chains, a.Logger)

	return monitor.Feeds{Rotate: yields, Arbitrage: prices}
}

func (a *App) newCalculator() *planner.Calculator {
	quoter := lifi.New(lifi.Options{
		BaseURL:     a.Config.LiFi.BaseURL,
		SlippageBps: a.Config.LiFi.SlippageBps,
		Timeout:     a.Config.LiFi.RequestTimeout,
		Integrator:  a.Config.LiFi.Integrator,
	}, a.Logger)
	return planner.New(quoter, a.Logger)
}

// newExecutor returns nil when no signing key is configured; the monitor
// then runs in advisory mode.
func (a *App) newExecutor() (monitor.PlanExecutor, func(), error) {
	if a.Config.Executor.PrivateKey == "" {
		return nil, nil, nil
	}
	wallet, err := executor.NewEVMWallet(executor.EVMWalletOptions{
		PrivateKeyHex: a.Config.Executor.PrivateKey,
		Testnet:       a.Config.Monitor.Testnet,
		PollInterval:  a.Config.Executor.PollInterval,
		GasMultiplier: a.Config.Executor.GasMultiplier,
	}, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	exec := executor.New(wallet, executor.Options{
		ConfirmTimeout: a.Config.Executor.ConfirmTimeout,
		DryRun:         a.Config.Executor.DryRun,
	}, a.Logger)
	return exec, wallet.Close, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// openStore returns the PostgreSQL store, or nil when no DSN is configured.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Run executes the long-running rotation engine until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var execStore storage.ExecutionStore
	var cfgStore storage.ConfigStore
	if store != nil {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.New("another rotator instance holds the database lock")
		}
		defer unlock()
		execStore = store
		cfgStore = store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; state kept in memory only")
		mem := storage.NewMemory()
		execStore = mem
		cfgStore = mem
	}

	exec, closeWallet, err := a.newExecutor()
	if err != nil {
		return err
	}
	if closeWallet != nil {
		defer closeWallet()
	}
	if exec == nil {
		a.Logger.Warn().Msg("executor.private_key not configured; running in advisory mode")
	}

	mon := monitor.New(
		monitor.FromAppConfig(a.Config.Monitor),
		a.newScanner(),
		a.newFeeds(),
		a.newCalculator(),
		exec,
		execStore,
		cfgStore,
		monitor.Options{
			Wallet:  a.Config.Wallet.Address,
			OnState: a.notifyExecutions(ctx),
		},
		a.Logger,
	)

	if err := mon.Restore(ctx); err != nil {
		return err
	}

	a.Logger.Info().
		Str("mode", a.Config.Monitor.Mode).
		Str("wallet", a.Config.Wallet.Address).
		Bool("testnet", a.Config.Monitor.Testnet).
		Msg("starting rotation engine")

	mon.Start(ctx)
	<-ctx.Done()
	mon.Stop()
	mon.Wait()

	a.Logger.Info().Msg("rotation engine stopped")
	return nil
}

// notifyExecutions watches state snapshots and pushes an alert for every
// newly settled execution.
func (a *App) notifyExecutions(ctx context.Context) monitor.StateFunc {
	notifier := a.newNotifier()
	if notifier == nil {
		return nil
	}

	var mu sync.Mutex
	var seen int64
	return func(state monitor.State) {
		mu.Lock()
		fresh := state.ExecutionsCount > seen && len(state.History) > 0
		if fresh {
			seen = state.ExecutionsCount
		}
		mu.Unlock()
		if !fresh {
			return
		}

		record := state.History[len(state.History)-1]
		note := alerting.Notification{
			ExecutedAt:    record.ExecutedAt,
			Kind:          record.Kind,
			TokenSymbol:   record.TokenSymbol,
			FromChain:     chainName(a.Config.Monitor.Testnet, record.FromChainID),
			ToChain:       chainName(a.Config.Monitor.Testnet, record.ToChainID),
			AmountUSD:     record.AmountUSD,
			NetBenefitUSD: record.NetBenefitUSD,
			Success:       record.Success,
			TxHash:        record.TxHash,
			ErrorMsg:      record.Error,
		}
		if err := notifier.Notify(ctx, note); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to deliver execution alert")
		}
	}
}

func chainName(testnet bool, id int64) string {
	c, err := chain.ByID(testnet, id)
	if err != nil {
		return ""
	}
	return c.Name
}

// PlanOptions configure the one-shot planning command.
type PlanOptions struct {
	// Mode overrides the configured engine mode when non-empty.
	Mode  string
	Limit int
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
	Clear bool
}

// ExportOptions hold parameters for exporting the execution ledger.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
