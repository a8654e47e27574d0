// internal/keeper/keeper.go
//
// Package keeper wires the configured components into one container.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/api"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain/solbc"
	"github.com/rovshanmuradov/bonk-keeper/internal/config"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/metrics"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/pool"
	"github.com/rovshanmuradov/bonk-keeper/internal/price"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
	"github.com/rovshanmuradov/bonk-keeper/internal/scheduler"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/gormstore"
	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
	"github.com/rovshanmuradov/bonk-keeper/internal/watcher"
)

// Container holds every long-lived component of the keeper.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *metrics.Collector
	Ledger       *solbc.Client
	Wallet       *wallet.Wallet
	Program      *program.Program
	Executor     *executor.Executor
	Store        *gormstore.Store
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
	// Watcher and API are nil when disabled.
	Watcher *watcher.Watcher
	API     *api.Server

	shutdown *ShutdownHandler

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Build creates the container. The store is migrated; nothing is started.
func Build(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.NewCollector(),
		shutdown: NewShutdownHandler(logger.Named("shutdown"), 30*time.Second),
	}

	keeperWallet, err := loadWallet(cfg.Keeper)
	if err != nil {
		return nil, fmt.Errorf("keeper wallet: %w", err)
	}
	c.Wallet = keeperWallet

	prog, err := program.New(cfg.Program.ID, cfg.Program.Treasury, "")
	if err != nil {
		return nil, err
	}
	if cfg.Program.Oracle != "" {
		pda, err := prog.PriceOraclePDA()
		if err != nil {
			return nil, err
		}
		if pda.String() != cfg.Program.Oracle {
			return nil, fmt.Errorf("program.oracle %s does not match derived oracle %s", cfg.Program.Oracle, pda)
		}
	}
	c.Program = prog

	c.Ledger, err = solbc.NewClient(solbc.Config{
		URLs:              cfg.RPC.URLs,
		Commitment:        solanarpc.CommitmentType(cfg.RPC.Commitment),
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		MaxRetries:        cfg.RPC.MaxRetries,
		RequestTimeout:    cfg.RPC.RequestTimeout,
		ConfirmTimeout:    cfg.RPC.ConfirmTimeout,
		NodeCooldown:      cfg.RPC.NodeCooldown,
		Budget: solbc.ComputeBudget{
			Units:         cfg.RPC.ComputeUnitLimit,
			MicroLamports: cfg.RPC.PriorityFee,
		},
	}, solbc.NewErrorAnalyzer(logger, program.ErrorName), c.Metrics, logger.Named("ledger"))
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}

	c.Store, err = gormstore.Open(gormstore.Config{
		DSN:          cfg.Database.DSN,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		LogLevel:     cfg.Database.LogLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("mirror store: %w", err)
	}
	c.shutdown.Add("store", c.Store)
	if err := c.Store.RunMigrations(context.Background()); err != nil {
		_ = c.Store.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var creator pool.Creator
	if cfg.PoolService.URL != "" {
		creator = pool.NewHTTPCreator(pool.HTTPConfig{
			URL:     cfg.PoolService.URL,
			Token:   cfg.PoolService.Token,
			Cluster: cfg.Program.Cluster,
			Timeout: cfg.PoolService.Timeout,
		}, logger)
	} else {
		logger.Warn("pool_service.url is empty; winners will stay Listed without a pool")
	}

	thresholds := cfg.Thresholds.Thresholds()
	opts := []executor.Option{executor.WithRecorder(c.Metrics)}
	if cfg.Program.BestEffortDecode {
		opts = append(opts, executor.WithBestEffortDecode())
	}
	c.Executor = executor.New(c.Ledger, keeperWallet, prog, thresholds, creator, logger, opts...)

	var feed price.Feed
	if cfg.PriceFeed.Enabled {
		feed = price.NewCoinGeckoFeed(cfg.PriceFeed.URL, cfg.PriceFeed.Timeout, cfg.PriceFeed.MaxRetries, logger)
	}

	orchOpts := orchestrator.DefaultOptions()
	orchOpts.Concurrency = cfg.Scheduler.Concurrency
	orchOpts.BatchSize = cfg.Scheduler.BatchSize
	orchOpts.Budget = cfg.Scheduler.Budget
	orchOpts.TransitionTimeout = cfg.Scheduler.TransitionTimeout
	orchOpts.ChainFlow = cfg.Scheduler.ChainFlow
	orchOpts.SpoilsBps = cfg.Program.SpoilsBps
	orchOpts.FeeBps = cfg.Program.FeeBps
	orchOpts.Cluster = cfg.Program.Cluster
	c.Orchestrator = orchestrator.New(c.Executor, c.Store, thresholds, feed, orchOpts, c.Metrics, logger)

	priceInterval := cfg.Scheduler.PriceInterval
	if feed == nil {
		priceInterval = 0
	}
	c.Scheduler = scheduler.New(c.Orchestrator, scheduler.Config{
		BatchInterval: cfg.Scheduler.BatchInterval,
		MatchInterval: cfg.Scheduler.MatchInterval,
		PriceInterval: priceInterval,
		Budget:        cfg.Scheduler.Budget,
		Grace:         cfg.Scheduler.Grace,
		RunOnStart:    cfg.Scheduler.RunOnStart,
	}, logger)

	if cfg.Watcher.Enabled {
		c.Watcher = watcher.New(&watcher.WSSource{
			URL:        cfg.RPC.WebSocketURL,
			ProgramID:  prog.ID,
			Commitment: solanarpc.CommitmentConfirmed,
		}, c.Orchestrator, thresholds, c.Metrics, watcher.Config{
			Cooldown:     cfg.Watcher.Cooldown,
			ReconnectMin: cfg.Watcher.ReconnectMin,
			ReconnectMax: cfg.Watcher.ReconnectMax,
			MaxInFlight:  cfg.Watcher.MaxInFlight,
			FlowTimeout:  cfg.Watcher.FlowTimeout,
		}, logger)
	}

	if cfg.API.Enabled {
		c.API = api.New(c.Orchestrator, c.Store, thresholds, c.Metrics.Handler(), api.Config{
			Addr:           cfg.API.Addr,
			Secret:         cfg.API.Secret,
			AllowedOrigins: cfg.API.AllowedOrigins,
			RequestTimeout: cfg.API.RequestTimeout,
		}, logger)
		if cfg.API.Secret == "" {
			logger.Warn("api.secret is empty; trigger routes are unauthenticated")
		}
	}

	logger.Info("🛡️ Keeper ready",
		zap.String("keeper", keeperWallet.PublicKey.String()),
		zap.String("program", prog.ID.String()),
		zap.Bool("pool_service", creator != nil),
		zap.Bool("price_feed", feed != nil),
		zap.Bool("watcher", c.Watcher != nil),
		zap.Bool("api", c.API != nil))
	return c, nil
}

func loadWallet(cfg config.KeeperConfig) (*wallet.Wallet, error) {
	if cfg.PrivateKey != "" {
		return wallet.FromSecret(cfg.PrivateKey)
	}
	if cfg.KeyFile != "" {
		return wallet.FromFile(cfg.KeyFile)
	}
	return nil, errors.New("no keeper key configured")
}

// Start launches the scheduler, the API and the watcher. They run until Stop,
// independent of ctx, which only bounds startup.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	if c.API != nil {
		if err := c.API.Start(); err != nil {
			cancel()
			return err
		}
		c.shutdown.AddFunc("api", func() error {
			stopCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
			defer stop()
			return c.API.Shutdown(stopCtx)
		})
	}

	if err := c.Scheduler.Start(runCtx); err != nil {
		cancel()
		return err
	}
	c.shutdown.AddFunc("scheduler", func() error {
		c.Scheduler.Stop()
		return nil
	})

	if c.Watcher != nil {
		c.running.Add(1)
		go func() {
			defer c.running.Done()
			if err := c.Watcher.Run(runCtx); err != nil {
				c.Logger.Error("watcher stopped", zap.Error(err))
			}
		}()
		c.shutdown.AddFunc("watcher", func() error {
			cancel()
			c.running.Wait()
			return nil
		})
	}
	return nil
}

// Close stops whatever Start launched, then closes the store.
func (c *Container) Close(ctx context.Context) error {
	err := c.shutdown.Shutdown(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	return err
}

// Oracle returns the price oracle address used by the program.
func (c *Container) Oracle() (solana.PublicKey, error) {
	return c.Program.PriceOraclePDA()
}
