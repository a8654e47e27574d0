// internal/orchestrator/orchestrator.go
//
// Package orchestrator drives battle tokens through the keeper lifecycle:
// InBattle → VictoryPending → Listed → withdrawn → pool. Every decision is
// taken from a fresh ledger read; the mirror store is only used to find
// candidates and is written best effort after each observed transition.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/price"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage"
)

var (
	// ErrNotActionable: the ledger status has no keeper transition.
	ErrNotActionable = errors.New("token has no keeper transition in its current status")
	// ErrNoOpponent: a VictoryPending token has no recorded opponent.
	ErrNoOpponent = errors.New("victory pending token has no opponent")
	// ErrNoPriceFeed: price refresh without a configured feed.
	ErrNoPriceFeed = errors.New("no price feed configured")
)

// Transitioner executes single ledger transitions. *executor.Executor
// implements it.
type Transitioner interface {
	Observe(ctx context.Context, mint solana.PublicKey) (*battle.BattleState, error)
	ObserveMany(ctx context.Context, mints []solana.PublicKey) ([]*battle.BattleState, []error, error)
	CheckVictory(ctx context.Context, mint solana.PublicKey) (*executor.Result, error)
	FinalizeDuel(ctx context.Context, winner, loser solana.PublicKey) (*executor.Result, error)
	WithdrawForListing(ctx context.Context, mint solana.PublicKey) (*executor.Result, error)
	CreatePool(ctx context.Context, mint solana.PublicKey, liq executor.Liquidity) (*executor.Result, error)
	StartBattle(ctx context.Context, a, b solana.PublicKey) (*executor.Result, error)
	UpdateSolPrice(ctx context.Context, priceMicroUSD uint64) (*executor.Result, error)
}

var _ Transitioner = (*executor.Executor)(nil)

// Recorder receives batch metrics.
type Recorder interface {
	BatchCandidates(n int)
	BatchResult(result string)
}

type nopRecorder struct{}

func (nopRecorder) BatchCandidates(int) {}
func (nopRecorder) BatchResult(string)  {}

// Options tunes a pass.
type Options struct {
	// Concurrency bounds the mints processed in parallel.
	Concurrency int
	// BatchSize limits candidates read per pass; 0 means no limit.
	BatchSize int
	// Budget is the wall-clock window in which new per-mint work may start.
	Budget time.Duration
	// TransitionTimeout bounds one transition including confirmation.
	TransitionTimeout time.Duration
	// ChainFlow continues a fresh victory straight into finalize, withdraw
	// and pool creation in the same pass.
	ChainFlow bool
	// SpoilsBps and FeeBps mirror the program's finalize economics.
	SpoilsBps uint64
	FeeBps    uint64
	// PoolClaimTTL is how long a pool attempt claimed in the mirror blocks
	// other keepers; an older claim counts as abandoned.
	PoolClaimTTL time.Duration
	// Cluster is passed to trading links.
	Cluster string
	Now     func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:       4,
		BatchSize:         50,
		Budget:            50 * time.Second,
		TransitionTimeout: 60 * time.Second,
		ChainFlow:         true,
		SpoilsBps:         5000,
		FeeBps:            500,
		PoolClaimTTL:      5 * time.Minute,
		Cluster:           "devnet",
	}
}

// Orchestrator runs keeper passes. It holds no state across passes.
type Orchestrator struct {
	exec       Transitioner
	store      storage.Store
	thresholds battle.Thresholds
	feed       price.Feed
	opts       Options
	recorder   Recorder
	logger     *zap.Logger

	// pools joins concurrent pool creations of one mint.
	pools singleflight.Group
}

// New creates an Orchestrator. feed and recorder may be nil.
func New(
	exec Transitioner,
	store storage.Store,
	thresholds battle.Thresholds,
	feed price.Feed,
	opts Options,
	recorder Recorder,
	logger *zap.Logger,
) *Orchestrator {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.TransitionTimeout <= 0 {
		opts.TransitionTimeout = def.TransitionTimeout
	}
	if opts.SpoilsBps == 0 {
		opts.SpoilsBps = def.SpoilsBps
	}
	if opts.FeeBps == 0 {
		opts.FeeBps = def.FeeBps
	}
	if opts.PoolClaimTTL <= 0 {
		opts.PoolClaimTTL = def.PoolClaimTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{
		exec:       exec,
		store:      store,
		thresholds: thresholds,
		feed:       feed,
		opts:       opts,
		recorder:   recorder,
		logger:     logger.Named("orchestrator"),
	}
}

// step runs one transition with its own timeout.
func (o *Orchestrator) step(ctx context.Context, fn func(ctx context.Context) (*executor.Result, error)) (*executor.Result, error) {
	tctx, cancel := context.WithTimeout(ctx, o.opts.TransitionTimeout)
	defer cancel()
	return fn(tctx)
}
