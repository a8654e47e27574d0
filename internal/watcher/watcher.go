// internal/watcher/watcher.go
//
// Package watcher is the event-driven alternative to the polling batch: it
// subscribes to the battle program's accounts and starts the victory flow of
// a token as soon as an update shows it is actionable.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
)

// Flow starts the victory flow of one mint.
type Flow interface {
	CompleteVictory(ctx context.Context, mint solana.PublicKey) *orchestrator.FlowResult
}

// ConnectionGauge reports the subscription state.
type ConnectionGauge interface {
	UpdateWebsocketConnections(active int, status string)
}

// Config tunes the watcher.
type Config struct {
	// Cooldown is the minimum time between two flows of the same mint.
	Cooldown     time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// MaxInFlight bounds concurrent flows; updates beyond it are dropped and
	// left to the next update or batch pass.
	MaxInFlight int
	// FlowTimeout bounds one triggered flow.
	FlowTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = time.Minute
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4
	}
	if c.FlowTimeout <= 0 {
		c.FlowTimeout = 5 * time.Minute
	}
}

// Watcher triggers victory flows from program account updates.
type Watcher struct {
	source     Source
	flow       Flow
	thresholds battle.Thresholds
	gauge      ConnectionGauge
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger

	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	mu       sync.Mutex
	lastRun  map[solana.PublicKey]time.Time
	inFlight map[solana.PublicKey]bool
}

// New creates a Watcher. gauge may be nil.
func New(source Source, flow Flow, thresholds battle.Thresholds, gauge ConnectionGauge, cfg Config, logger *zap.Logger) *Watcher {
	cfg.setDefaults()
	return &Watcher{
		source:     source,
		flow:       flow,
		thresholds: thresholds,
		gauge:      gauge,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.Named("watcher"),
		sem:        semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		lastRun:    make(map[solana.PublicKey]time.Time),
		inFlight:   make(map[solana.PublicKey]bool),
	}
}

// Run keeps the subscription alive until ctx is done, reconnecting with
// exponential backoff. It waits for triggered flows before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.ReconnectMin
	b.MaxInterval = w.cfg.ReconnectMax

	for {
		updates := make(chan Update, 64)
		done := make(chan error, 1)
		streamCtx, cancel := context.WithCancel(ctx)
		go func() {
			done <- w.source.Stream(streamCtx, updates)
		}()
		w.setConnected(true)

		err := w.consume(ctx, updates, done, b)
		cancel()
		w.setConnected(false)

		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		w.logger.Warn("🔌 Subscription lost, reconnecting", zap.Error(err), zap.Duration("in", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (w *Watcher) consume(ctx context.Context, updates <-chan Update, done <-chan error, b *backoff.ExponentialBackOff) error {
	received := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if err == nil {
				err = errors.New("stream closed")
			}
			return err
		case u := <-updates:
			if !received {
				received = true
				b.Reset()
			}
			w.handle(ctx, u)
		}
	}
}

func (w *Watcher) setConnected(up bool) {
	if w.gauge == nil {
		return
	}
	if up {
		w.gauge.UpdateWebsocketConnections(1, "connected")
		return
	}
	w.gauge.UpdateWebsocketConnections(0, "connected")
}

// handle decodes one update and starts a flow if the token is actionable.
func (w *Watcher) handle(ctx context.Context, u Update) {
	st, err := battle.Decode(u.Data)
	if errors.Is(err, battle.ErrUnknownVersion) {
		st, err = battle.DecodeBestEffort(u.Data)
	}
	if err != nil {
		// Other program accounts, e.g. the price oracle.
		return
	}
	if !w.actionable(st) {
		return
	}
	if !w.claim(st.Mint) {
		return
	}
	if !w.sem.TryAcquire(1) {
		w.mu.Lock()
		delete(w.inFlight, st.Mint)
		delete(w.lastRun, st.Mint)
		w.mu.Unlock()
		w.logger.Debug("flow capacity reached, dropping update", zap.String("mint", st.Mint.String()))
		return
	}

	w.wg.Add(1)
	go func(mint solana.PublicKey, status battle.Status) {
		defer w.wg.Done()
		defer w.sem.Release(1)
		defer w.release(mint)

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.FlowTimeout)
		defer cancel()
		w.logger.Info("⚡ Update triggered victory flow",
			zap.String("mint", mint.String()),
			zap.Stringer("status", status),
			zap.Uint64("slot", u.Slot))
		fr := w.flow.CompleteVictory(fctx, mint)
		if fr.Err != nil {
			w.logger.Warn("triggered flow stopped",
				zap.String("mint", mint.String()),
				zap.String("step", string(fr.Step)),
				zap.Error(fr.Err))
		}
	}(st.Mint, st.Status)
}

func (w *Watcher) actionable(st *battle.BattleState) bool {
	switch st.Status {
	case battle.StatusInBattle:
		return w.thresholds.Meets(st)
	case battle.StatusVictoryPending, battle.StatusListed:
		return true
	}
	return false
}

// claim marks mint as running unless it ran within the cooldown or is
// already running.
func (w *Watcher) claim(mint solana.PublicKey) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[mint] {
		return false
	}
	if last, ok := w.lastRun[mint]; ok && w.now().Sub(last) < w.cfg.Cooldown {
		return false
	}
	w.inFlight[mint] = true
	w.lastRun[mint] = w.now()
	return true
}

func (w *Watcher) release(mint solana.PublicKey) {
	w.mu.Lock()
	delete(w.inFlight, mint)
	w.mu.Unlock()
}
